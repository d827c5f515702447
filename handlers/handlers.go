package handlers

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/zhuguadundan/videowhisper/config"
	"github.com/zhuguadundan/videowhisper/files"
	"github.com/zhuguadundan/videowhisper/log"
	"github.com/zhuguadundan/videowhisper/pipeline"
	"github.com/zhuguadundan/videowhisper/registry"
)

// HandlersCollection bundles everything the endpoint handlers need. One
// instance is built in main and shared by the whole router.
type HandlersCollection struct {
	Config    config.AppConfig
	Cli       config.Cli
	Registry  *registry.Registry
	Engine    *pipeline.Coordinator
	FileStore *files.Manager
}

type meta struct {
	RequestID string `json:"request_id"`
}

type successEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Meta    meta        `json:"meta"`
}

func writeSuccess(w http.ResponseWriter, requestID string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	env := successEnvelope{Success: true, Data: data, Meta: meta{RequestID: requestID}}
	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.LogError(requestID, "error writing HTTP response", err)
	}
}

func HasContentType(r *http.Request, mimetype string) bool {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return mimetype == "application/octet-stream"
	}

	for _, v := range strings.Split(contentType, ",") {
		t, _, err := mime.ParseMediaType(v)
		if err != nil {
			break
		}
		if t == mimetype {
			return true
		}
	}

	return false
}
