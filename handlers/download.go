package handlers

import (
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/fsutil"
	"github.com/zhuguadundan/videowhisper/log"
	"github.com/zhuguadundan/videowhisper/registry"
	"github.com/zhuguadundan/videowhisper/requests"
)

// Download filename suffix per artifact kind. The base is the sanitized
// media title so downloads sort together per video.
var artifactSuffixes = map[string]string{
	"transcript": "_transcript.md",
	"timestamps": "_timestamps.md",
	"summary":    "_summary.md",
	"data":       "_data.json",
	"bilingual":  "_bilingual.md",
}

func artifactRel(arts *registry.Artifacts, kind string) string {
	if arts == nil {
		return ""
	}
	switch kind {
	case "transcript":
		return arts.Transcript
	case "timestamps":
		return arts.Timestamps
	case "summary":
		return arts.Summary
	case "data":
		return arts.Data
	case "bilingual":
		return arts.Bilingual
	}
	return ""
}

// Download streams one artifact of a task. The artifact path comes from the
// task record, never from the client, and is containment-checked again on
// open.
func (d *HandlersCollection) Download() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		requestID := requests.GetRequestID(req)
		kind := ps.ByName("kind")

		suffix, ok := artifactSuffixes[kind]
		if !ok {
			errors.WriteHTTPBadRequest(w, requestID, "未知的结果类型", nil)
			return
		}
		task, err := d.Registry.Get(ps.ByName("id"))
		if err != nil {
			errors.WriteError(w, requestID, err)
			return
		}
		rel := artifactRel(task.Artifacts, kind)
		if rel == "" {
			errors.WriteHTTPNotFound(w, requestID, "该任务没有此类型的结果文件", nil)
			return
		}

		f, err := d.FileStore.OpenOutput(rel)
		if err != nil {
			errors.WriteError(w, requestID, err)
			return
		}
		defer f.Close()

		title := task.ID
		if task.Media != nil && task.Media.Title != "" {
			title = task.Media.Title
		}
		name := fsutil.SanitizeFilename(title) + suffix

		contentType := "text/markdown; charset=utf-8"
		if path.Ext(rel) == ".json" {
			contentType = "application/json"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
		if info, err := f.Stat(); err == nil {
			w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
		}

		if _, err := io.Copy(w, f); err != nil {
			log.LogError(requestID, "error streaming artifact", err, "task_id", task.ID, "kind", kind)
		}
	}
}
