package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/xeipuuv/gojsonschema"

	"github.com/zhuguadundan/videowhisper/config"
	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/log"
	"github.com/zhuguadundan/videowhisper/metrics"
	"github.com/zhuguadundan/videowhisper/netutil"
	"github.com/zhuguadundan/videowhisper/pipeline"
	"github.com/zhuguadundan/videowhisper/registry"
	"github.com/zhuguadundan/videowhisper/requests"
)

type ProcessVideoRequest struct {
	VideoURL       string                 `json:"video_url"`
	LLMProvider    string                 `json:"llm_provider"`
	APIConfig      map[string]interface{} `json:"api_config"`
	YoutubeCookies string                 `json:"youtube_cookies"`
}

type ProcessVideoResponse struct {
	TaskID string `json:"task_id"`
}

var ProcessVideoRequestSchemaDefinition string = `{
	"type": "object",
	"properties": {
		"video_url": {"type": "string", "minLength": 1},
		"llm_provider": {"type": "string", "enum": ["siliconflow", "openai", "gemini"]},
		"api_config": {
			"properties": {
				"api_key": {"type": "string"},
				"base_url": {"type": "string"},
				"model": {"type": "string"},
				"stt_model": {"type": "string"}
			},
			"additionalProperties": false,
			"type": "object"
		},
		"youtube_cookies": {"type": "string"}
	},
	"additionalProperties": false,
	"required": [
		"video_url"
	]
}`

type ProcessUploadRequest struct {
	TaskID      string                 `json:"task_id"`
	LLMProvider string                 `json:"llm_provider"`
	APIConfig   map[string]interface{} `json:"api_config"`
}

var ProcessUploadRequestSchemaDefinition string = `{
	"type": "object",
	"properties": {
		"task_id": {"type": "string", "minLength": 1},
		"llm_provider": {"type": "string", "enum": ["siliconflow", "openai", "gemini"]},
		"api_config": {
			"properties": {
				"api_key": {"type": "string"},
				"base_url": {"type": "string"},
				"model": {"type": "string"},
				"stt_model": {"type": "string"}
			},
			"additionalProperties": false,
			"type": "object"
		}
	},
	"additionalProperties": false,
	"required": [
		"task_id"
	]
}`

// ProcessVideo accepts a video URL submission. The URL is checked against the
// outbound policy before any task record exists, so a rejected URL leaves no
// trace in the registry.
func (d *HandlersCollection) ProcessVideo() httprouter.Handle {
	schema := inputSchemasCompiled["ProcessVideo"]

	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestID(req)
		var processRequest ProcessVideoRequest

		if !HasContentType(req, "application/json") {
			errors.WriteHTTPUnsupportedMediaType(w, requestID, "requires application/json content type", nil)
			return
		} else if payload, err := io.ReadAll(req.Body); err != nil {
			errors.WriteHTTPInternalServerError(w, requestID, "cannot read payload", err)
			return
		} else if result, err := schema.Validate(gojsonschema.NewBytesLoader(payload)); err != nil {
			errors.WriteHTTPBadRequest(w, requestID, "invalid request payload", err)
			return
		} else if !result.Valid() {
			errors.WriteHTTPBadBodySchema("ProcessVideo", w, requestID, result.Errors())
			return
		} else if err := json.Unmarshal(payload, &processRequest); err != nil {
			errors.WriteHTTPBadRequest(w, requestID, "invalid request payload", err)
			return
		}

		if err := netutil.CheckBaseURL(req.Context(), processRequest.VideoURL, d.Config.Policy()); err != nil {
			errors.WriteError(w, requestID, err)
			return
		}

		opts, err := d.startOptions(req.Context(), requestID, processRequest.LLMProvider, processRequest.APIConfig)
		if err != nil {
			errors.WriteError(w, requestID, err)
			return
		}
		if processRequest.YoutubeCookies != "" {
			log.RegisterSecret(processRequest.YoutubeCookies)
			opts.Cookies = processRequest.YoutubeCookies
		}

		task, err := d.Registry.Create(registry.Source{Kind: registry.SourceURL, Value: processRequest.VideoURL}, requestID, opts.Provider)
		if err != nil {
			errors.WriteError(w, requestID, err)
			return
		}
		log.AddContext(requestID, "task_id", task.ID, "source", log.RedactURL(processRequest.VideoURL))
		metrics.Metrics.TaskSubmissionCount.WithLabelValues("url").Inc()

		if err := d.Engine.Submit(task.ID, opts); err != nil {
			// The task was created by this request; do not leave it behind.
			if derr := d.Registry.Delete(task.ID); derr != nil {
				log.LogError(requestID, "failed to delete unstartable task", derr, "task_id", task.ID)
			}
			errors.WriteError(w, requestID, err)
			return
		}

		writeSuccess(w, requestID, ProcessVideoResponse{TaskID: task.ID})
	}
}

// ProcessUpload starts the pipeline for a previously uploaded file.
func (d *HandlersCollection) ProcessUpload() httprouter.Handle {
	schema := inputSchemasCompiled["ProcessUpload"]

	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestID(req)
		var processRequest ProcessUploadRequest

		if !HasContentType(req, "application/json") {
			errors.WriteHTTPUnsupportedMediaType(w, requestID, "requires application/json content type", nil)
			return
		} else if payload, err := io.ReadAll(req.Body); err != nil {
			errors.WriteHTTPInternalServerError(w, requestID, "cannot read payload", err)
			return
		} else if result, err := schema.Validate(gojsonschema.NewBytesLoader(payload)); err != nil {
			errors.WriteHTTPBadRequest(w, requestID, "invalid request payload", err)
			return
		} else if !result.Valid() {
			errors.WriteHTTPBadBodySchema("ProcessUpload", w, requestID, result.Errors())
			return
		} else if err := json.Unmarshal(payload, &processRequest); err != nil {
			errors.WriteHTTPBadRequest(w, requestID, "invalid request payload", err)
			return
		}

		task, err := d.Registry.Get(processRequest.TaskID)
		if err != nil {
			errors.WriteError(w, requestID, err)
			return
		}
		if task.Source.Kind != registry.SourceUpload {
			errors.WriteHTTPBadRequest(w, requestID, "任务不是上传任务", nil)
			return
		}

		opts, err := d.startOptions(req.Context(), requestID, processRequest.LLMProvider, processRequest.APIConfig)
		if err != nil {
			errors.WriteError(w, requestID, err)
			return
		}
		log.AddContext(requestID, "task_id", task.ID)

		if err := d.Engine.Submit(task.ID, opts); err != nil {
			errors.WriteError(w, requestID, err)
			return
		}

		writeSuccess(w, requestID, ProcessVideoResponse{TaskID: task.ID})
	}
}

// startOptions resolves the per-request vendor configuration.
func (d *HandlersCollection) startOptions(ctx context.Context, requestID, provider string, apiConfig map[string]interface{}) (pipeline.StartOptions, error) {
	if provider == "" {
		provider = config.ProviderSiliconFlow
	}
	llmBase, err := d.Config.ProviderFor(provider)
	if err != nil {
		return pipeline.StartOptions{}, err
	}
	llm, err := llmBase.WithOverrides(apiConfig)
	if err != nil {
		return pipeline.StartOptions{}, err
	}
	stt, err := d.Config.APIs.SiliconFlow.WithOverrides(apiConfig)
	if err != nil {
		return pipeline.StartOptions{}, err
	}

	// Operator-configured base URLs are trusted; the caller-supplied
	// override is not and must pass the same policy as video URLs.
	if raw, ok := apiConfig["base_url"].(string); ok && raw != "" {
		if err := netutil.CheckBaseURL(ctx, raw, d.Config.Policy()); err != nil {
			return pipeline.StartOptions{}, err
		}
	}

	return pipeline.StartOptions{
		RequestID: requestID,
		Provider:  provider,
		LLMVendor: llm,
		STTVendor: stt,
	}, nil
}
