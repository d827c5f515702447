package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/xeipuuv/gojsonschema"

	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/log"
	"github.com/zhuguadundan/videowhisper/requests"
)

type TranslateRequest struct {
	TaskID         string                 `json:"task_id"`
	TargetLanguage string                 `json:"target_language"`
	LLMProvider    string                 `json:"llm_provider"`
	APIConfig      map[string]interface{} `json:"api_config"`
}

var TranslateRequestSchemaDefinition = `{
	"type": "object",
	"properties": {
		"task_id": {
			"type": "string",
			"minLength": 1
		},
		"target_language": {
			"type": "string",
			"minLength": 1
		},
		"llm_provider": {
			"type": "string",
			"enum": ["siliconflow", "openai", "gemini"]
		},
		"api_config": {
			"type": "object",
			"properties": {
				"api_key": {
					"type": "string"
				},
				"base_url": {
					"type": "string"
				},
				"model": {
					"type": "string"
				},
				"stt_model": {
					"type": "string"
				}
			},
			"additionalProperties": false
		}
	},
	"required": ["task_id"],
	"additionalProperties": false
}`

type TranslateResponse struct {
	TaskID            string `json:"task_id"`
	TranslationStatus string `json:"translation_status"`
}

// Translate starts a bilingual translation follow-up on a completed task.
// The translation reuses the task slot, so a task being translated cannot be
// reprocessed or translated twice concurrently.
func (d *HandlersCollection) Translate() httprouter.Handle {
	schema := inputSchemasCompiled["Translate"]
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestID(req)
		var translateRequest TranslateRequest

		if !HasContentType(req, "application/json") {
			errors.WriteHTTPUnsupportedMediaType(w, requestID, "requires application/json content type", nil)
			return
		} else if payload, err := io.ReadAll(req.Body); err != nil {
			errors.WriteHTTPInternalServerError(w, requestID, "error reading request body", err)
			return
		} else if result, err := schema.Validate(gojsonschema.NewBytesLoader(payload)); err != nil {
			errors.WriteHTTPBadRequest(w, requestID, "invalid request payload", err)
			return
		} else if !result.Valid() {
			errors.WriteHTTPBadBodySchema("Translate", w, requestID, result.Errors())
			return
		} else if err := json.Unmarshal(payload, &translateRequest); err != nil {
			errors.WriteHTTPBadRequest(w, requestID, "invalid request payload", err)
			return
		}

		lang := translateRequest.TargetLanguage
		if lang == "" {
			lang = "中文"
		}
		opts, err := d.startOptions(req.Context(), requestID, translateRequest.LLMProvider, translateRequest.APIConfig)
		if err != nil {
			errors.WriteError(w, requestID, err)
			return
		}

		if err := d.Engine.StartTranslation(translateRequest.TaskID, opts, lang); err != nil {
			errors.WriteError(w, requestID, err)
			return
		}
		log.AddContext(requestID, "task_id", translateRequest.TaskID, "target_language", lang)
		log.Log(requestID, "translation started")

		writeSuccess(w, requestID, TranslateResponse{
			TaskID:            translateRequest.TaskID,
			TranslationStatus: "processing",
		})
	}
}
