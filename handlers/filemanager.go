package handlers

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/julienschmidt/httprouter"
	"github.com/xeipuuv/gojsonschema"

	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/files"
	"github.com/zhuguadundan/videowhisper/log"
	"github.com/zhuguadundan/videowhisper/requests"
)

type FileListResponse struct {
	Files []files.Entry `json:"files"`
}

// Files lists every managed file across both storage roots. Entries carry an
// opaque path token which is the only way clients may address a file.
func (d *HandlersCollection) Files() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestID(req)
		entries, err := d.FileStore.ListAll()
		if err != nil {
			errors.WriteError(w, requestID, err)
			return
		}
		writeSuccess(w, requestID, FileListResponse{Files: entries})
	}
}

// FileDownload streams the file behind a path token.
func (d *HandlersCollection) FileDownload() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		requestID := requests.GetRequestID(req)

		f, name, err := d.FileStore.OpenForDownload(ps.ByName("token"))
		if err != nil {
			errors.WriteError(w, requestID, err)
			return
		}
		defer f.Close()

		contentType := mime.TypeByExtension(filepath.Ext(name))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))

		if _, err := io.Copy(w, f); err != nil {
			log.LogError(requestID, "error streaming file", err, "name", name)
		}
	}
}

type FilesDeleteRequest struct {
	Tokens []string `json:"tokens"`
}

var FilesDeleteRequestSchemaDefinition = `{
	"type": "object",
	"properties": {
		"tokens": {
			"type": "array",
			"items": {
				"type": "string",
				"minLength": 1
			},
			"minItems": 1
		}
	},
	"required": ["tokens"],
	"additionalProperties": false
}`

type FilesDeleteResponse struct {
	Deleted []string          `json:"deleted"`
	Failed  map[string]string `json:"failed"`
}

// FilesDelete removes a batch of files by token. Per-token failures are
// reported alongside the successes rather than failing the whole batch.
func (d *HandlersCollection) FilesDelete() httprouter.Handle {
	schema := inputSchemasCompiled["FilesDelete"]
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestID(req)
		var deleteRequest FilesDeleteRequest

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
			errors.WriteHTTPBadBodySchema("FilesDelete", w, requestID, result.Errors())
			return
		} else if err := json.Unmarshal(payload, &deleteRequest); err != nil {
			errors.WriteHTTPBadRequest(w, requestID, "invalid request payload", err)
			return
		}

		deleted, failed := d.FileStore.DeleteMany(deleteRequest.Tokens)
		log.Log(requestID, "deleted files", "deleted", len(deleted), "failed", len(failed))
		writeSuccess(w, requestID, FilesDeleteResponse{Deleted: deleted, Failed: failed})
	}
}

type DeleteTaskResponse struct {
	TaskID  string `json:"task_id"`
	Deleted bool   `json:"deleted"`
}

// DeleteTask purges a task's files from both roots and drops its registry
// record. Tasks still processing cannot be deleted; tasks already absent from
// the registry still get their files purged so orphaned directories can be
// cleaned up.
func (d *HandlersCollection) DeleteTask() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		requestID := requests.GetRequestID(req)
		id := ps.ByName("id")

		task, err := d.Registry.Get(id)
		if err == nil && !task.Status.Terminal() {
			errors.WriteError(w, requestID, errors.E(errors.KindConflictBusy, "任务仍在处理中，无法删除", nil))
			return
		}
		if err != nil && errors.Kind(err) != errors.KindNotFound {
			errors.WriteError(w, requestID, err)
			return
		}

		if err := d.FileStore.DeleteTask(id); err != nil {
			errors.WriteError(w, requestID, err)
			return
		}
		if err := d.Registry.Delete(id); err != nil && errors.Kind(err) != errors.KindNotFound {
			errors.WriteError(w, requestID, err)
			return
		}
		log.Log(requestID, "deleted task", "task_id", id)
		writeSuccess(w, requestID, DeleteTaskResponse{TaskID: id, Deleted: true})
	}
}
