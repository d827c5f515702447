package handlers

import (
	stderrors "errors"
	"net/http"
	"path/filepath"

	"github.com/julienschmidt/httprouter"

	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/log"
	"github.com/zhuguadundan/videowhisper/metrics"
	"github.com/zhuguadundan/videowhisper/progress"
	"github.com/zhuguadundan/videowhisper/registry"
	"github.com/zhuguadundan/videowhisper/requests"
)

type UploadResponse struct {
	TaskID   string `json:"task_id"`
	Filename string `json:"filename"`
}

// Upload stores a local media file under the temp root and creates a task in
// the uploaded state. Processing starts later via /api/process-upload.
func (d *HandlersCollection) Upload() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestID(req)

		maxBytes := int64(d.Config.System.MaxFileSizeMB) << 20
		if maxBytes > 0 {
			req.Body = http.MaxBytesReader(w, req.Body, maxBytes)
		}

		file, header, err := req.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if stderrors.As(err, &tooLarge) {
				errors.WriteHTTPBadRequest(w, requestID, "文件大小超过限制", err)
				return
			}
			errors.WriteHTTPBadRequest(w, requestID, "无法读取上传文件", err)
			return
		}
		defer file.Close()

		rel, err := d.FileStore.SaveUpload(header.Filename, file)
		if err != nil {
			errors.WriteError(w, requestID, err)
			return
		}

		task, err := d.Registry.Create(registry.Source{Kind: registry.SourceUpload, Path: rel}, requestID, "")
		if err != nil {
			errors.WriteError(w, requestID, err)
			return
		}
		if task, err = d.Registry.Update(task.ID, func(t *registry.Task) error {
			t.Stage = progress.LabelUploaded
			return nil
		}); err != nil {
			errors.WriteError(w, requestID, err)
			return
		}

		log.AddContext(requestID, "task_id", task.ID, "filename", filepath.Base(rel))
		log.Log(requestID, "stored uploaded file", "size", header.Size)
		metrics.Metrics.TaskSubmissionCount.WithLabelValues("upload").Inc()

		writeSuccess(w, requestID, UploadResponse{TaskID: task.ID, Filename: filepath.Base(rel)})
	}
}
