package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/registry"
	"github.com/zhuguadundan/videowhisper/requests"
)

// TaskSnapshot is the polling view of one task. It deliberately omits the
// source value so an upload path or a URL with auth material never rides
// along with progress polls.
type TaskSnapshot struct {
	TaskID            string              `json:"task_id"`
	Status            registry.Status     `json:"status"`
	Progress          int                 `json:"progress"`
	Stage             string              `json:"stage,omitempty"`
	StageDetail       string              `json:"stage_detail,omitempty"`
	SegmentsTotal     int                 `json:"segments_total"`
	SegmentsDone      int                 `json:"segments_done"`
	AITimings         map[string]float64  `json:"ai_timings,omitempty"`
	Error             *registry.TaskError `json:"error,omitempty"`
	TranslationStatus string              `json:"translation_status,omitempty"`
	TranslationLang   string              `json:"translation_lang,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
	CompletedAt       *time.Time          `json:"completed_at,omitempty"`
}

func snapshotOf(task registry.Task) TaskSnapshot {
	return TaskSnapshot{
		TaskID:            task.ID,
		Status:            task.Status,
		Progress:          task.Progress,
		Stage:             task.Stage,
		StageDetail:       task.StageDetail,
		SegmentsTotal:     task.SegmentsTotal,
		SegmentsDone:      task.SegmentsDone,
		AITimings:         task.AITimings,
		Error:             task.Error,
		TranslationStatus: task.TranslationStatus,
		TranslationLang:   task.TranslationLang,
		CreatedAt:         task.CreatedAt,
		UpdatedAt:         task.UpdatedAt,
		CompletedAt:       task.CompletedAt,
	}
}

// Progress returns the live snapshot of one task.
func (d *HandlersCollection) Progress() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		requestID := requests.GetRequestID(req)
		task, err := d.Registry.Get(ps.ByName("id"))
		if err != nil {
			errors.WriteError(w, requestID, err)
			return
		}
		writeSuccess(w, requestID, snapshotOf(task))
	}
}

type TaskResult struct {
	TaskID            string              `json:"task_id"`
	Result            json.RawMessage     `json:"result"`
	Artifacts         *registry.Artifacts `json:"artifacts"`
	TranslationStatus string              `json:"translation_status,omitempty"`
	TranslationLang   string              `json:"translation_lang,omitempty"`
}

// Result returns the full persisted result of a completed task. For a failed
// task the recorded error is replayed with its original kind; a task still
// in flight is a busy conflict.
func (d *HandlersCollection) Result() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		requestID := requests.GetRequestID(req)
		task, err := d.Registry.Get(ps.ByName("id"))
		if err != nil {
			errors.WriteError(w, requestID, err)
			return
		}

		switch task.Status {
		case registry.StatusCompleted:
		case registry.StatusFailed:
			taskErr := errors.E(errors.KindInternal, "task failed", nil)
			if task.Error != nil {
				taskErr = errors.E(task.Error.Kind, task.Error.Message, nil)
			}
			errors.WriteError(w, requestID, taskErr)
			return
		case registry.StatusCancelled:
			errors.WriteError(w, requestID, errors.E(errors.KindCancelled, "任务已被取消", nil))
			return
		default:
			errors.WriteError(w, requestID, errors.E(errors.KindConflictBusy, "任务尚未完成", nil))
			return
		}

		if task.Artifacts == nil || task.Artifacts.Data == "" {
			errors.WriteHTTPNotFound(w, requestID, "结果文件不存在", nil)
			return
		}
		f, err := d.FileStore.OpenOutput(task.Artifacts.Data)
		if err != nil {
			errors.WriteError(w, requestID, err)
			return
		}
		defer f.Close()
		raw, err := readAllLimited(f)
		if err != nil {
			errors.WriteHTTPInternalServerError(w, requestID, "cannot read result file", err)
			return
		}

		writeSuccess(w, requestID, TaskResult{
			TaskID:            task.ID,
			Result:            json.RawMessage(raw),
			Artifacts:         task.Artifacts,
			TranslationStatus: task.TranslationStatus,
			TranslationLang:   task.TranslationLang,
		})
	}
}

// TaskSummary is one row of the task list.
type TaskSummary struct {
	TaskID      string              `json:"task_id"`
	Status      registry.Status     `json:"status"`
	Progress    int                 `json:"progress"`
	Stage       string              `json:"stage,omitempty"`
	SourceKind  registry.SourceKind `json:"source_kind"`
	Title       string              `json:"title,omitempty"`
	Error       *registry.TaskError `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

type TaskListResponse struct {
	Tasks []TaskSummary `json:"tasks"`
}

// Tasks lists every known task, newest first.
func (d *HandlersCollection) Tasks() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		requestID := requests.GetRequestID(req)
		tasks := d.Registry.List()
		summaries := make([]TaskSummary, 0, len(tasks))
		for _, task := range tasks {
			summary := TaskSummary{
				TaskID:      task.ID,
				Status:      task.Status,
				Progress:    task.Progress,
				Stage:       task.Stage,
				SourceKind:  task.Source.Kind,
				Error:       task.Error,
				CreatedAt:   task.CreatedAt,
				CompletedAt: task.CompletedAt,
			}
			if task.Media != nil {
				summary.Title = task.Media.Title
			}
			summaries = append(summaries, summary)
		}
		writeSuccess(w, requestID, TaskListResponse{Tasks: summaries})
	}
}

// readAllLimited caps result reads well above any data.json the pipeline can
// produce, so a swapped file cannot balloon a response.
func readAllLimited(f *os.File) ([]byte, error) {
	const maxResultBytes = 64 << 20
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() > maxResultBytes {
		return nil, errors.Ef(errors.KindInternal, nil, "result file too large (%d bytes)", info.Size())
	}
	raw := make([]byte, info.Size())
	if _, err := io.ReadFull(f, raw); err != nil {
		return nil, err
	}
	return raw, nil
}
