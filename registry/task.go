package registry

import "time"

// Status is the lifecycle state of a task. Transitions only move forward:
// pending → processing → one of the three terminal states.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether a status can never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// SourceKind tags how the media entered the system.
type SourceKind string

const (
	SourceURL    SourceKind = "url"
	SourceUpload SourceKind = "upload"
)

// Source identifies the input of a task: a video URL, or the temp-root
// relative path of an uploaded file.
type Source struct {
	Kind  SourceKind `json:"kind"`
	Value string     `json:"value,omitempty"`
	Path  string     `json:"path,omitempty"`
}

// MediaInfo is what the fetcher learned about the video.
type MediaInfo struct {
	Title           string  `json:"title"`
	Uploader        string  `json:"uploader,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	SourceURL       string  `json:"source_url,omitempty"`
}

// Artifacts holds output-root relative paths of the files the pipeline wrote.
type Artifacts struct {
	Transcript string `json:"transcript,omitempty"`
	Timestamps string `json:"timestamps,omitempty"`
	Summary    string `json:"summary,omitempty"`
	Data       string `json:"data,omitempty"`
	Bilingual  string `json:"bilingual,omitempty"`
}

// TaskError is the client-safe failure record of a failed task.
type TaskError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Translation states for the optional bilingual follow-up pass. Empty means
// never requested.
const (
	TranslationProcessing = "processing"
	TranslationCompleted  = "completed"
	TranslationFailed     = "failed"
)

// Task is the durable record of one submission. The registry owns every
// instance; everything handed out is a deep copy.
type Task struct {
	ID                string             `json:"id"`
	RequestID         string             `json:"request_id,omitempty"`
	Status            Status             `json:"status"`
	Progress          int                `json:"progress"`
	Stage             string             `json:"stage,omitempty"`
	StageDetail       string             `json:"stage_detail,omitempty"`
	Source            Source             `json:"source"`
	Media             *MediaInfo         `json:"media,omitempty"`
	Artifacts         *Artifacts         `json:"artifacts,omitempty"`
	AITimings         map[string]float64 `json:"ai_timings,omitempty"`
	SegmentsTotal     int                `json:"segments_total"`
	SegmentsDone      int                `json:"segments_done"`
	Error             *TaskError         `json:"error,omitempty"`
	TranslationStatus string             `json:"translation_status,omitempty"`
	TranslationLang   string             `json:"translation_lang,omitempty"`
	LLMProvider       string             `json:"llm_provider,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	CompletedAt       *time.Time         `json:"completed_at,omitempty"`
}

// Clone deep-copies the task so registry internals never alias caller state.
func (t *Task) Clone() Task {
	out := *t
	if t.Media != nil {
		media := *t.Media
		out.Media = &media
	}
	if t.Artifacts != nil {
		artifacts := *t.Artifacts
		out.Artifacts = &artifacts
	}
	if t.Error != nil {
		taskErr := *t.Error
		out.Error = &taskErr
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		out.CompletedAt = &completed
	}
	if t.AITimings != nil {
		out.AITimings = make(map[string]float64, len(t.AITimings))
		for k, v := range t.AITimings {
			out.AITimings[k] = v
		}
	}
	return out
}

// RecordTiming stores the elapsed seconds of an AI sub-stage.
func (t *Task) RecordTiming(name string, seconds float64) {
	if t.AITimings == nil {
		t.AITimings = make(map[string]float64)
	}
	t.AITimings[name] = seconds
}
