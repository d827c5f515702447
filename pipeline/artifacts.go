package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/zhuguadundan/videowhisper/clients"
	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/fsutil"
	"github.com/zhuguadundan/videowhisper/registry"
)

// Artifact filenames inside output/<task_id>/. Download names shown to users
// derive from the media title instead; these stay fixed so the files API can
// classify them.
const (
	transcriptName = "transcript.md"
	timestampsName = "transcript_timestamps.md"
	summaryName    = "summary.md"
	dataName       = "data.json"
	bilingualName  = "bilingual.md"
)

type summarySection struct {
	*clients.SummaryResult
	Error string `json:"error,omitempty"`
}

type analysisSection struct {
	*clients.AnalysisResult
	Error string `json:"error,omitempty"`
}

// dataDocument is the shape of the data.json artifact, the one machine
// readable record of everything a run produced.
type dataDocument struct {
	TaskID             string                      `json:"task_id"`
	Media              *registry.MediaInfo         `json:"media,omitempty"`
	Transcript         clients.TranscriptionResult `json:"transcript"`
	PolishedTranscript string                      `json:"polished_transcript,omitempty"`
	Summary            summarySection              `json:"summary"`
	Analysis           analysisSection             `json:"analysis"`
	Timings            map[string]float64          `json:"timings"`
	CreatedAt          time.Time                   `json:"created_at"`
	CompletedAt        time.Time                   `json:"completed_at"`
}

// writeArtifacts renders every artifact of a finished run into the task's
// output directory and returns their output-root relative paths. summary.md
// is only written when the summary op succeeded; data.json records the error
// instead.
func writeArtifacts(outputRoot string, task *registry.Task, r *taskRun) (registry.Artifacts, error) {
	outDir, err := fsutil.SafeJoin(outputRoot, task.ID)
	if err != nil {
		return registry.Artifacts{}, err
	}
	if err := fsutil.EnsureDir(outDir); err != nil {
		return registry.Artifacts{}, errors.E(errors.KindInternal, "failed to create output dir", err)
	}

	arts := registry.Artifacts{}

	transcript := r.polished
	if transcript == "" {
		transcript = r.raw.FullText
	}
	if err := writeArtifactFile(outDir, transcriptName, []byte(transcript)); err != nil {
		return arts, err
	}
	arts.Transcript = path.Join(task.ID, transcriptName)

	if err := writeArtifactFile(outDir, timestampsName, []byte(renderTimestamps(r.raw.Segments))); err != nil {
		return arts, err
	}
	arts.Timestamps = path.Join(task.ID, timestampsName)

	if r.summaryErr == nil {
		if err := writeArtifactFile(outDir, summaryName, []byte(renderSummary(r.summary))); err != nil {
			return arts, err
		}
		arts.Summary = path.Join(task.ID, summaryName)
	}

	doc := dataDocument{
		TaskID:             task.ID,
		Media:              task.Media,
		Transcript:         r.raw,
		PolishedTranscript: r.polished,
		Timings:            task.AITimings,
		CreatedAt:          task.CreatedAt,
		CompletedAt:        time.Now().UTC(),
	}
	if doc.Timings == nil {
		doc.Timings = map[string]float64{}
	}
	if r.summaryErr != nil {
		doc.Summary = summarySection{Error: errors.UserMessage(r.summaryErr)}
	} else {
		summary := r.summary
		doc.Summary = summarySection{SummaryResult: &summary}
	}
	if r.analysisErr != nil {
		doc.Analysis = analysisSection{Error: errors.UserMessage(r.analysisErr)}
	} else {
		analysis := r.analysis
		doc.Analysis = analysisSection{AnalysisResult: &analysis}
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return arts, errors.E(errors.KindInternal, "failed to encode data.json", err)
	}
	if err := writeArtifactFile(outDir, dataName, raw); err != nil {
		return arts, err
	}
	arts.Data = path.Join(task.ID, dataName)

	return arts, nil
}

func writeArtifactFile(dir, name string, content []byte) error {
	p, err := fsutil.SafeJoin(dir, name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(p, content, 0o644); err != nil {
		if strings.Contains(err.Error(), "no space left on device") {
			return errors.E(errors.KindDiskFull, "storage is full", err)
		}
		return errors.Ef(errors.KindInternal, err, "failed to write %s", name)
	}
	return nil
}

// renderTimestamps lays the raw STT segments out one block per segment. The
// polished transcript may re-paragraph freely; this file is the one place
// where text stays aligned with time.
func renderTimestamps(segments []clients.TranscribedSegment) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s - %s] %s\n", formatClock(seg.Start), formatClock(seg.End), seg.Text)
	}
	return b.String()
}

func renderSummary(s clients.SummaryResult) string {
	var b strings.Builder
	b.WriteString("# 总结报告\n")
	if s.BriefSummary != "" {
		b.WriteString("\n## 摘要\n\n")
		b.WriteString(s.BriefSummary)
		b.WriteString("\n")
	}
	if len(s.Keywords) > 0 {
		b.WriteString("\n## 关键词\n\n")
		for _, kw := range s.Keywords {
			b.WriteString("- ")
			b.WriteString(kw)
			b.WriteString("\n")
		}
	}
	if s.DetailedSummary != "" {
		b.WriteString("\n## 详细总结\n\n")
		b.WriteString(s.DetailedSummary)
		b.WriteString("\n")
	}
	return b.String()
}

func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}
