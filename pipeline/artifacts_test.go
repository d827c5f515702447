package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhuguadundan/videowhisper/clients"
	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/registry"
)

func TestFormatClock(t *testing.T) {
	require.Equal(t, "00:00:00", formatClock(0))
	require.Equal(t, "00:00:59", formatClock(59.9))
	require.Equal(t, "00:05:00", formatClock(300))
	require.Equal(t, "01:01:01", formatClock(3661))
	require.Equal(t, "27:46:40", formatClock(100000))
	require.Equal(t, "00:00:00", formatClock(-5))
}

func TestRenderTimestamps(t *testing.T) {
	segments := []clients.TranscribedSegment{
		{Index: 0, Start: 0, End: 300, Text: "第一段。"},
		{Index: 1, Start: 300, End: 512.4, Text: "第二段。"},
	}
	want := "[00:00:00 - 00:05:00] 第一段。\n" +
		"\n" +
		"[00:05:00 - 00:08:32] 第二段。\n"
	require.Equal(t, want, renderTimestamps(segments))
	require.Empty(t, renderTimestamps(nil))
}

func TestRenderSummarySections(t *testing.T) {
	full := renderSummary(clients.SummaryResult{
		BriefSummary:    "简要。",
		Keywords:        []string{"甲", "乙"},
		DetailedSummary: "细节。",
	})
	want := "# 总结报告\n" +
		"\n## 摘要\n\n简要。\n" +
		"\n## 关键词\n\n- 甲\n- 乙\n" +
		"\n## 详细总结\n\n细节。\n"
	require.Equal(t, want, full)

	// Missing sections are omitted rather than rendered empty.
	sparse := renderSummary(clients.SummaryResult{BriefSummary: "只有摘要。"})
	require.NotContains(t, sparse, "关键词")
	require.NotContains(t, sparse, "详细总结")
}

func TestWriteArtifactsRecordsLLMErrorsInData(t *testing.T) {
	outputRoot := t.TempDir()
	task := &registry.Task{
		ID:        "task1",
		Media:     &registry.MediaInfo{Title: "标题", DurationSeconds: 42},
		AITimings: map[string]float64{"summary": 1.5},
		CreatedAt: time.Now().UTC().Add(-time.Minute),
	}
	r := &taskRun{
		raw: clients.TranscriptionResult{
			FullText: "原始文本",
			Segments: []clients.TranscribedSegment{{Start: 0, End: 42, Text: "原始文本"}},
		},
		summaryErr:  errors.E(errors.KindVendorRateLimited, "llm vendor is rate limiting requests", nil),
		analysisErr: errors.E(errors.KindVendorError, "llm request failed upstream", nil),
	}

	arts, err := writeArtifacts(outputRoot, task, r)
	require.NoError(t, err)
	require.Equal(t, "task1/transcript.md", arts.Transcript)
	require.Equal(t, "task1/transcript_timestamps.md", arts.Timestamps)
	require.Equal(t, "task1/data.json", arts.Data)
	require.Empty(t, arts.Summary)
	require.NoFileExists(t, filepath.Join(outputRoot, "task1", summaryName))

	// No polish result: transcript.md falls back to the raw text.
	raw, err := os.ReadFile(filepath.Join(outputRoot, "task1", transcriptName))
	require.NoError(t, err)
	require.Equal(t, "原始文本", string(raw))

	data, err := os.ReadFile(filepath.Join(outputRoot, "task1", dataName))
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	require.JSONEq(t, `{"error":"llm vendor is rate limiting requests"}`, string(doc["summary"]))
	require.JSONEq(t, `{"error":"llm request failed upstream"}`, string(doc["analysis"]))
	require.NotContains(t, doc, "polished_transcript")
}

func TestWriteArtifactsFlattensResultsInData(t *testing.T) {
	outputRoot := t.TempDir()
	task := &registry.Task{ID: "task2", CreatedAt: time.Now().UTC()}
	r := &taskRun{
		raw:      clients.TranscriptionResult{FullText: "原文"},
		polished: "润色后",
		summary:  clients.SummaryResult{BriefSummary: "摘要", Keywords: []string{"关键"}},
		analysis: clients.AnalysisResult{ContentType: "教育", MainTopics: []string{"主题"}},
	}

	_, err := writeArtifacts(outputRoot, task, r)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(outputRoot, "task2", dataName))
	require.NoError(t, err)
	var doc dataDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Equal(t, "润色后", doc.PolishedTranscript)
	require.NotNil(t, doc.Summary.SummaryResult)
	require.Equal(t, "摘要", doc.Summary.BriefSummary)
	require.Empty(t, doc.Summary.Error)
	require.Equal(t, "教育", doc.Analysis.ContentType)
	require.NotNil(t, doc.Timings, "timings is always present, even when empty")
	require.False(t, doc.CompletedAt.IsZero())

	// The embedded result marshals flat, not nested under a field name.
	var generic map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &generic))
	require.Contains(t, string(generic["summary"]), "\"brief_summary\"")
}

func TestWriteArtifactsRejectsEscapingTaskID(t *testing.T) {
	outputRoot := t.TempDir()
	task := &registry.Task{ID: "../escape"}
	_, err := writeArtifacts(outputRoot, task, &taskRun{})
	require.Error(t, err)
	require.Equal(t, errors.KindPathEscape, errors.Kind(err))
}
