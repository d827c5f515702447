package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhuguadundan/videowhisper/audio"
	"github.com/zhuguadundan/videowhisper/clients"
	"github.com/zhuguadundan/videowhisper/config"
	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/media"
	"github.com/zhuguadundan/videowhisper/progress"
	"github.com/zhuguadundan/videowhisper/registry"
)

// progressRecorder samples the task's persisted progress whenever a stub is
// invoked, giving a deterministic view of the projection sequence.
type progressRecorder struct {
	mu   sync.Mutex
	reg  *registry.Registry
	id   string
	seen []int
}

func (p *progressRecorder) record() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.id == "" {
		return
	}
	task, err := p.reg.Get(p.id)
	if err != nil {
		return
	}
	p.seen = append(p.seen, task.Progress)
}

func (p *progressRecorder) values() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int{}, p.seen...)
}

type stubFetcher struct {
	enter    func()
	info     media.VideoInfo
	infoErr  error
	audioErr error
}

func (f *stubFetcher) FetchInfo(ctx context.Context, req media.Request) (media.VideoInfo, error) {
	if f.enter != nil {
		f.enter()
	}
	if f.infoErr != nil {
		return media.VideoInfo{}, f.infoErr
	}
	return f.info, nil
}

func (f *stubFetcher) FetchAudio(ctx context.Context, req media.Request, workdir string) (string, error) {
	if f.audioErr != nil {
		return "", f.audioErr
	}
	p := filepath.Join(workdir, "audio.mp3")
	return p, os.WriteFile(p, []byte("audio"), 0o644)
}

type stubProber struct {
	enter    func()
	duration float64
	err      error
}

func (p *stubProber) Probe(ctx context.Context, path string) (audio.Info, error) {
	if p.enter != nil {
		p.enter()
	}
	if p.err != nil {
		return audio.Info{}, p.err
	}
	return audio.Info{DurationSeconds: p.duration, FormatName: "mp3", HasAudio: true}, nil
}

type stubExtractor struct{}

func (stubExtractor) Extract(ctx context.Context, srcPath, dstPath string) error {
	return os.WriteFile(dstPath, []byte("pcm"), 0o644)
}

type stubCutter struct{}

func (stubCutter) Cut(ctx context.Context, srcPath, dstPath string, startSeconds, durationSeconds float64) error {
	return os.WriteFile(dstPath, []byte("cut"), 0o644)
}

type stubSpeech struct {
	enter        func()
	afterSegment func()
	err          error
	block        chan struct{}

	mu          sync.Mutex
	gotSegments []audio.Segment
}

func (s *stubSpeech) TranscribeAll(ctx context.Context, taskID string, segments []audio.Segment, onSegment func(done, total int)) (clients.TranscriptionResult, error) {
	if s.enter != nil {
		s.enter()
	}
	s.mu.Lock()
	s.gotSegments = segments
	s.mu.Unlock()
	if s.block != nil {
		select {
		case <-ctx.Done():
			return clients.TranscriptionResult{}, ctx.Err()
		case <-s.block:
		}
	}
	if s.err != nil {
		return clients.TranscriptionResult{}, s.err
	}

	out := clients.TranscriptionResult{}
	texts := make([]string, 0, len(segments))
	for i, seg := range segments {
		tseg := clients.TranscribedSegment{
			Index: seg.Index,
			Start: seg.StartSeconds,
			End:   seg.EndSeconds,
			Text:  fmt.Sprintf("第%d段的转写内容", i+1),
		}
		out.Segments = append(out.Segments, tseg)
		texts = append(texts, tseg.Text)
		if onSegment != nil {
			onSegment(i+1, len(segments))
		}
		if s.afterSegment != nil {
			s.afterSegment()
		}
	}
	out.FullText = strings.Join(texts, "\n\n")
	return out, nil
}

func (s *stubSpeech) segments() []audio.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gotSegments
}

type stubText struct {
	enter          func()
	providerErr    error
	polish         string
	polishErr      error
	summary        clients.SummaryResult
	summaryErr     error
	analysis       clients.AnalysisResult
	analysisErr    error
	translated     string
	translateErr   error
	blockTranslate chan struct{}
}

func (s *stubText) Name() string { return "stub" }

func (s *stubText) Polish(ctx context.Context, taskID, transcript string) (string, error) {
	if s.enter != nil {
		s.enter()
	}
	if s.polishErr != nil {
		return "", s.polishErr
	}
	return s.polish, nil
}

func (s *stubText) Summarize(ctx context.Context, taskID, transcript string) (clients.SummaryResult, error) {
	if s.enter != nil {
		s.enter()
	}
	if s.summaryErr != nil {
		return clients.SummaryResult{}, s.summaryErr
	}
	return s.summary, nil
}

func (s *stubText) Analyze(ctx context.Context, taskID, transcript string) (clients.AnalysisResult, error) {
	if s.enter != nil {
		s.enter()
	}
	if s.analysisErr != nil {
		return clients.AnalysisResult{}, s.analysisErr
	}
	return s.analysis, nil
}

func (s *stubText) Translate(ctx context.Context, taskID, transcript, targetLanguage string) (string, error) {
	if s.enter != nil {
		s.enter()
	}
	if s.blockTranslate != nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-s.blockTranslate:
		}
	}
	if s.translateErr != nil {
		return "", s.translateErr
	}
	return s.translated, nil
}

type harness struct {
	cfg     config.AppConfig
	reg     *registry.Registry
	coord   *Coordinator
	fetcher *stubFetcher
	prober  *stubProber
	speech  *stubSpeech
	text    *stubText
	rec     *progressRecorder
}

func newHarness(t *testing.T, mutateCfg func(*config.AppConfig)) *harness {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.System.TempDir = filepath.Join(base, "temp")
	cfg.System.OutputDir = filepath.Join(base, "output")
	cfg.System.MaxConcurrentTasks = 2
	cfg.System.MaxQueuedTasks = 8
	cfg.System.ProcessingTimeoutSeconds = 60
	if mutateCfg != nil {
		mutateCfg(&cfg)
	}

	reg, err := registry.New(filepath.Join(cfg.System.TempDir, registry.HistoryFilename))
	require.NoError(t, err)

	rec := &progressRecorder{reg: reg}
	h := &harness{
		cfg: cfg,
		reg: reg,
		rec: rec,
		fetcher: &stubFetcher{
			enter: rec.record,
			info:  media.VideoInfo{ID: "v1", Title: "测试视频", Uploader: "UP主", DurationSec: 120},
		},
		prober: &stubProber{enter: rec.record, duration: 120},
		speech: &stubSpeech{enter: rec.record, afterSegment: rec.record},
		text: &stubText{
			enter:  rec.record,
			polish: "整理后的逐字稿内容。",
			summary: clients.SummaryResult{
				BriefSummary:    "一段测试视频。",
				Keywords:        []string{"测试", "视频"},
				DetailedSummary: "## 内容\n\n测试详情。",
			},
			analysis: clients.AnalysisResult{
				ContentType:         "教育",
				Sentiment:           "中性",
				LanguageStyle:       "口语",
				EstimatedDifficulty: "容易",
				TargetAudience:      "初学者",
				MainTopics:          []string{"测试"},
			},
			translated: "你好。\n\nHello.",
		},
	}
	h.coord = NewCoordinatorOpts(cfg, reg, Tools{
		Fetcher:   h.fetcher,
		Prober:    h.prober,
		Extractor: stubExtractor{},
		Cutter:    stubCutter{},
		NewSpeech: func(config.VendorConfig) clients.SpeechTranscriber { return h.speech },
		NewText: func(string, config.VendorConfig) (clients.TextProvider, error) {
			if h.text.providerErr != nil {
				return nil, h.text.providerErr
			}
			return h.text, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.coord.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		reg.Close()
	})
	return h
}

func (h *harness) opts() StartOptions {
	return StartOptions{
		RequestID: "req-1",
		Provider:  config.ProviderSiliconFlow,
		LLMVendor: h.cfg.APIs.SiliconFlow,
		STTVendor: h.cfg.APIs.SiliconFlow,
	}
}

func (h *harness) submitURL(t *testing.T) registry.Task {
	t.Helper()
	task, err := h.reg.Create(registry.Source{Kind: registry.SourceURL, Value: "https://example.com/watch?v=1"}, "req-1", config.ProviderSiliconFlow)
	require.NoError(t, err)
	h.rec.id = task.ID
	require.NoError(t, h.coord.Submit(task.ID, h.opts()))
	return task
}

func (h *harness) waitTerminal(t *testing.T, id string) registry.Task {
	t.Helper()
	var task registry.Task
	require.Eventually(t, func() bool {
		var err error
		task, err = h.reg.Get(id)
		return err == nil && task.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	return task
}

func (h *harness) artifact(t *testing.T, taskID, name string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(h.cfg.System.OutputDir, taskID, name))
	require.NoError(t, err)
	return string(raw)
}

func TestHappyPathProducesCompletedTaskAndArtifacts(t *testing.T) {
	h := newHarness(t, nil)
	created := h.submitURL(t)
	task := h.waitTerminal(t, created.ID)

	require.Equal(t, registry.StatusCompleted, task.Status)
	require.Equal(t, 100, task.Progress)
	require.Equal(t, progress.LabelDone, task.Stage)
	require.Nil(t, task.Error)
	require.NotNil(t, task.CompletedAt)
	require.Equal(t, "测试视频", task.Media.Title)
	require.Equal(t, 120.0, task.Media.DurationSeconds)
	require.Equal(t, 1, task.SegmentsTotal)
	require.Equal(t, 1, task.SegmentsDone)
	require.Contains(t, task.AITimings, "transcript")
	require.Contains(t, task.AITimings, "summary")
	require.Contains(t, task.AITimings, "analysis")

	// Stage entries sampled by the stubs, in execution order. The single
	// segment moves transcribing straight to its upper bound.
	require.Equal(t, []int{0, 15, 25, 70, 70, 80, 90}, h.rec.values())

	require.Equal(t, "整理后的逐字稿内容。", h.artifact(t, task.ID, "transcript.md"))
	require.Contains(t, h.artifact(t, task.ID, "transcript_timestamps.md"), "[00:00:00 - 00:02:00] 第1段的转写内容")
	summary := h.artifact(t, task.ID, "summary.md")
	require.Contains(t, summary, "# 总结报告")
	require.Contains(t, summary, "- 测试")

	var doc dataDocument
	require.NoError(t, json.Unmarshal([]byte(h.artifact(t, task.ID, "data.json")), &doc))
	require.Equal(t, task.ID, doc.TaskID)
	require.Equal(t, "测试视频", doc.Media.Title)
	require.Equal(t, "整理后的逐字稿内容。", doc.PolishedTranscript)
	require.Equal(t, "一段测试视频。", doc.Summary.BriefSummary)
	require.Equal(t, "教育", doc.Analysis.ContentType)
	require.Len(t, doc.Transcript.Segments, 1)

	require.Equal(t, "transcript.md", filepath.Base(task.Artifacts.Transcript))
	require.Equal(t, task.ID, filepath.Dir(task.Artifacts.Transcript))

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(h.cfg.System.TempDir, task.ID))
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond, "workdir must be cleaned up")
}

func TestTranscribingProgressAdvancesPerSegment(t *testing.T) {
	h := newHarness(t, nil)
	h.prober.duration = 900
	created := h.submitURL(t)
	task := h.waitTerminal(t, created.ID)

	require.Equal(t, registry.StatusCompleted, task.Status)
	require.Equal(t, 3, task.SegmentsTotal)
	require.Equal(t, 3, task.SegmentsDone)
	require.Equal(t, []int{0, 15, 25, 40, 55, 70, 70, 80, 90}, h.rec.values())

	segs := h.speech.segments()
	require.Len(t, segs, 3)
	require.Equal(t, 0.0, segs[0].StartSeconds)
	require.Equal(t, 900.0, segs[2].EndSeconds)
	require.Equal(t, segs[0].EndSeconds, segs[1].StartSeconds)
}

func TestConsecutiveSTTFailuresFailTheTask(t *testing.T) {
	h := newHarness(t, nil)
	h.speech.err = errors.E(errors.KindSTTConsecutiveFailures, "连续转写失败，已中止", nil)
	created := h.submitURL(t)
	task := h.waitTerminal(t, created.ID)

	require.Equal(t, registry.StatusFailed, task.Status)
	require.NotNil(t, task.Error)
	require.Equal(t, errors.KindSTTConsecutiveFailures, task.Error.Kind)
	require.Equal(t, "连续转写失败，已中止", task.Error.Message)
	_, err := os.Stat(filepath.Join(h.cfg.System.OutputDir, task.ID))
	require.True(t, os.IsNotExist(err), "failed task must not leave artifacts")
}

func TestFetchFailureMapsKind(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.infoErr = errors.E(errors.KindGeoBlocked, "该视频在当前地区不可用", nil)
	created := h.submitURL(t)
	task := h.waitTerminal(t, created.ID)

	require.Equal(t, registry.StatusFailed, task.Status)
	require.Equal(t, errors.KindGeoBlocked, task.Error.Kind)
}

func TestProcessingTimeoutFailsWithTimeoutKind(t *testing.T) {
	h := newHarness(t, func(cfg *config.AppConfig) {
		cfg.System.ProcessingTimeoutSeconds = 0
	})
	created := h.submitURL(t)
	task := h.waitTerminal(t, created.ID)

	require.Equal(t, registry.StatusFailed, task.Status)
	require.Equal(t, errors.KindTimeout, task.Error.Kind)
}

func TestStopAllCancelsRunningAndQueuedTasks(t *testing.T) {
	h := newHarness(t, func(cfg *config.AppConfig) {
		cfg.System.MaxConcurrentTasks = 1
	})
	h.speech.block = make(chan struct{})

	first, err := h.reg.Create(registry.Source{Kind: registry.SourceURL, Value: "https://example.com/1"}, "req-1", "")
	require.NoError(t, err)
	require.NoError(t, h.coord.Submit(first.ID, h.opts()))
	second, err := h.reg.Create(registry.Source{Kind: registry.SourceURL, Value: "https://example.com/2"}, "req-2", "")
	require.NoError(t, err)
	require.NoError(t, h.coord.Submit(second.ID, h.opts()))

	require.Eventually(t, func() bool {
		task, err := h.reg.Get(first.ID)
		return err == nil && task.Stage == progress.LabelTranscribe
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, 2, h.coord.StopAll())

	for _, id := range []string{first.ID, second.ID} {
		task := h.waitTerminal(t, id)
		require.Equal(t, registry.StatusCancelled, task.Status)
		require.Nil(t, task.Error, "cancellation is not an error")
	}
	require.Eventually(t, func() bool { return h.coord.InFlight() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestSubmitConflictsAndQueueBackpressure(t *testing.T) {
	h := newHarness(t, nil)
	h.speech.block = make(chan struct{})
	created := h.submitURL(t)

	err := h.coord.Submit(created.ID, h.opts())
	require.Equal(t, errors.KindConflictBusy, errors.Kind(err))

	err = h.coord.Submit("no-such-task", h.opts())
	require.Equal(t, errors.KindNotFound, errors.Kind(err))

	close(h.speech.block)
	h.waitTerminal(t, created.ID)
}

func TestSubmitFullQueueReturnsBusy(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.System.TempDir = filepath.Join(base, "temp")
	cfg.System.OutputDir = filepath.Join(base, "output")
	cfg.System.MaxQueuedTasks = 1
	reg, err := registry.New(filepath.Join(cfg.System.TempDir, registry.HistoryFilename))
	require.NoError(t, err)
	defer reg.Close()

	// No dispatch loop: submissions stay queued.
	coord := NewCoordinatorOpts(cfg, reg, Tools{Fetcher: &stubFetcher{}})

	first, err := reg.Create(registry.Source{Kind: registry.SourceURL, Value: "https://example.com/1"}, "req-1", "")
	require.NoError(t, err)
	require.NoError(t, coord.Submit(first.ID, StartOptions{RequestID: "req-1"}))

	second, err := reg.Create(registry.Source{Kind: registry.SourceURL, Value: "https://example.com/2"}, "req-2", "")
	require.NoError(t, err)
	err = coord.Submit(second.ID, StartOptions{RequestID: "req-2"})
	require.Equal(t, errors.KindConflictBusy, errors.Kind(err))

	got, err := reg.Get(second.ID)
	require.NoError(t, err)
	require.Equal(t, registry.StatusPending, got.Status)
	require.Empty(t, got.Stage, "rejected submission must roll the stage back")
	require.Equal(t, 1, coord.InFlight())
}

func TestPolishFailureFallsBackToRawTranscript(t *testing.T) {
	h := newHarness(t, nil)
	h.text.polishErr = errors.E(errors.KindVendorError, "llm rejected the request", nil)
	created := h.submitURL(t)
	task := h.waitTerminal(t, created.ID)

	require.Equal(t, registry.StatusCompleted, task.Status)
	require.Equal(t, "第1段的转写内容", h.artifact(t, task.ID, "transcript.md"))
	require.NotContains(t, task.AITimings, "transcript")

	var doc dataDocument
	require.NoError(t, json.Unmarshal([]byte(h.artifact(t, task.ID, "data.json")), &doc))
	require.Empty(t, doc.PolishedTranscript)
	require.Equal(t, "一段测试视频。", doc.Summary.BriefSummary)
}

func TestSummaryAndAnalysisFailuresAreNonFatal(t *testing.T) {
	h := newHarness(t, nil)
	h.text.summaryErr = errors.E(errors.KindVendorRateLimited, "llm vendor is rate limiting requests", nil)
	h.text.analysisErr = errors.E(errors.KindVendorError, "llm request failed upstream", nil)
	created := h.submitURL(t)
	task := h.waitTerminal(t, created.ID)

	require.Equal(t, registry.StatusCompleted, task.Status)
	require.Empty(t, task.Artifacts.Summary)
	_, err := os.Stat(filepath.Join(h.cfg.System.OutputDir, task.ID, "summary.md"))
	require.True(t, os.IsNotExist(err))

	var doc dataDocument
	require.NoError(t, json.Unmarshal([]byte(h.artifact(t, task.ID, "data.json")), &doc))
	require.Equal(t, "llm vendor is rate limiting requests", doc.Summary.Error)
	require.Equal(t, "llm request failed upstream", doc.Analysis.Error)
	require.Nil(t, doc.Summary.SummaryResult)
	require.Nil(t, doc.Analysis.AnalysisResult)
}

func TestUnavailableLLMProviderStillCompletesWithRawText(t *testing.T) {
	h := newHarness(t, nil)
	h.text.providerErr = errors.E(errors.KindBadRequest, "no API key configured for provider \"siliconflow\"", nil)
	created := h.submitURL(t)
	task := h.waitTerminal(t, created.ID)

	require.Equal(t, registry.StatusCompleted, task.Status)
	require.Equal(t, "第1段的转写内容", h.artifact(t, task.ID, "transcript.md"))
	require.Empty(t, task.AITimings)
}

func TestUploadSourceRunsThePipeline(t *testing.T) {
	h := newHarness(t, nil)
	rel := filepath.Join("uploads", "u1", "现场讲座.mp4")
	full := filepath.Join(h.cfg.System.TempDir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte("video"), 0o644))

	task, err := h.reg.Create(registry.Source{Kind: registry.SourceUpload, Path: rel}, "req-1", "")
	require.NoError(t, err)
	h.rec.id = task.ID
	require.NoError(t, h.coord.Submit(task.ID, h.opts()))

	got := h.waitTerminal(t, task.ID)
	require.Equal(t, registry.StatusCompleted, got.Status)
	require.Equal(t, "现场讲座", got.Media.Title)
	require.Equal(t, 120.0, got.Media.DurationSeconds)
	require.Empty(t, got.Media.SourceURL)
}

func TestUploadSourceGoneFailsWithNotFound(t *testing.T) {
	h := newHarness(t, nil)
	task, err := h.reg.Create(registry.Source{Kind: registry.SourceUpload, Path: "uploads/u1/gone.mp4"}, "req-1", "")
	require.NoError(t, err)
	require.NoError(t, h.coord.Submit(task.ID, h.opts()))

	got := h.waitTerminal(t, task.ID)
	require.Equal(t, registry.StatusFailed, got.Status)
	require.Equal(t, errors.KindNotFound, got.Error.Kind)
}

func TestKeepTempFilesPreservesWorkdir(t *testing.T) {
	h := newHarness(t, func(cfg *config.AppConfig) {
		cfg.System.KeepTempFiles = true
	})
	created := h.submitURL(t)
	task := h.waitTerminal(t, created.ID)

	require.Equal(t, registry.StatusCompleted, task.Status)
	require.FileExists(t, filepath.Join(h.cfg.System.TempDir, task.ID, extractedAudioName))
}

func TestTranslationProducesBilingualArtifact(t *testing.T) {
	h := newHarness(t, nil)
	created := h.submitURL(t)
	h.waitTerminal(t, created.ID)

	require.NoError(t, h.coord.StartTranslation(created.ID, h.opts(), "英语"))
	require.Eventually(t, func() bool {
		task, err := h.reg.Get(created.ID)
		return err == nil && task.TranslationStatus == registry.TranslationCompleted
	}, 5*time.Second, 10*time.Millisecond)

	task, err := h.reg.Get(created.ID)
	require.NoError(t, err)
	require.Equal(t, registry.StatusCompleted, task.Status)
	require.Equal(t, "英语", task.TranslationLang)
	require.Equal(t, "bilingual.md", filepath.Base(task.Artifacts.Bilingual))
	require.Contains(t, task.AITimings, "translation")
	require.Equal(t, "你好。\n\nHello.", h.artifact(t, task.ID, "bilingual.md"))
}

func TestTranslationRequiresCompletedTask(t *testing.T) {
	h := newHarness(t, nil)
	h.speech.block = make(chan struct{})
	created := h.submitURL(t)

	// Task is still running: both the running-cache claim and the registry
	// status guard must reject the request.
	err := h.coord.StartTranslation(created.ID, h.opts(), "英语")
	require.Equal(t, errors.KindConflictBusy, errors.Kind(err))

	err = h.coord.StartTranslation("no-such-task", h.opts(), "英语")
	require.Equal(t, errors.KindNotFound, errors.Kind(err))

	close(h.speech.block)
	h.waitTerminal(t, created.ID)
}

func TestConcurrentTranslationsConflict(t *testing.T) {
	h := newHarness(t, nil)
	created := h.submitURL(t)
	h.waitTerminal(t, created.ID)

	h.text.blockTranslate = make(chan struct{})
	require.NoError(t, h.coord.StartTranslation(created.ID, h.opts(), "英语"))
	err := h.coord.StartTranslation(created.ID, h.opts(), "日语")
	require.Equal(t, errors.KindConflictBusy, errors.Kind(err))

	close(h.text.blockTranslate)
	require.Eventually(t, func() bool {
		task, err := h.reg.Get(created.ID)
		return err == nil && task.TranslationStatus == registry.TranslationCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestTranslationFailureMarksTranslationFailedOnly(t *testing.T) {
	h := newHarness(t, nil)
	created := h.submitURL(t)
	h.waitTerminal(t, created.ID)

	h.text.translateErr = errors.E(errors.KindVendorError, "llm request failed upstream", nil)
	require.NoError(t, h.coord.StartTranslation(created.ID, h.opts(), "英语"))
	require.Eventually(t, func() bool {
		task, err := h.reg.Get(created.ID)
		return err == nil && task.TranslationStatus == registry.TranslationFailed
	}, 5*time.Second, 10*time.Millisecond)

	task, err := h.reg.Get(created.ID)
	require.NoError(t, err)
	require.Equal(t, registry.StatusCompleted, task.Status, "task status must survive a failed translation")
	require.Empty(t, task.Artifacts.Bilingual)
}
