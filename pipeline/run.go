package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zhuguadundan/videowhisper/audio"
	"github.com/zhuguadundan/videowhisper/clients"
	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/fsutil"
	"github.com/zhuguadundan/videowhisper/log"
	"github.com/zhuguadundan/videowhisper/media"
	"github.com/zhuguadundan/videowhisper/metrics"
	"github.com/zhuguadundan/videowhisper/progress"
	"github.com/zhuguadundan/videowhisper/registry"
)

const extractedAudioName = "audio_16k.mp3"

// taskRun accumulates the intermediate products of one pipeline pass. LLM
// failures park their error here instead of aborting: the task still
// completes and data.json records what went missing.
type taskRun struct {
	c    *Coordinator
	task registry.Task
	opts StartOptions

	workdir  string
	srcPath  string
	segments []audio.Segment

	raw         clients.TranscriptionResult
	polished    string
	summary     clients.SummaryResult
	summaryErr  error
	analysis    clients.AnalysisResult
	analysisErr error
}

// process drives the state machine for one task. Cancellation is checked at
// every stage boundary; inside transcribing the speech client checks between
// segments. The whole run lives under the configured processing timeout.
func (c *Coordinator) process(j *job) error {
	task, err := c.registry.Get(j.taskID)
	if err != nil {
		return err
	}
	if task.Status != registry.StatusPending {
		return errors.Ef(errors.KindInternal, nil, "task %s is %s, expected pending", task.ID, task.Status)
	}

	ctx, cancel := context.WithTimeout(j.ctx, c.cfg.ProcessingTimeout())
	defer cancel()

	workdir, err := fsutil.SafeJoin(c.cfg.System.TempDir, task.ID)
	if err != nil {
		return err
	}
	if err := fsutil.EnsureDir(workdir); err != nil {
		return errors.E(errors.KindInternal, "failed to create task workdir", err)
	}

	r := &taskRun{c: c, task: task, opts: j.opts, workdir: workdir}
	if err := r.stage(ctx, progress.StageFetching, progress.LabelFetchInfo, r.fetch); err != nil {
		return err
	}
	if err := r.stage(ctx, progress.StageExtracting, progress.LabelExtract, r.extract); err != nil {
		return err
	}
	if err := r.stage(ctx, progress.StageTranscribing, progress.LabelTranscribe, r.transcribe); err != nil {
		return err
	}
	if err := r.stage(ctx, progress.StagePolishing, progress.LabelPolish, r.polish); err != nil {
		return err
	}
	if err := r.stage(ctx, progress.StageSummarizing, progress.LabelSummarize, r.summarize); err != nil {
		return err
	}
	if err := r.stage(ctx, progress.StageAnalyzing, progress.LabelAnalyze, r.analyze); err != nil {
		return err
	}
	return r.stage(ctx, progress.StageWriting, progress.LabelWrite, r.write)
}

// stage runs one step of the state machine: checkpoint, stage entry write,
// the work itself, duration metric.
func (r *taskRun) stage(ctx context.Context, s progress.Stage, label string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := r.c.registry.Update(r.task.ID, func(t *registry.Task) error {
		t.Status = registry.StatusProcessing
		t.Stage = label
		t.StageDetail = ""
		t.Progress = progress.Entry(s)
		return nil
	}); err != nil {
		return err
	}
	log.Log(r.opts.RequestID, "entering stage", "task_id", r.task.ID, "stage", string(s))

	start := time.Now()
	err := fn(ctx)
	metrics.Metrics.StageDurationSec.
		WithLabelValues(string(s), strconv.FormatBool(err == nil)).
		Observe(time.Since(start).Seconds())
	return err
}

// setLabel flips the client-facing stage label without changing progress,
// for stages that cover more than one label.
func (r *taskRun) setLabel(label string) {
	if _, err := r.c.registry.Update(r.task.ID, func(t *registry.Task) error {
		t.Stage = label
		return nil
	}); err != nil {
		log.LogError(r.opts.RequestID, "failed to update stage label", err, "task_id", r.task.ID)
	}
}

func (r *taskRun) saveMedia(info registry.MediaInfo) {
	if _, err := r.c.registry.Update(r.task.ID, func(t *registry.Task) error {
		t.Media = &info
		return nil
	}); err != nil {
		log.LogError(r.opts.RequestID, "failed to save media info", err, "task_id", r.task.ID)
	}
	r.task.Media = &info
}

// fetch obtains the source media. URL tasks go through yt-dlp; uploads are
// already on disk and only need locating.
func (r *taskRun) fetch(ctx context.Context) error {
	switch r.task.Source.Kind {
	case registry.SourceURL:
		req := media.Request{TaskID: r.task.ID, URL: r.task.Source.Value, Cookies: r.opts.Cookies}
		info, err := r.c.fetcher.FetchInfo(ctx, req)
		if err != nil {
			return err
		}
		r.saveMedia(registry.MediaInfo{
			Title:           info.Title,
			Uploader:        info.Uploader,
			DurationSeconds: info.DurationSec,
			SourceURL:       r.task.Source.Value,
		})

		r.setLabel(progress.LabelDownload)
		path, err := r.c.fetcher.FetchAudio(ctx, req, r.workdir)
		if err != nil {
			return err
		}
		r.srcPath = path
		return nil

	case registry.SourceUpload:
		path, err := fsutil.SafeJoin(r.c.cfg.System.TempDir, r.task.Source.Path)
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err != nil {
			return errors.E(errors.KindNotFound, "uploaded file is gone", err)
		}
		name := filepath.Base(path)
		r.saveMedia(registry.MediaInfo{
			Title: strings.TrimSuffix(name, filepath.Ext(name)),
		})
		r.srcPath = path
		return nil
	}
	return errors.Ef(errors.KindInternal, nil, "unknown source kind %q", r.task.Source.Kind)
}

// extract probes the source, converts it to STT-friendly audio and plans the
// segments. Probed duration is authoritative over whatever the fetcher
// reported.
func (r *taskRun) extract(ctx context.Context) error {
	info, err := r.c.prober.Probe(ctx, r.srcPath)
	if err != nil {
		return err
	}
	mediaInfo := registry.MediaInfo{DurationSeconds: info.DurationSeconds}
	if r.task.Media != nil {
		mediaInfo = *r.task.Media
		mediaInfo.DurationSeconds = info.DurationSeconds
	}
	r.saveMedia(mediaInfo)

	audioPath, err := fsutil.SafeJoin(r.workdir, extractedAudioName)
	if err != nil {
		return err
	}
	if err := r.c.extractor.Extract(ctx, r.srcPath, audioPath); err != nil {
		return err
	}

	proc := r.c.cfg.Processing
	if info.DurationSeconds <= float64(proc.LongAudioThresholdSeconds) {
		r.segments = audio.SingleSegment(audioPath, info.DurationSeconds)
	} else {
		r.segments, err = audio.Split(ctx, r.c.cutter, audioPath, r.workdir,
			info.DurationSeconds, float64(proc.SegmentDurationSeconds))
		if err != nil {
			return err
		}
	}

	if _, err := r.c.registry.Update(r.task.ID, func(t *registry.Task) error {
		t.SegmentsTotal = len(r.segments)
		t.SegmentsDone = 0
		return nil
	}); err != nil {
		return err
	}
	log.Log(r.opts.RequestID, "planned audio segments", "task_id", r.task.ID,
		"segments", len(r.segments), "duration", info.DurationSeconds)
	return nil
}

func (r *taskRun) transcribe(ctx context.Context) error {
	transcriber := r.c.newSpeech(r.opts.STTVendor)
	result, err := transcriber.TranscribeAll(ctx, r.task.ID, r.segments, func(done, total int) {
		if _, err := r.c.registry.Update(r.task.ID, func(t *registry.Task) error {
			t.SegmentsDone = done
			t.Progress = progress.Projection(progress.StageTranscribing, done, total)
			t.StageDetail = strconv.Itoa(done) + "/" + strconv.Itoa(total)
			return nil
		}); err != nil {
			log.LogError(r.opts.RequestID, "failed to report segment progress", err, "task_id", r.task.ID)
		}
	})
	if err != nil {
		return err
	}
	r.raw = result
	return nil
}

// textProvider builds the LLM client for this run. Errors are returned, not
// fatal: every LLM stage treats them as that stage's failure.
func (r *taskRun) textProvider() (clients.TextProvider, error) {
	return r.c.newText(r.opts.Provider, r.opts.LLMVendor)
}

func (r *taskRun) polish(ctx context.Context) error {
	provider, err := r.textProvider()
	if err != nil {
		log.LogError(r.opts.RequestID, "llm provider unavailable, keeping raw transcript", err, "task_id", r.task.ID)
		return nil
	}
	start := time.Now()
	polished, err := provider.Polish(ctx, r.task.ID, r.raw.FullText)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.LogError(r.opts.RequestID, "transcript polish failed, keeping raw transcript", err, "task_id", r.task.ID)
		return nil
	}
	r.polished = polished
	r.recordTiming("transcript", time.Since(start))
	return nil
}

func (r *taskRun) summarize(ctx context.Context) error {
	provider, err := r.textProvider()
	if err != nil {
		r.summaryErr = err
		return nil
	}
	start := time.Now()
	summary, err := provider.Summarize(ctx, r.task.ID, r.transcriptForLLM())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.LogError(r.opts.RequestID, "summary failed", err, "task_id", r.task.ID)
		r.summaryErr = err
		return nil
	}
	r.summary = summary
	r.recordTiming("summary", time.Since(start))
	return nil
}

func (r *taskRun) analyze(ctx context.Context) error {
	provider, err := r.textProvider()
	if err != nil {
		r.analysisErr = err
		return nil
	}
	start := time.Now()
	analysis, err := provider.Analyze(ctx, r.task.ID, r.transcriptForLLM())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.LogError(r.opts.RequestID, "content analysis failed", err, "task_id", r.task.ID)
		r.analysisErr = err
		return nil
	}
	r.analysis = analysis
	r.recordTiming("analysis", time.Since(start))
	return nil
}

// transcriptForLLM prefers the polished text so summary and analysis read
// the same transcript the user downloads.
func (r *taskRun) transcriptForLLM() string {
	if r.polished != "" {
		return r.polished
	}
	return r.raw.FullText
}

func (r *taskRun) recordTiming(name string, elapsed time.Duration) {
	if _, err := r.c.registry.Update(r.task.ID, func(t *registry.Task) error {
		t.RecordTiming(name, elapsed.Seconds())
		return nil
	}); err != nil {
		log.LogError(r.opts.RequestID, "failed to record timing", err, "task_id", r.task.ID, "timing", name)
	}
}

func (r *taskRun) write(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	current, err := r.c.registry.Get(r.task.ID)
	if err != nil {
		return err
	}
	arts, err := writeArtifacts(r.c.cfg.System.OutputDir, &current, r)
	if err != nil {
		return err
	}
	_, err = r.c.registry.Update(r.task.ID, func(t *registry.Task) error {
		t.Artifacts = &arts
		return nil
	})
	return err
}

func (c *Coordinator) removeWorkdir(j *job) {
	dir, err := fsutil.SafeJoin(c.cfg.System.TempDir, j.taskID)
	if err != nil {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		log.LogError(j.opts.RequestID, "failed to remove task workdir", err, "task_id", j.taskID)
	}
}
