package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/semaphore"

	"github.com/zhuguadundan/videowhisper/audio"
	"github.com/zhuguadundan/videowhisper/cache"
	"github.com/zhuguadundan/videowhisper/clients"
	"github.com/zhuguadundan/videowhisper/config"
	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/log"
	"github.com/zhuguadundan/videowhisper/media"
	"github.com/zhuguadundan/videowhisper/metrics"
	"github.com/zhuguadundan/videowhisper/progress"
	"github.com/zhuguadundan/videowhisper/registry"
)

// StartOptions carries the per-request knobs of one run. Vendor configs
// arrive fully resolved (api_config overrides already applied) and Cookies is
// held in memory only, never persisted with the task.
type StartOptions struct {
	RequestID string
	Provider  string
	LLMVendor config.VendorConfig
	STTVendor config.VendorConfig
	Cookies   string
}

// SpeechFactory builds the transcriber for one run's resolved vendor config.
type SpeechFactory func(vendor config.VendorConfig) clients.SpeechTranscriber

// TextFactory builds the LLM provider for one run's resolved vendor config.
type TextFactory func(provider string, vendor config.VendorConfig) (clients.TextProvider, error)

// Tools bundles the replaceable parts of the pipeline. Tests inject fakes
// here; zero fields fall back to the real implementations.
type Tools struct {
	Fetcher   media.Fetcher
	Prober    audio.Prober
	Extractor audio.Extractor
	Cutter    audio.Cutter
	NewSpeech SpeechFactory
	NewText   TextFactory
	Clock     clock.Clock
}

// job is one unit of queued work. Its context is created at submission so a
// stop-all cancels tasks that are still waiting for a worker slot.
type job struct {
	taskID string
	opts   StartOptions
	ctx    context.Context
	cancel context.CancelFunc
}

// Coordinator schedules task runs. It should be called directly from the API
// handlers and never blocks on execution: submissions enqueue and return,
// the dispatch loop admits work FIFO under the concurrency cap.
type Coordinator struct {
	cfg       config.AppConfig
	registry  *registry.Registry
	fetcher   media.Fetcher
	prober    audio.Prober
	extractor audio.Extractor
	cutter    audio.Cutter
	newSpeech SpeechFactory
	newText   TextFactory
	clk       clock.Clock

	queue chan *job
	sem   *semaphore.Weighted
	wg    sync.WaitGroup

	// Running holds the cancel handle of every queued or executing job,
	// keyed by task ID. Stop-all iterates it.
	Running *cache.Cache[*job]
}

func NewCoordinator(cfg config.AppConfig, reg *registry.Registry) *Coordinator {
	return NewCoordinatorOpts(cfg, reg, Tools{})
}

func NewCoordinatorOpts(cfg config.AppConfig, reg *registry.Registry, tools Tools) *Coordinator {
	if tools.Clock == nil {
		tools.Clock = clock.New()
	}
	if tools.Fetcher == nil {
		tools.Fetcher = media.YtDlp{}
	}
	if tools.Prober == nil {
		tools.Prober = audio.FFProbe{}
	}
	if tools.Extractor == nil {
		tools.Extractor = audio.FFmpegExtractor{}
	}
	if tools.Cutter == nil {
		tools.Cutter = audio.FFmpegCutter{}
	}
	if tools.NewSpeech == nil {
		tools.NewSpeech = func(vendor config.VendorConfig) clients.SpeechTranscriber {
			return clients.NewSpeechClient(vendor, cfg.Processing, cfg.RequestTimeout(), tools.Clock)
		}
	}
	if tools.NewText == nil {
		tools.NewText = func(provider string, vendor config.VendorConfig) (clients.TextProvider, error) {
			return clients.NewTextProvider(provider, vendor, cfg.Processing, cfg.RequestTimeout(), tools.Clock)
		}
	}

	maxQueued := cfg.System.MaxQueuedTasks
	if maxQueued < 1 {
		maxQueued = 1
	}
	maxConcurrent := cfg.System.MaxConcurrentTasks
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Coordinator{
		cfg:       cfg,
		registry:  reg,
		fetcher:   tools.Fetcher,
		prober:    tools.Prober,
		extractor: tools.Extractor,
		cutter:    tools.Cutter,
		newSpeech: tools.NewSpeech,
		newText:   tools.NewText,
		clk:       tools.Clock,
		queue:     make(chan *job, maxQueued),
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		Running:   cache.New[*job](),
	}
}

// Start runs the dispatch loop until ctx ends, then cancels everything still
// active, drains the queue and waits for workers. Queued tasks reach their
// first checkpoint with a dead context and finish as cancelled, so nothing
// is left half-claimed when the registry shuts down after us.
func (c *Coordinator) Start(ctx context.Context) error {
	defer c.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			c.StopAll()
			c.drain()
			return nil
		case j := <-c.queue:
			metrics.Metrics.QueueDepth.Dec()
			if err := c.sem.Acquire(ctx, 1); err != nil {
				c.StopAll()
				c.runJob(j)
				c.drain()
				return nil
			}
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				defer c.sem.Release(1)
				c.runJob(j)
			}()
		}
	}
}

func (c *Coordinator) drain() {
	for {
		select {
		case j := <-c.queue:
			metrics.Metrics.QueueDepth.Dec()
			c.runJob(j)
		default:
			return
		}
	}
}

// Submit claims the task and enqueues it. The registry claim is what makes a
// double submission safe: only one caller can move a pending task into the
// queued stage, every other one gets conflict_busy.
func (c *Coordinator) Submit(taskID string, opts StartOptions) error {
	j := &job{taskID: taskID, opts: opts}
	j.ctx, j.cancel = context.WithCancel(context.Background())

	if !c.Running.StoreIfAbsent(taskID, j) {
		j.cancel()
		return errors.E(errors.KindConflictBusy, "任务已在处理中", nil)
	}

	prevStage := ""
	if _, err := c.registry.Update(taskID, func(t *registry.Task) error {
		if t.Status != registry.StatusPending {
			return errors.E(errors.KindConflictBusy, "任务已在处理中", nil)
		}
		prevStage = t.Stage
		t.Stage = progress.LabelQueued
		if opts.Provider != "" {
			t.LLMProvider = opts.Provider
		}
		return nil
	}); err != nil {
		c.Running.Remove(taskID)
		j.cancel()
		return err
	}

	select {
	case c.queue <- j:
		metrics.Metrics.QueueDepth.Inc()
		log.Log(opts.RequestID, "queued task", "task_id", taskID, "provider", opts.Provider)
		return nil
	default:
		c.Running.Remove(taskID)
		j.cancel()
		_, _ = c.registry.Update(taskID, func(t *registry.Task) error {
			t.Stage = prevStage
			return nil
		})
		return errors.E(errors.KindConflictBusy, "任务队列已满，请稍后重试", nil)
	}
}

// StopAll cancels every queued, running and translating job and returns how
// many were signalled. Each one transitions at its next checkpoint.
func (c *Coordinator) StopAll() int {
	keys := c.Running.GetKeys()
	stopped := 0
	for _, k := range keys {
		if j := c.Running.Get(k); j != nil {
			j.cancel()
			stopped++
		}
	}
	if stopped > 0 {
		log.LogNoRequestID("stop-all signalled active jobs", "count", stopped)
	}
	return stopped
}

// InFlight counts jobs that are queued, executing or translating.
func (c *Coordinator) InFlight() int {
	return c.Running.Count()
}

func (c *Coordinator) runJob(j *job) {
	defer c.Running.Remove(j.taskID)
	defer j.cancel()
	metrics.Metrics.RunningTasks.Inc()
	defer metrics.Metrics.RunningTasks.Dec()

	_, err := recovered(func() (struct{}, error) {
		return struct{}{}, c.process(j)
	})
	c.finishTask(j, err)
}

// finishTask writes the single terminal transition for a run and cleans up
// working files. Cancellation is not an error from the client's point of
// view, so cancelled tasks carry no error record.
func (c *Coordinator) finishTask(j *job, err error) {
	status := registry.StatusCompleted
	kind := ""
	if err != nil {
		kind = errors.Kind(err)
		if kind == errors.KindCancelled {
			status = registry.StatusCancelled
		} else {
			status = registry.StatusFailed
		}
	}

	now := time.Now()
	if _, uerr := c.registry.Update(j.taskID, func(t *registry.Task) error {
		t.Status = status
		switch status {
		case registry.StatusCompleted:
			t.Progress = 100
			t.Stage = progress.LabelDone
			t.StageDetail = ""
			t.Error = nil
			t.CompletedAt = &now
		case registry.StatusCancelled:
			t.Error = nil
		case registry.StatusFailed:
			t.Error = &registry.TaskError{Kind: kind, Message: errors.UserMessage(err)}
		}
		return nil
	}); uerr != nil {
		log.LogError(j.opts.RequestID, "failed to record terminal task state", uerr, "task_id", j.taskID)
	}

	metrics.Metrics.TaskTerminalCount.WithLabelValues(string(status)).Inc()
	if err != nil && status == registry.StatusFailed {
		log.LogError(j.opts.RequestID, "task failed", err, "task_id", j.taskID, "kind", kind)
	} else {
		log.Log(j.opts.RequestID, "task finished", "task_id", j.taskID, "status", status)
	}

	if !c.cfg.System.KeepTempFiles {
		c.removeWorkdir(j)
	}
}

func recovered[T any](f func() (T, error)) (t T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.LogNoRequestID("panic in pipeline background goroutine, recovering", "err", rec)
			err = fmt.Errorf("panic in pipeline: %v", rec)
		}
	}()
	return f()
}
