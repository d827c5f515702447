package pipeline

import (
	"context"
	"os"
	"path"
	"time"

	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/fsutil"
	"github.com/zhuguadundan/videowhisper/log"
	"github.com/zhuguadundan/videowhisper/registry"
)

// StartTranslation begins the bilingual follow-up pass for a completed task.
// It claims the task's translation slot, then runs in the background; the
// task's own status never changes, only translation_status does. The job is
// registered like a pipeline run so stop-all reaches it.
func (c *Coordinator) StartTranslation(taskID string, opts StartOptions, targetLanguage string) error {
	j := &job{taskID: taskID, opts: opts}
	j.ctx, j.cancel = context.WithCancel(context.Background())

	if !c.Running.StoreIfAbsent(taskID, j) {
		j.cancel()
		return errors.E(errors.KindConflictBusy, "任务已在处理中", nil)
	}

	transcriptRel := ""
	if _, err := c.registry.Update(taskID, func(t *registry.Task) error {
		if t.Status != registry.StatusCompleted {
			return errors.E(errors.KindConflictBusy, "任务尚未完成，无法生成双语稿", nil)
		}
		if t.TranslationStatus == registry.TranslationProcessing {
			return errors.E(errors.KindConflictBusy, "翻译已在进行中", nil)
		}
		if t.Artifacts == nil || t.Artifacts.Transcript == "" {
			return errors.E(errors.KindNotFound, "逐字稿文件不存在", nil)
		}
		transcriptRel = t.Artifacts.Transcript
		t.TranslationStatus = registry.TranslationProcessing
		t.TranslationLang = targetLanguage
		return nil
	}); err != nil {
		c.Running.Remove(taskID)
		j.cancel()
		return err
	}

	log.Log(opts.RequestID, "started bilingual translation", "task_id", taskID,
		"provider", opts.Provider, "target_language", targetLanguage)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.Running.Remove(taskID)
		defer j.cancel()
		_, err := recovered(func() (struct{}, error) {
			return struct{}{}, c.translate(j, transcriptRel, targetLanguage)
		})
		c.finishTranslation(j, err)
	}()
	return nil
}

func (c *Coordinator) translate(j *job, transcriptRel, targetLanguage string) error {
	ctx, cancel := context.WithTimeout(j.ctx, c.cfg.ProcessingTimeout())
	defer cancel()

	transcriptPath, err := fsutil.SafeJoin(c.cfg.System.OutputDir, transcriptRel)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(transcriptPath)
	if err != nil {
		return errors.E(errors.KindNotFound, "逐字稿文件不存在", err)
	}

	provider, err := c.newText(j.opts.Provider, j.opts.LLMVendor)
	if err != nil {
		return err
	}

	start := time.Now()
	bilingual, err := provider.Translate(ctx, j.taskID, string(raw), targetLanguage)
	if err != nil {
		return err
	}

	outDir, err := fsutil.SafeJoin(c.cfg.System.OutputDir, j.taskID)
	if err != nil {
		return err
	}
	if err := writeArtifactFile(outDir, bilingualName, []byte(bilingual)); err != nil {
		return err
	}

	elapsed := time.Since(start).Seconds()
	_, err = c.registry.Update(j.taskID, func(t *registry.Task) error {
		if t.Artifacts == nil {
			t.Artifacts = &registry.Artifacts{}
		}
		t.Artifacts.Bilingual = path.Join(j.taskID, bilingualName)
		t.TranslationStatus = registry.TranslationCompleted
		t.RecordTiming("translation", elapsed)
		return nil
	})
	return err
}

// finishTranslation records the outcome. A cancelled translation counts as
// failed: unlike a task there is no cancelled translation state, and the
// transcript is still there to try again.
func (c *Coordinator) finishTranslation(j *job, err error) {
	if err == nil {
		log.Log(j.opts.RequestID, "bilingual translation finished", "task_id", j.taskID)
		return
	}
	log.LogError(j.opts.RequestID, "bilingual translation failed", err, "task_id", j.taskID)
	if _, uerr := c.registry.Update(j.taskID, func(t *registry.Task) error {
		t.TranslationStatus = registry.TranslationFailed
		return nil
	}); uerr != nil {
		log.LogError(j.opts.RequestID, "failed to record translation failure", uerr, "task_id", j.taskID)
	}
}
