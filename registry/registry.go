package registry

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/zhuguadundan/videowhisper/errors"
	"github.com/zhuguadundan/videowhisper/log"
)

// Registry is the single owner of all task records. One goroutine serializes
// every mutation and persists a snapshot before acknowledging it, so a task
// update that has been confirmed to an HTTP caller survives a crash. Readers
// always receive deep copies; no lock is shared with the rest of the system.
type Registry struct {
	ops  chan operation
	quit chan struct{}
	done chan struct{}
}

type operation interface {
	execute(s *registryState)
}

type registryState struct {
	tasks map[string]*Task
	path  string
	now   func() time.Time
}

type createOp struct {
	task  Task
	reply chan createReply
}

type createReply struct {
	task Task
	err  error
}

type updateOp struct {
	id     string
	mutate func(*Task) error
	reply  chan updateReply
}

type updateReply struct {
	task Task
	err  error
}

type getOp struct {
	id    string
	reply chan getReply
}

type getReply struct {
	task Task
	err  error
}

type listOp struct {
	reply chan []Task
}

type deleteOp struct {
	id    string
	reply chan error
}

type recoverOp struct {
	reply chan int
}

type countOp struct {
	reply chan int
}

// New loads the snapshot at path (a missing file starts empty) and starts the
// owner goroutine. Close must be called to release it.
func New(path string) (*Registry, error) {
	tasks, err := loadSnapshot(path)
	if err != nil {
		return nil, err
	}
	r := &Registry{
		ops:  make(chan operation),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	state := &registryState{
		tasks: tasks,
		path:  path,
		now:   time.Now,
	}
	go r.loop(state)
	return r, nil
}

func (r *Registry) loop(s *registryState) {
	defer close(r.done)
	for {
		select {
		case op := <-r.ops:
			op.execute(s)
		case <-r.quit:
			return
		}
	}
}

// Close stops the owner goroutine. Pending callers that already queued an op
// are served first; new calls after Close will block forever, so shut down
// HTTP traffic before calling this.
func (r *Registry) Close() {
	close(r.quit)
	<-r.done
}

// Create allocates an ID, stores a pending task for the given source, and
// persists it. The returned snapshot carries the assigned ID.
func (r *Registry) Create(source Source, requestID, provider string) (Task, error) {
	reply := make(chan createReply, 1)
	r.ops <- createOp{
		task: Task{
			Source:      source,
			RequestID:   requestID,
			LLMProvider: provider,
		},
		reply: reply,
	}
	res := <-reply
	return res.task, res.err
}

func (op createOp) execute(s *registryState) {
	t := op.task
	t.ID = uuid.NewString()
	t.Status = StatusPending
	t.CreatedAt = s.now()
	t.UpdatedAt = t.CreatedAt
	s.tasks[t.ID] = &t
	if err := persistSnapshot(s.path, s.tasks); err != nil {
		delete(s.tasks, t.ID)
		op.reply <- createReply{err: errors.E(errors.KindInternal, "failed to persist task", err)}
		return
	}
	op.reply <- createReply{task: t.Clone()}
}

// Update atomically applies mutate to the task and persists the result
// before returning. If mutate returns an error the task is left untouched
// and the error is returned as-is. Progress can never move backwards: a
// lower value written by mutate is clamped back to the previous one.
func (r *Registry) Update(id string, mutate func(*Task) error) (Task, error) {
	reply := make(chan updateReply, 1)
	r.ops <- updateOp{id: id, mutate: mutate, reply: reply}
	res := <-reply
	return res.task, res.err
}

func (op updateOp) execute(s *registryState) {
	current, ok := s.tasks[op.id]
	if !ok {
		op.reply <- updateReply{err: errors.E(errors.KindNotFound, "task not found", nil)}
		return
	}
	next := current.Clone()
	if err := op.mutate(&next); err != nil {
		op.reply <- updateReply{err: err}
		return
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	if next.Progress < current.Progress {
		next.Progress = current.Progress
	}
	next.UpdatedAt = s.now()
	s.tasks[op.id] = &next
	if err := persistSnapshot(s.path, s.tasks); err != nil {
		s.tasks[op.id] = current
		op.reply <- updateReply{err: errors.E(errors.KindInternal, "failed to persist task", err)}
		return
	}
	op.reply <- updateReply{task: next.Clone()}
}

// Get returns a snapshot of the task.
func (r *Registry) Get(id string) (Task, error) {
	reply := make(chan getReply, 1)
	r.ops <- getOp{id: id, reply: reply}
	res := <-reply
	return res.task, res.err
}

func (op getOp) execute(s *registryState) {
	t, ok := s.tasks[op.id]
	if !ok {
		op.reply <- getReply{err: errors.E(errors.KindNotFound, "task not found", nil)}
		return
	}
	op.reply <- getReply{task: t.Clone()}
}

// List returns snapshots of every task, newest first.
func (r *Registry) List() []Task {
	reply := make(chan []Task, 1)
	r.ops <- listOp{reply: reply}
	return <-reply
}

func (op listOp) execute(s *registryState) {
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	op.reply <- out
}

// Delete removes the task record and persists. File cleanup is the caller's
// concern; the registry only owns records.
func (r *Registry) Delete(id string) error {
	reply := make(chan error, 1)
	r.ops <- deleteOp{id: id, reply: reply}
	return <-reply
}

func (op deleteOp) execute(s *registryState) {
	current, ok := s.tasks[op.id]
	if !ok {
		op.reply <- errors.E(errors.KindNotFound, "task not found", nil)
		return
	}
	delete(s.tasks, op.id)
	if err := persistSnapshot(s.path, s.tasks); err != nil {
		s.tasks[op.id] = current
		op.reply <- errors.E(errors.KindInternal, "failed to persist task removal", err)
		return
	}
	op.reply <- nil
}

// RecoverOnBoot rewrites every pending or processing task to failed with the
// stale_on_restart kind. Call it once, after New and before any worker or
// HTTP traffic starts, so a crashed run can never be mistaken for a live one.
// Returns the number of tasks rewritten.
func (r *Registry) RecoverOnBoot() int {
	reply := make(chan int, 1)
	r.ops <- recoverOp{reply: reply}
	return <-reply
}

func (op recoverOp) execute(s *registryState) {
	stale := 0
	for _, t := range s.tasks {
		if t.Status != StatusPending && t.Status != StatusProcessing {
			if t.TranslationStatus == TranslationProcessing {
				t.TranslationStatus = TranslationFailed
				t.UpdatedAt = s.now()
				stale++
			}
			continue
		}
		t.Status = StatusFailed
		t.Error = &TaskError{
			Kind:    errors.KindStaleOnRestart,
			Message: "任务在服务重启时中断",
		}
		t.UpdatedAt = s.now()
		stale++
	}
	if stale > 0 {
		if err := persistSnapshot(s.path, s.tasks); err != nil {
			log.LogNoRequestID("failed to persist recovery rewrite", "err", err)
		}
	}
	op.reply <- stale
}

// CountActive returns how many tasks are pending or processing, the number
// the submission backpressure check compares against its limit.
func (r *Registry) CountActive() int {
	reply := make(chan int, 1)
	r.ops <- countOp{reply: reply}
	return <-reply
}

func (op countOp) execute(s *registryState) {
	n := 0
	for _, t := range s.tasks {
		if t.Status == StatusPending || t.Status == StatusProcessing {
			n++
		}
	}
	op.reply <- n
}
