// Package queue implements the concurrent work queue that drives tasks
// through their lifecycle: dependency waiting, precondition evaluation,
// the cancellation check at the ready/executing boundary, body execution
// and the finish transition. Thread assignment and ordering policy live
// here; the task core in internal/task guarantees only that its own state
// transitions stay single-valid-path whichever goroutine drives them.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/aristath/taskflow/internal/events"
	"github.com/aristath/taskflow/internal/task"
	"github.com/google/uuid"
)

// Defaults applied by New when an option is absent.
const (
	defaultWorkers         = 4
	defaultEvalConcurrency = 16
)

// Sentinel errors returned by queue operations.
var (
	// ErrClosed is returned by Submit after Close has been called.
	ErrClosed = errors.New("queue closed")
)

// Queue executes submitted tasks with bounded concurrency, honoring each
// task's dependency set and preconditions. All methods are safe for
// concurrent use.
type Queue struct {
	workers   *semaphore.Weighted
	evalLimit int
	reg       *task.Registry
	bus       *events.Bus
	breakers  *BreakerRegistry

	mu        sync.Mutex
	submitted map[uuid.UUID]*task.Task
	closed    bool

	wg sync.WaitGroup
}

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers bounds the number of concurrently executing task bodies.
// Values <= 0 fall back to the default.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithEvalConcurrency bounds how many preconditions of one task evaluate
// in parallel.
func WithEvalConcurrency(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.evalLimit = n
		}
	}
}

// WithBus attaches an event bus; the queue publishes lifecycle events to
// it. Nil disables publishing.
func WithBus(bus *events.Bus) Option {
	return func(q *Queue) { q.bus = bus }
}

// WithBreakers attaches per-class circuit breakers around execution
// bodies. Nil disables breaking.
func WithBreakers(br *BreakerRegistry) Option {
	return func(q *Queue) { q.breakers = br }
}

// New creates a queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		workers:   semaphore.NewWeighted(defaultWorkers),
		evalLimit: defaultEvalConcurrency,
		reg:       task.NewRegistry(),
		submitted: make(map[uuid.UUID]*task.Task),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Registry returns the liveness registry tasks are registered in while
// they are in flight. Weak handles handed to preconditions resolve
// against it.
func (q *Queue) Registry() *task.Registry { return q.reg }

// Submit enqueues t, respecting its dependency set. The task must be in
// StateInitialized; submitting it twice returns
// task.ErrAlreadySubmitted. The queue never mutates task state directly:
// it drives the task through its exported transition methods.
func (q *Queue) Submit(ctx context.Context, t *task.Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.mu.Unlock()

	if err := t.MarkPending(); err != nil {
		return fmt.Errorf("submitting task %q: %w", t.Name(), err)
	}

	q.reg.Register(t)

	q.mu.Lock()
	q.submitted[t.ID()] = t
	q.mu.Unlock()

	q.publish(events.TopicTask, events.TaskSubmittedEvent{
		ID:        t.ID(),
		Name:      t.Name(),
		Deps:      len(t.Dependencies()),
		Timestamp: time.Now(),
	})

	q.wg.Add(1)
	go q.process(ctx, t)
	return nil
}

// Wait blocks until every submitted task has finished, or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.mu.Lock()
		n := len(q.submitted)
		q.mu.Unlock()
		q.publish(events.TopicQueue, events.QueueDrainedEvent{
			Submitted: n,
			Timestamp: time.Now(),
		})
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects further submissions. In-flight tasks keep running; use
// Wait to drain them.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// process is the per-task lifecycle goroutine.
func (q *Queue) process(ctx context.Context, t *task.Task) {
	defer q.wg.Done()
	start := time.Now()
	defer func() {
		q.publish(events.TopicTask, events.TaskFinishedEvent{
			ID:        t.ID(),
			Name:      t.Name(),
			Cancelled: t.IsCancelled(),
			Errs:      len(t.Errs()),
			Duration:  time.Since(start),
			Timestamp: time.Now(),
		})
	}()

	// Waiting on dependencies is the queue's job; the task core never
	// blocks one task on another's completion.
	for _, dep := range t.Dependencies() {
		select {
		case <-dep.Done():
		case <-ctx.Done():
			q.abort(t, ctx.Err())
			return
		}
	}

	if !t.BeginEvaluating() {
		// A finisher claimed the task while it waited; let the
		// finishing sequence run its course.
		<-t.Done()
		return
	}

	q.publish(events.TopicTask, events.TaskEvaluatingEvent{
		ID:            t.ID(),
		Name:          t.Name(),
		Preconditions: len(t.Preconditions()),
		Timestamp:     time.Now(),
	})

	if failures := q.evaluate(ctx, t); len(failures) > 0 {
		t.Cancel(failures...)
	}

	// Cancellation check at the ready/executing boundary: a task whose
	// flag is already set skips will-execute and the body, but still
	// completes the full finishing sequence with its accumulated errors.
	if t.IsCancelled() {
		q.finishCancelled(t)
		return
	}

	if !t.MarkReady() {
		<-t.Done()
		return
	}

	if err := q.workers.Acquire(ctx, 1); err != nil {
		q.abort(t, err)
		return
	}
	defer q.workers.Release(1)

	if t.IsCancelled() {
		q.finishCancelled(t)
		return
	}

	if !t.BeginExecuting() {
		<-t.Done()
		return
	}

	q.publish(events.TopicTask, events.TaskExecutingEvent{
		ID:        t.ID(),
		Name:      t.Name(),
		Class:     t.Class(),
		Timestamp: time.Now(),
	})

	t.NotifyWillExecute()

	// A will-execute observer may have finished or cancelled the task;
	// honor both before the body ever runs. A finished task must not
	// execute, and did-execute must never fire after did-finish.
	if t.State().IsTerminal() {
		<-t.Done()
		return
	}
	if t.IsCancelled() {
		q.finishCancelled(t)
		return
	}

	err := q.runBody(ctx, t)
	t.NotifyDidExecute()

	if err != nil {
		t.Finish(err)
	} else {
		t.Finish()
	}
	<-t.Done()
}

// finishCancelled routes a cancelled task straight to finishing with its
// accumulated errors. Cancellation before execution is not a silent drop:
// the full will-finish/did-finish observer sequence still runs.
func (q *Queue) finishCancelled(t *task.Task) {
	q.publish(events.TopicTask, events.TaskCancelledEvent{
		ID:        t.ID(),
		Name:      t.Name(),
		Errs:      len(t.Errs()),
		Timestamp: time.Now(),
	})
	t.Finish()
	<-t.Done()
}

// abort cancels and finishes a task that cannot proceed because the
// queue's context ended.
func (q *Queue) abort(t *task.Task, err error) {
	t.Cancel(err)
	t.Finish()
	<-t.Done()
}

// runBody executes the task body, through the task class's circuit
// breaker when one is configured.
func (q *Queue) runBody(ctx context.Context, t *task.Task) error {
	if q.breakers == nil || t.Class() == "" {
		return t.RunBody(ctx)
	}
	return q.breakers.Execute(t.Class(), func() error {
		return t.RunBody(ctx)
	})
}

func (q *Queue) publish(topic string, ev events.Event) {
	if q.bus != nil {
		q.bus.Publish(topic, ev)
	}
}
