// Package task implements the lifecycle state machine at the core of
// taskflow: a unit of asynchronous work with preconditions, lifecycle
// observers, cooperative cancellation, and an exactly-once finish
// guarantee that holds under arbitrary concurrent pressure.
//
// The queue in internal/queue drives tasks through their states via the
// exported transition methods; it never touches task internals directly.
package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Sentinel errors returned by task operations.
var (
	// ErrAlreadySubmitted is returned when a task that has left
	// StateInitialized is submitted again.
	ErrAlreadySubmitted = errors.New("task already submitted")

	// ErrSealed is returned when a precondition or observer is attached
	// after the task has entered precondition evaluation.
	ErrSealed = errors.New("task no longer accepts preconditions or observers")
)

// Body is a task's execution work. It must observe ctx for cooperative
// cancellation: the context is cancelled when the task is cancelled or
// when the queue shuts down.
type Body func(ctx context.Context) error

// Task is a unit of asynchronous work with a managed lifecycle.
//
// All methods are safe for concurrent use. Cancel and Finish may be
// called from any goroutine, any number of times, including re-entrantly
// from within observer callbacks; only one finish attempt ever wins.
type Task struct {
	id    uuid.UUID
	name  string
	class string
	body  Body
	deps  []*Task

	state     atomic.Int32
	cancelled atomic.Bool

	// mu guards errs, frozen and preconds. Observer invocation never
	// happens under mu, so a callback can re-enter Cancel or Finish.
	mu       sync.Mutex
	errs     []error
	frozen   bool
	preconds []Precondition

	// frozenErrs is written once, before StateFinished is published, and
	// is therefore lock-free to read after IsFinished reports true.
	frozenErrs []error

	observers observerSet
	dispatch  dispatcher

	done     chan struct{}
	cancelCh chan struct{}

	cancelOnce sync.Once
	reg        atomic.Pointer[Registry]
}

// Option configures a task at construction time.
type Option func(*Task)

// WithBody sets the task's execution work. A task without a body finishes
// immediately once it becomes ready.
func WithBody(body Body) Option {
	return func(t *Task) { t.body = body }
}

// DependsOn adds dependency tasks that must finish before this task
// becomes ready. A task must never depend on itself; cycles in the
// dependency graph are a caller error, surfaced by queue.Validate rather
// than handled here.
func DependsOn(deps ...*Task) Option {
	return func(t *Task) { t.deps = append(t.deps, deps...) }
}

// WithClass tags the task with an execution class, used by the queue's
// optional circuit breakers to group failure statistics.
func WithClass(class string) Option {
	return func(t *Task) { t.class = class }
}

// New constructs a task with the given human-readable name.
func New(name string, opts ...Option) *Task {
	t := &Task{
		id:       uuid.New(),
		name:     name,
		done:     make(chan struct{}),
		cancelCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ID returns the task's unique identity.
func (t *Task) ID() uuid.UUID { return t.id }

// Name returns the human-readable name.
func (t *Task) Name() string { return t.name }

// Class returns the execution class, or "" if untagged.
func (t *Task) Class() string { return t.class }

// State returns the current lifecycle state.
func (t *Task) State() State { return State(t.state.Load()) }

// Dependencies returns a snapshot of the task's dependency set. The
// queue treats it as read-only.
func (t *Task) Dependencies() []*Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Task, len(t.deps))
	copy(out, t.deps)
	return out
}

// Done returns a channel closed exactly once, when the task reaches
// StateFinished. This is the completion signal of the queue integration
// surface.
func (t *Task) Done() <-chan struct{} { return t.done }

// IsCancelled reports whether the cancellation flag is set.
func (t *Task) IsCancelled() bool { return t.cancelled.Load() }

// IsFinished reports whether the task has reached StateFinished.
func (t *Task) IsFinished() bool { return t.State() == StateFinished }

// CancelSignal returns a channel closed on the first Cancel call. The
// execution body and long-running preconditions select on it to stop
// promptly; cancellation is always cooperative.
func (t *Task) CancelSignal() <-chan struct{} { return t.cancelCh }

// DependOn adds dependency tasks after construction. Like Use and
// Observe it is permitted only before the task enters StateEvaluating.
// The core does not detect cycles introduced here; queue.Validate is how
// callers catch that mistake before submission.
func (t *Task) DependOn(deps ...*Task) error {
	if t.State() >= StateEvaluating {
		return ErrSealed
	}
	t.mu.Lock()
	t.deps = append(t.deps, deps...)
	t.mu.Unlock()
	return nil
}

// Use attaches a precondition. Permitted only before the task enters
// StateEvaluating; afterwards it returns ErrSealed and leaves the task
// unchanged.
func (t *Task) Use(p Precondition) error {
	if t.State() >= StateEvaluating {
		return ErrSealed
	}
	t.mu.Lock()
	t.preconds = append(t.preconds, p)
	t.mu.Unlock()
	return nil
}

// Observe binds fn to one lifecycle event. Permitted only before the task
// enters StateEvaluating. Registration order is invocation order within
// an event, and no two callbacks for this task ever run concurrently.
func (t *Task) Observe(ev Event, fn ObserverFunc) error {
	if t.State() >= StateEvaluating {
		return ErrSealed
	}
	t.observers.add(ev, fn)
	return nil
}

// Preconditions returns a snapshot of the attached preconditions. Called
// by the queue's evaluator after the StateEvaluating transition, which
// seals the list.
func (t *Task) Preconditions() []Precondition {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Precondition, len(t.preconds))
	copy(out, t.preconds)
	return out
}

// Errs returns a snapshot of the accumulated error list. The list is
// only meaningful once the task has finished; after that point it is
// frozen and the read is lock-free. The returned slice is the caller's
// to keep.
func (t *Task) Errs() []error {
	if t.IsFinished() {
		out := make([]error, len(t.frozenErrs))
		copy(out, t.frozenErrs)
		return out
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]error, len(t.errs))
	copy(out, t.errs)
	return out
}

// Cancel sets the cancellation flag and appends errs to the accumulated
// error list. It may be called from any goroutine, in any pre-finished
// state, any number of times, including before submission and from within
// observer callbacks.
//
// Cancel does not itself force a finish transition: the flag is honored
// by the execution body, or by the queue's check at the ready/executing
// boundary. If a concurrent finisher has already claimed the transition,
// the appended errors are dropped (the winning finisher's error list
// stands); the flag is still set. This lost update is deliberate, tested
// behavior.
func (t *Task) Cancel(errs ...error) {
	if t.IsFinished() {
		return
	}

	t.mu.Lock()
	if !t.frozen {
		for _, err := range errs {
			if err != nil {
				t.errs = append(t.errs, err)
			}
		}
	}
	t.mu.Unlock()

	t.cancelOnce.Do(func() {
		t.cancelled.Store(true)
		close(t.cancelCh)
		t.dispatch.enqueue(func() { t.invoke(EventDidCancel) })
	})
}

// Finish drives the task to its terminal state. It may be called
// concurrently by any number of callers; exactly one wins via a single
// atomic check-and-claim on the state, and all others return silently.
// A second finish arriving while the task is mid-finishing is a benign,
// expected race, not an error.
//
// The winner appends errs, freezes the error list, and runs the finishing
// sequence on the task's serialized dispatcher: will-finish observers,
// then the StateFinished transition and completion signal, then
// did-finish observers (which see the frozen list), then retirement from
// the liveness registry.
func (t *Task) Finish(errs ...error) {
	for {
		s := t.state.Load()
		if State(s).IsTerminal() {
			return // lost the race; deliberate no-op
		}
		if t.state.CompareAndSwap(s, int32(StateFinishing)) {
			break
		}
	}

	t.mu.Lock()
	for _, err := range errs {
		if err != nil {
			t.errs = append(t.errs, err)
		}
	}
	t.frozen = true
	frozen := make([]error, len(t.errs))
	copy(frozen, t.errs)
	t.mu.Unlock()

	t.frozenErrs = frozen

	// The finishing sequence runs as one serialized unit. When Finish is
	// called re-entrantly from inside an observer callback, the unit is
	// queued and executed by the in-flight drainer after the current
	// callback returns, instead of deadlocking.
	t.dispatch.enqueue(func() {
		t.invoke(EventWillFinish)
		t.state.Store(int32(StateFinished))
		close(t.done)
		t.invoke(EventDidFinish)
		if reg := t.reg.Load(); reg != nil {
			reg.deregister(t.id)
		}
	})
}

// MarkPending transitions the task from StateInitialized to StatePending.
// Called by the queue on submission.
func (t *Task) MarkPending() error {
	if !t.state.CompareAndSwap(int32(StateInitialized), int32(StatePending)) {
		return ErrAlreadySubmitted
	}
	return nil
}

// BeginEvaluating transitions from StatePending to StateEvaluating,
// sealing the precondition and observer lists. Returns false if the
// transition was lost, e.g. to a concurrent finisher.
func (t *Task) BeginEvaluating() bool {
	return t.state.CompareAndSwap(int32(StatePending), int32(StateEvaluating))
}

// MarkReady transitions from StateEvaluating to StateReady.
func (t *Task) MarkReady() bool {
	return t.state.CompareAndSwap(int32(StateEvaluating), int32(StateReady))
}

// BeginExecuting transitions from StateReady to StateExecuting.
func (t *Task) BeginExecuting() bool {
	return t.state.CompareAndSwap(int32(StateReady), int32(StateExecuting))
}

// NotifyWillExecute runs the will-execute observers and blocks until they
// have all completed, so the execution body never starts while one is in
// flight. Must not be called from within an observer callback.
func (t *Task) NotifyWillExecute() {
	<-t.dispatch.enqueue(func() { t.invoke(EventWillExecute) })
}

// NotifyDidExecute runs the did-execute observers and blocks until they
// have all completed. Must not be called from within an observer callback.
func (t *Task) NotifyDidExecute() {
	<-t.dispatch.enqueue(func() { t.invoke(EventDidExecute) })
}

// RunBody executes the task's body with a context that is cancelled when
// either ctx is done or the task is cancelled. A nil body succeeds
// immediately.
func (t *Task) RunBody(ctx context.Context) error {
	if t.body == nil {
		return nil
	}

	bodyCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-t.cancelCh:
			cancel()
		case <-bodyCtx.Done():
		}
	}()

	return t.body(bodyCtx)
}

// invoke runs the callbacks for one event in registration order, passing
// a snapshot of the error list taken at invocation time. Always executed
// on the dispatcher, never under t.mu.
func (t *Task) invoke(ev Event) {
	fns := t.observers.snapshot(ev)
	if len(fns) == 0 {
		return
	}
	errs := t.Errs()
	for _, fn := range fns {
		fn(t, errs)
	}
}
