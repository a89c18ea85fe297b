package task

import "sync"

// Event identifies one lifecycle event an observer can bind to.
type Event int

const (
	EventWillExecute Event = iota // Before the execution body runs
	EventDidExecute               // After the execution body returns
	EventWillFinish               // After finish is claimed, before StateFinished
	EventDidFinish                // After StateFinished, error list frozen
	EventDidCancel                // First time the cancellation flag is set

	eventCount
)

// String returns a human-readable event name.
func (e Event) String() string {
	switch e {
	case EventWillExecute:
		return "will-execute"
	case EventDidExecute:
		return "did-execute"
	case EventWillFinish:
		return "will-finish"
	case EventDidFinish:
		return "did-finish"
	case EventDidCancel:
		return "did-cancel"
	}
	return "unknown"
}

// ObserverFunc is a lifecycle callback. It receives the task and a snapshot
// of its accumulated error list taken at invocation time. A callback may
// call Cancel or Finish on the task it observes; such re-entrant calls are
// absorbed by the same exactly-once guards as any other caller.
type ObserverFunc func(t *Task, errs []error)

// dispatcher serializes all lifecycle notifications for one task.
//
// The first goroutine to enqueue work becomes the drainer and runs queued
// units in FIFO order; goroutines arriving while a drain is in progress
// append their unit and return immediately. This guarantees that no two
// callbacks for the same task ever overlap, and that a callback which
// re-enters Cancel or Finish enqueues follow-up work instead of
// deadlocking on a held lock.
type dispatcher struct {
	mu       sync.Mutex
	pending  []unit
	draining bool
}

type unit struct {
	fn   func()
	done chan struct{}
}

// enqueue schedules fn for serialized execution and returns a channel that
// is closed once fn has run. Callers outside any callback may block on the
// channel; callers inside a callback must not (the drainer is themselves).
func (d *dispatcher) enqueue(fn func()) <-chan struct{} {
	u := unit{fn: fn, done: make(chan struct{})}

	d.mu.Lock()
	d.pending = append(d.pending, u)
	if d.draining {
		// Another goroutine is mid-drain; it will pick this unit up
		// after the current callback returns.
		d.mu.Unlock()
		return u.done
	}
	d.draining = true
	for len(d.pending) > 0 {
		next := d.pending[0]
		d.pending = d.pending[1:]
		d.mu.Unlock()

		next.fn()
		close(next.done)

		d.mu.Lock()
	}
	d.draining = false
	d.mu.Unlock()

	return u.done
}

// observerSet holds the per-event ordered callback lists for one task.
// Registration order determines invocation order within one event.
type observerSet struct {
	mu    sync.Mutex
	lists [eventCount][]ObserverFunc
}

func (o *observerSet) add(ev Event, fn ObserverFunc) {
	o.mu.Lock()
	o.lists[ev] = append(o.lists[ev], fn)
	o.mu.Unlock()
}

// snapshot returns the callback list for one event. The returned slice is
// never mutated after the task leaves StateEvaluating, but the copy keeps
// a benign late registration race from corrupting an in-flight invocation.
func (o *observerSet) snapshot(ev Event) []ObserverFunc {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.lists[ev]) == 0 {
		return nil
	}
	out := make([]ObserverFunc, len(o.lists[ev]))
	copy(out, o.lists[ev])
	return out
}
