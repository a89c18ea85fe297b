// Package precond provides stock preconditions for taskflow tasks: plain
// functional gates, produced-dependency gates, and backoff-polled
// readiness probes.
package precond

import (
	"context"

	"github.com/aristath/taskflow/internal/task"
)

// Func wraps a plain function as a precondition with no produced
// dependencies.
type Func func(ctx context.Context, owner task.Handle) task.Outcome

// Produces returns nil; a Func depends on no other tasks.
func (f Func) Produces() []*task.Task { return nil }

// Evaluate calls the wrapped function.
func (f Func) Evaluate(ctx context.Context, owner task.Handle) task.Outcome {
	return f(ctx, owner)
}

// After gates a task on other tasks having finished. The queue submits
// and awaits the produced tasks before evaluation, so Evaluate only has
// to inspect their outcome.
type After struct {
	tasks []*task.Task

	// FailOnErrors, when set, turns a produced task that finished with
	// errors into a failing outcome instead of a satisfied one.
	FailOnErrors bool
}

// NewAfter creates an After precondition over the given tasks.
func NewAfter(tasks ...*task.Task) *After {
	return &After{tasks: tasks}
}

// Produces returns the gated tasks.
func (a *After) Produces() []*task.Task { return a.tasks }

// Evaluate reports satisfied once all produced tasks have finished. With
// FailOnErrors set, the first produced task that finished with a
// non-empty error list fails the owner instead.
func (a *After) Evaluate(ctx context.Context, owner task.Handle) task.Outcome {
	if _, ok := owner.Resolve(); !ok {
		// Owner already torn down; nothing to gate.
		return task.Ignored()
	}
	if !a.FailOnErrors {
		return task.Satisfied()
	}
	for _, t := range a.tasks {
		if errs := t.Errs(); len(errs) > 0 {
			return task.Failed(errs[0])
		}
	}
	return task.Satisfied()
}
