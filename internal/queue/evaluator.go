package queue

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/taskflow/internal/task"
)

// evaluate runs every precondition attached to t and reduces their
// outcomes to a single readiness decision: the returned slice is the
// union of all failing outcomes' errors, empty when the task is ready.
//
// Independent preconditions evaluate concurrently, bounded by the
// queue's eval concurrency; the full pass is one logical unit that runs
// exactly once per task, guarded by the StateEvaluating transition in
// process. Each precondition's produced dependency tasks are submitted
// (if the caller has not already) and awaited before the precondition
// itself is evaluated.
func (q *Queue) evaluate(ctx context.Context, t *task.Task) []error {
	preconds := t.Preconditions()
	if len(preconds) == 0 {
		return nil
	}

	// Preconditions receive a weak handle, never the task itself: by the
	// time a slow evaluation returns, the owner may have finished and
	// been retired, and the handle is how the callback detects that.
	owner := q.reg.Handle(t)

	var mu sync.Mutex
	var failures []error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.evalLimit)

	for _, p := range preconds {
		p := p
		g.Go(func() error {
			for _, dep := range p.Produces() {
				if err := q.ensureSubmitted(gctx, dep); err != nil {
					return err
				}
				select {
				case <-dep.Done():
				case <-gctx.Done():
					return gctx.Err()
				}
			}

			out := p.Evaluate(gctx, owner)
			if out.Kind == task.OutcomeFailed {
				err := out.Err
				if err == nil {
					err = errors.New("precondition failed")
				}
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		mu.Lock()
		failures = append(failures, err)
		mu.Unlock()
	}
	return failures
}

// ensureSubmitted submits a produced dependency task unless some other
// precondition (or the caller) already did. A dependency racing two
// submitters is benign: the loser sees ErrAlreadySubmitted and simply
// awaits the task like everyone else.
func (q *Queue) ensureSubmitted(ctx context.Context, dep *task.Task) error {
	err := q.Submit(ctx, dep)
	if err == nil || errors.Is(err, task.ErrAlreadySubmitted) {
		return nil
	}
	return err
}
