package task

import "context"

// OutcomeKind classifies the result of a precondition evaluation.
type OutcomeKind int

const (
	OutcomeIgnored   OutcomeKind = iota // Does not block readiness
	OutcomeSatisfied                    // Precondition passed
	OutcomeFailed                       // Precondition failed; carries an error
)

// Outcome is the result of evaluating one precondition.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

// Ignored returns an outcome that neither blocks nor advances readiness.
func Ignored() Outcome { return Outcome{Kind: OutcomeIgnored} }

// Satisfied returns a passing outcome.
func Satisfied() Outcome { return Outcome{Kind: OutcomeSatisfied} }

// Failed returns a failing outcome carrying err. The owning task is
// cancelled with the union of all failing outcomes' errors.
func Failed(err error) Outcome { return Outcome{Kind: OutcomeFailed, Err: err} }

// Precondition gates a task's entry into execution. Each precondition is
// evaluated exactly once per owning task lifecycle, after every task it
// Produces has finished.
//
// Evaluate receives a weak Handle to the owning task rather than the task
// itself: by the time a slow evaluation completes, the owner may already
// have finished and been retired, and the callback must detect that via
// Handle.Resolve instead of assuming a live task.
type Precondition interface {
	// Produces returns tasks that must be submitted and finished before
	// this precondition can be evaluated. May be nil.
	Produces() []*Task

	// Evaluate runs the precondition. It must tolerate the owner handle
	// no longer resolving.
	Evaluate(ctx context.Context, owner Handle) Outcome
}
