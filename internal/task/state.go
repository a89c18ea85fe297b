package task

// State represents the current lifecycle state of a task.
//
// States advance strictly forward. The cancellation flag is orthogonal:
// it may be set in any pre-finished state and is checked by the queue at
// the ready/executing boundary.
type State int32

const (
	StateInitialized State = iota // Constructed, not yet submitted
	StatePending                  // Submitted, waiting for dependencies
	StateEvaluating               // Preconditions being evaluated
	StateReady                    // Dependencies finished, preconditions resolved
	StateExecuting                // Execution body running
	StateFinishing                // Finish claimed, observers being notified
	StateFinished                 // Terminal state, error list frozen
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StatePending:
		return "pending"
	case StateEvaluating:
		return "evaluating"
	case StateReady:
		return "ready"
	case StateExecuting:
		return "executing"
	case StateFinishing:
		return "finishing"
	case StateFinished:
		return "finished"
	}
	return "unknown"
}

// IsTerminal returns true once the task has reached or claimed its finish
// transition. A task in StateFinishing can no longer be won by another
// finisher even though its observers are still being notified.
func (s State) IsTerminal() bool {
	return s == StateFinishing || s == StateFinished
}
