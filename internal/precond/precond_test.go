package precond

import (
	"context"
	"errors"
	"testing"

	"github.com/aristath/taskflow/internal/task"
)

// TestFuncWrapsPlainFunctions verifies Func adapts a closure into the
// precondition protocol.
func TestFuncWrapsPlainFunctions(t *testing.T) {
	called := false
	p := Func(func(context.Context, task.Handle) task.Outcome {
		called = true
		return task.Satisfied()
	})

	if got := p.Produces(); got != nil {
		t.Fatalf("Produces() = %v, want nil", got)
	}
	out := p.Evaluate(context.Background(), task.Handle{})
	if !called || out.Kind != task.OutcomeSatisfied {
		t.Fatalf("called=%v outcome=%v", called, out)
	}
}

// TestAfterProducesItsTasks verifies the gated tasks are exposed for the
// evaluator to submit and await.
func TestAfterProducesItsTasks(t *testing.T) {
	a, b := task.New("a"), task.New("b")
	p := NewAfter(a, b)
	if got := p.Produces(); len(got) != 2 || got[0] != a || got[1] != b {
		t.Fatalf("Produces() = %v, want [a b]", got)
	}
}

// TestAfterOutcomes is a table test over After evaluation.
func TestAfterOutcomes(t *testing.T) {
	gateErr := errors.New("gate finished dirty")

	finishedClean := task.New("clean")
	finishedClean.Finish()
	<-finishedClean.Done()

	finishedDirty := task.New("dirty")
	finishedDirty.Finish(gateErr)
	<-finishedDirty.Done()

	tests := []struct {
		name        string
		after       *After
		liveOwner   bool
		wantKind    task.OutcomeKind
		wantGateErr bool
	}{
		{
			name:      "clean gates satisfy",
			after:     NewAfter(finishedClean),
			liveOwner: true,
			wantKind:  task.OutcomeSatisfied,
		},
		{
			name:      "dirty gate tolerated by default",
			after:     NewAfter(finishedDirty),
			liveOwner: true,
			wantKind:  task.OutcomeSatisfied,
		},
		{
			name: "dirty gate fails when strict",
			after: func() *After {
				a := NewAfter(finishedDirty)
				a.FailOnErrors = true
				return a
			}(),
			liveOwner:   true,
			wantKind:    task.OutcomeFailed,
			wantGateErr: true,
		},
		{
			name:      "dead owner ignored",
			after:     NewAfter(finishedClean),
			liveOwner: false,
			wantKind:  task.OutcomeIgnored,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner := task.Handle{}
			if tt.liveOwner {
				reg := task.NewRegistry()
				tk := task.New("owner")
				reg.Register(tk)
				owner = reg.Handle(tk)
			}

			out := tt.after.Evaluate(context.Background(), owner)
			if out.Kind != tt.wantKind {
				t.Fatalf("outcome %v, want kind %v", out, tt.wantKind)
			}
			if tt.wantGateErr && !errors.Is(out.Err, gateErr) {
				t.Fatalf("outcome error %v, want gate error", out.Err)
			}
		})
	}
}
