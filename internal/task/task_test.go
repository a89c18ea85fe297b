package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestFinishExactlyOnce subjects one task to a burst of concurrent
// finishers and verifies exactly one caller's errors are recorded and
// did-finish fires exactly once.
func TestFinishExactlyOnce(t *testing.T) {
	const racers = 64

	for iter := 0; iter < 50; iter++ {
		tk := New("finish-once")
		var didFinish atomic.Int32
		tk.Observe(EventDidFinish, func(_ *Task, _ []error) {
			didFinish.Add(1)
		})

		var start, done sync.WaitGroup
		start.Add(1)
		for i := 0; i < racers; i++ {
			done.Add(1)
			go func(i int) {
				defer done.Done()
				start.Wait()
				tk.Finish(fmt.Errorf("finisher %d", i))
			}(i)
		}
		start.Done()
		done.Wait()

		<-tk.Done()

		if !tk.IsFinished() {
			t.Fatalf("iter %d: task not finished, state %s", iter, tk.State())
		}
		if n := didFinish.Load(); n != 1 {
			t.Fatalf("iter %d: did-finish fired %d times, want 1", iter, n)
		}
		if n := len(tk.Errs()); n != 1 {
			t.Fatalf("iter %d: %d errors recorded, want exactly the winner's 1", iter, n)
		}
	}
}

// TestCancelErrorsSurviveToFinish verifies that errors attached by Cancel
// before the finish transition appear in the final error list.
func TestCancelErrorsSurviveToFinish(t *testing.T) {
	tk := New("cancel-then-finish")
	cancelErr := errors.New("cancelled early")

	tk.Cancel(cancelErr)
	if !tk.IsCancelled() {
		t.Fatal("cancellation flag not set")
	}
	tk.Finish()
	<-tk.Done()

	if !containsError(tk.Errs(), cancelErr) {
		t.Fatalf("cancellation error missing from final list: %v", tk.Errs())
	}
}

// TestCancelRepeatedAccumulates verifies cancel is callable any number
// of times and appends each error until the list freezes.
func TestCancelRepeatedAccumulates(t *testing.T) {
	tk := New("cancel-repeat")
	tk.Cancel(errors.New("one"))
	tk.Cancel() // no errors is fine
	tk.Cancel(errors.New("two"), nil, errors.New("three"))

	tk.Finish()
	<-tk.Done()

	if got := len(tk.Errs()); got != 3 {
		t.Fatalf("got %d errors, want 3 (nil filtered): %v", got, tk.Errs())
	}
}

// TestCancelAfterFinishIsNoop verifies post-finish cancellation neither
// sets the flag nor mutates the frozen error list.
func TestCancelAfterFinishIsNoop(t *testing.T) {
	tk := New("cancel-late")
	tk.Finish()
	<-tk.Done()

	tk.Cancel(errors.New("too late"))

	if tk.IsCancelled() {
		t.Fatal("cancellation flag set after finish")
	}
	if len(tk.Errs()) != 0 {
		t.Fatalf("frozen error list mutated: %v", tk.Errs())
	}
}

// TestErrsSnapshotIsolated verifies mutating a returned error slice
// never reaches the frozen list.
func TestErrsSnapshotIsolated(t *testing.T) {
	tk := New("snapshot")
	first := errors.New("first")
	tk.Finish(first)
	<-tk.Done()

	errs := tk.Errs()
	errs[0] = errors.New("overwritten")

	if !containsError(tk.Errs(), first) {
		t.Fatalf("frozen list mutated through a snapshot: %v", tk.Errs())
	}
}

// TestCancelRacingFinishLosesErrors pins the documented lost-update
// policy: a cancellation arriving while the finishing sequence is in
// flight sets the flag but its errors are dropped; the winning
// finisher's list stands.
func TestCancelRacingFinishLosesErrors(t *testing.T) {
	tk := New("lost-update")
	lateErr := errors.New("late cancel")

	tk.Observe(EventWillFinish, func(tk *Task, _ []error) {
		tk.Cancel(lateErr)
	})

	winErr := errors.New("winner")
	tk.Finish(winErr)
	<-tk.Done()

	if !tk.IsCancelled() {
		t.Fatal("flag should still be set by the losing cancel")
	}
	errs := tk.Errs()
	if !containsError(errs, winErr) {
		t.Fatalf("winner's error missing: %v", errs)
	}
	if containsError(errs, lateErr) {
		t.Fatalf("losing cancel's error should be dropped: %v", errs)
	}
}

// TestReentrantFinishFromObserver verifies a finish issued from within a
// will-finish callback is absorbed without deadlock or double
// notification.
func TestReentrantFinishFromObserver(t *testing.T) {
	tk := New("reentrant-finish")
	extraErr := errors.New("second finish")
	var didFinish atomic.Int32

	tk.Observe(EventWillFinish, func(tk *Task, _ []error) {
		tk.Finish(extraErr)
	})
	tk.Observe(EventDidFinish, func(_ *Task, _ []error) {
		didFinish.Add(1)
	})

	finished := make(chan struct{})
	go func() {
		tk.Finish()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("re-entrant finish deadlocked")
	}
	<-tk.Done()

	if n := didFinish.Load(); n != 1 {
		t.Fatalf("did-finish fired %d times, want 1", n)
	}
	if containsError(tk.Errs(), extraErr) {
		t.Fatalf("losing re-entrant finish recorded its error: %v", tk.Errs())
	}
}

// TestFinishFromDidCancelObserver verifies a finish issued from inside
// the did-cancel callback completes the full terminal sequence.
func TestFinishFromDidCancelObserver(t *testing.T) {
	tk := New("finish-from-cancel-observer")
	finishErr := errors.New("finish from observer")
	tk.Observe(EventDidCancel, func(tk *Task, _ []error) {
		tk.Finish(finishErr)
	})

	cancelErr := errors.New("cancelled")
	tk.Cancel(cancelErr)

	select {
	case <-tk.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("task never finished")
	}

	errs := tk.Errs()
	if !containsError(errs, cancelErr) || !containsError(errs, finishErr) {
		t.Fatalf("expected both errors in final list, got %v", errs)
	}
}

// TestAttachSealedAfterEvaluating verifies preconditions, observers and
// dependencies are rejected once evaluation begins.
func TestAttachSealedAfterEvaluating(t *testing.T) {
	tk := New("sealed")
	if err := tk.MarkPending(); err != nil {
		t.Fatalf("MarkPending: %v", err)
	}
	if !tk.BeginEvaluating() {
		t.Fatal("BeginEvaluating failed")
	}

	if err := tk.Observe(EventDidFinish, func(*Task, []error) {}); !errors.Is(err, ErrSealed) {
		t.Errorf("Observe after sealing: got %v, want ErrSealed", err)
	}
	if err := tk.Use(nopPrecondition{}); !errors.Is(err, ErrSealed) {
		t.Errorf("Use after sealing: got %v, want ErrSealed", err)
	}
	if err := tk.DependOn(New("other")); !errors.Is(err, ErrSealed) {
		t.Errorf("DependOn after sealing: got %v, want ErrSealed", err)
	}
}

// TestMarkPendingTwice verifies double submission is rejected.
func TestMarkPendingTwice(t *testing.T) {
	tk := New("double-submit")
	if err := tk.MarkPending(); err != nil {
		t.Fatalf("first MarkPending: %v", err)
	}
	if err := tk.MarkPending(); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("second MarkPending: got %v, want ErrAlreadySubmitted", err)
	}
}

// TestRunBodyObservesCancellation verifies the body context is cancelled
// when the task is cancelled.
func TestRunBodyObservesCancellation(t *testing.T) {
	tk := New("cooperative", WithBody(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	go func() {
		time.Sleep(10 * time.Millisecond)
		tk.Cancel()
	}()

	err := tk.RunBody(context.Background())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("body error = %v, want context.Canceled", err)
	}
}

// TestStateString is a table test over state names.
func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateInitialized, "initialized"},
		{StatePending, "pending"},
		{StateEvaluating, "evaluating"},
		{StateReady, "ready"},
		{StateExecuting, "executing"},
		{StateFinishing, "finishing"},
		{StateFinished, "finished"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

// TestStateIsTerminal verifies only finishing and finished are terminal.
func TestStateIsTerminal(t *testing.T) {
	for s := StateInitialized; s <= StateFinished; s++ {
		want := s == StateFinishing || s == StateFinished
		if got := s.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, got, want)
		}
	}
}

type nopPrecondition struct{}

func (nopPrecondition) Produces() []*Task { return nil }
func (nopPrecondition) Evaluate(context.Context, Handle) Outcome {
	return Satisfied()
}

func containsError(errs []error, want error) bool {
	for _, err := range errs {
		if errors.Is(err, want) {
			return true
		}
	}
	return false
}
