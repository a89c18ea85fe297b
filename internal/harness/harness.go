// Package harness stress-tests the task core through its public
// operations only: it generates randomized dependency graphs, races
// concurrent finishers and cancellers against every task, and asserts
// the lifecycle guarantees (exactly-once finish, serialized observer
// callbacks, errors surviving every path to the terminal state).
package harness

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/taskflow/internal/events"
	"github.com/aristath/taskflow/internal/precond"
	"github.com/aristath/taskflow/internal/queue"
	"github.com/aristath/taskflow/internal/task"
)

// Config shapes one harness run.
type Config struct {
	Tasks         int   // Tasks per run
	MaxDeps       int   // Max dependencies per task (drawn from earlier tasks)
	Preconditions int   // Always-succeeding preconditions per task
	Finishers     int   // Concurrent finish racers per task
	Cancellers    int   // Concurrent cancel racers per task
	Seed          int64 // 0 derives a seed from the current time

	Workers         int // Queue worker bound
	EvalConcurrency int // Queue precondition evaluation bound

	// Breakers, when non-nil, wraps execution bodies in per-class
	// circuit breakers. Tripped circuits surface as task errors, never
	// as anomalies.
	Breakers *queue.BreakerRegistry
}

// Report summarizes one harness run. A non-empty Anomalies list means a
// lifecycle guarantee was violated.
type Report struct {
	Seed      int64
	Tasks     int
	Finished  int
	Cancelled int
	Errors    int // Tasks that finished with a non-empty error list
	Anomalies []string
	Duration  time.Duration
}

// probe instruments one task: callback overlap detection and did-finish
// counting.
type probe struct {
	t           *task.Task
	preCancel   error // Non-nil: task was cancelled with this before submission
	didFinish   atomic.Int32
	didCancel   atomic.Int32
	evaluations atomic.Int32 // Precondition evaluations observed
	inCallback  atomic.Int32
	overlaps    atomic.Int32
}

// enter marks callback entry and records an overlap if another callback
// for the same task is already running.
func (p *probe) enter() {
	if !p.inCallback.CompareAndSwap(0, 1) {
		p.overlaps.Add(1)
	}
}

func (p *probe) exit() {
	p.inCallback.Store(0)
}

// Run executes one stress run and returns its report. The run fails with
// an error only on harness-level problems (invalid graph, context end);
// core violations are reported as anomalies.
func Run(ctx context.Context, cfg Config, bus *events.Bus) (*Report, error) {
	if cfg.Tasks <= 0 {
		cfg.Tasks = 100
	}
	if cfg.Finishers <= 0 {
		cfg.Finishers = 1
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	start := time.Now()
	probes := buildGraph(rng, cfg)

	tasks := make([]*task.Task, len(probes))
	for i, p := range probes {
		tasks[i] = p.t
	}
	if _, err := queue.Validate(tasks...); err != nil {
		return nil, fmt.Errorf("generated graph invalid: %w", err)
	}

	q := queue.New(
		queue.WithWorkers(cfg.Workers),
		queue.WithEvalConcurrency(cfg.EvalConcurrency),
		queue.WithBus(bus),
		queue.WithBreakers(cfg.Breakers),
	)

	// Pre-submission cancellations: these tasks must still reach the
	// terminal state with their cancellation error intact.
	for _, p := range probes {
		if p.preCancel != nil {
			p.t.Cancel(p.preCancel)
		}
	}

	for _, p := range probes {
		if err := q.Submit(ctx, p.t); err != nil {
			return nil, fmt.Errorf("submitting %s: %w", p.t.Name(), err)
		}
	}

	raceTransitions(rng, cfg, probes)

	if err := q.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for queue: %w", err)
	}

	report := &Report{
		Seed:     seed,
		Tasks:    len(probes),
		Duration: time.Since(start),
	}
	verify(probes, cfg, report)
	return report, nil
}

// taskClasses partitions generated tasks across execution classes so
// per-class circuit breakers, when configured, see independent failure
// streams.
var taskClasses = []string{"io", "compute", "network"}

// buildGraph constructs the randomized task set. Dependencies are always
// drawn from earlier tasks so the graph is acyclic by construction.
func buildGraph(rng *rand.Rand, cfg Config) []*probe {
	probes := make([]*probe, cfg.Tasks)
	for i := range probes {
		p := &probe{}

		var opts []task.Option
		if cfg.MaxDeps > 0 && i > 0 {
			nDeps := rng.Intn(cfg.MaxDeps + 1)
			for d := 0; d < nDeps; d++ {
				dep := probes[rng.Intn(i)]
				opts = append(opts, task.DependsOn(dep.t))
			}
		}

		// Roughly one task in ten has a failing body; bodies observe
		// their context for cooperative cancellation.
		bodyErr := error(nil)
		if rng.Intn(10) == 0 {
			bodyErr = fmt.Errorf("synthetic body failure")
		}
		opts = append(opts, task.WithBody(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return bodyErr
		}))
		opts = append(opts, task.WithClass(taskClasses[rng.Intn(len(taskClasses))]))

		p.t = task.New(fmt.Sprintf("stress-%s", uuid.NewString()[:8]), opts...)

		for ev := task.EventWillExecute; ev <= task.EventDidCancel; ev++ {
			attachProbe(p, ev)
		}

		for k := 0; k < cfg.Preconditions; k++ {
			p.t.Use(precond.Func(func(ctx context.Context, owner task.Handle) task.Outcome {
				p.evaluations.Add(1)
				if _, ok := owner.Resolve(); !ok {
					return task.Ignored()
				}
				return task.Satisfied()
			}))
		}

		// Roughly one task in twenty is cancelled before submission.
		if rng.Intn(20) == 0 {
			p.preCancel = fmt.Errorf("cancelled before submission")
		}

		probes[i] = p
	}
	return probes
}

func attachProbe(p *probe, ev task.Event) {
	p.t.Observe(ev, func(t *task.Task, errs []error) {
		p.enter()
		defer p.exit()
		switch ev {
		case task.EventDidFinish:
			p.didFinish.Add(1)
		case task.EventDidCancel:
			p.didCancel.Add(1)
		}
	})
}

// raceTransitions storms every task with concurrent finish and cancel
// calls at randomized delays, simulating multiple completion paths
// racing the framework's own transitions.
func raceTransitions(rng *rand.Rand, cfg Config, probes []*probe) {
	var wg sync.WaitGroup
	for i, p := range probes {
		p := p
		// Pre-draw delays so goroutines don't share the rng.
		finishDelays := make([]time.Duration, cfg.Finishers)
		for j := range finishDelays {
			finishDelays[j] = time.Duration(rng.Intn(2000)) * time.Microsecond
		}
		cancelDelays := make([]time.Duration, cfg.Cancellers)
		for j := range cancelDelays {
			cancelDelays[j] = time.Duration(rng.Intn(2000)) * time.Microsecond
		}

		taskIdx := i
		for j, delay := range finishDelays {
			wg.Add(1)
			go func(j int, delay time.Duration) {
				defer wg.Done()
				time.Sleep(delay)
				p.t.Finish(fmt.Errorf("racer %d finished task %d", j, taskIdx))
			}(j, delay)
		}
		for j, delay := range cancelDelays {
			wg.Add(1)
			go func(j int, delay time.Duration) {
				defer wg.Done()
				time.Sleep(delay)
				p.t.Cancel(fmt.Errorf("racer %d cancelled task %d", j, taskIdx))
			}(j, delay)
		}
	}
	wg.Wait()
}

// verify checks every lifecycle guarantee and fills the report.
func verify(probes []*probe, cfg Config, report *Report) {
	for _, p := range probes {
		name := p.t.Name()

		if !p.t.IsFinished() {
			report.Anomalies = append(report.Anomalies,
				fmt.Sprintf("%s: never reached terminal state (state %s)", name, p.t.State()))
			continue
		}
		report.Finished++

		if n := p.didFinish.Load(); n != 1 {
			report.Anomalies = append(report.Anomalies,
				fmt.Sprintf("%s: did-finish fired %d times", name, n))
		}
		if n := p.overlaps.Load(); n != 0 {
			report.Anomalies = append(report.Anomalies,
				fmt.Sprintf("%s: %d overlapping lifecycle callbacks", name, n))
		}
		if n := p.evaluations.Load(); int(n) > cfg.Preconditions {
			report.Anomalies = append(report.Anomalies,
				fmt.Sprintf("%s: %d precondition evaluations for %d preconditions",
					name, n, cfg.Preconditions))
		}

		if p.t.IsCancelled() {
			report.Cancelled++
		}
		// A did-cancel enqueued during the finishing drain may still be
		// in flight here, so only double invocation is an anomaly.
		if n := p.didCancel.Load(); n > 1 {
			report.Anomalies = append(report.Anomalies,
				fmt.Sprintf("%s: did-cancel fired %d times", name, n))
		}

		errs := p.t.Errs()
		if len(errs) > 0 {
			report.Errors++
		}

		if p.preCancel != nil && !containsErr(errs, p.preCancel) {
			report.Anomalies = append(report.Anomalies,
				fmt.Sprintf("%s: pre-submission cancellation error missing from final list", name))
		}
	}
}

func containsErr(errs []error, want error) bool {
	for _, err := range errs {
		if err == want {
			return true
		}
	}
	return false
}
