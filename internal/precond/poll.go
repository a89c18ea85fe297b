package precond

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aristath/taskflow/internal/task"
)

// PollConfig tunes a Poll precondition's retry behavior.
type PollConfig struct {
	InitialInterval     time.Duration // First retry interval (default 10ms)
	MaxInterval         time.Duration // Cap on the retry interval (default 1s)
	MaxElapsedTime      time.Duration // Give up after this long (default 30s)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultPollConfig returns the default polling tuning.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		InitialInterval:     10 * time.Millisecond,
		MaxInterval:         time.Second,
		MaxElapsedTime:      30 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// Poll is a readiness probe retried with exponential backoff until it
// succeeds, permanently fails, or the retry budget runs out.
//
// Between attempts Poll re-resolves its owner handle: if the owning task
// has been cancelled and torn down while the probe was in flight, the
// evaluation terminates gracefully with an ignored outcome instead of
// touching a dead task.
type Poll struct {
	probe func(ctx context.Context) error
	cfg   PollConfig
}

// NewPoll creates a polling precondition around probe. A nil error from
// the probe satisfies the precondition; backoff.Permanent errors and an
// exhausted retry budget fail it.
func NewPoll(probe func(ctx context.Context) error, cfg PollConfig) *Poll {
	def := DefaultPollConfig()
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.MaxElapsedTime == 0 {
		cfg.MaxElapsedTime = def.MaxElapsedTime
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.RandomizationFactor == 0 {
		cfg.RandomizationFactor = def.RandomizationFactor
	}
	return &Poll{probe: probe, cfg: cfg}
}

// Produces returns nil; a Poll gates on external readiness, not on other
// tasks.
func (p *Poll) Produces() []*task.Task { return nil }

// Evaluate retries the probe with exponential backoff.
func (p *Poll) Evaluate(ctx context.Context, owner task.Handle) task.Outcome {
	gone := false

	operation := func() error {
		t, ok := owner.Resolve()
		if !ok {
			// Owner finished and was retired mid-evaluation; stop
			// without failing anything.
			gone = true
			return nil
		}
		if t.IsCancelled() {
			gone = true
			return nil
		}
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return p.probe(ctx)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.cfg.InitialInterval
	policy.MaxInterval = p.cfg.MaxInterval
	policy.MaxElapsedTime = p.cfg.MaxElapsedTime
	policy.Multiplier = p.cfg.Multiplier
	policy.RandomizationFactor = p.cfg.RandomizationFactor

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	switch {
	case gone:
		return task.Ignored()
	case err != nil:
		return task.Failed(err)
	default:
		return task.Satisfied()
	}
}
