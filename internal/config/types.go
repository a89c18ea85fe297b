package config

// QueueConfig tunes the work queue.
type QueueConfig struct {
	Workers         int `json:"workers"`          // Max concurrently executing bodies
	EvalConcurrency int `json:"eval_concurrency"` // Parallel precondition evaluations per task
}

// BreakerConfig tunes the optional per-class circuit breakers.
// A zero ConsecutiveFailures disables breaking entirely.
type BreakerConfig struct {
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
	OpenTimeoutSeconds  int    `json:"open_timeout_seconds"`
	HalfOpenRequests    uint32 `json:"half_open_requests"`
}

// HarnessConfig tunes the stress harness run shape.
type HarnessConfig struct {
	Tasks         int   `json:"tasks"`          // Tasks per run
	MaxDeps       int   `json:"max_deps"`       // Max dependencies per task
	Preconditions int   `json:"preconditions"`  // Always-succeeding preconditions per task
	Finishers     int   `json:"finishers"`      // Concurrent finish racers per task
	Cancellers    int   `json:"cancellers"`     // Concurrent cancel racers per task
	Seed          int64 `json:"seed"`           // 0 means derive from current time
}

// Config is the top-level taskflow configuration.
type Config struct {
	Queue       QueueConfig   `json:"queue"`
	Breaker     BreakerConfig `json:"breaker"`
	Harness     HarnessConfig `json:"harness"`
	JournalPath string        `json:"journal_path"` // "" disables the run journal
}
