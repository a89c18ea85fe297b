package config

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Queue: QueueConfig{
			Workers:         4,
			EvalConcurrency: 16,
		},
		Breaker: BreakerConfig{
			ConsecutiveFailures: 0, // Disabled unless configured
			OpenTimeoutSeconds:  30,
			HalfOpenRequests:    3,
		},
		Harness: HarnessConfig{
			Tasks:         500,
			MaxDeps:       3,
			Preconditions: 4,
			Finishers:     8,
			Cancellers:    2,
			Seed:          0,
		},
		JournalPath: "",
	}
}
