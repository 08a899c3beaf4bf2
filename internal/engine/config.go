package engine

import "time"

// Config holds tuning knobs for the sync engine.
type Config struct {
	// BatchSize is the maximum number of operations per batch.
	BatchSize int

	// SyncInterval is how often the engine drains the queue.
	SyncInterval time.Duration

	// MaxRetries bounds retries of the same batch within one cycle before
	// the engine surfaces a terminal failure.
	MaxRetries int

	// RetryDelay is the delay before the first retry.
	RetryDelay time.Duration

	// BackoffMultiplier grows the delay between successive retries.
	BackoffMultiplier float64

	// MaxRetryDelay caps the backoff delay. Zero means uncapped.
	MaxRetryDelay time.Duration
}

// DefaultConfig returns the standard engine tuning.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:         50,
		SyncInterval:      5 * time.Second,
		MaxRetries:        3,
		RetryDelay:        2 * time.Second,
		BackoffMultiplier: 2,
	}
}

// normalized returns a copy with zero fields replaced by defaults.
func (c *Config) normalized() *Config {
	out := *c
	def := DefaultConfig()

	if out.BatchSize <= 0 {
		out.BatchSize = def.BatchSize
	}
	if out.SyncInterval <= 0 {
		out.SyncInterval = def.SyncInterval
	}
	if out.MaxRetries < 0 {
		out.MaxRetries = def.MaxRetries
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = def.RetryDelay
	}
	if out.BackoffMultiplier < 1 {
		out.BackoffMultiplier = def.BackoffMultiplier
	}

	return &out
}
