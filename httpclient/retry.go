package httpclient

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig configures retries of a single candidate request.
//
// Retries run inside one candidate, below the hedge race. A candidate that
// retries reports its final result later than a sibling that succeeds on
// the first try, so hedging and retries compose: the race still returns
// whichever instance produces a terminal result first.
//
// Key concepts:
//   - MaxRetries: Maximum number of retry attempts (0 = disabled)
//   - MaxElapsedTime: Total time budget for all retries of one candidate.
//   - JitterFactor: Randomization factor (0.0-1.0) applied to each interval.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts.
	// The initial request is not counted as a retry.
	// Default: 2
	MaxRetries uint

	// InitialInterval is the first backoff interval.
	// Default: 100ms
	InitialInterval time.Duration

	// MaxInterval caps the backoff interval.
	// Default: 2s
	MaxInterval time.Duration

	// MaxElapsedTime is the total time budget for one candidate.
	// Set to 0 for no time limit (only MaxRetries applies).
	// Default: 10s
	MaxElapsedTime time.Duration

	// Multiplier controls exponential growth of backoff intervals.
	// Default: 2.0
	Multiplier float64

	// JitterFactor adds randomization to prevent retry storms.
	// Default: 0.5
	JitterFactor float64
}

// Default values for RetryConfig.
const (
	DefaultMaxRetries      = 2
	DefaultInitialInterval = 100 * time.Millisecond
	DefaultMaxInterval     = 2 * time.Second
	DefaultMaxElapsedTime  = 10 * time.Second
	DefaultMultiplier      = 2.0
	DefaultJitterFactor    = 0.5
)

// DefaultRetryConfig returns short, jittered retries suited to hedged calls:
// 2 retries (100ms, 200ms) within a 10s budget.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      DefaultMaxRetries,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		MaxElapsedTime:  DefaultMaxElapsedTime,
		Multiplier:      DefaultMultiplier,
		JitterFactor:    DefaultJitterFactor,
	}
}

// NoRetryConfig returns configuration that disables retries entirely.
// It is the client default: a failing candidate reports its failure at once.
func NoRetryConfig() RetryConfig {
	return RetryConfig{}
}

// IsEnabled returns true if retries are enabled.
func (c RetryConfig) IsEnabled() bool {
	return c.MaxRetries > 0
}

// ExponentialBackOffFromConfig converts cfg into a backoff strategy.
func ExponentialBackOffFromConfig(cfg RetryConfig) *backoff.ExponentialBackOff {
	jitter := cfg.JitterFactor
	if jitter <= 0 {
		jitter = DefaultJitterFactor
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.RandomizationFactor = jitter
	b.Multiplier = cfg.Multiplier
	b.MaxInterval = cfg.MaxInterval
	b.Reset()
	return b
}
