package httpclient

import (
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	gobreakerredis "github.com/sony/gobreaker/v2/redis"
)

// NewRedisStore creates a SharedDataStore backed by Redis so that every
// client process shares per-instance breaker state.
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	cfg := httpclient.DistributedBreakerConfig(httpclient.NewRedisStore(rdb))
func NewRedisStore(client redis.UniversalClient) gobreaker.SharedDataStore {
	return gobreakerredis.NewStoreFromClient(client)
}

// CircuitBreaker is the subset of the gobreaker API used by the transport.
type CircuitBreaker interface {
	Execute(req func() (any, error)) (any, error)
}

// BreakerClassifier reports whether a result counts as a failure for the
// breaker of the instance that produced it.
type BreakerClassifier func(resp *http.Response, err error) bool

// BreakerConfig configures the circuit breaker kept for every backend
// instance.
//
// Breakers are per instance, not per service: one sick instance trips its own
// breaker and fails fast, which makes it lose every hedge race immediately
// while healthy siblings keep serving.
type BreakerConfig struct {
	// MaxRequests is the number of probe requests allowed while half-open.
	// Default: 1
	MaxRequests uint32

	// Interval is the cyclic period after which closed-state counts reset.
	// Default: 10s
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	// Default: 10s
	Timeout time.Duration

	// FailureThreshold is the minimum number of requests before the failure
	// ratio is considered.
	// Default: 20
	FailureThreshold uint32

	// FailureRatio trips the breaker once exceeded (0.0 - 1.0).
	// Default: 0.5
	FailureRatio float64

	// ConsecutiveFailures trips the breaker after this many failures in a
	// row, regardless of FailureThreshold. 0 disables the rule.
	// Default: 5
	ConsecutiveFailures uint32

	// Store shares breaker state between processes. Nil means in-memory.
	Store gobreaker.SharedDataStore

	// Classifier decides which results count as failures.
	// Default: DefaultBreakerClassifier
	Classifier BreakerClassifier

	// OnStateChange is invoked on every state transition.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig returns the defaults for an in-memory breaker.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            10 * time.Second,
		Timeout:             10 * time.Second,
		FailureThreshold:    20,
		FailureRatio:        0.5,
		ConsecutiveFailures: 5,
		Classifier:          DefaultBreakerClassifier,
	}
}

// DistributedBreakerConfig returns DefaultBreakerConfig backed by store.
func DistributedBreakerConfig(store gobreaker.SharedDataStore) BreakerConfig {
	cfg := DefaultBreakerConfig()
	cfg.Store = store
	return cfg
}

// readyToTrip implements gobreaker.Settings.ReadyToTrip for the config.
func (c BreakerConfig) readyToTrip(counts gobreaker.Counts) bool {
	if c.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= c.ConsecutiveFailures {
		return true
	}
	if c.FailureThreshold > 0 && counts.Requests < c.FailureThreshold {
		return false
	}
	if c.FailureRatio > 0 && counts.Requests > 0 {
		return float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureRatio
	}
	return false
}

// DefaultBreakerClassifier counts network errors and 5xx responses as
// failures. 429 is left to the retry layer.
func DefaultBreakerClassifier(resp *http.Response, err error) bool {
	if err != nil {
		return isNetworkError(err)
	}
	return resp != nil && resp.StatusCode >= 500
}

// isNetworkError checks for common network errors.
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT)
}
