package httpclient

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures client-side rate limiting per service.
//
// The limiter sits in front of the dispatcher: one logical call takes one
// token however many candidates it fans out to.
type RateLimitConfig struct {
	// RequestsPerSecond is the maximum sustained rate per service.
	// Zero disables rate limiting.
	RequestsPerSecond float64

	// Burst is the maximum number of requests allowed in a burst.
	Burst int

	// WaitOnLimit makes callers wait for a token (bounded by the request
	// context). When false, excess calls fail with ErrRateLimited.
	WaitOnLimit bool
}

// DefaultRateLimitConfig returns 100 requests per second with a burst of 10.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             10,
		WaitOnLimit:       true,
	}
}

// ErrRateLimited is returned when a request is rejected due to rate limiting.
var ErrRateLimited = errors.New("httpclient: rate limit exceeded")

// rateLimitTransport implements http.RoundTripper with one limiter per
// request host (the service id for hedged clients).
type rateLimitTransport struct {
	next http.RoundTripper
	cfg  RateLimitConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// newRateLimitTransport creates a rate-limited transport wrapper.
func newRateLimitTransport(next http.RoundTripper, cfg RateLimitConfig) http.RoundTripper {
	if cfg.RequestsPerSecond <= 0 {
		return next
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &rateLimitTransport{
		next:     next,
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	limiter := t.limiter(req.URL.Hostname())

	if t.cfg.WaitOnLimit {
		if err := limiter.Wait(req.Context()); err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, err
			}
			// Wait fails up front when the deadline is shorter than the
			// expected wait.
			return nil, ErrRateLimited
		}
	} else if !limiter.Allow() {
		return nil, ErrRateLimited
	}

	return t.next.RoundTrip(req)
}

func (t *rateLimitTransport) limiter(service string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.limiters[service]
	if !ok {
		l = rate.NewLimiter(rate.Limit(t.cfg.RequestsPerSecond), t.cfg.Burst)
		t.limiters[service] = l
	}
	return l
}
