package httpserver

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures server-side load shedding.
//
// A shed request gets 429 with Retry-After. Hedging clients treat it as a
// failed candidate; when another candidate succeeds first, the caller never
// sees it.
type RateLimitConfig struct {
	// Limit is the sustained rate in requests per second.
	Limit rate.Limit

	// Burst is the token bucket capacity.
	Burst int

	// KeyFunc groups requests into separate buckets. Nil means one bucket
	// for the whole instance.
	KeyFunc KeyFunc
}

// KeyFunc extracts a rate limiting key from a request.
type KeyFunc func(r *http.Request) string

// DefaultRateLimitConfig returns 100 req/s with bursts of 200.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Limit: 100, Burst: 200}
}

// RateLimit sheds requests above cfg with a token bucket per key.
func RateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	var (
		mu       sync.Mutex
		global   = rate.NewLimiter(cfg.Limit, cfg.Burst)
		limiters = make(map[string]*rate.Limiter)
	)

	limiterFor := func(r *http.Request) *rate.Limiter {
		if cfg.KeyFunc == nil {
			return global
		}
		key := cfg.KeyFunc(r)

		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[key]
		if !ok {
			l = rate.NewLimiter(cfg.Limit, cfg.Burst)
			limiters[key] = l
		}
		return l
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := limiterFor(r)
			if !limiter.Allow() {
				retryAfter := 1
				if cfg.Limit > 0 && cfg.Limit < 1 {
					retryAfter = int(1/float64(cfg.Limit)) + 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded",
					Error{Field: "rate_limit", Message: "too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// KeyByIP keys requests by client IP, preferring the first X-Forwarded-For
// entry.
func KeyByIP() KeyFunc {
	return func(r *http.Request) string {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		return host
	}
}

// KeyByHeader keys requests by the value of header, e.g. a tenant id.
// Requests without it share one bucket.
func KeyByHeader(header string) KeyFunc {
	return func(r *http.Request) string {
		return r.Header.Get(header)
	}
}
