package httpserver

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// LoggerConfig configures the request logging middleware.
type LoggerConfig struct {
	Logger zerolog.Logger

	// serviceName and instanceID are set by the server.
	serviceName string
	instanceID  string

	// SkipPaths are not logged, e.g. probes hit every few seconds.
	SkipPaths []string

	// SlowThreshold logs successful requests slower than this at Warn.
	// Hedging makes slow instances visible mostly as lost races, so this
	// is where they show up on the server side. Zero disables it.
	SlowThreshold time.Duration
}

// Logger logs one line per request: Info for success, Warn for 4xx and
// slow requests, Error for 5xx.
func Logger(cfg LoggerConfig) Middleware {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := wrapResponseWriter(w)
			next.ServeHTTP(wrapped, r)
			duration := time.Since(start)

			status := wrapped.Status()
			var event *zerolog.Event
			switch {
			case status >= 500:
				event = cfg.Logger.Error()
			case status >= 400:
				event = cfg.Logger.Warn()
			case cfg.SlowThreshold > 0 && duration > cfg.SlowThreshold:
				event = cfg.Logger.Warn().Bool("slow", true)
			default:
				event = cfg.Logger.Info()
			}

			event.
				Str("service", cfg.serviceName).
				Str("instance", cfg.instanceID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Dur("duration", duration).
				Int("bytes", wrapped.BytesWritten()).
				Str("remote_addr", r.RemoteAddr)

			if id := RequestIDFromContext(r.Context()); id != "" {
				event.Str("request_id", id)
			}
			if r.Context().Err() != nil {
				// The caller went away, typically a hedged loser whose
				// client timed out.
				event.Bool("client_gone", true)
			}

			event.Msg("request completed")
		})
	}
}
