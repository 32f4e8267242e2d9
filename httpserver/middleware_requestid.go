package httpserver

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request id. Hedged candidates of one
	// logical call share it, so it correlates the copies across instances.
	RequestIDHeader = "X-Request-ID"

	// InstanceIDHeader names the instance that produced a response.
	InstanceIDHeader = "X-Instance-ID"
)

type requestIDKey struct{}

// RequestID forwards the X-Request-ID header or generates a UUID when it is
// missing, echoes it in the response and stores it in the request context.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFromContext returns the request id, or "" when RequestID did not
// run.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// ServedBy stamps every response with X-Instance-ID so callers can tell
// which hedged candidate won.
func ServedBy(instanceID string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(InstanceIDHeader, instanceID)
			next.ServeHTTP(w, r)
		})
	}
}
