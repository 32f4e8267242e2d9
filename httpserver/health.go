package httpserver

import (
	"context"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"
)

// HealthCheck reports whether a dependency is usable. A nil error means
// healthy.
type HealthCheck func(ctx context.Context) error

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status              string `json:"status"`
	Latency             string `json:"latency"`
	Message             string `json:"message,omitempty"`
	LastChecked         string `json:"last_checked"`
	ConsecutiveFailures int    `json:"consecutive_failures,omitempty"`
}

// HealthResponse is the body of /livez and /readyz.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Instance  string                 `json:"instance,omitempty"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime,omitempty"`
	Hostname  string                 `json:"hostname,omitempty"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// PingResponse is the body of /ping.
type PingResponse struct {
	Status string `json:"status"`
}

type checkState struct {
	check               HealthCheck
	consecutiveFailures int
}

// HealthHandler serves liveness and readiness probes.
//
//	health.AddReadinessCheck("redis", func(ctx context.Context) error {
//	    return rdb.Ping(ctx).Err()
//	})
//	health.Register(router)
type HealthHandler struct {
	serviceName  string
	instanceID   string
	version      string
	startTime    time.Time
	hostname     string
	checkTimeout time.Duration

	mu              sync.Mutex
	livenessChecks  map[string]*checkState
	readinessChecks map[string]*checkState
}

// HealthOption configures the HealthHandler.
type HealthOption func(*HealthHandler)

func withHealthServiceName(name string) HealthOption {
	return func(h *HealthHandler) {
		h.serviceName = name
	}
}

func withHealthInstanceID(id string) HealthOption {
	return func(h *HealthHandler) {
		h.instanceID = id
	}
}

// WithVersion sets the version reported in health responses.
func WithVersion(version string) HealthOption {
	return func(h *HealthHandler) {
		h.version = version
	}
}

// WithCheckTimeout bounds each check. Default: 2s.
func WithCheckTimeout(d time.Duration) HealthOption {
	return func(h *HealthHandler) {
		h.checkTimeout = d
	}
}

// NewHealthHandler creates a standalone HealthHandler. Servers should use
// WithHealth, which fills in the service and instance.
func NewHealthHandler(opts ...HealthOption) *HealthHandler {
	hostname, _ := os.Hostname()

	h := &HealthHandler{
		serviceName:     "unknown",
		version:         "0.0.0",
		startTime:       time.Now(),
		hostname:        hostname,
		checkTimeout:    2 * time.Second,
		livenessChecks:  make(map[string]*checkState),
		readinessChecks: make(map[string]*checkState),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddLivenessCheck adds a check to /livez. A failing liveness probe gets the
// process restarted, so only check the process itself here.
func (h *HealthHandler) AddLivenessCheck(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.livenessChecks[name] = &checkState{check: check}
}

// AddReadinessCheck adds a check to /readyz. A failing readiness probe takes
// the instance out of load balancer rotation without restarting it.
func (h *HealthHandler) AddReadinessCheck(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readinessChecks[name] = &checkState{check: check}
}

// PingHandler always answers 200 without running checks.
func (h *HealthHandler) PingHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteSuccess(w, http.StatusOK, PingResponse{Status: "pong"}, "")
	})
}

// LiveHandler answers 200 when every liveness check passes, 503 otherwise.
func (h *HealthHandler) LiveHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, h.livenessChecks)
	})
}

// ReadyHandler answers 200 when every readiness check passes, 503 otherwise.
func (h *HealthHandler) ReadyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, h.readinessChecks)
	})
}

// Register mounts /ping, /livez and /readyz on mux. Both http.ServeMux and
// chi routers satisfy the interface.
func (h *HealthHandler) Register(mux interface {
	Handle(pattern string, handler http.Handler)
}) {
	mux.Handle("/ping", h.PingHandler())
	mux.Handle("/livez", h.LiveHandler())
	mux.Handle("/readyz", h.ReadyHandler())
}

func (h *HealthHandler) serve(w http.ResponseWriter, r *http.Request, checks map[string]*checkState) {
	now := time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]CheckResult, len(checks))
	var failures []Error

	for _, name := range names {
		state := checks[name]

		ctx, cancel := context.WithTimeout(r.Context(), h.checkTimeout)
		start := time.Now()
		err := state.check(ctx)
		latency := time.Since(start)
		cancel()

		result := CheckResult{
			Status:      "ok",
			Latency:     latency.String(),
			LastChecked: now.Format(time.RFC3339),
		}
		if err != nil {
			state.consecutiveFailures++
			result.Status = "fail"
			result.Message = err.Error()
			result.ConsecutiveFailures = state.consecutiveFailures
			failures = append(failures, Error{Field: name, Message: err.Error()})
		} else {
			state.consecutiveFailures = 0
		}
		results[name] = result
	}

	data := HealthResponse{
		Status:    "ok",
		Service:   h.serviceName,
		Instance:  h.instanceID,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Hostname:  h.hostname,
		Timestamp: now.Format(time.RFC3339),
		Checks:    results,
	}
	statusCode, message := http.StatusOK, "all checks passed"
	if len(failures) > 0 {
		data.Status = "fail"
		statusCode, message = http.StatusServiceUnavailable, "one or more checks failed"
	}

	WriteJSON(w, statusCode, Response[HealthResponse]{
		Data:    data,
		Errors:  failures,
		Message: message,
	})
}
