package httpserver

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Config holds the settings of one backend instance server.
//
// Start from DefaultConfig, ProductionConfig or DevelopmentConfig and
// override what differs:
//
//	cfg := httpserver.DefaultConfig()
//	cfg.Addr = ":9090"
//	cfg.ShutdownTimeout = 15 * time.Second
//
//	server := httpserver.New(
//	    httpserver.WithConfig(cfg),
//	    httpserver.WithHandler(router),
//	)
type Config struct {
	// Addr is the TCP address to listen on (default: ":8080").
	// Use ":0" to let the OS pick a port; the bound address is
	// advertised to the registry.
	Addr string

	// ServiceName is the logical service id this server answers for, the
	// same value clients use as URL host (e.g. "orders").
	// Default: "sentinel-hedge"
	ServiceName string

	// InstanceID identifies this process within its service. When empty and
	// registration is enabled, a random UUID is assigned.
	InstanceID string

	// ReadTimeout bounds reading the entire request including the body.
	// Zero means no timeout.
	ReadTimeout time.Duration

	// ReadHeaderTimeout bounds reading the request headers. If zero,
	// ReadTimeout is used.
	ReadHeaderTimeout time.Duration

	// WriteTimeout bounds writing the response. Zero means no timeout.
	WriteTimeout time.Duration

	// IdleTimeout bounds keep-alive idle time. If zero, ReadTimeout is used.
	IdleTimeout time.Duration

	// MaxHeaderBytes caps the size of request headers.
	MaxHeaderBytes int

	// TLSConfig enables HTTPS when set.
	TLSConfig *tls.Config

	// Logger receives lifecycle events (start, registration, shutdown).
	Logger zerolog.Logger

	// Middleware wraps Handler after the built-in middleware.
	Middleware []Middleware

	// Handler serves requests. Required.
	Handler http.Handler

	// ShutdownTimeout bounds the wait for in-flight requests once shutdown
	// starts. The instance is deregistered before draining so that hedging
	// clients stop selecting it.
	ShutdownTimeout time.Duration

	// DeregisterDelay is how long the server keeps serving after it has left
	// the registry, giving clients with cached instance lists time to notice.
	DeregisterDelay time.Duration

	TracingConfig   *TracingConfig
	MetricsConfig   *MetricsConfig
	LoggerConfig    *LoggerConfig
	RateLimitConfig *RateLimitConfig

	// RequestTimeout, when positive, installs the Timeout middleware.
	RequestTimeout time.Duration

	// Registration advertises the server in a discovery registry while it
	// is running.
	Registration *RegistrationConfig

	// HealthHandler is populated by WithHealth.
	HealthHandler **HealthHandler
	HealthVersion string
}

// DefaultConfig returns timeouts suited to most services.
//
//   - ReadTimeout: 15s
//   - WriteTimeout: 15s
//   - IdleTimeout: 60s
//   - ShutdownTimeout: 10s
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		ServiceName:       "sentinel-hedge",
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ShutdownTimeout:   10 * time.Second,
		DeregisterDelay:   time.Second,
	}
}

// ProductionConfig returns tighter timeouts for Kubernetes deployments.
//
// ShutdownTimeout (25s) plus DeregisterDelay (2s) stays inside the default
// 30s terminationGracePeriodSeconds.
func ProductionConfig() Config {
	return Config{
		Addr:              ":8080",
		ServiceName:       "sentinel-hedge",
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ShutdownTimeout:   25 * time.Second,
		DeregisterDelay:   2 * time.Second,
	}
}

// DevelopmentConfig disables request timeouts so handlers can be debugged
// with breakpoints, and shuts down quickly. Do not use in production.
func DevelopmentConfig() Config {
	return Config{
		Addr:            ":8080",
		ServiceName:     "sentinel-hedge",
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 3 * time.Second,
	}
}
