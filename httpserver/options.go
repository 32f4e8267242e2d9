package httpserver

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Option configures the server.
type Option func(*Config)

// WithConfig replaces the whole configuration. Apply it before other
// options, which then override individual fields:
//
//	server := httpserver.New(
//	    httpserver.WithConfig(httpserver.ProductionConfig()),
//	    httpserver.WithServiceName("orders"),
//	    httpserver.WithHandler(router),
//	)
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithServiceName sets the logical service id. It is the single source of
// service identity: tracing, metrics, request logs, health responses and
// the registry entry all use it.
func WithServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

// WithInstanceID sets the id this process registers under. Without it a
// random UUID is used.
func WithInstanceID(id string) Option {
	return func(c *Config) {
		c.InstanceID = id
	}
}

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(c *Config) {
		c.Addr = addr
	}
}

// WithHandler sets the HTTP handler. Required.
func WithHandler(h http.Handler) Option {
	return func(c *Config) {
		c.Handler = h
	}
}

// WithLogger sets the logger for lifecycle events. Request logging is
// configured separately with WithLogging.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMiddleware appends middleware. The first one given is the outermost
// of the user middleware; built-in middleware always wraps them.
func WithMiddleware(ms ...Middleware) Option {
	return func(c *Config) {
		c.Middleware = append(c.Middleware, ms...)
	}
}

// WithTracing enables server spans. ServiceName and InstanceID are applied
// automatically.
//
//	httpserver.WithTracing(httpserver.TracingConfig{
//	    SkipPaths: []string{"/livez", "/readyz", "/metrics"},
//	})
func WithTracing(cfg TracingConfig) Option {
	return func(c *Config) {
		c.TracingConfig = &cfg
	}
}

// WithMetrics enables request metrics. ServiceName and InstanceID are
// applied automatically.
func WithMetrics(cfg MetricsConfig) Option {
	return func(c *Config) {
		c.MetricsConfig = &cfg
	}
}

// WithLogging enables one log line per request.
//
//	httpserver.WithLogging(httpserver.LoggerConfig{
//	    Logger:    logger,
//	    SkipPaths: []string{"/livez", "/readyz", "/metrics"},
//	})
func WithLogging(cfg LoggerConfig) Option {
	return func(c *Config) {
		c.LoggerConfig = &cfg
	}
}

// WithHealth creates a HealthHandler for the server and stores it in
// handler. When registration is enabled and the registrar can also list
// instances, a "registry" readiness check is added.
//
//	var health *httpserver.HealthHandler
//	server := httpserver.New(
//	    httpserver.WithServiceName("orders"),
//	    httpserver.WithHealth(&health, "1.0.0"),
//	    httpserver.WithHandler(router),
//	)
//	router.Handle("/livez", health.LiveHandler())
//	router.Handle("/readyz", health.ReadyHandler())
func WithHealth(handler **HealthHandler, version string) Option {
	return func(c *Config) {
		c.HealthVersion = version
		c.HealthHandler = handler
	}
}

// WithRateLimit sheds load above the given rate with 429 responses, which
// hedging clients see as a failed candidate.
func WithRateLimit(cfg RateLimitConfig) Option {
	return func(c *Config) {
		c.RateLimitConfig = &cfg
	}
}

// WithRequestTimeout answers 503 to requests whose handler runs longer
// than d.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.RequestTimeout = d
	}
}

// WithRegistration advertises the server in a discovery registry while it
// runs.
//
//	registry := discovery.NewRedisRegistry(rdb)
//	server := httpserver.New(
//	    httpserver.WithServiceName("orders"),
//	    httpserver.WithRegistration(httpserver.RegistrationConfig{
//	        Registrar:     registry,
//	        AdvertiseHost: "10.0.0.7",
//	    }),
//	    httpserver.WithHandler(router),
//	)
func WithRegistration(cfg RegistrationConfig) Option {
	return func(c *Config) {
		c.Registration = &cfg
	}
}
