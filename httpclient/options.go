package httpclient

import (
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/kroma-labs/sentinel-hedge/discovery"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	// scope is the instrumentation scope name for OpenTelemetry.
	scope = "github.com/kroma-labs/sentinel-hedge/httpclient"
)

// =============================================================================
// Config - HTTP Transport Configuration
// =============================================================================

// Config holds the HTTP transport configuration parameters.
// Use DefaultConfig() to get a properly initialized configuration,
// then modify specific fields as needed.
type Config struct {
	// Timeout limits the whole logical call, including the hedge race and
	// reading the winning response body. Zero means no timeout.
	//
	// Default: 15s
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle (keep-alive)
	// connections across all instances combined.
	//
	// Default: 100
	MaxIdleConns int

	// MaxIdleConnsPerHost controls idle connections kept per instance.
	// Hedging spreads calls over more instances, so this can stay low.
	//
	// Default: 20
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits idle + active connections per instance.
	// A value of 0 means unlimited.
	//
	// Default: 100
	MaxConnsPerHost int

	// IdleConnTimeout is how long an idle connection remains in the pool.
	//
	// Default: 90s
	IdleConnTimeout time.Duration

	// TLSHandshakeTimeout is the maximum time to wait for a TLS handshake.
	//
	// Default: 10s
	TLSHandshakeTimeout time.Duration

	// ResponseHeaderTimeout is the time to wait for response headers after
	// the request is written. Zero disables it.
	//
	// Default: 0
	ResponseHeaderTimeout time.Duration

	// ExpectContinueTimeout is how long to wait for "100 Continue".
	//
	// Default: 1s
	ExpectContinueTimeout time.Duration

	// DialTimeout is the maximum time to establish a TCP connection. A dead
	// instance should fail fast so that it loses the race quickly.
	//
	// Default: 5s
	DialTimeout time.Duration

	// KeepAlive is the TCP keep-alive probe interval.
	//
	// Default: 30s
	KeepAlive time.Duration

	// ForceHTTP2 enables HTTP/2 when a custom dialer is used.
	//
	// Default: true
	ForceHTTP2 bool
}

// DefaultConfig returns a balanced configuration suitable for most use cases.
func DefaultConfig() Config {
	return Config{
		Timeout:               15 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 0,
		ExpectContinueTimeout: 1 * time.Second,
		DialTimeout:           5 * time.Second,
		KeepAlive:             30 * time.Second,
		ForceHTTP2:            true,
	}
}

// LowLatencyConfig returns a configuration optimized for latency-sensitive
// hedged calls.
//
// Key differences from DefaultConfig:
//   - Timeout: 5s
//   - DialTimeout: 1s
//   - ResponseHeaderTimeout: 2s
//   - MaxIdleConnsPerHost: 50
func LowLatencyConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 5 * time.Second
	cfg.DialTimeout = 1 * time.Second
	cfg.TLSHandshakeTimeout = 3 * time.Second
	cfg.ResponseHeaderTimeout = 2 * time.Second
	cfg.MaxIdleConnsPerHost = 50
	return cfg
}

// =============================================================================
// Internal Configuration
// =============================================================================

// internalConfig holds all configuration including HTTP transport and OTel settings.
type internalConfig struct {
	// HTTP transport configuration
	httpConfig Config

	// === OpenTelemetry Configuration ===

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	Metrics        *metrics
	Propagators    propagation.TextMapPropagator

	// ServiceName identifies the HTTP client in traces, metrics and breaker
	// names. Added as "http.client.name" attribute.
	ServiceName string

	// === Logging ===

	// Logger receives the hedge winner records. Default: disabled.
	Logger zerolog.Logger

	// Debug logs every request and response built by the fluent API.
	Debug bool

	// === Request Defaults ===

	BaseURL        string
	DefaultHeaders http.Header

	// === Hedging ===

	Resolver    discovery.Resolver
	Selector    discovery.Selector
	HedgeConfig HedgeConfig

	// === Resilience ===

	RetryConfig     RetryConfig
	RetryClassifier RetryClassifier
	RetryBackOff    backoff.BackOff
	BreakerConfig   *BreakerConfig
	RateLimit       RateLimitConfig

	// BaseTransport replaces the transport built from httpConfig.
	BaseTransport http.RoundTripper
}

// newConfig creates a new internal config with defaults and applies options.
func newConfig(opts ...Option) *internalConfig {
	cfg := &internalConfig{
		httpConfig:     DefaultConfig(),
		TracerProvider: otel.GetTracerProvider(),
		MeterProvider:  otel.GetMeterProvider(),
		Propagators: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
		Logger:         zerolog.Nop(),
		DefaultHeaders: make(http.Header),
		HedgeConfig:    DefaultHedgeConfig(),
		RetryConfig:    NoRetryConfig(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	// Initialize tracer and meter after options are applied
	cfg.Tracer = cfg.TracerProvider.Tracer(scope)
	cfg.Meter = cfg.MeterProvider.Meter(scope)

	// Initialize metrics (ignore errors, will just be nil if fails)
	cfg.Metrics, _ = newMetrics(cfg.Meter)

	return cfg
}

// buildTransport creates the base RoundTripper from the configuration.
func (cfg *internalConfig) buildTransport() http.RoundTripper {
	if cfg.BaseTransport != nil {
		return cfg.BaseTransport
	}

	hc := cfg.httpConfig
	dialer := &net.Dialer{
		Timeout:   hc.DialTimeout,
		KeepAlive: hc.KeepAlive,
	}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          hc.MaxIdleConns,
		MaxIdleConnsPerHost:   hc.MaxIdleConnsPerHost,
		MaxConnsPerHost:       hc.MaxConnsPerHost,
		IdleConnTimeout:       hc.IdleConnTimeout,
		TLSHandshakeTimeout:   hc.TLSHandshakeTimeout,
		ResponseHeaderTimeout: hc.ResponseHeaderTimeout,
		ExpectContinueTimeout: hc.ExpectContinueTimeout,
		ForceAttemptHTTP2:     hc.ForceHTTP2,
	}
}

// baseAttributes returns common attributes for all spans and metrics.
func (cfg *internalConfig) baseAttributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 1)
	if cfg.ServiceName != "" {
		attrs = append(attrs, attribute.String("http.client.name", cfg.ServiceName))
	}
	return attrs
}

// =============================================================================
// Options - Functional Options for Client Configuration
// =============================================================================

// Option configures the HTTP client.
type Option func(*internalConfig)

// WithConfig sets the HTTP transport configuration.
//
// Example:
//
//	client := httpclient.New(
//	    httpclient.WithConfig(httpclient.LowLatencyConfig()),
//	)
func WithConfig(c Config) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig = c
	}
}

// WithServiceName sets an identifier for this HTTP client in traces,
// metrics and circuit breaker names.
func WithServiceName(name string) Option {
	return func(cfg *internalConfig) {
		cfg.ServiceName = name
	}
}

// WithTracerProvider sets a custom OpenTelemetry TracerProvider.
// If not called, the global provider from otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *internalConfig) {
		if tp != nil {
			cfg.TracerProvider = tp
		}
	}
}

// WithMeterProvider sets a custom OpenTelemetry MeterProvider.
// If not called, the global provider from otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *internalConfig) {
		if mp != nil {
			cfg.MeterProvider = mp
		}
	}
}

// WithPropagators overrides the default W3C TraceContext + Baggage propagators.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *internalConfig) {
		if p != nil {
			cfg.Propagators = p
		}
	}
}

// WithLogger sets the logger used for hedge winner records.
//
// Example:
//
//	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
//	client := httpclient.New(httpclient.WithLogger(logger))
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *internalConfig) {
		cfg.Logger = logger
	}
}

// WithDebug enables request/response debug logging for the fluent API.
func WithDebug(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.Debug = enabled
	}
}

// WithBaseURL sets the URL that request paths are resolved against.
// For hedged clients the host is the logical service id:
//
//	httpclient.WithBaseURL("http://orders")
func WithBaseURL(baseURL string) Option {
	return func(cfg *internalConfig) {
		cfg.BaseURL = baseURL
	}
}

// WithDefaultHeader adds a header sent with every request built by the
// fluent API.
func WithDefaultHeader(key, value string) Option {
	return func(cfg *internalConfig) {
		cfg.DefaultHeaders.Add(key, value)
	}
}

// WithDiscovery enables hedged dispatch. The host of every request is treated
// as a service id, resolved through resolver and balanced through selector.
func WithDiscovery(resolver discovery.Resolver, selector discovery.Selector) Option {
	return func(cfg *internalConfig) {
		cfg.Resolver = resolver
		cfg.Selector = selector
	}
}

// WithHedge sets the default hedge configuration. Individual requests can
// override it with RequestBuilder.Hedge or ContextWithHedgeConfig.
func WithHedge(h HedgeConfig) Option {
	return func(cfg *internalConfig) {
		cfg.HedgeConfig = h
	}
}

// WithRetryConfig enables per-candidate retries.
//
// Retries happen below the hedge race, inside one candidate: a retried
// candidate reports its result later, so a healthy sibling usually wins
// first. Retries are disabled by default.
func WithRetryConfig(rc RetryConfig) Option {
	return func(cfg *internalConfig) {
		cfg.RetryConfig = rc
	}
}

// WithRetryDisabled turns per-candidate retries off.
func WithRetryDisabled() Option {
	return func(cfg *internalConfig) {
		cfg.RetryConfig = NoRetryConfig()
	}
}

// WithRetryClassifier sets the function deciding which candidate results
// are retried. Default: DefaultClassifier.
func WithRetryClassifier(c RetryClassifier) Option {
	return func(cfg *internalConfig) {
		cfg.RetryClassifier = c
	}
}

// WithRetryBackOff replaces the exponential backoff built from RetryConfig.
// The same instance serves every candidate, so b must be stateless
// (backoff.ConstantBackOff, backoff.ZeroBackOff) or safe for concurrent use.
func WithRetryBackOff(b backoff.BackOff) Option {
	return func(cfg *internalConfig) {
		cfg.RetryBackOff = b
	}
}

// WithBreaker enables a circuit breaker per backend instance.
//
// Example:
//
//	client := httpclient.New(
//	    httpclient.WithBreaker(httpclient.DefaultBreakerConfig()),
//	)
func WithBreaker(bc BreakerConfig) Option {
	return func(cfg *internalConfig) {
		cfg.BreakerConfig = &bc
	}
}

// WithRateLimit limits logical calls per service before they are hedged.
// One logical call consumes one token however many candidates it fans out to.
func WithRateLimit(rl RateLimitConfig) Option {
	return func(cfg *internalConfig) {
		cfg.RateLimit = rl
	}
}

// WithBaseTransport replaces the transport built from Config. Use it for
// tests (see MockTransport) or custom dialing.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(cfg *internalConfig) {
		cfg.BaseTransport = rt
	}
}
