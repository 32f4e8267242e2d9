package httpserver

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records per-request server metrics. Every series carries
// service.name and service.instance.id, so the latency of each member of a
// hedged fleet can be compared directly.
type Metrics struct {
	serviceName     string
	instanceID      string
	requestDuration metric.Float64Histogram
	responseSize    metric.Int64Histogram
	activeRequests  metric.Int64UpDownCounter
	requestTotal    metric.Int64Counter
	abandoned       metric.Int64Counter
}

// MetricsConfig configures the metrics middleware.
type MetricsConfig struct {
	// MeterProvider defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider

	// serviceName and instanceID are set by the server.
	serviceName string
	instanceID  string

	// DurationBuckets are histogram bounds in seconds.
	DurationBuckets []float64
}

// DefaultMetricsConfig returns buckets that resolve the millisecond range
// hedging is concerned with.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MeterProvider: otel.GetMeterProvider(),
		DurationBuckets: []float64{
			0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
		},
	}
}

// NewMetrics creates the server instruments.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = DefaultMetricsConfig().DurationBuckets
	}

	meter := cfg.MeterProvider.Meter(instrumentationName)
	m := &Metrics{serviceName: cfg.serviceName, instanceID: cfg.instanceID}

	var err error
	if m.requestDuration, err = meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(cfg.DurationBuckets...),
	); err != nil {
		return nil, err
	}
	if m.responseSize, err = meter.Int64Histogram(
		"http.server.response.size",
		metric.WithDescription("Size of HTTP response bodies in bytes"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if m.activeRequests, err = meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of in-flight HTTP requests"),
	); err != nil {
		return nil, err
	}
	if m.requestTotal, err = meter.Int64Counter(
		"http.server.request.total",
		metric.WithDescription("Total number of HTTP requests"),
	); err != nil {
		return nil, err
	}
	if m.abandoned, err = meter.Int64Counter(
		"http.server.request.abandoned",
		metric.WithDescription("Requests whose client disconnected before the response completed"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// Middleware records:
//   - http.server.request.duration
//   - http.server.response.size
//   - http.server.active_requests
//   - http.server.request.total
//   - http.server.request.abandoned (e.g. hedged losers cut off by their client)
func (m *Metrics) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			start := time.Now()

			base := metric.WithAttributes(
				attribute.String("service.name", m.serviceName),
				attribute.String("service.instance.id", m.instanceID),
				attribute.String("http.request.method", r.Method),
			)

			m.activeRequests.Add(ctx, 1, base)
			defer m.activeRequests.Add(ctx, -1, base)

			wrapped := wrapResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			attrs := metric.WithAttributes(
				attribute.String("service.name", m.serviceName),
				attribute.String("service.instance.id", m.instanceID),
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
				attribute.Int("http.response.status_code", wrapped.Status()),
			)
			m.requestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
			m.responseSize.Record(ctx, int64(wrapped.BytesWritten()), attrs)
			m.requestTotal.Add(ctx, 1, attrs)

			if ctx.Err() != nil {
				m.abandoned.Add(ctx, 1, base)
			}
		})
	}
}
