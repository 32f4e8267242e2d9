package httpclient

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the metric instruments for HTTP client operations.
type metrics struct {
	// === Candidate Request Metrics ===

	// requestDuration measures the duration of each candidate request in seconds.
	requestDuration metric.Float64Histogram

	// requestBodySize measures the size of request bodies in bytes.
	requestBodySize metric.Int64Histogram

	// responseBodySize measures the size of response bodies in bytes.
	responseBodySize metric.Int64Histogram

	// activeRequests tracks the number of in-flight candidate requests,
	// including hedge losers still running in the background.
	activeRequests metric.Int64UpDownCounter

	// requestErrors counts request errors by error type.
	requestErrors metric.Int64Counter

	// === Hedge Metrics ===

	// hedgeCandidates records how many distinct candidates each dispatch launched.
	hedgeCandidates metric.Int64Histogram

	// hedgeProbes records how many selector calls each dispatch made.
	hedgeProbes metric.Int64Histogram

	// hedgeWins counts race winners by instance and outcome.
	hedgeWins metric.Int64Counter

	// hedgePreconditionFailures counts dispatches rejected because the
	// fleet was smaller than the hedge factor.
	hedgePreconditionFailures metric.Int64Counter

	// hedgeDuration measures the time from dispatch to the winning result.
	hedgeDuration metric.Float64Histogram

	// === Retry Metrics ===

	retryAttempts  metric.Int64Counter
	retryExhausted metric.Int64Counter
	retryDuration  metric.Float64Histogram

	// === Circuit Breaker Metrics ===

	// breakerState reports the state of each per-instance breaker
	// (0 closed, 1 half-open, 2 open).
	breakerState metric.Int64Gauge

	// breakerRequests counts breaker decisions by result.
	breakerRequests metric.Int64Counter
}

// newMetrics creates and registers metric instruments.
func newMetrics(meter metric.Meter) (*metrics, error) {
	m := &metrics{}
	var err error

	// Request duration histogram with OTel semconv recommended buckets
	m.requestDuration, err = meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Duration of HTTP client requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10,
		),
	)
	if err != nil {
		return nil, err
	}

	m.requestBodySize, err = meter.Int64Histogram(
		"http.client.request.body.size",
		metric.WithDescription("Size of HTTP client request bodies in bytes"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(
			0, 100, 1024, 10*1024, 100*1024, 1024*1024, 10*1024*1024,
		),
	)
	if err != nil {
		return nil, err
	}

	m.responseBodySize, err = meter.Int64Histogram(
		"http.client.response.body.size",
		metric.WithDescription("Size of HTTP client response bodies in bytes"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(
			0, 100, 1024, 10*1024, 100*1024, 1024*1024, 10*1024*1024,
		),
	)
	if err != nil {
		return nil, err
	}

	m.activeRequests, err = meter.Int64UpDownCounter(
		"http.client.active_requests",
		metric.WithDescription("Number of active HTTP client requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.requestErrors, err = meter.Int64Counter(
		"http.client.request.error",
		metric.WithDescription("Number of HTTP client request errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	m.hedgeCandidates, err = meter.Int64Histogram(
		"http.client.hedge.candidates",
		metric.WithDescription("Number of distinct candidates launched per hedged dispatch"),
		metric.WithUnit("{candidate}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 3, 4, 5, 8),
	)
	if err != nil {
		return nil, err
	}

	m.hedgeProbes, err = meter.Int64Histogram(
		"http.client.hedge.probes",
		metric.WithDescription("Number of selector calls per hedged dispatch"),
		metric.WithUnit("{probe}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 4, 6, 8, 16),
	)
	if err != nil {
		return nil, err
	}

	m.hedgeWins, err = meter.Int64Counter(
		"http.client.hedge.wins",
		metric.WithDescription("Number of hedge races won, by instance and outcome"),
		metric.WithUnit("{win}"),
	)
	if err != nil {
		return nil, err
	}

	m.hedgePreconditionFailures, err = meter.Int64Counter(
		"http.client.hedge.precondition_failures",
		metric.WithDescription("Number of dispatches rejected because too few instances were live"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		return nil, err
	}

	m.hedgeDuration, err = meter.Float64Histogram(
		"http.client.hedge.duration",
		metric.WithDescription("Time from dispatch to the first terminal candidate result in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10,
		),
	)
	if err != nil {
		return nil, err
	}

	m.retryAttempts, err = meter.Int64Counter(
		"http.client.retry.attempts",
		metric.WithDescription("Number of HTTP client retry attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	m.retryExhausted, err = meter.Int64Counter(
		"http.client.retry.exhausted",
		metric.WithDescription("Number of requests that exhausted all retries"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.retryDuration, err = meter.Float64Histogram(
		"http.client.retry.duration",
		metric.WithDescription("Total time spent in retry loop in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
		),
	)
	if err != nil {
		return nil, err
	}

	m.breakerState, err = meter.Int64Gauge(
		"http.client.breaker.state",
		metric.WithDescription("Circuit breaker state per instance (0 closed, 1 half-open, 2 open)"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return nil, err
	}

	m.breakerRequests, err = meter.Int64Counter(
		"http.client.breaker.requests",
		metric.WithDescription("Number of requests seen by circuit breakers, by result"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func withAttr(attrs []attribute.KeyValue, extra ...attribute.KeyValue) []attribute.KeyValue {
	all := make([]attribute.KeyValue, 0, len(attrs)+len(extra))
	all = append(all, attrs...)
	return append(all, extra...)
}

// recordRequestDuration records the duration of an HTTP request.
func (m *metrics) recordRequestDuration(
	ctx context.Context,
	duration time.Duration,
	attrs []attribute.KeyValue,
) {
	if m == nil || m.requestDuration == nil {
		return
	}
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// recordRequestBodySize records the size of a request body.
func (m *metrics) recordRequestBodySize(ctx context.Context, size int64, attrs []attribute.KeyValue) {
	if m == nil || m.requestBodySize == nil {
		return
	}
	m.requestBodySize.Record(ctx, size, metric.WithAttributes(attrs...))
}

// recordResponseBodySize records the size of a response body.
func (m *metrics) recordResponseBodySize(ctx context.Context, size int64, attrs []attribute.KeyValue) {
	if m == nil || m.responseBodySize == nil {
		return
	}
	m.responseBodySize.Record(ctx, size, metric.WithAttributes(attrs...))
}

// recordActiveRequestStart records a request starting.
func (m *metrics) recordActiveRequestStart(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil || m.activeRequests == nil {
		return
	}
	m.activeRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// recordActiveRequestEnd records a request completing.
func (m *metrics) recordActiveRequestEnd(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil || m.activeRequests == nil {
		return
	}
	m.activeRequests.Add(ctx, -1, metric.WithAttributes(attrs...))
}

// recordError records a request error.
func (m *metrics) recordError(ctx context.Context, errorType string, attrs []attribute.KeyValue) {
	if m == nil || m.requestErrors == nil {
		return
	}
	m.requestErrors.Add(ctx, 1, metric.WithAttributes(
		withAttr(attrs, attribute.String("error.type", errorType))...,
	))
}

// recordHedgeSelection records the outcome of the selection loop.
func (m *metrics) recordHedgeSelection(ctx context.Context, candidates, probes int, attrs []attribute.KeyValue) {
	if m == nil || m.hedgeCandidates == nil || m.hedgeProbes == nil {
		return
	}
	m.hedgeCandidates.Record(ctx, int64(candidates), metric.WithAttributes(attrs...))
	m.hedgeProbes.Record(ctx, int64(probes), metric.WithAttributes(attrs...))
}

// recordHedgeWin records the race winner.
func (m *metrics) recordHedgeWin(
	ctx context.Context,
	instance string,
	outcome string,
	duration time.Duration,
	attrs []attribute.KeyValue,
) {
	if m == nil || m.hedgeWins == nil || m.hedgeDuration == nil {
		return
	}
	m.hedgeWins.Add(ctx, 1, metric.WithAttributes(withAttr(attrs,
		attribute.String("hedge.instance", instance),
		attribute.String("hedge.outcome", outcome),
	)...))
	m.hedgeDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		withAttr(attrs, attribute.String("hedge.outcome", outcome))...,
	))
}

// recordHedgePreconditionFailure records a dispatch rejected before sending.
func (m *metrics) recordHedgePreconditionFailure(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil || m.hedgePreconditionFailures == nil {
		return
	}
	m.hedgePreconditionFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// recordRetryAttempt records a retry attempt.
func (m *metrics) recordRetryAttempt(ctx context.Context, attrs []attribute.KeyValue, attempt int) {
	if m == nil || m.retryAttempts == nil {
		return
	}
	m.retryAttempts.Add(ctx, 1, metric.WithAttributes(
		withAttr(attrs, attribute.Int("retry.attempt", attempt))...,
	))
}

// recordRetryExhausted records when all retries have been exhausted.
func (m *metrics) recordRetryExhausted(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil || m.retryExhausted == nil {
		return
	}
	m.retryExhausted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// recordRetryDuration records the total time spent in a retry loop.
func (m *metrics) recordRetryDuration(ctx context.Context, attrs []attribute.KeyValue, duration time.Duration) {
	if m == nil || m.retryDuration == nil {
		return
	}
	m.retryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// recordBreakerState records the current state of a named breaker.
func (m *metrics) recordBreakerState(ctx context.Context, name string, state int64) {
	if m == nil || m.breakerState == nil {
		return
	}
	m.breakerState.Record(ctx, state, metric.WithAttributes(attribute.String("breaker.name", name)))
}

// recordBreakerRequest records a breaker decision: success, failure or rejected.
func (m *metrics) recordBreakerRequest(ctx context.Context, name, result string) {
	if m == nil || m.breakerRequests == nil {
		return
	}
	m.breakerRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker.name", name),
		attribute.String("breaker.result", result),
	))
}
