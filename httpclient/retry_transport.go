package httpclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// retryTransport wraps an http.RoundTripper with retry logic.
type retryTransport struct {
	base       http.RoundTripper
	cfg        *internalConfig
	classifier RetryClassifier
}

// statusError marks a response whose status code the classifier wants retried.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("retryable status %d", e.code)
}

// newRetryTransport creates a new retry transport wrapper.
func newRetryTransport(base http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	if !cfg.RetryConfig.IsEnabled() {
		return base
	}

	classifier := cfg.RetryClassifier
	if classifier == nil {
		classifier = DefaultClassifier
	}

	return &retryTransport{
		base:       base,
		cfg:        cfg,
		classifier: classifier,
	}
}

// RoundTrip implements http.RoundTripper with automatic retries.
//
// When the last attempt still yields a retryable status, that response is
// returned as is so the caller sees what the instance answered.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	rc := t.cfg.RetryConfig
	span := trace.SpanFromContext(ctx)
	attrs := t.cfg.baseAttributes()
	start := time.Now()

	opts := []backoff.RetryOption{
		backoff.WithBackOff(t.backOff()),
		backoff.WithMaxTries(rc.MaxRetries + 1),
	}
	if rc.MaxElapsedTime > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(rc.MaxElapsedTime))
	}

	attempt := 0
	opts = append(opts, backoff.WithNotify(func(err error, next time.Duration) {
		attempt++
		t.recordRetryEvent(span, attempt, err, next)
		t.cfg.Metrics.recordRetryAttempt(ctx, attrs, attempt)
	}))

	var last *http.Response
	tries := 0
	resp, err := backoff.Retry(ctx, func() (*http.Response, error) {
		if last != nil {
			discard(last)
			last = nil
		}

		tries++
		clone, err := cloneForAttempt(req, tries == 1)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		resp, err := t.base.RoundTrip(clone)
		if !t.classifier(resp, err) {
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			return resp, nil
		}

		if err != nil {
			return nil, err
		}
		last = resp
		return nil, &statusError{code: resp.StatusCode}
	}, opts...)

	t.cfg.Metrics.recordRetryDuration(ctx, attrs, time.Since(start))
	if attempt > 0 {
		span.SetAttributes(
			attribute.Int("http.retry_count", attempt),
			attribute.Bool("http.retry_success", err == nil),
		)
		if err != nil {
			t.cfg.Metrics.recordRetryExhausted(ctx, attrs)
		}
	}

	var se *statusError
	if errors.As(err, &se) && last != nil {
		return last, nil
	}
	if last != nil {
		discard(last)
	}
	return resp, err
}

// backOff returns the configured backoff strategy.
func (t *retryTransport) backOff() backoff.BackOff {
	if t.cfg.RetryBackOff != nil {
		t.cfg.RetryBackOff.Reset()
		return t.cfg.RetryBackOff
	}
	return ExponentialBackOffFromConfig(t.cfg.RetryConfig)
}

// recordRetryEvent adds a span event for the retry attempt.
func (t *retryTransport) recordRetryEvent(span trace.Span, attempt int, err error, next time.Duration) {
	if !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Int("retry.attempt", attempt),
		attribute.Int64("retry.delay_ms", next.Milliseconds()),
	}
	if err != nil {
		attrs = append(attrs, attribute.String("retry.reason", retryReason(err)))
	}
	span.AddEvent("http.retry", trace.WithAttributes(attrs...))
}

func retryReason(err error) string {
	var se *statusError
	switch {
	case errors.As(err, &se):
		return errorTypeFromStatusCode(se.code)
	case isRetryableNetworkError(err):
		return "network_error"
	default:
		return classifyError(err)
	}
}

// cloneForAttempt returns a copy of req with a fresh body. Bodies without
// GetBody can only be sent once.
func cloneForAttempt(req *http.Request, first bool) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		if first {
			return clone, nil
		}
		return nil, errors.New("httpclient: cannot retry request without GetBody")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}

// discard drains and closes a response that will not be returned.
func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
