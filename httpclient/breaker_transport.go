package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/sony/gobreaker/v2"
)

// Compile-time interface check.
var _ http.RoundTripper = (*circuitBreakerTransport)(nil)

// circuitBreakerTransport keeps one circuit breaker per backend instance.
// The instance comes from the candidate context (see InstanceFromContext);
// requests sent without a dispatcher are keyed by URL host.
type circuitBreakerTransport struct {
	next       http.RoundTripper
	cfg        *internalConfig
	classifier BreakerClassifier

	mu       sync.Mutex
	breakers map[string]CircuitBreaker

	// newBreaker is swapped in tests.
	newBreaker func(name string) CircuitBreaker
}

// errSyntheticFailure tells the breaker that a response counts as a failure
// even though RoundTrip returned no error. It never reaches the caller.
var errSyntheticFailure = errors.New("synthetic failure")

// newCircuitBreakerTransport creates a new circuit breaker transport.
func newCircuitBreakerTransport(next http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	if cfg.BreakerConfig == nil {
		return next
	}

	classifier := cfg.BreakerConfig.Classifier
	if classifier == nil {
		classifier = DefaultBreakerClassifier
	}

	t := &circuitBreakerTransport{
		next:       next,
		cfg:        cfg,
		classifier: classifier,
		breakers:   make(map[string]CircuitBreaker),
	}
	t.newBreaker = t.gobreaker
	return t
}

// RoundTrip implements http.RoundTripper.
func (t *circuitBreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	name := t.breakerName(req)
	cb := t.breaker(name)

	res, err := cb.Execute(func() (any, error) {
		resp, err := t.next.RoundTrip(req) //nolint:bodyclose // returned to the caller
		if t.classifier(resp, err) {
			if err != nil {
				return resp, err
			}
			return resp, errSyntheticFailure
		}
		return resp, err
	})

	switch {
	case err == nil:
		t.cfg.Metrics.recordBreakerRequest(ctx, name, "success")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		t.cfg.Metrics.recordBreakerRequest(ctx, name, "rejected")
		return nil, fmt.Errorf("httpclient: breaker %s: %w", name, err)
	default:
		t.cfg.Metrics.recordBreakerRequest(ctx, name, "failure")
	}

	resp, _ := res.(*http.Response)
	if errors.Is(err, errSyntheticFailure) {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("httpclient: circuit breaker returned no response")
	}
	return resp, nil
}

// breakerName returns "<client>/<instance>" for the request target.
func (t *circuitBreakerTransport) breakerName(req *http.Request) string {
	key := req.URL.Host
	if inst, ok := InstanceFromContext(req.Context()); ok {
		key = inst.ServiceID + "/" + inst.InstanceID
	}

	prefix := t.cfg.ServiceName
	if prefix == "" {
		prefix = "httpclient"
	}
	return prefix + "/" + key
}

// breaker returns the breaker for name, creating it on first use.
func (t *circuitBreakerTransport) breaker(name string) CircuitBreaker {
	t.mu.Lock()
	defer t.mu.Unlock()

	cb, ok := t.breakers[name]
	if !ok {
		cb = t.newBreaker(name)
		t.breakers[name] = cb
	}
	return cb
}

// gobreaker builds a gobreaker breaker for name from the client config.
func (t *circuitBreakerTransport) gobreaker(name string) CircuitBreaker {
	bc := *t.cfg.BreakerConfig

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: bc.readyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			t.cfg.Metrics.recordBreakerState(context.Background(), name, int64(to))
			t.cfg.Logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("httpclient: circuit breaker state changed")
			if bc.OnStateChange != nil {
				bc.OnStateChange(name, from, to)
			}
		},
	}

	if bc.Store != nil {
		dcb, err := gobreaker.NewDistributedCircuitBreaker[any](bc.Store, st)
		if err == nil {
			return dcb
		}
		// A local breaker still protects this process.
		t.cfg.Logger.Warn().Err(err).Str("breaker", name).
			Msg("httpclient: distributed breaker unavailable, using local state")
	}

	return gobreaker.NewCircuitBreaker[any](st)
}
