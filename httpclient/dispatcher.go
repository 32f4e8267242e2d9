package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kroma-labs/sentinel-hedge/discovery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Dispatcher races one logical request across several distinct instances of
// a service and returns the first result to complete.
//
// The logical request's URL host is the service id ("http://orders/orders/42").
// Dispatch resolves the live instances, picks distinct ones through the
// selector, sends a clone of the request to each through the candidate
// transport and hands back whichever finishes first, success or failure.
// The remaining candidates run to completion in the background; their
// responses are closed and dropped.
//
// Dispatcher holds no per-call state and is safe for concurrent use.
type Dispatcher struct {
	resolver  discovery.Resolver
	selector  discovery.Selector
	candidate http.RoundTripper
	cfg       *internalConfig
}

// NewDispatcher creates a Dispatcher sending candidates through next.
// Only the observability options (WithServiceName, WithLogger,
// WithTracerProvider, WithMeterProvider) are used.
//
// Example:
//
//	reg := discovery.NewRegistry(instances...)
//	d := httpclient.NewDispatcher(reg, discovery.NewBalancer(reg, nil), http.DefaultTransport)
//	resp, err := d.Dispatch(req, httpclient.Hedge(2))
func NewDispatcher(
	resolver discovery.Resolver,
	selector discovery.Selector,
	next http.RoundTripper,
	opts ...Option,
) *Dispatcher {
	return newDispatcher(resolver, selector, next, newConfig(opts...))
}

func newDispatcher(
	resolver discovery.Resolver,
	selector discovery.Selector,
	next http.RoundTripper,
	cfg *internalConfig,
) *Dispatcher {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Dispatcher{
		resolver:  resolver,
		selector:  selector,
		candidate: next,
		cfg:       cfg,
	}
}

// candidate is one concrete request of a dispatch.
type candidate struct {
	instance discovery.Instance
	url      string
	req      *http.Request
}

type candidateResult struct {
	candidate *candidate
	resp      *http.Response
	err       error
}

// Dispatch sends req to up to cfg.Attempts distinct instances and returns
// the first terminal result.
//
// Errors:
//   - *PreconditionError when fewer than cfg.Attempts instances are live;
//     nothing is sent.
//   - ErrEmptyCandidateSet when selection produced no candidate.
//   - *CandidateError when the first candidate to finish failed.
//
// A non-2xx response from the winner is returned as a response, not an
// error. The caller's request keeps its URL, headers and a readable body;
// the body is read once and replayed to every candidate. A body without
// GetBody is replaced on req by an equivalent replayable reader.
func (d *Dispatcher) Dispatch(req *http.Request, cfg HedgeConfig) (*http.Response, error) {
	start := time.Now()
	serviceID := req.URL.Hostname()

	attrs := withAttr(d.cfg.baseAttributes(), attribute.String("hedge.service", serviceID))
	ctx, span := d.cfg.Tracer.Start(req.Context(), "hedge "+serviceID,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(withAttr(attrs,
			attribute.String("http.request.method", req.Method),
			attribute.Int("hedge.attempts", cfg.Attempts),
			attribute.Int("hedge.max_probes", cfg.probeLimit()),
		)...),
		trace.WithAttributes(AttributesFromContext(req.Context()).spanAttributes()...),
	)
	defer span.End()

	if serviceID == "" {
		setSpanError(span, ErrNoServiceID, ErrorTypeUnknown)
		return nil, ErrNoServiceID
	}

	instances, err := d.resolver.Instances(ctx, serviceID)
	if err != nil {
		err = fmt.Errorf("httpclient: resolve %q: %w", serviceID, err)
		setSpanError(span, err, classifyError(err))
		return nil, err
	}
	if len(instances) < cfg.Attempts {
		err := &PreconditionError{ServiceID: serviceID, Required: cfg.Attempts, Available: len(instances)}
		setSpanError(span, err, ErrorTypePrecondition)
		d.cfg.Metrics.recordHedgePreconditionFailure(ctx, attrs)
		return nil, err
	}

	candidates, probes, err := d.selectCandidates(ctx, req, serviceID, cfg)
	d.cfg.Metrics.recordHedgeSelection(ctx, len(candidates), probes, attrs)
	span.SetAttributes(
		attribute.Int("hedge.candidates", len(candidates)),
		attribute.Int("hedge.probes", probes),
	)
	if err != nil {
		setSpanError(span, err, classifyError(err))
		return nil, err
	}
	if len(candidates) == 0 {
		setSpanError(span, ErrEmptyCandidateSet, ErrorTypeUnknown)
		return nil, ErrEmptyCandidateSet
	}

	body, err := snapshotBody(req)
	if err != nil {
		err = fmt.Errorf("httpclient: read request body: %w", err)
		setSpanError(span, err, ErrorTypeUnknown)
		return nil, err
	}

	winner := d.race(ctx, candidates, body)
	duration := time.Since(start)

	outcome := "success"
	if winner.err != nil {
		outcome = "failure"
	}
	span.AddEvent("hedge.winner", trace.WithAttributes(
		attribute.String("hedge.winner", winner.candidate.url),
		attribute.String("hedge.outcome", outcome),
	))
	d.cfg.Metrics.recordHedgeWin(ctx, winner.candidate.instance.InstanceID, outcome, duration, attrs)

	d.cfg.Logger.Info().
		Str("service", serviceID).
		Str("winner", winner.candidate.url).
		Str("outcome", outcome).
		Int("candidates", len(candidates)).
		Int("probes", probes).
		Dur("duration", duration).
		Fields(map[string]any(AttributesFromContext(req.Context()))).
		Msg("hedge: candidate won")

	if winner.err != nil {
		err := &CandidateError{URL: winner.candidate.url, Err: winner.err}
		setSpanError(span, err, classifyError(winner.err))
		return nil, err
	}
	return winner.resp, nil
}

// selectCandidates asks the selector for instances until it has
// cfg.Attempts distinct ones or has asked cfg.probeLimit() times.
// Every call counts as a probe, duplicates included.
func (d *Dispatcher) selectCandidates(
	ctx context.Context,
	req *http.Request,
	serviceID string,
	cfg HedgeConfig,
) ([]*candidate, int, error) {
	maxProbes := cfg.probeLimit()
	seen := make(map[string]struct{}, max(cfg.Attempts, 0))
	candidates := make([]*candidate, 0, max(cfg.Attempts, 0))

	probes := 0
	for len(seen) < cfg.Attempts && probes < maxProbes {
		probes++

		inst, err := d.selector.Choose(ctx, serviceID)
		if err != nil {
			return candidates, probes, fmt.Errorf("httpclient: select %q: %w", serviceID, err)
		}

		key := inst.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		target := d.selector.ReconstructURL(inst, req.URL)
		candidates = append(candidates, &candidate{
			instance: inst,
			url:      target.String(),
			req:      candidateRequest(req, target),
		})
	}

	return candidates, probes, nil
}

// race launches every candidate and returns the first result. The rest are
// drained in the background.
func (d *Dispatcher) race(ctx context.Context, candidates []*candidate, body []byte) candidateResult {
	results := make(chan candidateResult, len(candidates))

	for _, c := range candidates {
		go func() {
			req := c.req.WithContext(withInstance(ctx, c.instance))
			replayBody(req, body)

			resp, err := d.candidate.RoundTrip(req) //nolint:bodyclose // closed by the caller or drainLosers
			results <- candidateResult{candidate: c, resp: resp, err: err}
		}()
	}

	winner := <-results
	go drainLosers(results, len(candidates)-1)
	return winner
}

// drainLosers waits for the remaining candidates and closes their bodies.
func drainLosers(results <-chan candidateResult, n int) {
	for range n {
		r := <-results
		if r.resp != nil && r.resp.Body != nil {
			_, _ = io.Copy(io.Discard, r.resp.Body)
			_ = r.resp.Body.Close()
		}
	}
}

// candidateRequest derives a request targeting one instance. Everything but
// the URL and Host is shared with the logical request.
func candidateRequest(req *http.Request, target *url.URL) *http.Request {
	c := req.Clone(req.Context())
	c.URL = target
	c.Host = ""
	return c
}

// snapshotBody reads the request body once so that every candidate can get
// its own reader. It prefers GetBody to leave req.Body untouched. Without
// GetBody the consumed body is put back on req as a replayable reader.
func snapshotBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}

	if req.GetBody != nil {
		fresh, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		defer fresh.Close()
		return io.ReadAll(fresh)
	}

	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return body, nil
}

// replayBody gives req a fresh reader over body.
func replayBody(req *http.Request, body []byte) {
	if body == nil {
		req.Body = http.NoBody
		req.GetBody = nil
		return
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
}
