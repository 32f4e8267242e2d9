package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/kroma-labs/sentinel-hedge/discovery"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

var (
	instA = discovery.Instance{ServiceID: "orders", InstanceID: "a", Host: "10.0.0.1", Port: 8080}
	instB = discovery.Instance{ServiceID: "orders", InstanceID: "b", Host: "10.0.0.2", Port: 8080}
	instC = discovery.Instance{ServiceID: "orders", InstanceID: "c", Host: "10.0.0.3", Port: 8080}
)

const (
	hostA = "10.0.0.1:8080"
	hostB = "10.0.0.2:8080"
	hostC = "10.0.0.3:8080"
)

// scriptedSelector returns instances in a fixed order, repeating the last one.
type scriptedSelector struct {
	mu     sync.Mutex
	script []discovery.Instance
	err    error
	calls  int
}

func (s *scriptedSelector) Choose(context.Context, string) (discovery.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return discovery.Instance{}, s.err
	}
	i := min(s.calls-1, len(s.script)-1)
	return s.script[i], nil
}

func (s *scriptedSelector) ReconstructURL(inst discovery.Instance, logical *url.URL) *url.URL {
	return discovery.ReconstructURL(inst, logical)
}

func (s *scriptedSelector) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type failingResolver struct{ err error }

func (f failingResolver) Instances(context.Context, string) ([]discovery.Instance, error) {
	return nil, f.err
}

func newLogicalRequest(t *testing.T, method, body string) *http.Request {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, "http://orders/orders/42?x=1", r)
	require.NoError(t, err)
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestDispatcher_Dispatch_DistinctCandidates(t *testing.T) {
	tests := []struct {
		name      string
		instances []discovery.Instance
		attempts  int
		wantHosts int
	}{
		{
			name:      "given 3 instances and 2 attempts, then 2 distinct instances are called",
			instances: []discovery.Instance{instA, instB, instC},
			attempts:  2,
			wantHosts: 2,
		},
		{
			name:      "given 3 instances and 3 attempts, then every instance is called once",
			instances: []discovery.Instance{instA, instB, instC},
			attempts:  3,
			wantHosts: 3,
		},
		{
			name:      "given 1 attempt, then exactly one request is sent",
			instances: []discovery.Instance{instA, instB},
			attempts:  1,
			wantHosts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := discovery.NewRegistry(tt.instances...)
			mock := NewMockTransport().StubResponse(http.StatusOK, "ok")
			d := NewDispatcher(reg, discovery.NewBalancer(reg, discovery.RoundRobin()), mock)

			resp, err := d.Dispatch(newLogicalRequest(t, http.MethodGet, ""), Hedge(tt.attempts))
			require.NoError(t, err)
			assert.Equal(t, "ok", readBody(t, resp))

			require.Eventually(t, func() bool {
				return mock.RequestCount() == tt.wantHosts
			}, time.Second, 5*time.Millisecond)

			seen := map[string]bool{}
			for _, h := range mock.Hosts() {
				assert.False(t, seen[h], "instance %s called twice", h)
				seen[h] = true
			}
			for _, r := range mock.Requests() {
				assert.Equal(t, "/orders/42", r.URL.Path)
				assert.Equal(t, "x=1", r.URL.RawQuery)
			}
		})
	}
}

func TestDispatcher_Dispatch_Precondition(t *testing.T) {
	tests := []struct {
		name      string
		instances []discovery.Instance
		attempts  int
		wantAvail int
	}{
		{
			name:      "given 2 instances and 3 attempts, then precondition fails",
			instances: []discovery.Instance{instA, instB},
			attempts:  3,
			wantAvail: 2,
		},
		{
			name:      "given no instances and 1 attempt, then precondition fails",
			instances: nil,
			attempts:  1,
			wantAvail: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := discovery.NewRegistry(tt.instances...)
			sel := &scriptedSelector{script: []discovery.Instance{instA}}
			mock := NewMockTransport().StubResponse(http.StatusOK, "ok")
			d := NewDispatcher(reg, sel, mock)

			resp, err := d.Dispatch(newLogicalRequest(t, http.MethodGet, ""), Hedge(tt.attempts))
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, ErrPrecondition)

			var pe *PreconditionError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, "orders", pe.ServiceID)
			assert.Equal(t, tt.attempts, pe.Required)
			assert.Equal(t, tt.wantAvail, pe.Available)

			assert.Zero(t, sel.Calls())
			assert.Zero(t, mock.RequestCount())
		})
	}
}

func TestDispatcher_Dispatch_ProbeLimit(t *testing.T) {
	tests := []struct {
		name          string
		config        HedgeConfig
		wantProbes    int
		wantRequested int
	}{
		{
			name:          "given a selector stuck on one instance, then it probes 2k times and sends once",
			config:        Hedge(2),
			wantProbes:    4,
			wantRequested: 1,
		},
		{
			name:          "given an explicit probe cap, then the cap is honored",
			config:        HedgeConfig{Attempts: 2, MaxProbes: 7},
			wantProbes:    7,
			wantRequested: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := discovery.NewRegistry(instA, instB)
			sel := &scriptedSelector{script: []discovery.Instance{instA}}
			mock := NewMockTransport().StubResponse(http.StatusOK, "ok")
			d := NewDispatcher(reg, sel, mock)

			resp, err := d.Dispatch(newLogicalRequest(t, http.MethodGet, ""), tt.config)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			resp.Body.Close()

			assert.Equal(t, tt.wantProbes, sel.Calls())
			assert.Equal(t, tt.wantRequested, mock.RequestCount())
			assert.Equal(t, []string{hostA}, mock.Hosts())
		})
	}
}

func TestDispatcher_Dispatch_DuplicateSelections(t *testing.T) {
	reg := discovery.NewRegistry(instA, instB, instC)
	sel := &scriptedSelector{script: []discovery.Instance{instA, instB, instA, instC}}
	mock := NewMockTransport().
		StubHost(hostA, http.StatusOK, "a", 300*time.Millisecond).
		StubHost(hostB, http.StatusOK, "b", 0).
		StubHost(hostC, http.StatusOK, "c", 300*time.Millisecond)
	d := NewDispatcher(reg, sel, mock)

	resp, err := d.Dispatch(newLogicalRequest(t, http.MethodGet, ""), Hedge(3))
	require.NoError(t, err)
	assert.Equal(t, "b", readBody(t, resp))
	assert.Equal(t, 4, sel.Calls())

	require.Eventually(t, func() bool {
		return mock.RequestCount() == 3
	}, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{hostA, hostB, hostC}, mock.Hosts())
}

func TestDispatcher_Dispatch_RepeatedSelectionIsSkipped(t *testing.T) {
	reg := discovery.NewRegistry(instA, instB, instC)
	sel := &scriptedSelector{script: []discovery.Instance{instA, instB, instA, instC}}
	mock := NewMockTransport().
		StubHost(hostA, http.StatusOK, "a", 300*time.Millisecond).
		StubHost(hostB, http.StatusOK, "b", 0).
		StubHost(hostC, http.StatusOK, "c", 0)
	d := NewDispatcher(reg, sel, mock)

	resp, err := d.Dispatch(newLogicalRequest(t, http.MethodGet, ""), Hedge(2))
	require.NoError(t, err)
	assert.Equal(t, "b", readBody(t, resp))
	assert.Equal(t, 2, sel.Calls())

	require.Eventually(t, func() bool {
		return mock.RequestCount() == 2
	}, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{hostA, hostB}, mock.Hosts())
}

func TestDispatcher_Dispatch_RendezvousAfterDeregister(t *testing.T) {
	reg := discovery.NewRegistry(instA, instB, instC)
	before := NewMockTransport().StubResponse(http.StatusOK, "ok")
	after := NewMockTransport().StubResponse(http.StatusOK, "ok")
	sel := discovery.NewBalancer(reg, discovery.Rendezvous())

	resp, err := NewDispatcher(reg, sel, before).Dispatch(newLogicalRequest(t, http.MethodGet, ""), Hedge(2))
	require.NoError(t, err)
	resp.Body.Close()

	require.True(t, reg.Deregister("orders", "c"))

	d := NewDispatcher(reg, sel, after)
	for range 10 {
		assert.NotPanics(t, func() {
			resp, err = d.Dispatch(newLogicalRequest(t, http.MethodGet, ""), Hedge(2))
		})
		require.NoError(t, err)
		resp.Body.Close()
	}

	require.Eventually(t, func() bool {
		return after.RequestCount() >= 10
	}, time.Second, 5*time.Millisecond)
	assert.NotContains(t, after.Hosts(), hostC)
}

func TestDispatcher_Dispatch_FirstResultWins(t *testing.T) {
	errRefused := syscall.ECONNREFUSED
	errReset := syscall.ECONNRESET

	tests := []struct {
		name       string
		mock       *MockTransport
		wantBody   string
		wantStatus int
		wantErr    error
		wantURL    string
	}{
		{
			name: "given a fast and a slow success, then the fast one wins",
			mock: NewMockTransport().
				StubHost(hostA, http.StatusOK, "slow", 200*time.Millisecond).
				StubHost(hostB, http.StatusOK, "fast", 0),
			wantStatus: http.StatusOK,
			wantBody:   "fast",
		},
		{
			name: "given a fast 503 and a slow 200, then the 503 is returned as a response",
			mock: NewMockTransport().
				StubHost(hostA, http.StatusServiceUnavailable, "busy", 0).
				StubHost(hostB, http.StatusOK, "ok", 200*time.Millisecond),
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "busy",
		},
		{
			name: "given a fast failure and a slow success, then the failure wins",
			mock: NewMockTransport().
				StubHostError(hostA, errRefused, 0).
				StubHost(hostB, http.StatusOK, "ok", 200*time.Millisecond),
			wantErr: errRefused,
			wantURL: "http://" + hostA + "/orders/42?x=1",
		},
		{
			name: "given every candidate fails, then the chronologically first error is returned",
			mock: NewMockTransport().
				StubHostError(hostA, errReset, 150*time.Millisecond).
				StubHostError(hostB, errRefused, 10*time.Millisecond),
			wantErr: errRefused,
			wantURL: "http://" + hostB + "/orders/42?x=1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := discovery.NewRegistry(instA, instB)
			d := NewDispatcher(reg, discovery.NewBalancer(reg, nil), tt.mock)

			resp, err := d.Dispatch(newLogicalRequest(t, http.MethodGet, ""), Hedge(2))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Nil(t, resp)
				assert.ErrorIs(t, err, tt.wantErr)

				var ce *CandidateError
				require.ErrorAs(t, err, &ce)
				assert.Equal(t, tt.wantURL, ce.URL)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantBody, readBody(t, resp))
		})
	}
}

func TestDispatcher_Dispatch_DrainsLosers(t *testing.T) {
	reg := discovery.NewRegistry(instA, instB, instC)
	mock := NewMockTransport().
		StubHost(hostA, http.StatusOK, "a", 0).
		StubHost(hostB, http.StatusOK, "b", 50*time.Millisecond).
		StubHost(hostC, http.StatusOK, "c", 50*time.Millisecond)
	sel := &scriptedSelector{script: []discovery.Instance{instA, instB, instC}}
	d := NewDispatcher(reg, sel, mock)

	resp, err := d.Dispatch(newLogicalRequest(t, http.MethodGet, ""), Hedge(3))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return mock.ClosedBodies() == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "a", readBody(t, resp))
	assert.Equal(t, 3, mock.ClosedBodies())
}

func TestDispatcher_Dispatch_ReplaysBody(t *testing.T) {
	reg := discovery.NewRegistry(instA, instB, instC)
	mock := NewMockTransport().StubResponse(http.StatusCreated, "")
	d := NewDispatcher(reg, discovery.NewBalancer(reg, nil), mock)

	req := newLogicalRequest(t, http.MethodPost, `{"productName":"book"}`)
	req.Header.Set("Idempotency-Key", "k1")

	resp, err := d.Dispatch(req, Hedge(3))
	require.NoError(t, err)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		return mock.RequestCount() == 3
	}, time.Second, 5*time.Millisecond)

	for _, r := range mock.Requests() {
		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, `{"productName":"book"}`, string(b))
		assert.Equal(t, int64(len(b)), r.ContentLength)
		assert.Equal(t, "k1", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, http.MethodPost, r.Method)
	}

	// The logical request is left untouched.
	assert.Equal(t, "http://orders/orders/42?x=1", req.URL.String())
	assert.Equal(t, "orders", req.Host)
	b, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"productName":"book"}`, string(b))
}

func TestDispatcher_Dispatch_BodyWithoutGetBody(t *testing.T) {
	reg := discovery.NewRegistry(instA, instB)
	mock := NewMockTransport().StubResponse(http.StatusCreated, "")
	d := NewDispatcher(reg, discovery.NewBalancer(reg, nil), mock)

	// An anonymous reader type keeps http.NewRequest from setting GetBody.
	body := struct{ io.Reader }{strings.NewReader(`{"productName":"lamp"}`)}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, "http://orders/orders", body)
	require.NoError(t, err)
	require.Nil(t, req.GetBody)

	resp, err := d.Dispatch(req, Hedge(2))
	require.NoError(t, err)
	resp.Body.Close()

	b, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"productName":"lamp"}`, string(b))

	require.Eventually(t, func() bool {
		return mock.RequestCount() == 2
	}, time.Second, 5*time.Millisecond)
	for _, r := range mock.Requests() {
		got, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, `{"productName":"lamp"}`, string(got))
	}
}

func TestDispatcher_Dispatch_Errors(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name     string
		resolver discovery.Resolver
		selector discovery.Selector
		url      string
		config   HedgeConfig
		wantErr  error
	}{
		{
			name:     "given zero attempts, then the candidate set is empty",
			resolver: discovery.NewRegistry(instA),
			selector: &scriptedSelector{script: []discovery.Instance{instA}},
			url:      "http://orders/orders",
			config:   Hedge(0),
			wantErr:  ErrEmptyCandidateSet,
		},
		{
			name:     "given a failing selector, then dispatch aborts",
			resolver: discovery.NewRegistry(instA, instB),
			selector: &scriptedSelector{err: errBoom},
			url:      "http://orders/orders",
			config:   Hedge(2),
			wantErr:  errBoom,
		},
		{
			name:     "given a failing resolver, then dispatch aborts",
			resolver: failingResolver{err: errBoom},
			selector: &scriptedSelector{script: []discovery.Instance{instA}},
			url:      "http://orders/orders",
			config:   Hedge(1),
			wantErr:  errBoom,
		},
		{
			name:     "given a URL without host, then no service id is found",
			resolver: discovery.NewRegistry(instA),
			selector: &scriptedSelector{script: []discovery.Instance{instA}},
			url:      "/orders",
			config:   Hedge(1),
			wantErr:  ErrNoServiceID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockTransport().StubResponse(http.StatusOK, "ok")
			d := NewDispatcher(tt.resolver, tt.selector, mock)

			req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, tt.url, nil)
			require.NoError(t, err)

			resp, err := d.Dispatch(req, tt.config)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, mock.RequestCount())
		})
	}
}

func TestDispatcher_Dispatch_CandidateContext(t *testing.T) {
	reg := discovery.NewRegistry(instA, instB)
	mock := NewMockTransport().StubResponse(http.StatusOK, "ok")
	d := NewDispatcher(reg, discovery.NewBalancer(reg, nil), mock)

	req := newLogicalRequest(t, http.MethodGet, "")
	req = req.WithContext(WithAttributes(req.Context(), Attributes{"tenant": "acme"}))

	resp, err := d.Dispatch(req, Hedge(2))
	require.NoError(t, err)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		return mock.RequestCount() == 2
	}, time.Second, 5*time.Millisecond)

	for _, r := range mock.Requests() {
		inst, ok := InstanceFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, inst.URL().Host, r.URL.Host)
		assert.Equal(t, "acme", AttributesFromContext(r.Context())["tenant"])
	}
}

func TestDispatcher_Dispatch_LogsWinner(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	reg := discovery.NewRegistry(instA, instB)
	mock := NewMockTransport().
		StubHost(hostA, http.StatusOK, "a", 0).
		StubHost(hostB, http.StatusOK, "b", 100*time.Millisecond)
	sel := &scriptedSelector{script: []discovery.Instance{instA, instB}}
	d := NewDispatcher(reg, sel, mock, WithLogger(logger))

	req := newLogicalRequest(t, http.MethodGet, "")
	req = req.WithContext(WithAttributes(req.Context(), Attributes{"tenant": "acme"}))

	resp, err := d.Dispatch(req, Hedge(2))
	require.NoError(t, err)
	resp.Body.Close()

	out := buf.String()
	assert.Contains(t, out, `"message":"hedge: candidate won"`)
	assert.Contains(t, out, `"service":"orders"`)
	assert.Contains(t, out, `"winner":"http://10.0.0.1:8080/orders/42?x=1"`)
	assert.Contains(t, out, `"outcome":"success"`)
	assert.Contains(t, out, `"tenant":"acme"`)
}

func TestDispatcher_Dispatch_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	reg := discovery.NewRegistry(instA, instB)
	sel := &scriptedSelector{script: []discovery.Instance{instA}}
	mock := NewMockTransport().StubResponse(http.StatusOK, "ok")
	d := NewDispatcher(reg, sel, mock, WithMeterProvider(mp))

	resp, err := d.Dispatch(newLogicalRequest(t, http.MethodGet, ""), Hedge(2))
	require.NoError(t, err)
	resp.Body.Close()

	_, err = d.Dispatch(newLogicalRequest(t, http.MethodGet, ""), Hedge(3))
	require.ErrorIs(t, err, ErrPrecondition)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = true
			switch m.Name {
			case "http.client.hedge.probes":
				hist, ok := m.Data.(metricdata.Histogram[int64])
				require.True(t, ok)
				require.Len(t, hist.DataPoints, 1)
				assert.Equal(t, int64(4), hist.DataPoints[0].Sum)
			case "http.client.hedge.candidates":
				hist, ok := m.Data.(metricdata.Histogram[int64])
				require.True(t, ok)
				require.Len(t, hist.DataPoints, 1)
				assert.Equal(t, int64(1), hist.DataPoints[0].Sum)
			case "http.client.hedge.wins":
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				require.Len(t, sum.DataPoints, 1)
				assert.Equal(t, int64(1), sum.DataPoints[0].Value)
				inst, _ := sum.DataPoints[0].Attributes.Value("hedge.instance")
				assert.Equal(t, "a", inst.AsString())
			case "http.client.hedge.precondition_failures":
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				require.Len(t, sum.DataPoints, 1)
				assert.Equal(t, int64(1), sum.DataPoints[0].Value)
			}
		}
	}

	for _, name := range []string{
		"http.client.hedge.probes",
		"http.client.hedge.candidates",
		"http.client.hedge.wins",
		"http.client.hedge.duration",
		"http.client.hedge.precondition_failures",
	} {
		assert.True(t, found[name], "metric %s not recorded", name)
	}
}
