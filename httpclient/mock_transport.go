package httpclient

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Compile-time interface check.
var _ http.RoundTripper = (*MockTransport)(nil)

// MockTransport provides a configurable http.RoundTripper for testing.
//
// Stubs match on instance host, so a hedged client can be tested against a
// simulated fleet where every instance has its own latency and result:
//
//	mock := httpclient.NewMockTransport().
//	    StubHost("10.0.0.1:80", http.StatusOK, `{"from":"a"}`, 80*time.Millisecond).
//	    StubHostError("10.0.0.2:80", syscall.ECONNREFUSED, 0)
//	client := httpclient.New(httpclient.WithBaseTransport(mock), ...)
type MockTransport struct {
	mu          sync.Mutex
	stubs       []stub
	defaultStub *stub
	requests    []*http.Request
	closed      atomic.Int64
}

type stub struct {
	matcher func(*http.Request) bool
	status  int
	body    string
	err     error
	delay   time.Duration
}

// NewMockTransport creates a new MockTransport for testing.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// StubResponse answers every unmatched request with the given response.
func (m *MockTransport) StubResponse(statusCode int, body string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultStub = &stub{status: statusCode, body: body}
	return m
}

// StubError fails every unmatched request with err.
func (m *MockTransport) StubError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultStub = &stub{err: err}
	return m
}

// StubHost answers requests to host ("ip:port") after delay.
func (m *MockTransport) StubHost(host string, statusCode int, body string, delay time.Duration) *MockTransport {
	return m.add(stub{matcher: hostMatcher(host), status: statusCode, body: body, delay: delay})
}

// StubHostError fails requests to host after delay.
func (m *MockTransport) StubHostError(host string, err error, delay time.Duration) *MockTransport {
	return m.add(stub{matcher: hostMatcher(host), err: err, delay: delay})
}

// StubPath answers requests with the given path.
func (m *MockTransport) StubPath(path string, statusCode int, body string) *MockTransport {
	return m.add(stub{
		matcher: func(req *http.Request) bool { return req.URL.Path == path },
		status:  statusCode,
		body:    body,
	})
}

func (m *MockTransport) add(s stub) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, s)
	return m
}

func hostMatcher(host string) func(*http.Request) bool {
	return func(req *http.Request) bool { return req.URL.Host == host }
}

// RoundTrip implements http.RoundTripper.
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	s := m.match(req)
	m.mu.Unlock()

	if s == nil {
		return nil, errors.New("no stub found for request: " + req.Method + " " + req.URL.String())
	}

	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}

	if s.err != nil {
		return nil, s.err
	}

	return &http.Response{
		Status:        http.StatusText(s.status),
		StatusCode:    s.status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"application/json"}},
		Body:          &trackedBody{Reader: strings.NewReader(s.body), closed: &m.closed},
		ContentLength: int64(len(s.body)),
		Request:       req,
	}, nil
}

// match returns the first matching stub. Callers hold m.mu.
func (m *MockTransport) match(req *http.Request) *stub {
	for i := range m.stubs {
		if m.stubs[i].matcher(req) {
			return &m.stubs[i]
		}
	}
	return m.defaultStub
}

// Requests returns all requests made through this transport.
func (m *MockTransport) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request{}, m.requests...)
}

// RequestCount returns the number of requests made.
func (m *MockTransport) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Hosts returns the target host of every request, in arrival order.
func (m *MockTransport) Hosts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	hosts := make([]string, 0, len(m.requests))
	for _, r := range m.requests {
		hosts = append(hosts, r.URL.Host)
	}
	return hosts
}

// ClosedBodies returns how many response bodies have been closed.
func (m *MockTransport) ClosedBodies() int {
	return int(m.closed.Load())
}

type trackedBody struct {
	io.Reader
	once   sync.Once
	closed *atomic.Int64
}

func (b *trackedBody) Close() error {
	b.once.Do(func() { b.closed.Add(1) })
	return nil
}
