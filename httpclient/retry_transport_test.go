package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/kroma-labs/sentinel-hedge/httpclient/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRetryConfig(t *testing.T) {
	tests := []struct {
		name        string
		config      RetryConfig
		wantEnabled bool
	}{
		{
			name:        "given default config, then enabled with 2 retries",
			config:      DefaultRetryConfig(),
			wantEnabled: true,
		},
		{
			name:        "given no-retry config, then disabled",
			config:      NoRetryConfig(),
			wantEnabled: false,
		},
		{
			name:        "given zero value, then disabled",
			config:      RetryConfig{},
			wantEnabled: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantEnabled, tt.config.IsEnabled())
		})
	}

	cfg := DefaultRetryConfig()
	assert.Equal(t, uint(2), cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialInterval)
	assert.Equal(t, 2*time.Second, cfg.MaxInterval)
	assert.Equal(t, 10*time.Second, cfg.MaxElapsedTime)
}

func TestExponentialBackOffFromConfig(t *testing.T) {
	b := ExponentialBackOffFromConfig(RetryConfig{
		MaxRetries:      3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      3,
	})

	assert.Equal(t, 50*time.Millisecond, b.InitialInterval)
	assert.Equal(t, time.Second, b.MaxInterval)
	assert.InEpsilon(t, 3.0, b.Multiplier, 0.001)
	assert.InEpsilon(t, DefaultJitterFactor, b.RandomizationFactor, 0.001)
}

func newRetryTestTransport(base http.RoundTripper, opts ...Option) http.RoundTripper {
	opts = append([]Option{
		WithRetryConfig(RetryConfig{MaxRetries: 2}),
		WithRetryBackOff(&backoff.ZeroBackOff{}),
	}, opts...)
	return newRetryTransport(base, newConfig(opts...))
}

func response(code int, body string) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(body))}
}

func TestRetryTransport_RoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		mockFn   func(*mocks.RoundTripper)
		wantErr  error
		wantCode int
	}{
		{
			name: "given immediate success, then no retry",
			mockFn: func(rt *mocks.RoundTripper) {
				rt.EXPECT().RoundTrip(mock.Anything).Return(response(http.StatusOK, "ok"), nil).Once()
			},
			wantCode: http.StatusOK,
		},
		{
			name: "given 503 then 200, then retries once and succeeds",
			mockFn: func(rt *mocks.RoundTripper) {
				rt.EXPECT().RoundTrip(mock.Anything).Return(response(http.StatusServiceUnavailable, ""), nil).Once()
				rt.EXPECT().RoundTrip(mock.Anything).Return(response(http.StatusOK, "ok"), nil).Once()
			},
			wantCode: http.StatusOK,
		},
		{
			name: "given connection refused then 200, then retries and succeeds",
			mockFn: func(rt *mocks.RoundTripper) {
				rt.EXPECT().RoundTrip(mock.Anything).Return(nil, syscall.ECONNREFUSED).Once()
				rt.EXPECT().RoundTrip(mock.Anything).Return(response(http.StatusOK, "ok"), nil).Once()
			},
			wantCode: http.StatusOK,
		},
		{
			name: "given 503 on every attempt, then returns the last 503 response",
			mockFn: func(rt *mocks.RoundTripper) {
				rt.EXPECT().RoundTrip(mock.Anything).Return(response(http.StatusServiceUnavailable, ""), nil).Times(3)
			},
			wantCode: http.StatusServiceUnavailable,
		},
		{
			name: "given persistent network errors, then returns the error after 3 tries",
			mockFn: func(rt *mocks.RoundTripper) {
				rt.EXPECT().RoundTrip(mock.Anything).Return(nil, syscall.ECONNRESET).Times(3)
			},
			wantErr: syscall.ECONNRESET,
		},
		{
			name: "given 400, then no retry",
			mockFn: func(rt *mocks.RoundTripper) {
				rt.EXPECT().RoundTrip(mock.Anything).Return(response(http.StatusBadRequest, ""), nil).Once()
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "given context canceled, then no retry",
			mockFn: func(rt *mocks.RoundTripper) {
				rt.EXPECT().RoundTrip(mock.Anything).Return(nil, context.Canceled).Once()
			},
			wantErr: context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := mocks.NewRoundTripper(t)
			tt.mockFn(rt)

			req, _ := http.NewRequest(http.MethodGet, "http://10.0.0.1:8080/orders", nil)
			resp, err := newRetryTestTransport(rt).RoundTrip(req)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, resp)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, resp.StatusCode)
		})
	}
}

func TestRetryTransport_ReplaysBody(t *testing.T) {
	var bodies []string
	rt := mocks.NewRoundTripper(t)
	rt.EXPECT().RoundTrip(mock.Anything).
		RunAndReturn(func(req *http.Request) (*http.Response, error) {
			b, _ := io.ReadAll(req.Body)
			bodies = append(bodies, string(b))
			if len(bodies) == 1 {
				return response(http.StatusBadGateway, ""), nil
			}
			return response(http.StatusCreated, ""), nil
		}).Times(2)

	req, _ := http.NewRequest(http.MethodPost, "http://10.0.0.1:8080/orders", strings.NewReader(`{"a":1}`))
	resp, err := newRetryTestTransport(rt).RoundTrip(req)

	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, []string{`{"a":1}`, `{"a":1}`}, bodies)
}

func TestRetryTransport_BodyWithoutGetBody(t *testing.T) {
	rt := mocks.NewRoundTripper(t)
	rt.EXPECT().RoundTrip(mock.Anything).Return(response(http.StatusServiceUnavailable, ""), nil).Once()

	req, _ := http.NewRequest(http.MethodPost, "http://10.0.0.1:8080/orders", io.NopCloser(strings.NewReader("x")))
	req.GetBody = nil

	resp, err := newRetryTestTransport(rt).RoundTrip(req)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "cannot retry")
}

func TestRetryTransport_CustomClassifier(t *testing.T) {
	rt := mocks.NewRoundTripper(t)
	rt.EXPECT().RoundTrip(mock.Anything).Return(response(http.StatusConflict, ""), nil).Times(3)

	req, _ := http.NewRequest(http.MethodGet, "http://10.0.0.1:8080/orders", nil)
	resp, err := newRetryTestTransport(rt, WithRetryClassifier(StatusCodeClassifier(http.StatusConflict))).RoundTrip(req)

	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRetryTransport_Disabled(t *testing.T) {
	rt := mocks.NewRoundTripper(t)
	got := newRetryTransport(rt, newConfig())
	assert.Same(t, rt, got)

	got = newRetryTransport(rt, newConfig(WithRetryConfig(DefaultRetryConfig()), WithRetryDisabled()))
	assert.Same(t, rt, got)
}

func TestRetryReason(t *testing.T) {
	assert.Equal(t, "503", retryReason(&statusError{code: http.StatusServiceUnavailable}))
	assert.Equal(t, "network_error", retryReason(syscall.ECONNREFUSED))
	assert.Equal(t, ErrorTypeUnknown, retryReason(errors.New("weird")))
}
