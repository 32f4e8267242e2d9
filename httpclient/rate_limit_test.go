package httpclient

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	assert.InEpsilon(t, 100.0, cfg.RequestsPerSecond, 0.001)
	assert.Equal(t, 10, cfg.Burst)
	assert.True(t, cfg.WaitOnLimit)
}

func TestRateLimitTransport_RoundTrip(t *testing.T) {
	tests := []struct {
		name        string
		config      RateLimitConfig
		urls        []string
		wantErrs    []error
		wantRequest int
	}{
		{
			name:        "given burst 2 without waiting, then the third call is rejected",
			config:      RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2},
			urls:        []string{"http://orders/a", "http://orders/b", "http://orders/c"},
			wantErrs:    []error{nil, nil, ErrRateLimited},
			wantRequest: 2,
		},
		{
			name:        "given two services, then each has its own budget",
			config:      RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1},
			urls:        []string{"http://orders/a", "http://billing/a", "http://orders/b"},
			wantErrs:    []error{nil, nil, ErrRateLimited},
			wantRequest: 2,
		},
		{
			name:        "given zero burst, then it is raised to one",
			config:      RateLimitConfig{RequestsPerSecond: 0.001},
			urls:        []string{"http://orders/a", "http://orders/b"},
			wantErrs:    []error{nil, ErrRateLimited},
			wantRequest: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fleet := NewMockTransport().StubResponse(http.StatusOK, "ok")
			rt := newRateLimitTransport(fleet, tt.config)

			for i, u := range tt.urls {
				req, err := http.NewRequest(http.MethodGet, u, nil)
				require.NoError(t, err)

				resp, err := rt.RoundTrip(req)
				if tt.wantErrs[i] != nil {
					assert.ErrorIs(t, err, tt.wantErrs[i])
					continue
				}
				require.NoError(t, err)
				resp.Body.Close()
			}
			assert.Equal(t, tt.wantRequest, fleet.RequestCount())
		})
	}
}

func TestRateLimitTransport_Wait(t *testing.T) {
	fleet := NewMockTransport().StubResponse(http.StatusOK, "ok")
	rt := newRateLimitTransport(fleet, RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1, WaitOnLimit: true})

	req, _ := http.NewRequest(http.MethodGet, "http://orders/a", nil)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req, _ = http.NewRequestWithContext(ctx, http.MethodGet, "http://orders/b", nil)

	_, err = rt.RoundTrip(req)
	assert.ErrorIs(t, err, ErrRateLimited, "the wait exceeds the deadline, so it fails up front")
	assert.Equal(t, 1, fleet.RequestCount())
}

func TestRateLimitTransport_Disabled(t *testing.T) {
	fleet := NewMockTransport()
	assert.Same(t, fleet, newRateLimitTransport(fleet, RateLimitConfig{}))
}
