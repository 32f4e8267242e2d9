package httpclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/kroma-labs/sentinel-hedge/discovery"
	"github.com/kroma-labs/sentinel-hedge/httpclient/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHedgeConfig_ProbeLimit(t *testing.T) {
	tests := []struct {
		name   string
		config HedgeConfig
		want   int
	}{
		{name: "given default config, then 2 probes", config: DefaultHedgeConfig(), want: 2},
		{name: "given 3 attempts, then 6 probes", config: Hedge(3), want: 6},
		{name: "given explicit max probes, then it wins", config: HedgeConfig{Attempts: 3, MaxProbes: 4}, want: 4},
		{name: "given zero attempts, then no probes", config: Hedge(0), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.probeLimit())
		})
	}
}

func TestContextWithHedgeConfig(t *testing.T) {
	_, ok := hedgeConfigFromContext(context.Background())
	assert.False(t, ok)

	ctx := ContextWithHedgeConfig(context.Background(), Hedge(3))
	got, ok := hedgeConfigFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, Hedge(3), got)
}

func TestHedgeTransport_RoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		config    HedgeConfig
		override  *HedgeConfig
		wantCalls int
		wantErr   error
	}{
		{
			name:      "given transport config of 2, then 2 candidates are sent",
			config:    Hedge(2),
			wantCalls: 2,
		},
		{
			name:      "given a context override of 1, then 1 candidate is sent",
			config:    Hedge(2),
			override:  &HedgeConfig{Attempts: 1},
			wantCalls: 1,
		},
		{
			name:     "given a context override above fleet size, then precondition fails",
			config:   Hedge(1),
			override: &HedgeConfig{Attempts: 3},
			wantErr:  ErrPrecondition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := mocks.NewResolver(t)
			resolver.EXPECT().
				Instances(mock.Anything, "orders").
				Return([]discovery.Instance{instA, instB}, nil).Once()

			reg := discovery.NewRegistry(instA, instB)
			fleet := NewMockTransport().StubResponse(http.StatusOK, "ok")
			rt := NewHedgeTransport(resolver, discovery.NewBalancer(reg, nil), fleet, tt.config)

			ctx := context.Background()
			if tt.override != nil {
				ctx = ContextWithHedgeConfig(ctx, *tt.override)
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://orders/orders", nil)
			require.NoError(t, err)

			resp, err := rt.RoundTrip(req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, fleet.RequestCount())
				return
			}
			require.NoError(t, err)
			resp.Body.Close()

			require.Eventually(t, func() bool {
				return fleet.RequestCount() == tt.wantCalls
			}, time.Second, 5*time.Millisecond)
		})
	}
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestHedgeTransport_ClosesRequestBody(t *testing.T) {
	reg := discovery.NewRegistry(instA, instB)
	fleet := NewMockTransport().StubResponse(http.StatusOK, "ok")
	rt := NewHedgeTransport(reg, discovery.NewBalancer(reg, nil), fleet, Hedge(2))

	body := &closeTracker{Reader: strings.NewReader("payload")}
	req, err := http.NewRequest(http.MethodPut, "http://orders/orders/1", body)
	require.NoError(t, err)

	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.True(t, body.closed)

	require.Eventually(t, func() bool {
		return fleet.RequestCount() == 2
	}, time.Second, 5*time.Millisecond)
	for _, r := range fleet.Requests() {
		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(b))
	}
}

func TestHedgeTransport_WithSelectorMock(t *testing.T) {
	selector := mocks.NewSelector(t)
	selector.EXPECT().Choose(mock.Anything, "orders").Return(instB, nil).Once()
	selector.EXPECT().
		ReconstructURL(instB, mock.Anything).
		RunAndReturn(discovery.ReconstructURL).Once()

	reg := discovery.NewRegistry(instA, instB)
	fleet := NewMockTransport().StubHost(hostB, http.StatusOK, "b", 0)
	rt := NewHedgeTransport(reg, selector, fleet, DefaultHedgeConfig())

	req, err := http.NewRequest(http.MethodGet, "http://orders/orders", nil)
	require.NoError(t, err)

	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, "b", readBody(t, resp))
	assert.Equal(t, []string{hostB}, fleet.Hosts())
}
