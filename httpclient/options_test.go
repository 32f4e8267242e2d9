package httpclient

import (
	"net/http"
	"testing"
	"time"

	"github.com/kroma-labs/sentinel-hedge/discovery"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := newConfig()

	assert.Equal(t, DefaultConfig(), cfg.httpConfig)
	assert.Equal(t, DefaultHedgeConfig(), cfg.HedgeConfig)
	assert.False(t, cfg.RetryConfig.IsEnabled(), "retries are off by default")
	assert.Nil(t, cfg.BreakerConfig)
	assert.Zero(t, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, zerolog.Disabled, cfg.Logger.GetLevel())
	assert.NotNil(t, cfg.Tracer)
	assert.NotNil(t, cfg.Meter)
	assert.NotNil(t, cfg.Metrics)
	assert.NotNil(t, cfg.Propagators)
	assert.Empty(t, cfg.baseAttributes())
}

func TestNewConfig_Options(t *testing.T) {
	reg := discovery.NewRegistry(instA)
	lb := discovery.NewBalancer(reg, nil)
	base := NewMockTransport()

	cfg := newConfig(
		WithConfig(LowLatencyConfig()),
		WithServiceName("orders-client"),
		WithDebug(true),
		WithBaseURL("http://orders"),
		WithDefaultHeader("X-Tenant", "acme"),
		WithDiscovery(reg, lb),
		WithHedge(Hedge(2)),
		WithRetryConfig(DefaultRetryConfig()),
		WithBreaker(DefaultBreakerConfig()),
		WithRateLimit(DefaultRateLimitConfig()),
		WithBaseTransport(base),
	)

	assert.Equal(t, 5*time.Second, cfg.httpConfig.Timeout)
	assert.Equal(t, "orders-client", cfg.ServiceName)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "http://orders", cfg.BaseURL)
	assert.Equal(t, "acme", cfg.DefaultHeaders.Get("X-Tenant"))
	assert.Same(t, reg, cfg.Resolver)
	assert.Same(t, lb, cfg.Selector)
	assert.Equal(t, 2, cfg.HedgeConfig.Attempts)
	assert.True(t, cfg.RetryConfig.IsEnabled())
	require.NotNil(t, cfg.BreakerConfig)
	assert.Equal(t, uint32(5), cfg.BreakerConfig.ConsecutiveFailures)
	assert.InEpsilon(t, 100.0, cfg.RateLimit.RequestsPerSecond, 0.001)
	assert.Same(t, base, cfg.buildTransport())
	assert.Len(t, cfg.baseAttributes(), 1)
}

func TestBuildTransport(t *testing.T) {
	cfg := newConfig(WithConfig(LowLatencyConfig()))

	transport, ok := cfg.buildTransport().(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 50, transport.MaxIdleConnsPerHost)
	assert.Equal(t, 2*time.Second, transport.ResponseHeaderTimeout)
	assert.True(t, transport.ForceAttemptHTTP2)
}

func TestWithNilProviders(t *testing.T) {
	cfg := newConfig(WithTracerProvider(nil), WithMeterProvider(nil), WithPropagators(nil))
	assert.NotNil(t, cfg.TracerProvider)
	assert.NotNil(t, cfg.MeterProvider)
	assert.NotNil(t, cfg.Propagators)
}
