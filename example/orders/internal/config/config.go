package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	// Service identity. Clients address the fleet as http://<ServiceID>/...
	DefaultServiceID = "orders"
	ServiceVersion   = "0.1.0"
	ClientName       = "orders-client"

	// Network
	DefaultServiceAddr = ":0"
	DefaultClientAddr  = ":8080"
	DefaultMetricsAddr = ":2112"

	// Redis registry
	DefaultRedisAddr     = "localhost:6379"
	DefaultRegistryTTL   = 15 * time.Second
	DefaultHeartbeat     = 5 * time.Second
	DefaultRegistryScope = "sentinel-hedge"

	// Hedging
	DefaultHedgeAttempts = 2

	// DefaultMaxLatency is the upper bound of the random delay each service
	// instance adds to order requests, so that hedging has something to win.
	DefaultMaxLatency = 200 * time.Millisecond

	// OpenTelemetry. An empty endpoint disables trace export.
	DefaultOTLPEndpoint = ""
)

// Config is the runtime configuration of both binaries. Every field can be
// overridden with the environment variable named in its comment.
type Config struct {
	ServiceID     string        // ORDERS_SERVICE_ID
	InstanceID    string        // ORDERS_INSTANCE_ID
	ServiceAddr   string        // ORDERS_SERVICE_ADDR
	AdvertiseHost string        // ORDERS_ADVERTISE_HOST
	ClientAddr    string        // ORDERS_CLIENT_ADDR
	MetricsAddr   string        // ORDERS_METRICS_ADDR
	RedisAddr     string        // ORDERS_REDIS_ADDR
	RegistryTTL   time.Duration // ORDERS_REGISTRY_TTL
	Heartbeat     time.Duration // ORDERS_HEARTBEAT
	RegistryScope string        // ORDERS_REGISTRY_SCOPE
	HedgeAttempts int           // ORDERS_HEDGE_ATTEMPTS
	MaxLatency    time.Duration // ORDERS_MAX_LATENCY
	OTLPEndpoint  string        // OTEL_EXPORTER_OTLP_ENDPOINT
	Debug         bool          // ORDERS_DEBUG
}

// Load returns the defaults overridden by the environment. Malformed values
// are reported together rather than silently replaced by defaults.
func Load() (Config, error) {
	p := &parser{}
	cfg := Config{
		ServiceID:     p.str("ORDERS_SERVICE_ID", DefaultServiceID),
		InstanceID:    p.str("ORDERS_INSTANCE_ID", ""),
		ServiceAddr:   p.str("ORDERS_SERVICE_ADDR", DefaultServiceAddr),
		AdvertiseHost: p.str("ORDERS_ADVERTISE_HOST", ""),
		ClientAddr:    p.str("ORDERS_CLIENT_ADDR", DefaultClientAddr),
		MetricsAddr:   p.str("ORDERS_METRICS_ADDR", DefaultMetricsAddr),
		RedisAddr:     p.str("ORDERS_REDIS_ADDR", DefaultRedisAddr),
		RegistryTTL:   p.dur("ORDERS_REGISTRY_TTL", DefaultRegistryTTL),
		Heartbeat:     p.dur("ORDERS_HEARTBEAT", DefaultHeartbeat),
		RegistryScope: p.str("ORDERS_REGISTRY_SCOPE", DefaultRegistryScope),
		HedgeAttempts: p.integer("ORDERS_HEDGE_ATTEMPTS", DefaultHedgeAttempts),
		MaxLatency:    p.dur("ORDERS_MAX_LATENCY", DefaultMaxLatency),
		OTLPEndpoint:  p.str("OTEL_EXPORTER_OTLP_ENDPOINT", DefaultOTLPEndpoint),
		Debug:         p.boolean("ORDERS_DEBUG", false),
	}

	if cfg.HedgeAttempts < 1 {
		p.fail("ORDERS_HEDGE_ATTEMPTS", strconv.Itoa(cfg.HedgeAttempts), errors.New("must be at least 1"))
	}
	if cfg.RegistryTTL <= 0 {
		p.fail("ORDERS_REGISTRY_TTL", cfg.RegistryTTL.String(), errors.New("must be positive"))
	}

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// parser collects one error per malformed variable.
type parser struct {
	errs []error
}

func (p *parser) fail(key, value string, err error) {
	p.errs = append(p.errs, fmt.Errorf("config: %s=%q: %w", key, value, err))
}

func (p *parser) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (p *parser) dur(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

func (p *parser) integer(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}
