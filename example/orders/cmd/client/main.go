// Command client serves a gateway in front of the orders fleet. Reads are
// hedged across ORDERS_HEDGE_ATTEMPTS instances discovered through Redis.
//
//	curl localhost:8080/hedge
//	curl localhost:8080/orders
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kroma-labs/sentinel-hedge/discovery"
	"github.com/kroma-labs/sentinel-hedge/example/orders/internal/config"
	"github.com/kroma-labs/sentinel-hedge/example/orders/internal/gateway"
	"github.com/kroma-labs/sentinel-hedge/example/orders/internal/telemetry"
	"github.com/kroma-labs/sentinel-hedge/httpclient"
	"github.com/kroma-labs/sentinel-hedge/httpserver"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stderr := zerolog.New(os.Stderr)
		stderr.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("client stopped")
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	// 1. OpenTelemetry
	providers, err := telemetry.Setup(ctx, config.ClientName, config.ServiceVersion, cfg.InstanceID, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()

	// 2. Prometheus metrics on their own port
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           httpserver.PrometheusHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	defer func() {
		_ = metricsServer.Close()
	}()

	// 3. Discovery and hedging client
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	registry := discovery.NewRedisRegistry(rdb,
		discovery.WithRedisPrefix(cfg.RegistryScope),
		discovery.WithRegistrationTTL(cfg.RegistryTTL),
		discovery.WithRedisLogger(logger),
	)

	client := httpclient.New(
		httpclient.WithConfig(httpclient.LowLatencyConfig()),
		httpclient.WithServiceName(config.ClientName),
		httpclient.WithLogger(logger),
		httpclient.WithDebug(cfg.Debug),
		httpclient.WithDiscovery(registry, discovery.NewBalancer(registry, discovery.RoundRobin())),
		httpclient.WithHedge(httpclient.Hedge(cfg.HedgeAttempts)),
		httpclient.WithBreaker(httpclient.DistributedBreakerConfig(httpclient.NewRedisStore(rdb))),
		httpclient.WithRateLimit(httpclient.DefaultRateLimitConfig()),
	)

	// 4. Gateway
	api := gateway.New(client, cfg.ServiceID, logger).Routes()
	skip := []string{"/ping", "/livez", "/readyz"}

	var health *httpserver.HealthHandler
	server := httpserver.New(
		httpserver.WithServiceName(config.ClientName),
		httpserver.WithInstanceID(cfg.InstanceID),
		httpserver.WithAddr(cfg.ClientAddr),
		httpserver.WithLogger(logger),
		httpserver.WithTracing(httpserver.TracingConfig{SkipPaths: skip}),
		httpserver.WithMetrics(httpserver.DefaultMetricsConfig()),
		httpserver.WithLogging(httpserver.LoggerConfig{Logger: logger, SkipPaths: skip}),
		httpserver.WithHealth(&health, config.ServiceVersion),
		httpserver.WithMiddleware(httpserver.Recovery(logger), httpserver.RequestID()),
		httpserver.WithHandler(api),
	)

	health.AddReadinessCheck("orders", func(ctx context.Context) error {
		instances, err := registry.Instances(ctx, cfg.ServiceID)
		if err != nil {
			return err
		}
		if len(instances) < cfg.HedgeAttempts {
			return &httpclient.PreconditionError{
				ServiceID: cfg.ServiceID,
				Required:  cfg.HedgeAttempts,
				Available: len(instances),
			}
		}
		return nil
	})
	health.Register(api)

	logger.Info().
		Str("service", cfg.ServiceID).
		Int("hedge_attempts", cfg.HedgeAttempts).
		Str("addr", cfg.ClientAddr).
		Msg("gateway starting")

	return server.ListenAndServe(ctx)
}
