// Command service runs one instance of the orders service. Start several to
// form a fleet; each registers itself in Redis under the same service id.
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
	"github.com/kroma-labs/sentinel-hedge/example/orders/internal/orders"
	"github.com/kroma-labs/sentinel-hedge/example/orders/internal/telemetry"
	"github.com/kroma-labs/sentinel-hedge/httpserver"
)

var seedProducts = []string{"pants", "t-shirt", "shots", "dress"}

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
		logger.Fatal().Err(err).Msg("service stopped")
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	// 1. OpenTelemetry
	providers, err := telemetry.Setup(ctx, cfg.ServiceID, config.ServiceVersion, cfg.InstanceID, cfg.OTLPEndpoint)
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

	// 3. Registry
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	registry := discovery.NewRedisRegistry(rdb,
		discovery.WithRedisPrefix(cfg.RegistryScope),
		discovery.WithRegistrationTTL(cfg.RegistryTTL),
		discovery.WithRedisLogger(logger),
	)

	// 4. Orders API
	store := orders.NewStore()
	store.Seed(seedProducts...)

	api := orders.NewHandler(store, cfg.InstanceID,
		orders.WithMaxLatency(cfg.MaxLatency),
		orders.WithLogger(logger),
	).Routes()

	skip := []string{"/ping", "/livez", "/readyz"}

	var health *httpserver.HealthHandler
	server := httpserver.New(
		httpserver.WithConfig(httpserver.ProductionConfig()),
		httpserver.WithServiceName(cfg.ServiceID),
		httpserver.WithInstanceID(cfg.InstanceID),
		httpserver.WithAddr(cfg.ServiceAddr),
		httpserver.WithLogger(logger),
		httpserver.WithTracing(httpserver.TracingConfig{SkipPaths: skip}),
		httpserver.WithMetrics(httpserver.DefaultMetricsConfig()),
		httpserver.WithLogging(httpserver.LoggerConfig{
			Logger:        logger,
			SkipPaths:     skip,
			SlowThreshold: cfg.MaxLatency,
		}),
		httpserver.WithHealth(&health, config.ServiceVersion),
		httpserver.WithRegistration(httpserver.RegistrationConfig{
			Registrar:     registry,
			AdvertiseHost: cfg.AdvertiseHost,
			Interval:      cfg.Heartbeat,
			Metadata:      map[string]string{"version": config.ServiceVersion},
		}),
		httpserver.WithMiddleware(httpserver.Recovery(logger), httpserver.RequestID()),
		httpserver.WithHandler(api),
	)

	health.AddReadinessCheck("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	health.Register(api)

	return server.ListenAndServe(ctx)
}
