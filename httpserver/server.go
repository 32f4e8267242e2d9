package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kroma-labs/sentinel-hedge/discovery"
	"github.com/rs/zerolog"
)

// ErrNoHandler is returned when the server is started without a handler.
var ErrNoHandler = errors.New("httpserver: handler is required (use WithHandler)")

// Server is one backend instance of a logical service. It wraps http.Server
// with graceful shutdown, signal handling and, when configured, registry
// membership: the instance is advertised once it is listening, kept alive by
// heartbeats and withdrawn before in-flight requests are drained.
//
//	server := httpserver.New(
//	    httpserver.WithServiceName("orders"),
//	    httpserver.WithRegistration(httpserver.RegistrationConfig{Registrar: registry}),
//	    httpserver.WithHandler(router),
//	)
//
//	// Blocks until SIGTERM, SIGINT, ctx cancellation or Shutdown.
//	if err := server.ListenAndServe(ctx); err != nil {
//	    log.Fatal().Err(err).Msg("server failed")
//	}
type Server struct {
	httpServer *http.Server
	config     Config
	logger     zerolog.Logger

	ready    chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu       sync.RWMutex
	addr     net.Addr
	instance *discovery.Instance
}

// New creates a Server. WithHandler is required; everything else falls back
// to DefaultConfig.
func New(opts ...Option) *Server {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "sentinel-hedge"
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	logger = logger.With().
		Str("service", cfg.ServiceName).
		Str("instance", cfg.InstanceID).
		Logger()

	middlewares := []Middleware{ServedBy(cfg.InstanceID)}

	if cfg.TracingConfig != nil {
		tracingCfg := *cfg.TracingConfig
		tracingCfg.serviceName = cfg.ServiceName
		tracingCfg.instanceID = cfg.InstanceID
		middlewares = append(middlewares, Tracing(tracingCfg))
	}

	if cfg.MetricsConfig != nil {
		metricsCfg := *cfg.MetricsConfig
		metricsCfg.serviceName = cfg.ServiceName
		metricsCfg.instanceID = cfg.InstanceID
		metrics, err := NewMetrics(metricsCfg)
		if err != nil {
			logger.Warn().Err(err).Msg("server metrics disabled")
		} else {
			middlewares = append(middlewares, metrics.Middleware())
		}
	}

	if cfg.LoggerConfig != nil {
		loggerCfg := *cfg.LoggerConfig
		loggerCfg.serviceName = cfg.ServiceName
		loggerCfg.instanceID = cfg.InstanceID
		middlewares = append(middlewares, Logger(loggerCfg))
	}

	if cfg.RateLimitConfig != nil {
		middlewares = append(middlewares, RateLimit(*cfg.RateLimitConfig))
	}

	if cfg.RequestTimeout > 0 {
		middlewares = append(middlewares, Timeout(cfg.RequestTimeout))
	}

	if cfg.HealthHandler != nil {
		health := NewHealthHandler(
			withHealthServiceName(cfg.ServiceName),
			withHealthInstanceID(cfg.InstanceID),
			WithVersion(cfg.HealthVersion),
		)
		if cfg.Registration != nil {
			if resolver, ok := cfg.Registration.Registrar.(discovery.Resolver); ok {
				health.AddReadinessCheck("registry", RegistryCheck(resolver, cfg.ServiceName, cfg.InstanceID))
			}
		}
		*cfg.HealthHandler = health
	}

	middlewares = append(middlewares, cfg.Middleware...)

	handler := cfg.Handler
	if handler != nil {
		handler = Chain(middlewares...)(handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
			TLSConfig:         cfg.TLSConfig,
		},
		config: cfg,
		logger: logger,
		ready:  make(chan struct{}),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// ListenAndServe listens on Config.Addr and serves until shutdown.
//
// Shutdown starts when ctx is cancelled, SIGTERM or SIGINT arrives, or
// Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("httpserver: listen %s: %w", s.httpServer.Addr, err)
	}
	return s.serve(ctx, ln, false, "", "")
}

// ListenAndServeTLS is ListenAndServe over TLS with the given certificate
// and key files.
func (s *Server) ListenAndServeTLS(ctx context.Context, certFile, keyFile string) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("httpserver: listen %s: %w", s.httpServer.Addr, err)
	}
	return s.serve(ctx, ln, true, certFile, keyFile)
}

// Serve serves on an existing listener until shutdown. The listener is
// closed when Serve returns.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	return s.serve(ctx, ln, false, "", "")
}

func (s *Server) serve(ctx context.Context, ln net.Listener, useTLS bool, certFile, keyFile string) error {
	defer close(s.done)

	if s.config.Handler == nil {
		_ = ln.Close()
		return ErrNoHandler
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(shutdownChan)

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	serverErrChan := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("addr", ln.Addr().String()).
			Bool("tls", useTLS).
			Msg("server starting")

		var err error
		if useTLS {
			err = s.httpServer.ServeTLS(ln, certFile, keyFile)
		} else {
			err = s.httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
		close(serverErrChan)
	}()

	// Heartbeats run on their own context so that deregistration happens
	// before draining, whatever triggered the shutdown.
	hbCtx, stopHeartbeat := context.WithCancel(context.WithoutCancel(ctx))
	defer stopHeartbeat()
	heartbeatDone, err := s.register(hbCtx, ln.Addr())
	if err != nil {
		_ = s.httpServer.Close()
		return err
	}

	close(s.ready)

	var serveErr error
	select {
	case err := <-serverErrChan:
		if err != nil {
			s.logger.Error().Err(err).Msg("server error")
			serveErr = err
		}
	case err := <-heartbeatDone:
		heartbeatDone = nil
		if err != nil {
			s.logger.Error().Err(err).Msg("registration failed")
			serveErr = fmt.Errorf("httpserver: registration: %w", err)
		}
	case sig := <-shutdownChan:
		s.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case <-ctx.Done():
		s.logger.Info().Err(ctx.Err()).Msg("context cancelled, shutting down")
	case <-s.stop:
		s.logger.Info().Msg("shutdown requested")
	}

	if heartbeatDone != nil {
		stopHeartbeat()
		if err := <-heartbeatDone; err != nil {
			s.logger.Warn().Err(err).Msg("deregistration failed")
		} else {
			s.logger.Info().Msg("instance deregistered")
		}
		if serveErr == nil && s.config.DeregisterDelay > 0 {
			time.Sleep(s.config.DeregisterDelay)
		}
	}

	if err := s.shutdown(ctx); err != nil {
		return err
	}
	return serveErr
}

// register advertises the instance and returns a channel that yields the
// heartbeat result once it stops. It returns a nil channel when registration
// is not configured.
func (s *Server) register(ctx context.Context, addr net.Addr) (chan error, error) {
	if s.config.Registration == nil || s.config.Registration.Registrar == nil {
		return nil, nil
	}

	inst, err := advertisedInstance(s.config, addr)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.instance = &inst
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- s.config.Registration.Registrar.Heartbeat(ctx, inst, s.config.Registration.Interval)
	}()

	s.logger.Info().
		Str("url", inst.Key()).
		Dur("interval", s.config.Registration.Interval).
		Msg("registering instance")

	return done, nil
}

func (s *Server) shutdown(ctx context.Context) error {
	s.logger.Info().
		Dur("timeout", s.config.ShutdownTimeout).
		Msg("starting graceful shutdown")

	// ctx may already be cancelled; draining still gets the full timeout.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("graceful shutdown failed, forcing close")
		if closeErr := s.httpServer.Close(); closeErr != nil {
			s.logger.Error().Err(closeErr).Msg("force close failed")
		}
		return err
	}

	s.logger.Info().Msg("server stopped gracefully")
	return nil
}

// Shutdown asks a running server to deregister and drain, and waits until it
// has stopped or ctx is done. It is a no-op before the server has started.
func (s *Server) Shutdown(ctx context.Context) error {
	select {
	case <-s.ready:
	default:
		return nil
	}

	s.stopOnce.Do(func() { close(s.stop) })

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready is closed once the server is listening and, if configured, has
// started its registration.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address once the server is listening, and the
// configured address before that.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.addr != nil {
		return s.addr.String()
	}
	return s.httpServer.Addr
}

// Instance returns the registry entry advertised for this server, if any.
func (s *Server) Instance() (discovery.Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.instance == nil {
		return discovery.Instance{}, false
	}
	return *s.instance, true
}

// ServiceName returns the logical service id.
func (s *Server) ServiceName() string {
	return s.config.ServiceName
}

// InstanceID returns the id this server registers and reports under.
func (s *Server) InstanceID() string {
	return s.config.InstanceID
}
