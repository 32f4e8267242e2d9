package httpserver

import "net/http"

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain composes middleware so that the first one is the outermost:
//
//	Chain(Recovery(l), RequestID(), Logger(cfg))(h)
//
// runs Recovery -> RequestID -> Logger -> h on the way in.
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// DefaultMiddleware returns Recovery, RequestID and, when a logger is
// given, request logging.
//
//	router.Use(httpserver.DefaultMiddleware(
//	    httpserver.WithDefaultLogger(httpserver.LoggerConfig{Logger: logger}),
//	))
func DefaultMiddleware(opts ...MiddlewareOption) Middleware {
	cfg := &middlewareConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.logger == nil {
		return RequestID()
	}
	return Chain(
		Recovery(cfg.logger.Logger),
		RequestID(),
		Logger(*cfg.logger),
	)
}

type middlewareConfig struct {
	logger *LoggerConfig
}

// MiddlewareOption configures DefaultMiddleware.
type MiddlewareOption func(*middlewareConfig)

// WithDefaultLogger adds Recovery and request logging to DefaultMiddleware.
func WithDefaultLogger(cfg LoggerConfig) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.logger = &cfg
	}
}
