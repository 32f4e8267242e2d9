package httpclient

import (
	"net/http"
)

// Client is a high-level HTTP client with fluent request building,
// OpenTelemetry instrumentation and optional hedged dispatch.
//
// Create a Client using New():
//
//	client := httpclient.New(
//	    httpclient.WithBaseURL("http://orders"),
//	    httpclient.WithDiscovery(registry, balancer),
//	    httpclient.WithHedge(httpclient.Hedge(2)),
//	)
//
//	var order Order
//	resp, err := client.Request("GetOrder").
//	    Path("/orders/{id}").
//	    PathParam("id", id).
//	    Decode(&order).
//	    Get(ctx)
type Client struct {
	httpClient *http.Client
	config     *internalConfig

	// dispatcher is nil unless WithDiscovery was given.
	dispatcher *Dispatcher
}

// HTTP returns the underlying *http.Client. Its transport hedges when the
// client was built with WithDiscovery.
func (c *Client) HTTP() *http.Client {
	return c.httpClient
}

// Dispatcher returns the hedge dispatcher, or nil when hedging is disabled.
func (c *Client) Dispatcher() *Dispatcher {
	return c.dispatcher
}

// Request creates a new RequestBuilder for the given operation name.
// The operation name is used in debug logs and as a request attribute.
func (c *Client) Request(operationName string) *RequestBuilder {
	return &RequestBuilder{
		client:        c,
		operationName: operationName,
		headers:       make(http.Header),
		pathParams:    make(map[string]string),
	}
}

// New creates a Client.
//
// Every candidate request goes through, outermost first:
//
//	otel instrumentation -> per-instance circuit breaker -> retry -> base transport
//
// With WithDiscovery the candidates are produced by a Dispatcher, and the
// full chain is:
//
//	rate limit -> hedge dispatcher -> candidate chain (one per instance)
func New(opts ...Option) *Client {
	cfg := newConfig(opts...)

	withRetry := newRetryTransport(cfg.buildTransport(), cfg)
	withBreaker := newCircuitBreakerTransport(withRetry, cfg)
	var rt http.RoundTripper = newOtelTransport(withBreaker, cfg)

	var dispatcher *Dispatcher
	if cfg.Resolver != nil && cfg.Selector != nil {
		dispatcher = newDispatcher(cfg.Resolver, cfg.Selector, rt, cfg)
		rt = &hedgeTransport{dispatcher: dispatcher, config: cfg.HedgeConfig}
	}

	rt = newRateLimitTransport(rt, cfg.RateLimit)

	return &Client{
		httpClient: &http.Client{
			Transport: rt,
			Timeout:   cfg.httpConfig.Timeout,
		},
		config:     cfg,
		dispatcher: dispatcher,
	}
}
