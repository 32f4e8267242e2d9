// Package httpclient provides an instrumented HTTP client that hedges calls
// across discovered service instances.
//
// A hedged call resolves the instances of the service named by the request
// host, picks k distinct ones through a Selector, sends the request to all of
// them at once and returns whichever answer arrives first. The other
// responses are drained and closed in the background.
//
// # Quick Start
//
//	registry := discovery.NewRegistry()
//	registry.Register(discovery.Instance{ServiceID: "orders", InstanceID: "a", Host: "10.0.0.1", Port: 8080})
//	registry.Register(discovery.Instance{ServiceID: "orders", InstanceID: "b", Host: "10.0.0.2", Port: 8080})
//
//	client := httpclient.New(
//	    httpclient.WithServiceName("orders-client"),
//	    httpclient.WithDiscovery(registry, discovery.NewBalancer(registry, discovery.RoundRobin())),
//	    httpclient.WithHedge(httpclient.Hedge(2)),
//	)
//
//	var order Order
//	resp, err := client.Request("GetOrder").
//	    Decode(&order).
//	    Get(ctx, "http://orders/orders/42")
//
// Per request, the hedge factor can be overridden:
//
//	client.Request("CreateOrder").Hedge(1).Body(order).Post(ctx, "http://orders/orders")
//
// Hedging sends the same request several times. Only use it for idempotent
// operations.
//
// # Failure Semantics
//
// The first candidate to finish wins, whether it succeeded or not. A
// transport error from the winner is returned as *CandidateError. When the
// service has fewer instances than the hedge factor, the call fails with
// *PreconditionError before anything is sent.
//
// # Resilience
//
// Every candidate has its own circuit breaker (gobreaker, optionally backed by
// Redis) and may retry with exponential backoff. Retries are off by default
// since hedging already covers slow instances:
//
//	httpclient.New(
//	    httpclient.WithDiscovery(registry, lb),
//	    httpclient.WithRetryConfig(httpclient.DefaultRetryConfig()),
//	    httpclient.WithBreaker(httpclient.DefaultBreakerConfig()),
//	    httpclient.WithRateLimit(httpclient.DefaultRateLimitConfig()),
//	)
//
// # Observability
//
// The client emits OpenTelemetry spans and metrics. The dispatcher records a
// "hedge <service>" span with one event per winner, and the metrics
// http.client.hedge.candidates, http.client.hedge.probes,
// http.client.hedge.wins and http.client.hedge.duration. Winners are logged
// with zerolog at info level, including any request Attributes.
//
// # Custom Configuration
//
// For fine-tuned HTTP transport settings, use WithConfig:
//
//	cfg := httpclient.LowLatencyConfig()
//	cfg.Timeout = 2 * time.Second
//	client := httpclient.New(httpclient.WithConfig(cfg))
//
// # Pre-defined Configurations
//
//   - DefaultConfig: Balanced settings for general-purpose use
//   - LowLatencyConfig: Short timeouts, for hedged calls on hot paths
package httpclient
