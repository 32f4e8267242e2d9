// Package httpserver runs one backend instance of a hedged service: an
// http.Server with graceful shutdown, observability middleware, health
// probes and discovery registry membership.
//
// # Quick Start
//
//	router := chi.NewRouter()
//	router.Get("/orders/{id}", getOrder)
//
//	server := httpserver.New(
//	    httpserver.WithServiceName("orders"),
//	    httpserver.WithHandler(router),
//	)
//	if err := server.ListenAndServe(ctx); err != nil {
//	    log.Fatal().Err(err).Msg("server failed")
//	}
//
// # Registry Membership
//
// WithRegistration advertises the instance under its ServiceName once the
// listener is bound, so hedging clients resolving "http://orders/..." start
// selecting it. Heartbeats keep the entry alive. On shutdown the entry is
// removed first, the server keeps answering for DeregisterDelay, and only
// then are in-flight requests drained:
//
//	registry := discovery.NewRedisRegistry(rdb)
//	server := httpserver.New(
//	    httpserver.WithServiceName("orders"),
//	    httpserver.WithAddr(":0"),
//	    httpserver.WithRegistration(httpserver.RegistrationConfig{Registrar: registry}),
//	    httpserver.WithHandler(router),
//	)
//
// Every response carries X-Instance-ID, which tells a caller which hedged
// candidate won.
//
// # Observability
//
// The ServiceName and InstanceID are applied to every component:
//
//	server := httpserver.New(
//	    httpserver.WithServiceName("orders"),
//	    httpserver.WithTracing(httpserver.TracingConfig{}),
//	    httpserver.WithMetrics(httpserver.DefaultMetricsConfig()),
//	    httpserver.WithLogging(httpserver.LoggerConfig{Logger: logger}),
//	    httpserver.WithHealth(&health, "1.0.0"),
//	    httpserver.WithHandler(router),
//	)
//
// Requests abandoned by their client, which is how hedged losers usually
// end, are counted in http.server.request.abandoned and flagged in the
// request log.
//
// # Load Shedding
//
// WithRateLimit answers 429 above the configured rate and WithRequestTimeout
// answers 503 to handlers that overrun. Both surface to a hedging client as
// a failed candidate.
//
// # Health Checks
//
//	var health *httpserver.HealthHandler
//	server := httpserver.New(
//	    httpserver.WithHealth(&health, "1.0.0"),
//	    httpserver.WithRegistration(httpserver.RegistrationConfig{Registrar: registry}),
//	    httpserver.WithHandler(router),
//	)
//	health.Register(router) // /ping, /livez, /readyz
//
// When the registrar can also list instances, /readyz includes a "registry"
// check that fails while the instance is missing from the registry.
package httpserver
