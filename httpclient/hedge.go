package httpclient

import "context"

// HedgeConfig configures how many distinct backends one logical request is
// raced across.
//
// The dispatcher asks the selector for an instance until it has Attempts
// distinct concrete URLs or it has asked MaxProbes times, sends one request
// to each, and returns whichever finishes first. Success and failure race
// on equal terms: a fast connection refusal beats a slow 200.
//
// IMPORTANT: every hedged request reaches up to Attempts backends. Only hedge
// operations that are safe to execute more than once (reads, idempotent
// writes, writes carrying an idempotency key). Nothing here enforces that.
//
// Example usage:
//
//	client := httpclient.New(
//	    httpclient.WithDiscovery(registry, balancer),
//	    httpclient.WithHedge(httpclient.HedgeConfig{Attempts: 2}),
//	)
type HedgeConfig struct {
	// Attempts is the number of distinct instances to race.
	//
	// The resolver must report at least Attempts live instances, otherwise
	// dispatch fails with a *PreconditionError before sending anything.
	//
	// Default: 1 (no hedging, plain load-balanced call)
	Attempts int

	// MaxProbes caps the number of selector calls per dispatch. It bounds
	// the loop when the selector keeps returning instances already chosen.
	// When the cap is hit the dispatch goes ahead with the candidates it has.
	//
	// Default: 2 * Attempts
	MaxProbes int
}

// DefaultHedgeConfig returns a single-attempt configuration.
func DefaultHedgeConfig() HedgeConfig {
	return HedgeConfig{Attempts: 1}
}

// Hedge returns a configuration racing attempts distinct instances.
func Hedge(attempts int) HedgeConfig {
	return HedgeConfig{Attempts: attempts}
}

// probeLimit returns MaxProbes, or its 2*Attempts default.
func (c HedgeConfig) probeLimit() int {
	if c.MaxProbes > 0 {
		return c.MaxProbes
	}
	return 2 * c.Attempts
}

type hedgeConfigKey struct{}

// ContextWithHedgeConfig overrides the hedge configuration of a client or
// hedge transport for requests carrying ctx.
func ContextWithHedgeConfig(ctx context.Context, cfg HedgeConfig) context.Context {
	return context.WithValue(ctx, hedgeConfigKey{}, cfg)
}

// hedgeConfigFromContext returns the override set by ContextWithHedgeConfig.
func hedgeConfigFromContext(ctx context.Context) (HedgeConfig, bool) {
	cfg, ok := ctx.Value(hedgeConfigKey{}).(HedgeConfig)
	return cfg, ok
}
