package httpclient

import (
	"net/http"

	"github.com/kroma-labs/sentinel-hedge/discovery"
)

// Compile-time interface check.
var _ http.RoundTripper = (*hedgeTransport)(nil)

// hedgeTransport adapts a Dispatcher to http.RoundTripper so that any
// *http.Client can hedge transparently.
type hedgeTransport struct {
	dispatcher *Dispatcher
	config     HedgeConfig
}

// NewHedgeTransport returns an http.RoundTripper that dispatches every
// request through a Dispatcher. Request URLs name the service as host:
//
//	reg := discovery.NewRegistry(instances...)
//	client := &http.Client{
//	    Transport: httpclient.NewHedgeTransport(reg, discovery.NewBalancer(reg, nil),
//	        http.DefaultTransport, httpclient.Hedge(2)),
//	}
//	resp, err := client.Get("http://orders/orders/42")
//
// A HedgeConfig stored with ContextWithHedgeConfig takes precedence over cfg
// for that request.
func NewHedgeTransport(
	resolver discovery.Resolver,
	selector discovery.Selector,
	next http.RoundTripper,
	cfg HedgeConfig,
	opts ...Option,
) http.RoundTripper {
	return &hedgeTransport{
		dispatcher: NewDispatcher(resolver, selector, next, opts...),
		config:     cfg,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *hedgeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers own the request body. Dispatch snapshots it before
	// returning, so closing afterwards is safe.
	if req.Body != nil {
		defer req.Body.Close()
	}

	cfg := t.config
	if override, ok := hedgeConfigFromContext(req.Context()); ok {
		cfg = override
	}
	return t.dispatcher.Dispatch(req, cfg)
}
