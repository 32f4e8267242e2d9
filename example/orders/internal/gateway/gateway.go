// Package gateway exposes the orders fleet through a hedging HTTP client.
//
// Reads are hedged across the configured number of instances. Writes are
// sent to a single instance because order creation is not idempotent.
package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kroma-labs/sentinel-hedge/example/orders/internal/orders"
	"github.com/kroma-labs/sentinel-hedge/httpclient"
	"github.com/kroma-labs/sentinel-hedge/httpserver"
)

// Gateway forwards requests to the orders service.
type Gateway struct {
	client    *httpclient.Client
	serviceID string
	logger    zerolog.Logger
}

// New returns a Gateway calling http://<serviceID>/... through client.
// The client must be built with httpclient.WithDiscovery.
func New(client *httpclient.Client, serviceID string, logger zerolog.Logger) *Gateway {
	return &Gateway{client: client, serviceID: serviceID, logger: logger}
}

// Routes mounts the gateway API on a new chi router.
//
//	GET  /hedge
//	GET  /orders
//	POST /orders
//	GET  /orders/{id}
//	GET  /orders/{id}/events
func (g *Gateway) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/hedge", g.hedge)
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", g.list)
		r.Post("/", g.create)
		r.Get("/{id}", g.get)
		r.Get("/{id}/events", g.events)
	})
	return r
}

func (g *Gateway) url(path string) string {
	return "http://" + g.serviceID + path
}

func (g *Gateway) hedge(w http.ResponseWriter, r *http.Request) {
	resp, err := g.client.Request("Hi").Get(r.Context(), g.url("/hi"))
	if err != nil {
		g.writeUpstreamError(r.Context(), w, err)
		return
	}

	body, err := resp.String()
	if err != nil {
		g.writeUpstreamError(r.Context(), w, err)
		return
	}
	if resp.IsError() {
		httpserver.WriteError(w, resp.StatusCode, body)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if id := resp.Header.Get(httpserver.InstanceIDHeader); id != "" {
		w.Header().Set(httpserver.InstanceIDHeader, id)
	}
	_, _ = w.Write([]byte(body))
}

func (g *Gateway) list(w http.ResponseWriter, r *http.Request) {
	var out httpserver.Response[[]orders.Order]
	rb := g.client.Request("ListOrders").Path(g.url("/orders"))
	forward(g, w, r, rb, http.MethodGet, &out)
}

func (g *Gateway) get(w http.ResponseWriter, r *http.Request) {
	var out httpserver.Response[orders.Order]
	rb := g.client.Request("GetOrder").
		Path(g.url("/orders/{id}")).
		PathParam("id", chi.URLParam(r, "id"))
	forward(g, w, r, rb, http.MethodGet, &out)
}

func (g *Gateway) events(w http.ResponseWriter, r *http.Request) {
	var out httpserver.Response[[]orders.Event]
	rb := g.client.Request("GetOrderEvents").
		Path(g.url("/orders/{id}/events")).
		PathParam("id", chi.URLParam(r, "id"))
	forward(g, w, r, rb, http.MethodGet, &out)
}

func (g *Gateway) create(w http.ResponseWriter, r *http.Request) {
	var in orders.Order
	if !httpserver.DecodeJSON(w, r, &in) {
		return
	}
	if err := in.Validate(); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, "validation failed",
			httpserver.Error{Field: "productName", Message: "is required"})
		return
	}

	var out httpserver.Response[orders.Order]
	rb := g.client.Request("CreateOrder").
		Path(g.url("/orders")).
		Hedge(1).
		Body(orders.Order{ProductName: in.ProductName})
	forward(g, w, r, rb, http.MethodPost, &out)
}

// forward sends rb and relays the upstream envelope with its status code.
func forward[T any](
	g *Gateway,
	w http.ResponseWriter,
	r *http.Request,
	rb *httpclient.RequestBuilder,
	method string,
	out *httpserver.Response[T],
) {
	var upstreamErr httpserver.Response[any]
	rb.Decode(out).DecodeError(&upstreamErr)

	var (
		resp *httpclient.Response
		err  error
	)
	switch method {
	case http.MethodPost:
		resp, err = rb.Post(r.Context())
	default:
		resp, err = rb.Get(r.Context())
	}
	if err != nil {
		g.writeUpstreamError(r.Context(), w, err)
		return
	}

	if resp.IsError() {
		httpserver.WriteJSON(w, resp.StatusCode, upstreamErr)
		return
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		w.Header().Set("Location", loc)
	}
	httpserver.WriteJSON(w, resp.StatusCode, *out)
}

func (g *Gateway) writeUpstreamError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		precondition *httpclient.PreconditionError
		candidate    *httpclient.CandidateError
	)
	switch {
	case errors.As(err, &precondition):
		g.logger.Warn().Err(err).
			Int("available", precondition.Available).
			Int("required", precondition.Required).
			Msg("not enough instances to hedge")
		httpserver.WriteError(w, http.StatusServiceUnavailable, "not enough service instances")
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// client went away; nothing useful to write
	case errors.As(err, &candidate):
		g.logger.Error().Err(err).Str("candidate", candidate.URL).Msg("winning candidate failed")
		httpserver.WriteError(w, http.StatusBadGateway, "upstream request failed")
	default:
		g.logger.Error().Err(err).Msg("upstream request failed")
		httpserver.WriteError(w, http.StatusBadGateway, "upstream request failed")
	}
}
