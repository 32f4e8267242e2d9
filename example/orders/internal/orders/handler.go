package orders

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kroma-labs/sentinel-hedge/httpserver"
)

// Handler serves the orders API of one service instance.
type Handler struct {
	store      *Store
	instanceID string
	maxLatency time.Duration
	logger     zerolog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithMaxLatency makes every order route sleep for a random duration in
// [0, d) before answering. Zero disables the delay.
func WithMaxLatency(d time.Duration) HandlerOption {
	return func(h *Handler) {
		h.maxLatency = d
	}
}

// WithLogger sets the handler logger.
func WithLogger(l zerolog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = l
	}
}

// NewHandler returns a handler answering on behalf of instanceID.
func NewHandler(store *Store, instanceID string, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:      store,
		instanceID: instanceID,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes mounts the API on a new chi router.
//
//	GET    /hi
//	GET    /orders
//	POST   /orders
//	GET    /orders/{id}
//	PUT    /orders/{id}
//	DELETE /orders/{id}
//	GET    /orders/{id}/events
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(CaseInsensitivePaths)

	r.Get("/hi", h.hi)

	r.Route("/orders", func(r chi.Router) {
		r.Use(SimulatedLatency(h.maxLatency))

		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Get("/{id}/events", h.events)
	})

	return r
}

func (h *Handler) hi(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "hi from %s", h.instanceID)
}

func (h *Handler) list(w http.ResponseWriter, _ *http.Request) {
	httpserver.WriteSuccess(w, http.StatusOK, h.store.All(), "")
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	o, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, o, "")
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in Order
	if !httpserver.DecodeJSON(w, r, &in) {
		return
	}

	o, err := h.store.Create(in)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	h.logger.Info().Str("order_id", o.OrderID).Str("product", o.ProductName).Msg("order created")
	w.Header().Set("Location", "/orders/"+o.OrderID)
	httpserver.WriteSuccess(w, http.StatusCreated, o, "order created")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var in Order
	if !httpserver.DecodeJSON(w, r, &in) {
		return
	}

	o, err := h.store.Update(chi.URLParam(r, "id"), in.ProductName)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, o, "order updated")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.Delete(chi.URLParam(r, "id")); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	events, err := h.store.Events(chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	httpserver.WriteSuccess(w, http.StatusOK, events, "")
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpserver.WriteError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, ErrProductNameMissing):
		httpserver.WriteError(w, http.StatusBadRequest, "validation failed",
			httpserver.Error{Field: "productName", Message: "is required"})
	default:
		h.logger.Error().Err(err).Msg("order store failure")
		httpserver.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

// CaseInsensitivePaths lowercases the static segments of the request path
// so /Orders and /orders route the same way. Order ids are left untouched.
func CaseInsensitivePaths(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		segments := strings.Split(r.URL.Path, "/")
		for i, seg := range segments {
			switch lower := strings.ToLower(seg); lower {
			case "hi", "orders", "events":
				segments[i] = lower
			}
		}
		r.URL.Path = strings.Join(segments, "/")
		r.URL.RawPath = ""
		next.ServeHTTP(w, r)
	})
}

// SimulatedLatency delays each request by a random duration in [0, limit).
// A cancelled request context ends the delay early and the request is not
// served.
func SimulatedLatency(limit time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := time.NewTimer(rand.N(limit))
			defer t.Stop()

			select {
			case <-t.C:
				next.ServeHTTP(w, r)
			case <-r.Context().Done():
			}
		})
	}
}
