package httpserver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusHandler serves the default Prometheus registry. Pair it with the
// OpenTelemetry Prometheus exporter so that server and hedging client
// metrics are scraped from the same /metrics endpoint.
func PrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// PrometheusHandlerFor serves a dedicated registry, e.g. one passed to the
// exporter with prometheus.WithRegisterer.
func PrometheusHandlerFor(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
