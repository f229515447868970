package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// InstrumentedHandler wraps handlers with request metrics sharing one set of
// collectors.
type InstrumentedHandler struct {
	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
}

// NewInstrumentedHandler registers the inbound request metrics on reg.
func NewInstrumentedHandler(reg prometheus.Registerer) *InstrumentedHandler {
	return &InstrumentedHandler{
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "http_request_duration_seconds",
				Help: "Tracks the latencies for HTTP requests.",
			},
			[]string{"code", "handler", "method"},
		),
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Tracks the number of HTTP requests.",
			}, []string{"code", "handler", "method"},
		),
	}
}

// Handle instruments next under handlerName.
func (i *InstrumentedHandler) Handle(handlerName string, next http.Handler) http.Handler {
	labels := prometheus.Labels{"handler": handlerName}

	return promhttp.InstrumentHandlerDuration(i.requestDuration.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(i.requestsTotal.MustCurryWith(labels),
			next,
		),
	)
}
