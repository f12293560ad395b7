package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
	Payments  *prometheus.CounterVec
	Webhooks  *prometheus.CounterVec
	Outbox    *prometheus.CounterVec
}

// NewServerMetrics registers the collectors on reg. Tests pass a fresh
// registry; the service passes prometheus.DefaultRegisterer.
func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"route", "method", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"route", "method"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_outcomes_total",
		Help:      "Payment steps by provider, step and outcome.",
	}, []string{"provider", "step", "outcome"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_deliveries_total",
		Help:      "Inbound payment webhooks by provider and outcome.",
	}, []string{"provider", "outcome"})
	outbox := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_events_total",
		Help:      "Outbox events handled by the publisher.",
	}, []string{"event_type", "result"})

	reg.MustRegister(requests, latency, payments, webhooks, outbox)
	return &ServerMetrics{
		Requests:  requests,
		LatencyMS: latency,
		Payments:  payments,
		Webhooks:  webhooks,
		Outbox:    outbox,
	}
}

func (m *ServerMetrics) ObservePayment(provider, step, outcome string) {
	if m == nil {
		return
	}
	m.Payments.WithLabelValues(provider, step, outcome).Inc()
}

func (m *ServerMetrics) ObserveWebhook(provider, outcome string) {
	if m == nil {
		return
	}
	m.Webhooks.WithLabelValues(provider, outcome).Inc()
}

func (m *ServerMetrics) ObserveOutbox(eventType, result string) {
	if m == nil {
		return
	}
	m.Outbox.WithLabelValues(eventType, result).Inc()
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
