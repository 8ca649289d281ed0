// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookOutcomes counts inbound webhook deliveries by outcome
	// (stored, duplicate, unknown_sender, no_rfp, ignored, unauthorized, error).
	WebhookOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rfpd",
		Name:      "webhook_deliveries_total",
		Help:      "Inbound mail webhook deliveries by outcome.",
	}, []string{"outcome"})

	// EmailsSent counts outbound RFP emails by result (success, failure).
	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rfpd",
		Name:      "emails_sent_total",
		Help:      "Outbound RFP emails by result.",
	}, []string{"result"})

	// LLMCalls counts text-generation calls by operation and result
	// (ok, upstream_error, parse_error).
	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rfpd",
		Name:      "llm_calls_total",
		Help:      "Text-generation calls by operation and result.",
	}, []string{"operation", "result"})

	LLMDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rfpd",
		Name:      "llm_call_duration_seconds",
		Help:      "Latency of text-generation calls.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	}, []string{"operation"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rfpd",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route pattern, method and status code.",
	}, []string{"route", "method", "code"})
)
