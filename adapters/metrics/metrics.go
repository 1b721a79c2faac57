// Package metrics provides Prometheus metrics collection for metergate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for metergate.
type Collector struct {
	// Gate metrics
	GateDecisions *prometheus.CounterVec

	// Credit metrics
	CreditDeductions *prometheus.CounterVec
	CreditGrants     prometheus.Counter

	// Concurrency metrics
	VersionConflicts prometheus.Counter

	// Webhook metrics
	WebhookEvents *prometheus.CounterVec

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates a new metrics collector with all metrics registered.
func New() *Collector {
	return &Collector{
		GateDecisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "gate_decisions_total",
				Help:      "Usage gate decisions by feature, tier and outcome",
			},
			[]string{"feature", "tier", "outcome"},
		),

		CreditDeductions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "credit_deductions_total",
				Help:      "Credit deduction attempts by outcome",
			},
			[]string{"outcome"},
		),
		CreditGrants: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "credit_grants_total",
				Help:      "Credit grants applied from upgrades",
			},
		),

		VersionConflicts: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "version_conflicts_total",
				Help:      "Optimistic concurrency conflicts surfaced to callers",
			},
		),

		WebhookEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "webhook_events_total",
				Help:      "Billing webhook events by type and result",
			},
			[]string{"event_type", "result"},
		),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "requests_total",
				Help:      "HTTP requests by method, path and status",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "metergate",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
	}
}
