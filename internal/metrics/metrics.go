// Package metrics holds the shop's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shopbot"

type Metrics struct {
	registry *prometheus.Registry

	OrdersCreated     prometheus.Counter
	PaymentsConfirmed prometheus.Counter
	// Deliveries by mode: auto, manual.
	Deliveries *prometheus.CounterVec
	// Reminders by result: sent, failed.
	Reminders *prometheus.CounterVec
	// Commands by name and outcome: ok, error, denied.
	Commands *prometheus.CounterVec
	// ReminderScanDuration observes each reminder tick.
	ReminderScanDuration prometheus.Histogram
}

// New creates the collectors on a private registry, so tests can build as many as they like.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Total orders created",
		}),
		PaymentsConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_confirmed_total",
			Help:      "Total payments confirmed by an admin",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Orders approved for delivery",
		}, []string{"mode"}),
		Reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_reminders_total",
			Help:      "Payment reminders attempted",
		}, []string{"result"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Chat commands handled",
		}, []string{"command", "outcome"}),
		ReminderScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reminder_scan_duration_seconds",
			Help:      "Duration of one reminder scan",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.OrdersCreated,
		m.PaymentsConfirmed,
		m.Deliveries,
		m.Reminders,
		m.Commands,
		m.ReminderScanDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
