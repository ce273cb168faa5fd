// Package metrics records notification events as Prometheus series.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"notification-dispatch/internal/models"
)

// Sink is an event sink backed by Prometheus collectors.
type Sink struct {
	registry   *prometheus.Registry
	dispatches *prometheus.CounterVec
	recipients *prometheus.CounterVec
	retries    *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg gets a fresh registry with
// the Go and process collectors.
func New(reg *prometheus.Registry) *Sink {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	s := &Sink{
		registry: reg,
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notification_dispatch_total",
				Help: "Notifications that reached a final status",
			},
			[]string{"channel", "status"},
		),
		recipients: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notification_recipients_total",
				Help: "Per-recipient delivery outcomes",
			},
			[]string{"channel", "outcome"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notification_retries_total",
				Help: "Explicit retries of failed notifications",
			},
			[]string{"channel"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notification_transmit_duration_seconds",
				Help:    "Time spent in the channel adapter per notification",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel"},
		),
	}
	reg.MustRegister(s.dispatches, s.recipients, s.retries, s.duration)
	return s
}

func (s *Sink) Publish(ctx context.Context, ev models.Event) error {
	ch := string(ev.Channel)
	switch ev.Type {
	case models.EventCompleted, models.EventFailed:
		s.dispatches.WithLabelValues(ch, string(ev.Status)).Inc()
		s.duration.WithLabelValues(ch).Observe(ev.Duration.Seconds())
		for _, d := range ev.Deliveries {
			s.recipients.WithLabelValues(ch, string(d.Outcome)).Inc()
		}
	case models.EventRetried:
		s.retries.WithLabelValues(ch).Inc()
	}
	return nil
}

// Handler serves the registry in the Prometheus text format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (s *Sink) Registry() *prometheus.Registry {
	return s.registry
}
