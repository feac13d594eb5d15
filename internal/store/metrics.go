package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every store metric.
const DefaultNamespace = "restrictedstore"

// Metrics holds the store's Prometheus collectors.
type Metrics struct {
	entries       prometheus.Gauge
	observers     prometheus.Gauge
	pending       prometheus.Gauge
	batches       prometheus.Counter
	notifications *prometheus.CounterVec
	panics        prometheus.Counter
	skipped       prometheus.Counter
	promises      *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	recordErrors  prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		entries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "models",
			Help:      "Number of wrapped models.",
		}),
		observers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observers",
			Help:      "Number of registered observers across all models.",
		}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "promises_pending",
			Help:      "Number of outstanding promises across all models.",
		}),
		batches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Change batches received from the feed.",
		}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Observer callbacks invoked, by mirror mode.",
		}, []string{"mirror"}),
		panics: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_panics_total",
			Help:      "Observer callbacks that panicked.",
		}),
		skipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_skipped_total",
			Help:      "Notifications dropped because the model could not be copied.",
		}),
		promises: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promises_total",
			Help:      "Promise lifecycle events, by outcome.",
		}, []string{"outcome"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Validity state transitions, by target state.",
		}, []string{"to"}),
		recordErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recorder_errors_total",
			Help:      "Recorder calls that returned an error.",
		}),
	}
}
