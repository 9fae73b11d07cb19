// Package metrics defines the service's Prometheus collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "disaster_alert"

// Metrics holds the domain counters. Request-level HTTP metrics come from
// the gin middleware.
type Metrics struct {
	AlertsCreated      *prometheus.CounterVec // labels: type
	AlertsRejected     *prometheus.CounterVec // labels: reason={invalid_input,quota,no_disaster,upload,store}
	ClassifierDuration prometheus.Histogram
	NotificationsSent  *prometheus.CounterVec // labels: outcome={sent,failed}
	NotifyQueueErrors  prometheus.Counter
}

var (
	sharedOnce sync.Once
	shared     *Metrics
)

// Shared returns the process-wide Metrics registered on the default registry.
func Shared() *Metrics {
	sharedOnce.Do(func() {
		shared = newMetrics()
		prometheus.MustRegister(
			shared.AlertsCreated,
			shared.AlertsRejected,
			shared.ClassifierDuration,
			shared.NotificationsSent,
			shared.NotifyQueueErrors,
		)
	})

	return shared
}

// NewForTesting returns collectors that are not registered anywhere.
func NewForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		AlertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "Alerts persisted, by disaster type.",
		}, []string{"type"}),
		AlertsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_rejected_total",
			Help:      "Alert submissions that did not produce a record.",
		}, []string{"reason"}),
		ClassifierDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classifier_duration_seconds",
			Help:      "Latency of image classification calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification e-mails attempted, by outcome.",
		}, []string{"outcome"}),
		NotifyQueueErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_queue_errors_total",
			Help:      "Failures pushing to or popping from the notification queue.",
		}),
	}
}
