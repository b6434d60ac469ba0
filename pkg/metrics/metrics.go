package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PolicyDecisions counts row-level policy evaluations by operation and outcome (allow|deny).
	PolicyDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notistore_policy_decisions_total",
			Help: "Total number of row-level policy evaluations",
		},
		[]string{"operation", "result"},
	)

	// NotificationOperations counts service operations by name and result (ok|error).
	NotificationOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notistore_notification_operations_total",
			Help: "Total number of notification store operations",
		},
		[]string{"operation", "result"},
	)

	// ChangeEvents counts change events handed to each sink and the outcome.
	ChangeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notistore_change_events_total",
			Help: "Total number of change events published to realtime sinks",
		},
		[]string{"sink", "type", "result"},
	)

	// DeliveryThrottled counts cross-user deliveries rejected by the per-sender limiter.
	DeliveryThrottled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notistore_delivery_throttled_total",
			Help: "Cross-user notification deliveries rejected by the sender rate limit",
		},
	)

	// PurgedNotifications counts soft-deleted rows removed by the retention job.
	PurgedNotifications = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notistore_purged_notifications_total",
			Help: "Soft-deleted notifications hard-purged by retention",
		},
	)

	// RealtimeConnections tracks open websocket connections.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notistore_realtime_connections",
			Help: "Number of open realtime websocket connections",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notistore_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Result maps an error to the label used by the counters above.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
