package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "slotkeeper"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)

	allocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_total",
			Help:      "Allocation and reschedule outcomes. outcome is ok or the rejection reason.",
		},
		[]string{"operation", "outcome"},
	)

	retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocation_retries_total",
			Help:      "Write attempts retried after a concurrent modification.",
		},
		[]string{"operation"},
	)

	storeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_duration_seconds",
			Help:      "Latency of booking store calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Manager notifications by outcome (sent, failed, dropped).",
		},
		[]string{"outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, allocations, retries, storeLatency, notifications)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func IncHTTP(endpoint, code string) {
	httpRequests.WithLabelValues(endpoint, code).Inc()
}

func ObserveAllocation(operation, outcome string) {
	allocations.WithLabelValues(operation, outcome).Inc()
}

func IncRetry(operation string) {
	retries.WithLabelValues(operation).Inc()
}

func ObserveStore(operation string, took time.Duration) {
	storeLatency.WithLabelValues(operation).Observe(took.Seconds())
}

func IncNotification(outcome string) {
	notifications.WithLabelValues(outcome).Inc()
}
