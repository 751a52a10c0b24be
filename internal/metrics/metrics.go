package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dayplan",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	syncOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dayplan",
			Subsystem: "sync",
			Name:      "operations_total",
			Help:      "Export attempts by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	queueTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dayplan",
			Subsystem: "sync",
			Name:      "queue_transitions_total",
			Help:      "Sync queue entries moved into a status.",
		},
		[]string{"status"},
	)

	importedItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dayplan",
			Subsystem: "sync",
			Name:      "imported_items_total",
			Help:      "Items imported from Google by kind.",
		},
		[]string{"kind"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, syncOperations, queueTransitions, importedItems)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncSync counts one export attempt. Outcome is success, retryable,
// non_retryable or auth.
func IncSync(operation, outcome string) {
	syncOperations.WithLabelValues(operation, outcome).Inc()
}

// IncQueue counts a queue entry entering status.
func IncQueue(status string) {
	queueTransitions.WithLabelValues(status).Inc()
}

// AddImported adds n imported items of kind (event, task, completion).
func AddImported(kind string, n int) {
	if n <= 0 {
		return
	}
	importedItems.WithLabelValues(kind).Add(float64(n))
}
