package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(activationsTotal, statusQueriesTotal, storeSweptTotal) }

var (
	activationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activations_total",
			Help: "Activation attempts by outcome.",
		},
		[]string{"outcome"}, // 'created', 'reentry', or an error kind
	)

	statusQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "status_queries_total",
			Help: "Status queries by result.",
		},
		[]string{"result"}, // 'active', 'inactive', 'none', 'error'
	)

	storeSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "store_swept_entries_total",
			Help: "Expired entries purged from the embedded store.",
		},
	)
)

func IncActivation(outcome string) {
	activationsTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncStatusQuery(result string) {
	statusQueriesTotal.WithLabelValues(norm(result)).Inc()
}

func AddStoreSwept(n int) {
	storeSweptTotal.Add(float64(n))
}
