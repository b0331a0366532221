package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(codeSourceFetchTotal, codeSourceFetchSeconds, poolRefreshTotal) }

var (
	codeSourceFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "code_source_fetch_total",
			Help: "Fetches of the published code list by result.",
		},
		[]string{"result"}, // 'ok', 'error'
	)

	codeSourceFetchSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "code_source_fetch_seconds",
			Help:    "Latency of fetching the published code list.",
			Buckets: prometheus.DefBuckets,
		},
	)

	poolRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_refresh_total",
			Help: "Background pool refresh runs by result.",
		},
		[]string{"result"},
	)
)

func ObserveCodeSourceFetch(seconds float64, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	codeSourceFetchTotal.WithLabelValues(result).Inc()
	codeSourceFetchSeconds.Observe(seconds)
}

func IncPoolRefresh(result string) {
	poolRefreshTotal.WithLabelValues(norm(result)).Inc()
}
