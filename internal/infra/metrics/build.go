package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(buildInfo, startedAt) }

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "activation_build_info",
			Help: "Constant 1, labelled with the running version, commit and Go release.",
		},
		[]string{"version", "commit", "go_version"},
	)

	startedAt = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "activation_start_time_seconds",
		Help: "Unix time the activation service started.",
	})
)

func SetBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
	startedAt.Set(float64(time.Now().Unix()))
}
