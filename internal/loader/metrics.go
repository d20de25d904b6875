package loader

import "github.com/prometheus/client_golang/prometheus"

var (
	loadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taglayer",
			Subsystem: "loader",
			Name:      "loads_total",
			Help:      "Terminal load outcomes by status",
		},
		[]string{"status"},
	)

	retriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "taglayer",
			Subsystem: "loader",
			Name:      "retries_total",
			Help:      "Scheduled retry attempts",
		},
	)
)

func init() {
	prometheus.MustRegister(loadsTotal, retriesTotal)
}
