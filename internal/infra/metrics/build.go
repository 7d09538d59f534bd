package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(buildInfo)
}

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "A constant metric with labels for version, commit and storage backend.",
	},
	[]string{"version", "commit", "backend"},
)

func SetBuildInfo(version, commit, backend string) {
	buildInfo.WithLabelValues(version, commit, norm(backend)).Set(1)
}
