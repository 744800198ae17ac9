package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(buildInfo) }

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "reparaturbonus_build_info",
		Help: "Constant 1, labelled with version and the active store driver.",
	},
	[]string{"version", "store"},
)

func SetBuildInfo(version, store string) {
	buildInfo.WithLabelValues(version, norm(store)).Set(1)
}
