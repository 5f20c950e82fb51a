package models

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	occlusionTypeLabel = "occlusion_type"
)

var (
	occluderCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pvs_occluder_count",
		Help: "The number of registered occluders.",
	}, []string{occlusionTypeLabel})
)

func instrumentIncreaseOccluderGauge(t OccluderType) {
	occluderCount.
		With(prometheus.Labels{occlusionTypeLabel: t.String()}).
		Inc()
}

func instrumentDecreaseOccluderGauge(t OccluderType) {
	occluderCount.
		With(prometheus.Labels{occlusionTypeLabel: t.String()}).
		Dec()
}
