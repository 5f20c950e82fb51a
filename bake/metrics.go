package bake

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	errTypeLabel = "error_type"
	outcomeLabel = "outcome"
	faceLabel    = "face"

	outcomeSucceeded = "succeeded"
	outcomeCancelled = "cancelled"
	outcomeFailed    = "failed"

	sampleSampled = "sampled"
	sampleCached  = "cached"
	samplePruned  = "pruned"
)

var (
	bakeCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvs_bake_total",
		Help: "The number of bakes by outcome.",
	}, []string{
		outcomeLabel,
	})

	bakeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvs_bake_errors_total",
		Help: "The errors that occured during a bake.",
	}, []string{
		errTypeLabel,
	})

	bakeOctantsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pvs_bake_octants_processed_total",
		Help: "The number of baked octants.",
	})

	bakeCornerSamples = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvs_bake_corner_samples_total",
		Help: "The octant corners met during bakes, by how their visibility was obtained.",
	}, []string{
		outcomeLabel,
	})

	bakeRenderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "pvs_bake_render_latency",
		Help: "The time to render a cubemap face.",
	}, []string{
		faceLabel,
	})

	bakeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pvs_bake_duration",
		Help:    "The time to complete a bake.",
		Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
	})
)

func instrumentBake(outcome string, start time.Time) {
	bakeCount.With(prometheus.Labels{
		outcomeLabel: outcome,
	}).Inc()

	bakeDuration.Observe(time.Since(start).Seconds())
}

func instrumentBakeError(err error) {
	bakeErrors.
		With(prometheus.Labels{
			errTypeLabel: errors.Type(err),
		}).
		Inc()
}

func instrumentOctantProcessed() {
	bakeOctantsProcessed.Inc()
}

func instrumentCornerSample(outcome string) {
	bakeCornerSamples.With(prometheus.Labels{
		outcomeLabel: outcome,
	}).Inc()
}

func instrumentRenderLatency(face string, start time.Time) {
	bakeRenderLatency.With(prometheus.Labels{
		faceLabel: face,
	}).Observe(time.Since(start).Seconds())
}
