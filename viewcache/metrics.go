package viewcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultSuccess   = "success"
	resultError     = "error"
	resultDiscarded = "discarded"
)

type metrics struct {
	reconciles *prometheus.CounterVec
	duration   prometheus.Histogram
	entries    prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		reconciles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "magicns",
			Subsystem: "viewcache",
			Name:      "reconciliations_total",
			Help:      "Registry reconciliations by result.",
		}, []string{"result"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "magicns",
			Subsystem: "viewcache",
			Name:      "reconciliation_seconds",
			Help:      "Time spent reading a registry snapshot.",
			Buckets:   prometheus.DefBuckets,
		}),
		entries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "magicns",
			Subsystem: "viewcache",
			Name:      "entries",
			Help:      "Names in the current snapshot.",
		}),
	}
}
