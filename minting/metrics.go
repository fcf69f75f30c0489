package minting

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Mint results.
const (
	resultSuccess  = "success"
	resultPartial  = "partial"
	resultFailed   = "failed"
	resultRejected = "rejected"
)

type metrics struct {
	writesSubmitted *prometheus.CounterVec
	writeOutcomes   *prometheus.CounterVec
	confirmTime     *prometheus.HistogramVec
	mints           *prometheus.CounterVec
	edits           *prometheus.CounterVec
	inFlight        prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		writesSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "magicns",
			Subsystem: "minting",
			Name:      "writes_submitted_total",
			Help:      "Registry writes accepted by the wallet.",
		}, []string{"kind"}),
		writeOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "magicns",
			Subsystem: "minting",
			Name:      "write_outcomes_total",
			Help:      "Final status of registry writes.",
		}, []string{"kind", "outcome"}),
		confirmTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "magicns",
			Subsystem: "minting",
			Name:      "confirmation_seconds",
			Help:      "Time from submission to receipt.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"kind"}),
		mints: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "magicns",
			Subsystem: "minting",
			Name:      "mints_total",
			Help:      "Mint operations by result.",
		}, []string{"result"}),
		edits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "magicns",
			Subsystem: "minting",
			Name:      "edits_total",
			Help:      "Record edits by result.",
		}, []string{"result"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "magicns",
			Subsystem: "minting",
			Name:      "names_in_flight",
			Help:      "Names with a write in flight.",
		}),
	}
}
