package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks submissions to the ledger and how they resolve.
type Metrics struct {
	Submissions    *prometheus.CounterVec
	ConfirmLatency prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerguard_bridge_submissions_total",
			Help: "Ledger submissions by operation and outcome.",
		}, []string{"operation", "outcome"}),
		ConfirmLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledgerguard_bridge_confirm_seconds",
			Help:    "Time between submission and confirmation.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
