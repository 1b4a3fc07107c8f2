package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts reconstruction activity.
type Metrics struct {
	FeedsBuilt     prometheus.Counter
	StatsCacheHits prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FeedsBuilt: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledgerguard_audit_feeds_built_total",
			Help: "Number of audit feeds reconstructed from the event log.",
		}),
		StatsCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledgerguard_audit_stats_cache_hits_total",
			Help: "Number of statistics requests served from cache.",
		}),
	}
}
