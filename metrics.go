package hoodie

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// indexMetrics tracks bloom index lookup activity. All indexes in a process
// share one registration against the default registerer.
type indexMetrics struct {
	lookups             prometheus.Counter
	taggedRecords       prometheus.Counter
	bloomProbes         prometheus.Counter
	bloomFalsePositives prometheus.Counter
	joinShards          prometheus.Histogram
	lookupSeconds       prometheus.Histogram
}

var defaultIndexMetrics = newIndexMetrics(prometheus.DefaultRegisterer)

func newIndexMetrics(reg prometheus.Registerer) *indexMetrics {
	factory := promauto.With(reg)
	return &indexMetrics{
		lookups: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hoodie",
			Subsystem: "bloom_index",
			Name:      "lookups_total",
			Help:      "Number of index lookup invocations",
		}),
		taggedRecords: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hoodie",
			Subsystem: "bloom_index",
			Name:      "tagged_records_total",
			Help:      "Number of records tagged with an existing file location",
		}),
		bloomProbes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hoodie",
			Subsystem: "bloom_index",
			Name:      "bloom_probes_total",
			Help:      "Number of candidate keys probed against a bloom filter",
		}),
		bloomFalsePositives: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hoodie",
			Subsystem: "bloom_index",
			Name:      "bloom_false_positives_total",
			Help:      "Number of bloom filter positives rejected by the exact key check",
		}),
		joinShards: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hoodie",
			Subsystem: "bloom_index",
			Name:      "join_shards",
			Help:      "Join parallelism chosen per lookup",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		lookupSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hoodie",
			Subsystem: "bloom_index",
			Name:      "lookup_duration_seconds",
			Help:      "Wall time of index lookups",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
