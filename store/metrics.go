package store

import "github.com/prometheus/client_golang/prometheus"

var MetaCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rddb",
	Subsystem: "meta_cache",
	Name:      "lookups",
}, []string{"kind", "result"})

var MetaWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rddb",
	Subsystem: "meta_cache",
	Name:      "writes",
}, []string{"kind"})

var RowsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rddb",
	Subsystem: "store",
	Name:      "rows_written",
}, []string{"table"})

var QueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "rddb",
	Subsystem: "store",
	Name:      "query_duration_seconds",
	Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
}, []string{"type", "op"})

// Collectors returns every metric exported by this package, for registration
// with a prometheus.Registerer.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{MetaCacheLookups, MetaWrites, RowsWritten, QueryDuration}
}
