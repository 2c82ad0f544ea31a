package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jwstcurves_fetch_calls_total",
			Help: "Total series payload fetches by source and outcome",
		},
		[]string{"source", "status"},
	)

	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jwstcurves_fetch_latency_seconds",
			Help:    "Series payload fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	PayloadCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jwstcurves_payload_cache_total",
			Help: "Payload cache lookups by result",
		},
		[]string{"result"},
	)

	SeriesLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jwstcurves_series_loaded_total",
			Help: "Total series successfully decoded",
		},
		[]string{"band"},
	)

	AggregationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jwstcurves_aggregation_duration_seconds",
			Help:    "Time spent aggregating one series",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"mode", "axis"},
	)

	MemoTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jwstcurves_memo_total",
			Help: "Derived view memo lookups by view and result",
		},
		[]string{"view", "result"},
	)

	DrillDownMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jwstcurves_drilldown_misses_total",
			Help: "Drill-down requests for point ids absent from the current index",
		},
	)
)
