package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PageFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marinestream_page_fetches_total",
			Help: "Total upstream page fetches by outcome",
		},
		[]string{"source", "status"},
	)

	PageFetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marinestream_page_fetch_latency_seconds",
			Help:    "Upstream page fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	RecordsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marinestream_records_emitted_total",
			Help: "Records passed on after watermark deduplication",
		},
		[]string{"source"},
	)

	RowsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marinestream_rows_skipped_total",
			Help: "Rows dropped for a missing or unordered time field",
		},
		[]string{"source"},
	)

	ActiveSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marinestream_active_sessions",
			Help: "Client sessions currently streaming",
		},
		[]string{"mode"},
	)
)
