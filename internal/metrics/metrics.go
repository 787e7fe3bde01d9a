package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Visit ingestion metrics
	VisitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "congregate_visits_total",
			Help: "Total number of visits handled by the ingestion middleware",
		},
		[]string{"result"},
	)

	BotVisitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "congregate_bot_visits_total",
			Help: "Total number of visits classified as bot traffic",
		},
	)

	SkippedRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "congregate_skipped_requests_total",
			Help: "Total number of requests on excluded path prefixes",
		},
	)

	VisitorsMintedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "congregate_visitors_minted_total",
			Help: "Total number of visitor cookies issued",
		},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "congregate_ingest_duration_seconds",
			Help:    "Duration of visit persistence in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Event collector metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "congregate_events_total",
			Help: "Total number of custom events received",
		},
		[]string{"event", "result"},
	)

	// Geo lookup metrics
	GeoLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "congregate_geo_lookups_total",
			Help: "Total number of geo lookups by result",
		},
		[]string{"result"},
	)

	// Dashboard metrics
	DashboardQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "congregate_dashboard_query_duration_seconds",
			Help:    "Duration of dashboard aggregation queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "congregate_cache_requests_total",
			Help: "Total number of dashboard response cache lookups",
		},
		[]string{"result"},
	)
)

// Result labels shared by the counters above.
const (
	ResultRecorded = "recorded"
	ResultFailed   = "failed"
	ResultRejected = "rejected"
	ResultHit      = "hit"
	ResultMiss     = "miss"
	ResultDisabled = "disabled"
	ResultError    = "error"
)
