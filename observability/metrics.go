package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msgstore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "msgstore_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	QueryPlansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msgstore_query_plans_total",
			Help: "Queries planned, by selected index and whether a single shard was targeted",
		},
		[]string{"index", "targeted"},
	)

	UnscopedQueriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "msgstore_unscoped_queries_rejected_total",
			Help: "Queries rejected for lacking both chatId and msgId",
		},
	)

	IndexEnsureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msgstore_index_ensure_total",
			Help: "Index ensure attempts by index and outcome",
		},
		[]string{"index", "outcome"},
	)

	StoreRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msgstore_store_retries_total",
			Help: "Store calls retried after a transient connectivity failure",
		},
		[]string{"op"},
	)

	RouteCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msgstore_route_cache_lookups_total",
			Help: "msgId to chatId route cache lookups by result",
		},
		[]string{"result"},
	)
)
