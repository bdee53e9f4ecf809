package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery metrics
var (
	DeliveryTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_tasks_total",
			Help: "Total number of delivery tasks resolved by outcome",
		},
		[]string{"outcome"}, // sent, retried, disabled
	)

	DeliverySendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "delivery_send_duration_seconds",
			Help:    "Duration of email transport send calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	DeliverySendFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_send_failures_total",
			Help: "Total number of transport failures by classification",
		},
		[]string{"provider", "class"}, // transient, permanent
	)

	WorkerIterationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_worker_iterations_total",
			Help: "Total number of worker loop iterations by outcome",
		},
		[]string{"outcome"}, // nothing_found, completed, error
	)

	WorkerWakeupsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_worker_wakeups_total",
			Help: "Total number of idle waits cut short by a publish notification",
		},
	)
)

// Publish metrics
var (
	PublishRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publish_requests_total",
			Help: "Total number of publish requests by result",
		},
		[]string{"result"}, // enqueued, no_subscribers, replayed, conflict_replayed, failed
	)

	IdempotencyRecordsSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "idempotency_records_swept_total",
			Help: "Total number of expired idempotency records deleted",
		},
	)
)

// API metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	APIAuthFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "api_auth_failures_total",
			Help: "Total number of API authentication failures",
		},
	)
)

// Database metrics
var (
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of acquired database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// Queue metrics
var (
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "delivery_queue_depth",
			Help: "Number of delivery tasks in the queue by state",
		},
		[]string{"state"}, // pending, retrying, disabled
	)
)
