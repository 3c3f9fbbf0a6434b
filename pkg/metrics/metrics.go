// Package metrics provides Prometheus metrics for the Clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clover"

var (
	// SyncRunsTotal tracks sync runs by platform and outcome
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of sync runs by platform and status",
		},
		[]string{"platform", "status"},
	)

	// SyncDuration tracks sync run duration in seconds
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Duration of sync runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"platform"},
	)

	// SyncRowsUpserted tracks metric rows written by sync
	SyncRowsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "rows_upserted_total",
			Help:      "Total number of metric rows upserted by sync",
		},
		[]string{"platform"},
	)

	// OAuthExchangesTotal tracks OAuth code exchanges
	OAuthExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oauth",
			Name:      "exchanges_total",
			Help:      "Total number of OAuth code exchanges by platform and status",
		},
		[]string{"platform", "status"},
	)

	// TokenRefreshesTotal tracks access token refreshes
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oauth",
			Name:      "token_refreshes_total",
			Help:      "Total number of access token refreshes",
		},
		[]string{"platform", "status"},
	)

	// WebhookEventsTotal tracks inbound webhook events
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Total number of inbound webhook events by type and status",
		},
		[]string{"platform", "event_type", "status"},
	)

	// AlertTriggersTotal tracks alert toggles and whether the notification went out
	AlertTriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "triggers_total",
			Help:      "Total number of alert triggers by action and notification outcome",
		},
		[]string{"action", "notification"},
	)

	// BestEffortFailures tracks swallowed failures of secondary side effects
	BestEffortFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "besteffort",
			Name:      "failures_total",
			Help:      "Total number of logged-and-swallowed side effect failures",
		},
		[]string{"operation"},
	)

	// HTTPRequestsTotal tracks outbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Total number of outbound HTTP requests",
		},
		[]string{"client", "method", "status_code"},
	)

	// HTTPRequestDuration tracks outbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"client", "method"},
	)

	// CircuitBreakerState tracks the breaker state per platform (0 closed, 1 half-open, 2 open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "platform",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per platform (0 closed, 1 half-open, 2 open)",
		},
		[]string{"platform"},
	)

	// QueueJobsProcessed tracks sync jobs processed from the queue
	QueueJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs_processed_total",
			Help:      "Total number of jobs processed from the queue",
		},
		[]string{"status"},
	)

	// QueueJobsInFlight tracks jobs currently being processed
	QueueJobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs_in_flight",
			Help:      "Number of jobs currently being processed",
		},
	)

	// DLQJobsTotal tracks jobs sent to the dead letter queue
	DLQJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dlq",
			Name:      "jobs_total",
			Help:      "Total number of jobs sent to dead letter queue",
		},
		[]string{"platform", "reason"},
	)

	// SchedulerJobsScheduled tracks sync jobs enqueued by the scheduler
	SchedulerJobsScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "jobs_scheduled_total",
			Help:      "Total number of sync jobs scheduled",
		},
	)

	// RateLimitHits tracks remote calls delayed by the distributed rate limiter
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "hits_total",
			Help:      "Total number of rate limit hits",
		},
		[]string{"platform"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)
)

// RecordSync records a sync run metric
func RecordSync(platform, status string, rows int, durationSeconds float64) {
	SyncRunsTotal.WithLabelValues(platform, status).Inc()
	SyncDuration.WithLabelValues(platform).Observe(durationSeconds)
	if rows > 0 {
		SyncRowsUpserted.WithLabelValues(platform).Add(float64(rows))
	}
}

// RecordHTTPRequest records an outbound HTTP request metric
func RecordHTTPRequest(client, method, statusCode string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(client, method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(client, method).Observe(durationSeconds)
}

// RecordQueueJob records a queue job processing metric
func RecordQueueJob(status string) {
	QueueJobsProcessed.WithLabelValues(status).Inc()
}

// RecordDLQJob records a dead letter queue job
func RecordDLQJob(platform, reason string) {
	DLQJobsTotal.WithLabelValues(platform, reason).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}
