package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gateway Metrics
var (
	// GatewayConnectionsCurrent tracks current active WebSocket connections
	GatewayConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_connections_current",
			Help: "Current number of active WebSocket connections",
		},
	)

	// GatewayConnectionsTotal tracks connection attempts by result
	GatewayConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_connections_total",
			Help: "Total WebSocket connection attempts by result (accepted/error)",
		},
		[]string{"result"},
	)

	// GatewayConnectionsRejected tracks rejected connection attempts by reason
	GatewayConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_connections_rejected_total",
			Help: "Total WebSocket connections rejected by reason (unauthorized/user_limit/global_limit/bad_version)",
		},
		[]string{"reason"},
	)

	// GatewayMessagesTotal tracks inbound client messages by kind
	GatewayMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_messages_total",
			Help: "Total inbound client messages by kind (autoplay_status/request_next_audio/ignored)",
		},
		[]string{"kind"},
	)

	// GatewayMalformedMessages tracks inbound payloads that failed envelope decoding
	GatewayMalformedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_malformed_messages_total",
			Help: "Total inbound messages dropped as malformed",
		},
	)

	// GatewayRateLimitCloses tracks connections closed for message burst violations
	GatewayRateLimitCloses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_rate_limit_closes_total",
			Help: "Total connections closed for exceeding the message burst ceiling",
		},
	)

	// GatewayPingTerminations tracks connections terminated for missing a heartbeat
	GatewayPingTerminations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_ping_terminations_total",
			Help: "Total connections terminated for not answering the previous ping",
		},
	)

	// GatewaySlowClientsEvicted tracks clients evicted for a full send buffer
	GatewaySlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_slow_clients_evicted_total",
			Help: "Total WebSocket clients evicted due to a full send buffer",
		},
	)
)

// Audio Queue Metrics
var (
	// AudioItemsEnqueued tracks audio items accepted into user queues
	AudioItemsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audio_items_enqueued_total",
			Help: "Total audio announcements enqueued across all users",
		},
	)

	// AudioQueueOverflows tracks items dropped because a user's queue was full
	AudioQueueOverflows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audio_queue_overflows_total",
			Help: "Total audio announcements dropped because a user queue was at capacity",
		},
	)

	// AudioItemsPushed tracks audioAvailable notifications pushed to clients
	AudioItemsPushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audio_items_pushed_total",
			Help: "Total audioAvailable notifications pushed to autoplay-enabled connections",
		},
	)
)

// Broadcast Pipeline Metrics
var (
	// BroadcastEventsTotal tracks pipeline outcomes per transcription event
	BroadcastEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_events_total",
			Help: "Total transcription events by pipeline outcome (broadcast/stale/noise)",
		},
		[]string{"outcome"},
	)
)

// Subscription Matching Metrics
var (
	// SubscriptionEvaluations tracks total subscription evaluations
	SubscriptionEvaluations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subscription_evaluations_total",
			Help: "Total subscription evaluations against transcription events",
		},
	)

	// SubscriptionMatches tracks total subscription matches
	SubscriptionMatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subscription_matches_total",
			Help: "Total subscription matches recorded",
		},
	)

	// PatternRejections tracks regex patterns rejected by the safety guard
	PatternRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pattern_rejections_total",
			Help: "Total regex patterns rejected by the pattern-safety guard",
		},
	)

	// PatternTimeouts tracks regex evaluations abandoned at the budget boundary
	PatternTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pattern_timeouts_total",
			Help: "Total regex evaluations abandoned for exceeding the evaluation budget",
		},
	)

	// NotificationFailures tracks best-effort notification dispatch failures
	NotificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Total match notification dispatch failures (best-effort, not retried)",
		},
	)

	// SubscriptionSaveFailures tracks subscription persistence failures
	SubscriptionSaveFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subscription_save_failures_total",
			Help: "Total subscription save failures after a match",
		},
	)
)

// Subscription Cache Metrics
var (
	// CacheRefreshes tracks cache refresh attempts by result
	CacheRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_cache_refreshes_total",
			Help: "Total subscription cache refreshes by result (success/error)",
		},
		[]string{"result"},
	)

	// CacheServedStale tracks reads served from a stale snapshot after a failed refresh
	CacheServedStale = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subscription_cache_served_stale_total",
			Help: "Total cache reads served from the last good snapshot after a refresh failure",
		},
	)
)

// Database Metrics
var (
	// DBQueryDuration tracks database query duration by query type
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	// DBErrorsTotal tracks database query errors by query type
	DBErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_errors_total",
			Help: "Total database query errors by query type",
		},
		[]string{"query"},
	)
)

// Redis Metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation duration by operation type
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks failed Redis connection attempts
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total failed Redis connection attempts",
		},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)

	// CircuitBreakerStateChanges tracks circuit breaker transitions by component and new state
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Total circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)
)

// Ingest Metrics
var (
	// IngestUploads tracks ingest upload requests by result
	IngestUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_uploads_total",
			Help: "Total ingest uploads by result (accepted/duplicate/empty/invalid/error)",
		},
		[]string{"result"},
	)
)

// Build Information Metrics
var (
	// BuildInfo is a gauge that always returns 1, with build metadata as labels
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information with version, commit, build_time, and go_version labels (value is always 1)",
		},
		[]string{"version", "commit", "build_time", "go_version"},
	)
)
