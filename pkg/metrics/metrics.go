package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	StatusDelivered     = "delivered"
	StatusDuplicate     = "duplicate"
	StatusMalformed     = "malformed"
	StatusListenerError = "listener_error"

	StatusSuccess     = "success"
	StatusTimeout     = "timeout"
	StatusInterrupted = "interrupted"
	StatusEncoding    = "encoding"
	StatusError       = "error"
)

var (
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdl_notifications_total",
			Help: "Total number of notifications processed by the receiver (count)",
		},
		[]string{"subject", "status"},
	)

	NotificationProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pdl_notification_processing_duration_ms",
			Help:    "Time spent decoding, deduplicating and delivering one notification in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"status"},
	)

	NotificationsExpiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdl_notifications_expired_total",
			Help: "Total number of notifications received after their expiration (count)",
		},
		[]string{"subject"},
	)

	ListenerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdl_listener_errors_total",
			Help: "Total number of listener failures, panics included (count)",
		},
		[]string{"listener"},
	)

	CursorSequence = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pdl_cursor_sequence",
			Help: "Last bus sequence processed by the receiver",
		},
		[]string{"subject"},
	)

	PublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdl_publish_total",
			Help: "Total number of notification publish attempts (count)",
		},
		[]string{"subject", "status"},
	)

	PublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pdl_publish_duration_ms",
			Help:    "Duration of synchronous publishes in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"subject"},
	)

	BusMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pdl_bus_message_size_bytes",
			Help:    "Size of bus messages in bytes",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"subject", "direction"},
	)

	VerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdl_signature_verifications_total",
			Help: "Total number of product signature verifications (count)",
		},
		[]string{"result"},
	)

	IndexOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdl_index_operations_total",
			Help: "Total number of notification index operations (count)",
		},
		[]string{"backend", "operation", "status"},
	)

	IndexOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pdl_index_operation_duration_ms",
			Help:    "Duration of notification index operations in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"backend", "operation"},
	)

	IndexExpiredRemovedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdl_index_expired_removed_total",
			Help: "Total number of expired notifications removed from the index (count)",
		},
		[]string{"backend"},
	)

	BridgeSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pdl_bridge_sessions_active",
			Help: "Number of open forwarding bridge sessions (count)",
		},
	)

	BridgeFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pdl_bridge_frames_total",
			Help: "Total number of frames forwarded to external consumers (count)",
		},
		[]string{"status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "operation"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)
)

func RegisterReceiverMetrics() {
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(NotificationProcessingDuration)
	prometheus.MustRegister(NotificationsExpiredTotal)
	prometheus.MustRegister(ListenerErrorsTotal)
	prometheus.MustRegister(CursorSequence)
	prometheus.MustRegister(VerificationsTotal)
	prometheus.MustRegister(IndexOperationsTotal)
	prometheus.MustRegister(IndexOperationDuration)
	prometheus.MustRegister(IndexExpiredRemovedTotal)
}

func RegisterPublisherMetrics() {
	prometheus.MustRegister(PublishTotal)
	prometheus.MustRegister(PublishDuration)
	prometheus.MustRegister(BusMessageSizeBytes)
	prometheus.MustRegister(RetryAttemptsTotal)
}

func RegisterBridgeMetrics() {
	prometheus.MustRegister(BridgeSessionsActive)
	prometheus.MustRegister(BridgeFramesTotal)
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func IncNotification(subject, status string) {
	NotificationsTotal.WithLabelValues(subject, status).Inc()
}

func ObserveNotificationDuration(duration time.Duration, status string) {
	NotificationProcessingDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func IncNotificationExpired(subject string) {
	NotificationsExpiredTotal.WithLabelValues(subject).Inc()
}

func IncListenerError(listener string) {
	ListenerErrorsTotal.WithLabelValues(listener).Inc()
}

func SetCursorSequence(subject string, seq uint64) {
	CursorSequence.WithLabelValues(subject).Set(float64(seq))
}

func IncPublish(subject, status string) {
	PublishTotal.WithLabelValues(subject, status).Inc()
}

func ObservePublishDuration(subject string, duration time.Duration) {
	PublishDuration.WithLabelValues(subject).Observe(float64(duration.Milliseconds()))
}

func ObserveBusMessageSize(subject, direction string, sizeBytes int) {
	BusMessageSizeBytes.WithLabelValues(subject, direction).Observe(float64(sizeBytes))
}

func IncVerification(result string) {
	VerificationsTotal.WithLabelValues(result).Inc()
}

func IncIndexOperation(backend, operation, status string) {
	IndexOperationsTotal.WithLabelValues(backend, operation, status).Inc()
}

func ObserveIndexOperationDuration(backend, operation string, duration time.Duration) {
	IndexOperationDuration.WithLabelValues(backend, operation).Observe(float64(duration.Milliseconds()))
}

func AddIndexExpiredRemoved(backend string, n int64) {
	if n > 0 {
		IndexExpiredRemovedTotal.WithLabelValues(backend).Add(float64(n))
	}
}

func IncBridgeFrame(status string) {
	BridgeFramesTotal.WithLabelValues(status).Inc()
}

func IncRetryAttempt(service, operation string) {
	RetryAttemptsTotal.WithLabelValues(service, operation).Inc()
}
