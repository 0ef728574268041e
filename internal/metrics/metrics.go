package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels.
// Label values outside these sets are folded into "other".
const (
	// Guard states reported by the transport guard
	GuardStateClosed   = "closed"
	GuardStateHalfOpen = "half-open"
	GuardStateOpen     = "open"

	// Cache operations
	CacheOpGet = "get"
	CacheOpSet = "set"

	// Error components
	ComponentAPI    = "api"
	ComponentWorker = "worker"
	ComponentEvents = "events"
	ComponentCache  = "cache"
)

// knownOutcomes mirrors llm.AttemptOutcome values
var knownOutcomes = map[string]bool{
	"success":         true,
	"skipped":         true,
	"unavailable":     true,
	"quota_exhausted": true,
	"no_json":         true,
	"malformed":       true,
	"repair_failed":   true,
	"unknown":         true,
}

// NormalizeOutcome maps an attempt outcome to the bounded label set
func NormalizeOutcome(outcome string) string {
	if knownOutcomes[outcome] {
		return outcome
	}
	return "other"
}

// NormalizeGuardState maps a gobreaker state name to the bounded label set
func NormalizeGuardState(state string) string {
	switch strings.ToLower(state) {
	case GuardStateClosed:
		return GuardStateClosed
	case GuardStateHalfOpen:
		return GuardStateHalfOpen
	case GuardStateOpen:
		return GuardStateOpen
	default:
		return GuardStateClosed
	}
}

// Generation Metrics
var (
	// Provider attempts by outcome
	ProviderAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curriculumgen_provider_attempts_total",
		Help: "Provider attempts by outcome",
	}, []string{"provider", "outcome"})

	// Provider call latency, including the repair call when one was made
	ProviderAttemptDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "curriculumgen_provider_attempt_duration_ms",
		Help:    "Provider attempt duration in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000},
	}, []string{"provider"})

	// Generate calls by result
	Generations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curriculumgen_generations_total",
		Help: "Total number of Generate calls by result",
	}, []string{"result"})

	// Generate call latency
	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "curriculumgen_generation_duration_ms",
		Help:    "Generate call duration in milliseconds",
		Buckets: []float64{250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000, 300000},
	})

	// Outputs that were cut off mid-structure
	Truncations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curriculumgen_truncations_total",
		Help: "Truncated provider outputs by whether they were closed or remained incomplete",
	}, []string{"provider", "result"})

	// Corrective retries by result
	Repairs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curriculumgen_repairs_total",
		Help: "Corrective JSON retries by result",
	}, []string{"provider", "result"})
)

// Circuit Breaker Metrics
var (
	// Quota latch state (1 = open, 0 = closed)
	CircuitBreakerStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "curriculumgen_circuit_breaker_status",
		Help: "Quota circuit breaker status per provider (1 = open, 0 = closed)",
	}, []string{"provider"})

	// Quota latch trips
	CircuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curriculumgen_circuit_breaker_trips_total",
		Help: "Total number of quota circuit breaker trips",
	}, []string{"provider"})

	// Transport guard state (1 for the current state, 0 otherwise)
	GuardState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "curriculumgen_guard_state",
		Help: "Transport guard state per provider (1 for the current state)",
	}, []string{"provider", "state"})
)

// System Health Metrics
var (
	// Cache lookups by result
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curriculumgen_cache_lookups_total",
		Help: "Result cache lookups by result (hit, miss, error)",
	}, []string{"result"})

	// Redis operations
	RedisOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curriculumgen_redis_operations_total",
		Help: "Total number of Redis operations",
	}, []string{"operation"})

	// API request latency
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "curriculumgen_api_request_duration_ms",
		Help:    "API request duration in milliseconds",
		Buckets: []float64{10, 50, 100, 500, 1000, 5000, 30000, 120000},
	}, []string{"method", "path", "status"})

	// HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curriculumgen_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	// Errors
	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curriculumgen_errors_total",
		Help: "Total number of errors by type",
	}, []string{"type", "component"})

	// NATS messages published
	NATSMessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curriculumgen_nats_messages_published_total",
		Help: "Total number of NATS messages published",
	}, []string{"subject"})

	// NATS messages received
	NATSMessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curriculumgen_nats_messages_received_total",
		Help: "Total number of NATS messages received",
	}, []string{"subject"})
)

// Helper functions for common metric operations

// RecordAttempt records one provider attempt
func RecordAttempt(provider, outcome string, durationMs float64) {
	ProviderAttempts.WithLabelValues(provider, NormalizeOutcome(outcome)).Inc()
	if outcome != "skipped" {
		ProviderAttemptDuration.WithLabelValues(provider).Observe(durationMs)
	}
}

// RecordGeneration records a finished Generate call
func RecordGeneration(success bool, durationMs float64) {
	Generations.WithLabelValues(resultLabel(success)).Inc()
	GenerationDuration.Observe(durationMs)
}

// RecordTruncation records a truncated output
func RecordTruncation(provider string, incomplete bool) {
	result := "closed"
	if incomplete {
		result = "incomplete"
	}
	Truncations.WithLabelValues(provider, result).Inc()
}

// RecordRepair records a corrective retry
func RecordRepair(provider string, success bool) {
	Repairs.WithLabelValues(provider, resultLabel(success)).Inc()
}

// RecordCircuitBreakerTrip records a quota latch trip and marks it open
func RecordCircuitBreakerTrip(provider string) {
	CircuitBreakerTrips.WithLabelValues(provider).Inc()
	CircuitBreakerStatus.WithLabelValues(provider).Set(1)
}

// UpdateCircuitBreaker sets the quota latch status gauge
func UpdateCircuitBreaker(provider string, open bool) {
	value := 0.0
	if open {
		value = 1.0
	}
	CircuitBreakerStatus.WithLabelValues(provider).Set(value)
}

// UpdateGuardState sets the transport guard state gauges for a provider
func UpdateGuardState(provider, state string) {
	current := NormalizeGuardState(state)
	for _, s := range []string{GuardStateClosed, GuardStateHalfOpen, GuardStateOpen} {
		value := 0.0
		if s == current {
			value = 1.0
		}
		GuardState.WithLabelValues(provider, s).Set(value)
	}
}

// RecordCacheLookup records a result cache lookup ("hit", "miss" or "error")
func RecordCacheLookup(result string) {
	CacheLookups.WithLabelValues(result).Inc()
}

// RecordRedisOperation records a Redis operation
func RecordRedisOperation(operation string) {
	RedisOperations.WithLabelValues(operation).Inc()
}

// RecordAPIRequest records an API request
func RecordAPIRequest(method, path, statusCode string, durationMs float64) {
	APIRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationMs)
	HTTPRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordNATSPublished records a published NATS message
func RecordNATSPublished(subject string) {
	NATSMessagesPublished.WithLabelValues(subject).Inc()
}

// RecordNATSReceived records a received NATS message
func RecordNATSReceived(subject string) {
	NATSMessagesReceived.WithLabelValues(subject).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
