package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toll_messages_dropped_total",
			Help: "Inbound messages dropped without processing (count)",
		},
		[]string{"service", "reason"},
	)

	EntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toll_entries_total",
			Help: "Vehicle entries accepted by the orchestrator (count)",
		},
		[]string{"channel"},
	)

	ExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toll_exits_total",
			Help: "Vehicle exit attempts by outcome (count)",
		},
		[]string{"channel", "outcome"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "toll_active_sessions",
			Help: "Sessions currently open on this orchestrator",
		},
	)

	CorrelationExpirationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toll_correlation_expirations_total",
			Help: "Correlation ids that expired before a response arrived (count)",
		},
		[]string{"tracker"},
	)

	CameraResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camera_responses_total",
			Help: "Plate recognition responses published (count)",
		},
		[]string{"direction", "channel"},
	)

	TripsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_trips_total",
			Help: "Trip rows written by the ledger (count)",
		},
		[]string{"operation", "channel"},
	)

	DebtsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_debts_total",
			Help: "Telepass debt transitions (count)",
		},
		[]string{"operation"},
	)

	FareLookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricing_fare_lookup_duration_ms",
			Help:    "Fare lookup duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Requests through a circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Failed requests through a circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitedRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_requests_rejected_total",
			Help: "HTTP requests rejected by the rate limiter (count)",
		},
		[]string{"path"},
	)
)

func RegisterTollMetrics() {
	prometheus.MustRegister(
		MessagesDroppedTotal,
		EntriesTotal,
		ExitsTotal,
		ActiveSessions,
		CorrelationExpirationsTotal,
	)
}

func RegisterCameraMetrics() {
	prometheus.MustRegister(
		MessagesDroppedTotal,
		CameraResponsesTotal,
	)
}

func RegisterPricingMetrics() {
	prometheus.MustRegister(
		MessagesDroppedTotal,
		TripsTotal,
		DebtsTotal,
		FareLookupDuration,
	)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(
		CircuitBreakerState,
		CircuitBreakerRequests,
		CircuitBreakerFailures,
	)
}

func RegisterRateLimitMetrics() {
	prometheus.MustRegister(RateLimitedRequestsTotal)
}

func ObserveFareLookupDuration(d time.Duration, status string) {
	FareLookupDuration.WithLabelValues(status).Observe(float64(d.Milliseconds()))
}
