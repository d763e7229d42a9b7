package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Service provides Prometheus metrics for the LetKnow gateway
type Service struct {
	// HTTP surface
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// Provider exchange
	providerRequestsTotal *prometheus.CounterVec
	providerDuration      *prometheus.HistogramVec
	depositsIssuedTotal   prometheus.Counter
	outcomeReplaysTotal   prometheus.Counter

	// Health
	circuitBreakerState    *prometheus.GaugeVec
	dependencyErrorsTotal  *prometheus.CounterVec
	rateLimitExceededTotal *prometheus.CounterVec
}

// NewService registers the gateway metrics on reg.
func NewService(reg prometheus.Registerer) *Service {
	factory := promauto.With(reg)
	return &Service{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "letknow_gateway_requests_total",
				Help: "Total number of API requests by endpoint, storefront and status",
			},
			[]string{"endpoint", "storefront_id", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "letknow_gateway_request_duration_seconds",
				Help:    "API request processing time in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "status"},
		),
		providerRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "letknow_provider_requests_total",
				Help: "Deposit address requests sent to LetKnow by result and error code",
			},
			[]string{"result", "error_code"},
		),
		providerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "letknow_provider_request_duration_seconds",
				Help:    "LetKnow deposit address request latency in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"result"},
		),
		depositsIssuedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "letknow_deposit_addresses_issued_total",
				Help: "Deposit addresses issued by LetKnow",
			},
		),
		outcomeReplaysTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "letknow_outcome_replays_total",
				Help: "Checkout submissions answered from the outcome cache",
			},
		),
		circuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "letknow_circuit_breaker_state",
				Help: "Circuit breaker state (0 = closed, 1 = open, 2 = half-open)",
			},
			[]string{"dependency"},
		),
		dependencyErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "letknow_dependency_errors_total",
				Help: "Errors from supporting dependencies by dependency and operation",
			},
			[]string{"dependency", "operation"},
		),
		rateLimitExceededTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "letknow_rate_limit_exceeded_total",
				Help: "Rate limit violations by storefront",
			},
			[]string{"storefront_id"},
		),
	}
}

func (s *Service) RecordRequest(endpoint, storefrontID, status string) {
	s.requestsTotal.WithLabelValues(endpoint, storefrontID, status).Inc()
}

func (s *Service) RecordRequestDuration(endpoint, status string, duration time.Duration) {
	s.requestDuration.WithLabelValues(endpoint, status).Observe(duration.Seconds())
}

// RecordProviderCall records one LetKnow exchange. errorCode is 0 on success.
func (s *Service) RecordProviderCall(result string, errorCode int, duration time.Duration) {
	code := ""
	if errorCode != 0 {
		code = strconv.Itoa(errorCode)
	}
	s.providerRequestsTotal.WithLabelValues(result, code).Inc()
	s.providerDuration.WithLabelValues(result).Observe(duration.Seconds())
}

func (s *Service) RecordDepositIssued() {
	s.depositsIssuedTotal.Inc()
}

func (s *Service) RecordOutcomeReplay() {
	s.outcomeReplaysTotal.Inc()
}

func (s *Service) SetCircuitBreakerState(dependency string, state int) {
	s.circuitBreakerState.WithLabelValues(dependency).Set(float64(state))
}

func (s *Service) RecordDependencyError(dependency, operation string) {
	s.dependencyErrorsTotal.WithLabelValues(dependency, operation).Inc()
}

func (s *Service) RecordRateLimitExceeded(storefrontID string) {
	s.rateLimitExceededTotal.WithLabelValues(storefrontID).Inc()
}
