package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service provides Prometheus metrics for the eGIRO gateway
type Service struct {
	registry *prometheus.Registry

	// Inbound
	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	rateLimitExceededTotal *prometheus.CounterVec

	// Signing
	signingOperationsTotal *prometheus.CounterVec
	signingDuration        *prometheus.HistogramVec

	// Counterparty
	dispatchTotal       *prometheus.CounterVec
	dispatchDuration    *prometheus.HistogramVec
	circuitBreakerState *prometheus.GaugeVec

	// Outcomes
	errorsTotal          *prometheus.CounterVec
	identifierCollisions *prometheus.CounterVec
	keyringsSwept        prometheus.Counter
	serviceAvailability  prometheus.Gauge
}

// NewService registers every collector on a private registry so tests can
// build as many services as they like.
func NewService(serviceName, environment string) *Service {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{
		"service":     serviceName,
		"environment": environment,
	}, registry))

	return &Service{
		registry: registry,

		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "egiro_requests_total",
				Help: "Inbound requests by endpoint, client_slug and status",
			},
			[]string{"endpoint", "client_slug", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "egiro_request_duration_seconds",
				Help:    "Inbound request processing time in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "status"},
		),
		rateLimitExceededTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "egiro_rate_limit_exceeded_total",
				Help: "Inbound requests rejected by the per-tenant limiter",
			},
			[]string{"client_slug"},
		),

		signingOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "egiro_signing_operations_total",
				Help: "OpenPGP operations by kind and result",
			},
			[]string{"operation", "result"},
		),
		signingDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "egiro_signing_duration_seconds",
				Help:    "OpenPGP operation time in seconds, keyring setup included",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),

		dispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "egiro_dispatch_total",
				Help: "Counterparty calls by flow and classification",
			},
			[]string{"flow", "classification"},
		),
		dispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "egiro_dispatch_duration_seconds",
				Help:    "Counterparty round trip time in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"flow"},
		),
		circuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "egiro_circuit_breaker_state",
				Help: "Circuit breaker state per flow (0=closed, 1=open, 2=half-open)",
			},
			[]string{"flow"},
		),

		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "egiro_errors_total",
				Help: "Failed calls by AG code and flow",
			},
			[]string{"error_code", "flow"},
		),
		identifierCollisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "egiro_identifier_reservations_total",
				Help: "Replay guard reservations by identifier kind and result",
			},
			[]string{"kind", "result"},
		),
		keyringsSwept: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "egiro_keyrings_swept_total",
				Help: "Stale keyring directories removed at startup",
			},
		),
		serviceAvailability: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "egiro_service_availability",
				Help: "1 while the gateway is serving",
			},
		),
	}
}

// Handler exposes the private registry.
func (s *Service) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// Registry returns the underlying registry.
func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Service) RecordRequest(endpoint, clientSlug, status string) {
	s.requestsTotal.WithLabelValues(endpoint, clientSlug, status).Inc()
}

func (s *Service) RecordRequestDuration(endpoint, status string, duration time.Duration) {
	s.requestDuration.WithLabelValues(endpoint, status).Observe(duration.Seconds())
}

func (s *Service) RecordRateLimitExceeded(clientSlug string) {
	s.rateLimitExceededTotal.WithLabelValues(clientSlug).Inc()
}

func (s *Service) RecordSigning(operation, result string, duration time.Duration) {
	s.signingOperationsTotal.WithLabelValues(operation, result).Inc()
	s.signingDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (s *Service) RecordDispatch(flow, classification string, duration time.Duration) {
	s.dispatchTotal.WithLabelValues(flow, classification).Inc()
	s.dispatchDuration.WithLabelValues(flow).Observe(duration.Seconds())
}

func (s *Service) RecordError(errorCode, flow string) {
	s.errorsTotal.WithLabelValues(errorCode, flow).Inc()
}

func (s *Service) RecordReservation(kind, result string) {
	s.identifierCollisions.WithLabelValues(kind, result).Inc()
}

func (s *Service) RecordKeyringsSwept(count int) {
	s.keyringsSwept.Add(float64(count))
}

func (s *Service) SetCircuitBreakerState(flow string, state int) {
	s.circuitBreakerState.WithLabelValues(flow).Set(float64(state))
}

func (s *Service) SetServiceAvailability(available bool) {
	if available {
		s.serviceAvailability.Set(1)
		return
	}
	s.serviceAvailability.Set(0)
}
