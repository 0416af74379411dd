package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/sessionkit"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Navigation metrics
	GuardDecisionsTotal        metric.Int64Counter
	IdentityChecksTotal        metric.Int64Counter
	IdentityCheckFailuresTotal metric.Int64Counter

	// API client metrics
	APIRequestsTotal         metric.Int64Counter
	APIRequestDuration       metric.Float64Histogram
	UnauthorizedLogoutsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = NewMetrics(otel.GetMeterProvider().Meter(meterName))
	})
	return metrics
}

// NewMetrics creates all metric instruments on the given meter.
func NewMetrics(meter metric.Meter) *Metrics {
	m := &Metrics{}

	m.GuardDecisionsTotal, _ = meter.Int64Counter(
		"sessionkit.guard.decisions.total",
		metric.WithDescription("Total number of navigation guard decisions by outcome"),
		metric.WithUnit("{decision}"),
	)

	m.IdentityChecksTotal, _ = meter.Int64Counter(
		"sessionkit.guard.identity_checks.total",
		metric.WithDescription("Total number of whoami identity checks"),
		metric.WithUnit("{check}"),
	)

	m.IdentityCheckFailuresTotal, _ = meter.Int64Counter(
		"sessionkit.guard.identity_checks.errors.total",
		metric.WithDescription("Total number of identity checks that failed and forced logout"),
		metric.WithUnit("{error}"),
	)

	m.APIRequestsTotal, _ = meter.Int64Counter(
		"sessionkit.api.requests.total",
		metric.WithDescription("Total number of API requests by status class"),
		metric.WithUnit("{request}"),
	)

	m.APIRequestDuration, _ = meter.Float64Histogram(
		"sessionkit.api.request.duration",
		metric.WithDescription("Duration of API requests"),
		metric.WithUnit("ms"),
	)

	m.UnauthorizedLogoutsTotal, _ = meter.Int64Counter(
		"sessionkit.api.unauthorized_logouts.total",
		metric.WithDescription("Total number of forced logouts caused by 401 responses"),
		metric.WithUnit("{logout}"),
	)

	return m
}
