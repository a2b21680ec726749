// Package observe provides application-wide observability primitives for
// voxfill: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxfill metrics.
const meterName = "github.com/MrWong99/voxfill"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TurnDuration tracks end-to-end turn processing latency. Use with
	// attribute: attribute.String("status", ...)
	TurnDuration metric.Float64Histogram

	// CapabilityDuration tracks LLM capability call latency. Use with
	// attributes:
	//   attribute.String("capability", "extract"|"correct"), attribute.String("status", ...)
	CapabilityDuration metric.Float64Histogram

	// --- Counters ---

	// TurnOutcomes counts completed turns. Use with attribute:
	//   attribute.String("status", "success"|"needs_input"|"error")
	TurnOutcomes metric.Int64Counter

	// ExtractionOutcomes counts extraction passes by path. Use with attribute:
	//   attribute.String("outcome", ...)
	ExtractionOutcomes metric.Int64Counter

	// SensitiveRedactions counts turns in which sensitive data was redacted.
	SensitiveRedactions metric.Int64Counter

	// BusyRejections counts turns rejected because the session was already
	// processing another turn.
	BusyRejections metric.Int64Counter

	// --- Gauges ---

	// ActiveTurns tracks the number of turns currently in flight.
	ActiveTurns metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// LLM-bound request latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("voxfill.turn.duration",
		metric.WithDescription("End-to-end turn processing latency by status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CapabilityDuration, err = m.Float64Histogram("voxfill.capability.duration",
		metric.WithDescription("LLM capability call latency by capability and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TurnOutcomes, err = m.Int64Counter("voxfill.turn.outcomes",
		metric.WithDescription("Total completed turns by response status."),
	); err != nil {
		return nil, err
	}
	if met.ExtractionOutcomes, err = m.Int64Counter("voxfill.extraction.outcomes",
		metric.WithDescription("Total extraction passes by outcome path."),
	); err != nil {
		return nil, err
	}
	if met.SensitiveRedactions, err = m.Int64Counter("voxfill.sensitive.redactions",
		metric.WithDescription("Total turns in which sensitive data was redacted."),
	); err != nil {
		return nil, err
	}
	if met.BusyRejections, err = m.Int64Counter("voxfill.session.busy_rejections",
		metric.WithDescription("Total turns rejected because the session was busy."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveTurns, err = m.Int64UpDownCounter("voxfill.active_turns",
		metric.WithDescription("Number of turns currently in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxfill.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTurn records a completed turn: its duration histogram sample and the
// outcome counter increment.
func (m *Metrics) RecordTurn(ctx context.Context, status string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.TurnDuration.Record(ctx, d.Seconds(), attrs)
	m.TurnOutcomes.Add(ctx, 1, attrs)
}

// RecordCapability records one LLM capability call.
func (m *Metrics) RecordCapability(ctx context.Context, capability, status string, d time.Duration) {
	m.CapabilityDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("capability", capability),
			attribute.String("status", status),
		),
	)
}

// RecordExtractionOutcome records which path produced an extraction result.
func (m *Metrics) RecordExtractionOutcome(ctx context.Context, outcome string) {
	m.ExtractionOutcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}
