package extraction

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/minutedhq/minuted/internal/extraction"

// Metrics holds extraction pipeline metrics. A nil *Metrics is valid and
// records nothing, so callers never need to guard.
type Metrics struct {
	meter         metric.Meter
	logger        *zap.Logger
	fragmentsIn   metric.Int64Counter
	gateFires     metric.Int64Counter
	holds         metric.Int64Counter
	attemptsTotal metric.Int64Counter
	callDur       metric.Float64Histogram
}

// NewMetrics creates extraction metrics instruments.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.fragmentsIn, err = m.meter.Int64Counter(
		"minuted.extraction.fragments_total",
		metric.WithDescription("Finalized transcript fragments accepted into the buffer."),
		metric.WithUnit("{fragment}"),
	)
	if err != nil {
		m.logger.Warn("failed to create fragments counter", zap.Error(err))
	}

	m.gateFires, err = m.meter.Int64Counter(
		"minuted.extraction.gate_fires_total",
		metric.WithDescription("Fragments that fired the intent gate."),
		metric.WithUnit("{fragment}"),
	)
	if err != nil {
		m.logger.Warn("failed to create gate fires counter", zap.Error(err))
	}

	m.holds, err = m.meter.Int64Counter(
		"minuted.extraction.holds_total",
		metric.WithDescription("Extraction attempts refused by the readiness gate, labeled by reason (call_in_flight, no_intent_signal, min_interval, empty_buffer)."),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		m.logger.Warn("failed to create holds counter", zap.Error(err))
	}

	m.attemptsTotal, err = m.meter.Int64Counter(
		"minuted.extraction.attempts_total",
		metric.WithDescription("Completed extraction calls labeled by outcome (ok, parse_error, transport_error)."),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		m.logger.Warn("failed to create attempts counter", zap.Error(err))
	}

	m.callDur, err = m.meter.Float64Histogram(
		"minuted.extraction.call_duration_seconds",
		metric.WithDescription("LLM extraction call duration in seconds, labeled by outcome. Use histogram_quantile for P50/P95/P99 latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		m.logger.Warn("failed to create call duration histogram", zap.Error(err))
	}
}

func (m *Metrics) recordFragment(gateFired bool) {
	if m == nil {
		return
	}
	ctx := context.Background()
	if m.fragmentsIn != nil {
		m.fragmentsIn.Add(ctx, 1)
	}
	if gateFired && m.gateFires != nil {
		m.gateFires.Add(ctx, 1)
	}
}

func (m *Metrics) recordHold(reason HoldReason) {
	if m == nil || m.holds == nil {
		return
	}
	m.holds.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("reason", string(reason))))
}

func (m *Metrics) recordAttempt(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if m.attemptsTotal != nil {
		m.attemptsTotal.Add(ctx, 1, attrs)
	}
	if m.callDur != nil {
		m.callDur.Record(ctx, elapsed.Seconds(), attrs)
	}
}
