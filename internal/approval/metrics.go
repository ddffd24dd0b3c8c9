package approval

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/minutedhq/minuted/internal/approval"

// Metrics holds approval queue metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	meter   metric.Meter
	logger  *zap.Logger
	resyncs metric.Int64Counter
	upserts metric.Int64Counter
	actions metric.Int64Counter
	snoozes metric.Int64Counter
}

// NewMetrics creates approval metrics instruments.
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

	m.resyncs, err = m.meter.Int64Counter(
		"minuted.approval.resyncs_total",
		metric.WithDescription("Full pending-list resyncs, labeled by outcome (ok, forbidden, error)."),
		metric.WithUnit("{resync}"),
	)
	if err != nil {
		m.logger.Warn("failed to create resyncs counter", zap.Error(err))
	}

	m.upserts, err = m.meter.Int64Counter(
		"minuted.approval.upserts_total",
		metric.WithDescription("Push-event batch upserts, labeled replaced=true when a batch with the same id was overwritten."),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		m.logger.Warn("failed to create upserts counter", zap.Error(err))
	}

	m.actions, err = m.meter.Int64Counter(
		"minuted.approval.actions_total",
		metric.WithDescription("Moderator actions, labeled by action (approve, reject, approve_all, reject_all) and outcome."),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		m.logger.Warn("failed to create actions counter", zap.Error(err))
	}

	m.snoozes, err = m.meter.Int64Counter(
		"minuted.approval.snoozes_total",
		metric.WithDescription("Snooze windows opened."),
		metric.WithUnit("{snooze}"),
	)
	if err != nil {
		m.logger.Warn("failed to create snoozes counter", zap.Error(err))
	}
}

func (m *Metrics) recordResync(outcome string) {
	if m == nil || m.resyncs == nil {
		return
	}
	m.resyncs.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) recordUpsert(replaced bool) {
	if m == nil || m.upserts == nil {
		return
	}
	m.upserts.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Bool("replaced", replaced)))
}

func (m *Metrics) recordAction(action, outcome string) {
	if m == nil || m.actions == nil {
		return
	}
	m.actions.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("outcome", outcome)))
}

func (m *Metrics) recordSnooze() {
	if m == nil || m.snoozes == nil {
		return
	}
	m.snoozes.Add(context.Background(), 1)
}
