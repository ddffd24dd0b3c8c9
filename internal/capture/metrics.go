package capture

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/minutedhq/minuted/internal/capture"

// Metrics holds capture pipeline metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	meter           metric.Meter
	logger          *zap.Logger
	sessions        metric.Int64Counter
	fragments       metric.Int64Counter
	persistFailures metric.Int64Counter
	submissions     metric.Int64Counter
}

// NewMetrics creates capture metrics instruments.
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

	m.sessions, err = m.meter.Int64Counter(
		"minuted.capture.sessions_total",
		metric.WithDescription("Capture sessions started."),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		m.logger.Warn("failed to create sessions counter", zap.Error(err))
	}

	m.fragments, err = m.meter.Int64Counter(
		"minuted.capture.fragments_total",
		metric.WithDescription("Finalized transcript fragments, labeled duplicate=true when suppressed as a consecutive repeat."),
		metric.WithUnit("{fragment}"),
	)
	if err != nil {
		m.logger.Warn("failed to create fragments counter", zap.Error(err))
	}

	m.persistFailures, err = m.meter.Int64Counter(
		"minuted.capture.persist_failures_total",
		metric.WithDescription("Best-effort transcript persistence calls that failed."),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		m.logger.Warn("failed to create persist failures counter", zap.Error(err))
	}

	m.submissions, err = m.meter.Int64Counter(
		"minuted.capture.task_submissions_total",
		metric.WithDescription("Task batch submissions to the backend, labeled by outcome (ok, error)."),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		m.logger.Warn("failed to create submissions counter", zap.Error(err))
	}
}

func (m *Metrics) recordSessionStart() {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.Add(context.Background(), 1)
}

func (m *Metrics) recordFragment(duplicate bool) {
	if m == nil || m.fragments == nil {
		return
	}
	m.fragments.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Bool("duplicate", duplicate)))
}

func (m *Metrics) recordPersistFailure() {
	if m == nil || m.persistFailures == nil {
		return
	}
	m.persistFailures.Add(context.Background(), 1)
}

func (m *Metrics) recordSubmission(outcome string) {
	if m == nil || m.submissions == nil {
		return
	}
	m.submissions.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}
