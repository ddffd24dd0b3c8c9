package extraction

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/minutedhq/minuted/internal/deadline"
)

// Backoff applied to lastCallAt after a failed provider call. The next
// eligible window is the backoff plus the minimum interval, which is the
// point: a failing provider must not be hammered.
const (
	DefaultMinInterval = 30 * time.Second
	genericBackoff     = 30 * time.Second
	rateLimitedBackoff = 60 * time.Second
)

// Buffer accumulates transcript fragments between extraction cycles. It
// owns the readiness gate (intent signal, inter-call interval, single
// outstanding call) and the backoff bookkeeping after provider failures.
// Safe for concurrent use.
type Buffer struct {
	provider Provider
	gate     Gate
	logger   *zap.Logger
	metrics  *Metrics

	minInterval time.Duration
	now         func() time.Time

	mu            sync.Mutex
	fragments     []TranscriptFragment
	lastCallAt    time.Time
	pendingIntent bool
	callInFlight  bool
}

// BufferOption configures a Buffer.
type BufferOption func(*Buffer)

// WithMinInterval overrides the minimum time between extraction calls.
func WithMinInterval(d time.Duration) BufferOption {
	return func(b *Buffer) {
		if d > 0 {
			b.minInterval = d
		}
	}
}

// WithClock overrides the time source. Tests use this to step through
// interval and backoff windows.
func WithClock(now func() time.Time) BufferOption {
	return func(b *Buffer) {
		if now != nil {
			b.now = now
		}
	}
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *Metrics) BufferOption {
	return func(b *Buffer) {
		b.metrics = m
	}
}

// NewBuffer creates an extraction buffer over provider, gated by gate.
func NewBuffer(provider Provider, gate Gate, logger *zap.Logger, opts ...BufferOption) *Buffer {
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Buffer{
		provider:    provider,
		gate:        gate,
		logger:      logger,
		minInterval: DefaultMinInterval,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddFragment appends one finalized transcript fragment and runs the
// intent gate over it. Empty or whitespace-only text is rejected. Returns
// whether the gate fired.
func (b *Buffer) AddFragment(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	fired := b.gate.Classify(text)

	b.mu.Lock()
	b.fragments = append(b.fragments, TranscriptFragment{
		Text:      text,
		Timestamp: b.now(),
	})
	if fired {
		b.pendingIntent = true
	}
	fragments := len(b.fragments)
	b.mu.Unlock()

	b.metrics.recordFragment(fired)
	if fired {
		b.logger.Debug("intent gate fired",
			zap.Int("buffered_fragments", fragments))
	}
	return fired
}

// EvaluateReadiness reports whether an extraction call may start now, and
// if not, why. Checks run in a fixed order: outstanding call, missing
// intent signal, interval gate, empty buffer.
func (b *Buffer) EvaluateReadiness() Readiness {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readinessLocked()
}

func (b *Buffer) readinessLocked() Readiness {
	switch {
	case b.callInFlight:
		return Readiness{Reason: HoldInFlight}
	case !b.pendingIntent:
		return Readiness{Reason: HoldNoIntent}
	case b.now().Sub(b.lastCallAt) < b.minInterval:
		return Readiness{Reason: HoldInterval}
	case len(b.fragments) == 0:
		return Readiness{Reason: HoldEmpty}
	default:
		return Readiness{CanCall: true}
	}
}

// Attempt runs one extraction cycle if the buffer is ready. A (nil, nil)
// return means the cycle was held; the caller has nothing to do.
//
// On provider failure the fragments and the intent signal survive so the
// next window retries with accumulated context, and lastCallAt is pushed
// past the call time by the backoff amount. On success or parse failure
// the cycle is complete: all state is reset and the result (possibly
// salvaged, possibly empty with an error annotation) is returned.
func (b *Buffer) Attempt(ctx context.Context) (*Result, error) {
	b.mu.Lock()
	ready := b.readinessLocked()
	if !ready.CanCall {
		b.mu.Unlock()
		b.metrics.recordHold(ready.Reason)
		return nil, nil
	}

	b.callInFlight = true
	texts := make([]string, len(b.fragments))
	for i, f := range b.fragments {
		texts[i] = f.Text
	}
	meetingDate := b.now()
	if n := len(b.fragments); n > 0 {
		meetingDate = b.fragments[n-1].Timestamp
	}
	callTime := b.now()
	b.mu.Unlock()

	transcript := strings.Join(texts, " ")
	b.logger.Debug("starting extraction call",
		zap.Int("fragments", len(texts)),
		zap.Int("transcript_chars", len(transcript)))

	content, err := b.provider.Extract(ctx, transcript, meetingDate)
	elapsed := b.now().Sub(callTime)

	if err != nil {
		backoff := genericBackoff
		if IsRateLimited(err) {
			backoff = rateLimitedBackoff
		}

		b.mu.Lock()
		b.lastCallAt = callTime.Add(backoff)
		b.callInFlight = false
		b.mu.Unlock()

		b.metrics.recordAttempt(ctx, "transport_error", elapsed)
		b.logger.Warn("extraction call failed",
			zap.Duration("backoff", backoff),
			zap.Int("preserved_fragments", len(texts)),
			zap.Error(err))
		return nil, fmt.Errorf("extraction call failed: %w", err)
	}

	result := parseTaskJSON(content)
	for i := range result.Tasks {
		if result.Tasks[i].Deadline != nil {
			result.Tasks[i].Deadline = deadline.Normalize(*result.Tasks[i].Deadline, meetingDate)
		}
	}

	b.mu.Lock()
	b.lastCallAt = b.now()
	b.fragments = nil
	b.pendingIntent = false
	b.callInFlight = false
	b.mu.Unlock()

	outcome := "ok"
	if result.Err != "" {
		outcome = "parse_error"
	}
	b.metrics.recordAttempt(ctx, outcome, elapsed)
	b.logger.Info("extraction cycle completed",
		zap.Int("tasks", len(result.Tasks)),
		zap.String("outcome", outcome),
		zap.Duration("elapsed", elapsed))

	return &result, nil
}

// Clear drops all buffered fragments and the intent signal without
// calling the provider. Used on session stop.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.fragments = nil
	b.pendingIntent = false
	b.mu.Unlock()
}

// Stats is a point-in-time snapshot of buffer state for the status
// surface.
type Stats struct {
	Fragments       int       `json:"fragments"`
	HasIntentSignal bool      `json:"hasIntentSignal"`
	CallInFlight    bool      `json:"callInFlight"`
	LastCallAt      time.Time `json:"lastCallAt"`
}

// Stats returns a snapshot of the buffer's state.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Fragments:       len(b.fragments),
		HasIntentSignal: b.pendingIntent,
		CallInFlight:    b.callInFlight,
		LastCallAt:      b.lastCallAt,
	}
}
