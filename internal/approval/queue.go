// Package approval holds the moderator-facing queue of pending task
// batches and the syncer that keeps it aligned with the backend.
//
// The backend is the sole source of truth: the queue never removes a
// batch locally. Periodic and on-demand resyncs replace the whole queue,
// push events upsert single batches, and every moderator action forces a
// resync regardless of whether the mutation succeeded.
package approval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/minutedhq/minuted/internal/backend"
)

// DefaultSnoozeWindow is how long Snooze suppresses the active batch.
const DefaultSnoozeWindow = 30 * time.Second

// Moderator is the backend approval surface. Satisfied by
// *backend.Client.
type Moderator interface {
	PendingApprovals(ctx context.Context) ([]backend.PendingApprovalBatch, error)
	ApproveTask(ctx context.Context, pendingID string, taskIndex int) error
	RejectTask(ctx context.Context, pendingID string, taskIndex int, reason string) error
	ApproveAll(ctx context.Context, pendingID string, edits []backend.TaskEdit) error
	RejectAll(ctx context.Context, pendingID string, reason string) error
}

var _ Moderator = (*backend.Client)(nil)

// Queue owns pending-approval state for one moderator. All methods are
// safe for concurrent use.
type Queue struct {
	backend Moderator
	log     *zap.Logger
	metrics *Metrics

	snoozeFor time.Duration
	now       func() time.Time

	mu           sync.Mutex
	batches      []backend.PendingApprovalBatch
	snoozedUntil time.Time
	snoozeTimer  *time.Timer
	snoozeGen    uint64
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithSnoozeWindow overrides the snooze suppression window.
func WithSnoozeWindow(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.snoozeFor = d
		}
	}
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithQueueMetrics attaches approval metrics.
func WithQueueMetrics(m *Metrics) QueueOption {
	return func(q *Queue) {
		q.metrics = m
	}
}

// NewQueue creates an empty queue backed by mod.
func NewQueue(mod Moderator, logger *zap.Logger, opts ...QueueOption) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		backend:   mod,
		log:       logger,
		snoozeFor: DefaultSnoozeWindow,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Resync replaces the whole queue with the backend's pending list, sorted
// newest first, and clears any snooze. A caller without moderator rights
// silently ends up with an empty queue.
func (q *Queue) Resync(ctx context.Context) error {
	batches, err := q.backend.PendingApprovals(ctx)
	if err != nil {
		if errors.Is(err, backend.ErrNotModerator) {
			q.replace(nil)
			q.metrics.recordResync("forbidden")
			return nil
		}
		q.metrics.recordResync("error")
		return fmt.Errorf("approval resync failed: %w", err)
	}

	q.replace(batches)
	q.metrics.recordResync("ok")
	q.log.Debug("approval queue resynced", zap.Int("pending", len(batches)))
	return nil
}

func (q *Queue) replace(batches []backend.PendingApprovalBatch) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.batches = batches
	q.sortLocked()
	q.clearSnoozeLocked()
}

// Upsert inserts a pushed batch, replacing any batch with the same
// PendingID outright, re-sorts, and clears any snooze. New work always
// cancels a snooze.
func (q *Queue) Upsert(batch backend.PendingApprovalBatch) {
	q.mu.Lock()
	defer q.mu.Unlock()

	replaced := false
	for i := range q.batches {
		if q.batches[i].PendingID == batch.PendingID {
			q.batches[i] = batch
			replaced = true
			break
		}
	}
	if !replaced {
		q.batches = append(q.batches, batch)
	}
	q.sortLocked()
	q.clearSnoozeLocked()

	q.metrics.recordUpsert(replaced)
	q.log.Debug("pending batch upserted",
		zap.String("pending_id", batch.PendingID),
		zap.Bool("replaced", replaced),
		zap.Int("pending", len(q.batches)))
}

// sortLocked orders batches createdAt-descending; ties keep their
// receipt order.
func (q *Queue) sortLocked() {
	sort.SliceStable(q.batches, func(i, j int) bool {
		return q.batches[i].CreatedAt.After(q.batches[j].CreatedAt)
	})
}

// Snooze suppresses the active batch until now + the snooze window and
// schedules its own expiry. Only one expiry timer is ever pending.
func (q *Queue) Snooze() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.snoozeTimer != nil {
		q.snoozeTimer.Stop()
	}
	q.snoozedUntil = q.now().Add(q.snoozeFor)
	q.snoozeGen++
	gen := q.snoozeGen
	q.snoozeTimer = time.AfterFunc(q.snoozeFor, func() {
		q.expireSnooze(gen)
	})

	q.metrics.recordSnooze()
	q.log.Debug("approvals snoozed", zap.Time("until", q.snoozedUntil))
	return q.snoozedUntil
}

// clearSnoozeLocked cancels any pending expiry and lifts the window. The
// generation bump invalidates a timer that already fired but has not run.
func (q *Queue) clearSnoozeLocked() {
	if q.snoozeTimer != nil {
		q.snoozeTimer.Stop()
		q.snoozeTimer = nil
	}
	q.snoozeGen++
	q.snoozedUntil = time.Time{}
}

func (q *Queue) expireSnooze(gen uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if gen != q.snoozeGen {
		return
	}
	q.snoozeTimer = nil
	q.snoozedUntil = time.Time{}
	q.log.Debug("snooze expired")
}

// Active returns the queue head, or nil while the queue is empty or a
// snooze window is open.
func (q *Queue) Active() *backend.PendingApprovalBatch {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.snoozedUntil.IsZero() && q.now().Before(q.snoozedUntil) {
		return nil
	}
	if len(q.batches) == 0 {
		return nil
	}
	head := q.batches[0]
	return &head
}

// List returns a copy of the queue, newest first.
func (q *Queue) List() []backend.PendingApprovalBatch {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]backend.PendingApprovalBatch, len(q.batches))
	copy(out, q.batches)
	return out
}

// Len returns the number of pending batches.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.batches)
}

// Approve approves one task, then forces a resync regardless of outcome.
// The mutation's failure is surfaced; the batch is never removed locally.
func (q *Queue) Approve(ctx context.Context, pendingID string, taskIndex int) error {
	mutErr := q.backend.ApproveTask(ctx, pendingID, taskIndex)
	q.afterAction(ctx, "approve", mutErr)
	if mutErr != nil {
		return fmt.Errorf("approve failed: %w", mutErr)
	}
	return nil
}

// Reject rejects one task, then forces a resync regardless of outcome.
func (q *Queue) Reject(ctx context.Context, pendingID string, taskIndex int, reason string) error {
	mutErr := q.backend.RejectTask(ctx, pendingID, taskIndex, reason)
	q.afterAction(ctx, "reject", mutErr)
	if mutErr != nil {
		return fmt.Errorf("reject failed: %w", mutErr)
	}
	return nil
}

// ApproveAll approves a whole batch with optional edits, then forces a
// resync regardless of outcome.
func (q *Queue) ApproveAll(ctx context.Context, pendingID string, edits []backend.TaskEdit) error {
	mutErr := q.backend.ApproveAll(ctx, pendingID, edits)
	q.afterAction(ctx, "approve_all", mutErr)
	if mutErr != nil {
		return fmt.Errorf("approve all failed: %w", mutErr)
	}
	return nil
}

// RejectAll rejects a whole batch, then forces a resync regardless of
// outcome.
func (q *Queue) RejectAll(ctx context.Context, pendingID string, reason string) error {
	mutErr := q.backend.RejectAll(ctx, pendingID, reason)
	q.afterAction(ctx, "reject_all", mutErr)
	if mutErr != nil {
		return fmt.Errorf("reject all failed: %w", mutErr)
	}
	return nil
}

func (q *Queue) afterAction(ctx context.Context, action string, mutErr error) {
	outcome := "ok"
	if mutErr != nil {
		outcome = "error"
	}
	q.metrics.recordAction(action, outcome)

	if err := q.Resync(ctx); err != nil {
		q.log.Warn("post-action resync failed",
			zap.String("action", action),
			zap.Error(err))
	}
}
