package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/minutedhq/minuted/internal/backend"
	"github.com/minutedhq/minuted/internal/notify"
)

const (
	defaultSyncInterval  = 30 * time.Second
	defaultResyncTimeout = 10 * time.Second
)

// Subscriber registers push-event handlers. Satisfied by
// *notify.Channel.
type Subscriber interface {
	On(event string, fn notify.Handler) func()
}

var _ Subscriber = (*notify.Channel)(nil)

// Syncer keeps a Queue aligned with the backend. It resyncs once at
// start and on a fixed interval, and upserts batches carried by
// TASK_DETECTED push events. Unrelated push events never reach it.
//
// Thread safety: Start and Stop are safe to call concurrently; the
// running state is mutex-guarded and the stop channel is recreated per
// run.
type Syncer struct {
	queue    *Queue
	sub      Subscriber
	log      *zap.Logger
	interval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	unsub   func()
}

// SyncerOption configures a Syncer.
type SyncerOption func(*Syncer)

// WithInterval sets the periodic resync interval (default 30s).
func WithInterval(d time.Duration) SyncerOption {
	return func(s *Syncer) {
		if d > 0 {
			s.interval = d
		}
	}
}

// NewSyncer creates a stopped syncer.
func NewSyncer(queue *Queue, sub Subscriber, logger *zap.Logger, opts ...SyncerOption) (*Syncer, error) {
	if queue == nil {
		return nil, fmt.Errorf("queue cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Syncer{
		queue:    queue,
		sub:      sub,
		log:      logger,
		interval: defaultSyncInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start subscribes to push events and begins the resync loop. Calling
// Start on a running syncer returns an error without spawning a second
// loop.
func (s *Syncer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("syncer is already running")
	}

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.running = true

	if s.sub != nil {
		s.unsub = s.sub.On(notify.EventTaskDetected, s.handleTaskDetected)
	}

	go s.run(s.stopCh, s.doneCh)

	s.log.Info("approval syncer started", zap.Duration("interval", s.interval))
	return nil
}

// Stop unsubscribes from push events and ends the loop. Stopping a
// stopped syncer is a no-op.
func (s *Syncer) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	unsub := s.unsub
	s.unsub = nil
	done := s.doneCh
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	<-done

	s.log.Info("approval syncer stopped")
	return nil
}

// run resyncs immediately, then on every tick until stopped. A panic in
// one resync is recovered and the loop continues.
func (s *Syncer) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	s.safeResync()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.safeResync()
		case <-stopCh:
			return
		}
	}
}

func (s *Syncer) safeResync() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("resync panicked, continuing",
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), defaultResyncTimeout)
	defer cancel()

	if err := s.queue.Resync(ctx); err != nil {
		s.log.Warn("periodic resync failed", zap.Error(err))
	}
}

// handleTaskDetected runs on the push channel's read goroutine, so it
// only decodes and upserts.
func (s *Syncer) handleTaskDetected(payload json.RawMessage) {
	var batch backend.PendingApprovalBatch
	if err := json.Unmarshal(payload, &batch); err != nil {
		s.log.Warn("malformed task-detected payload", zap.Error(err))
		return
	}
	if batch.PendingID == "" {
		s.log.Debug("task-detected payload missing pending id")
		return
	}
	s.queue.Upsert(batch)
}
