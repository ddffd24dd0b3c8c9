package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/minutedhq/minuted/internal/backend"
	"github.com/minutedhq/minuted/internal/extraction"
	"github.com/minutedhq/minuted/internal/stt"
)

// Start acquires the audio source, opens the transcription stream, and
// spawns the pipeline goroutines. Failure at either acquisition step
// releases whatever was acquired, returns the session to Idle, and
// surfaces the error.
func (s *Session) Start(ctx context.Context, meetingID string) error {
	if meetingID == "" {
		return ErrMissingMeetingID
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrSessionActive
	}
	s.state = StateStarting
	s.meetingID = meetingID
	s.segIndex = 0
	s.lastFinal = ""
	s.mu.Unlock()

	frames, err := s.source.Start(ctx)
	if err != nil {
		s.reset()
		return fmt.Errorf("failed to start audio source: %w", err)
	}

	results, err := s.stream.Connect(ctx)
	if err != nil {
		if stopErr := s.source.Stop(); stopErr != nil {
			s.log.Warn("audio source stop failed during unwind", zap.Error(stopErr))
		}
		s.reset()
		return fmt.Errorf("failed to open transcription stream: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = StateActive
	done := s.done
	s.mu.Unlock()

	go s.run(runCtx, done, frames, results)

	s.metrics.recordSessionStart()
	s.log.Info("capture session started", zap.String("meeting_id", meetingID))
	return nil
}

// Stop ends an active capture: stops the audio source, waits for any
// in-flight extraction attempt, flushes one final gated attempt, closes
// the transcription stream, clears the buffer, and returns to Idle.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrSessionIdle
	}
	s.state = StateStopping
	meetingID := s.meetingID
	done := s.done
	cancel := s.cancel
	s.mu.Unlock()

	if err := s.source.Stop(); err != nil {
		s.log.Warn("audio source stop failed", zap.Error(err))
	}

	// Let any outstanding attempt finish; its result is still processed.
	s.attemptWG.Wait()

	// One last gated check. The interval gate still applies.
	s.runAttempt(ctx, meetingID)

	if err := s.stream.Close(); err != nil {
		s.log.Warn("transcription stream close failed", zap.Error(err))
	}
	cancel()

	select {
	case <-done:
	case <-time.After(s.drainTimeout):
		s.log.Warn("pipeline did not drain before timeout", zap.Duration("timeout", s.drainTimeout))
	}

	s.buffer.Clear()

	if s.completeOnStop {
		if err := s.recorder.CompleteMeeting(ctx, meetingID, s.generateSummary); err != nil {
			s.log.Warn("meeting completion call failed",
				zap.String("meeting_id", meetingID),
				zap.Error(err))
		}
	}

	s.reset()
	s.log.Info("capture session stopped", zap.String("meeting_id", meetingID))
	return nil
}

// reset returns the session to Idle.
func (s *Session) reset() {
	s.mu.Lock()
	s.state = StateIdle
	s.meetingID = ""
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()
}

// run hosts the two pipeline goroutines and signals done when both exit.
func (s *Session) run(ctx context.Context, done chan struct{}, frames <-chan Frame, results <-chan stt.Result) {
	defer close(done)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.pumpAudio(ctx, frames)
	}()
	go func() {
		defer wg.Done()
		s.consumeTranscripts(ctx, results)
	}()
	wg.Wait()
}

// pumpAudio forwards frames to the transcription stream until the source
// ends or the session stops. A source ending on its own tears the session
// down through the normal stop path.
func (s *Session) pumpAudio(ctx context.Context, frames <-chan Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				s.mu.Lock()
				unexpected := s.state == StateActive
				s.mu.Unlock()
				if unexpected {
					s.log.Warn("audio source ended unexpectedly")
					go func() {
						if err := s.Stop(context.Background()); err != nil && !errors.Is(err, ErrSessionIdle) {
							s.log.Error("self-stop after source end failed", zap.Error(err))
						}
					}()
				}
				return
			}
			if err := s.stream.SendAudio(frame); err != nil {
				if errors.Is(err, stt.ErrNotConnected) {
					return
				}
				s.log.Debug("dropping audio frame", zap.Error(err))
			}
		}
	}
}

// consumeTranscripts drains the result channel until the stream closes.
// Only finalized transcripts feed the pipeline.
func (s *Session) consumeTranscripts(ctx context.Context, results <-chan stt.Result) {
	for res := range results {
		if !res.IsFinal {
			continue
		}
		s.handleFragment(ctx, res)
	}
}

// handleFragment runs the per-fragment pipeline: normalize, dedupe,
// persist, notify, buffer, and kick a guarded extraction attempt.
func (s *Session) handleFragment(ctx context.Context, res stt.Result) {
	text := normalizeTranscript(res.Text)
	if text == "" {
		return
	}

	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	if text == s.lastFinal {
		s.mu.Unlock()
		s.metrics.recordFragment(true)
		return
	}
	s.lastFinal = text
	index := s.segIndex
	s.segIndex++
	meetingID := s.meetingID
	s.mu.Unlock()

	s.metrics.recordFragment(false)

	frag := Fragment{
		Text:         text,
		Timestamp:    res.ReceivedAt,
		SegmentIndex: index,
		Confidence:   res.Confidence,
	}
	if frag.Timestamp.IsZero() {
		frag.Timestamp = time.Now()
	}

	seg := backend.Segment{
		Text:         frag.Text,
		Timestamp:    frag.Timestamp.UnixMilli(),
		Speaker:      frag.Speaker,
		SegmentIndex: frag.SegmentIndex,
	}
	if err := s.recorder.AppendSegment(ctx, meetingID, seg); err != nil {
		s.metrics.recordPersistFailure()
		s.log.Warn("transcript persist failed",
			zap.String("meeting_id", meetingID),
			zap.Int("segment_index", frag.SegmentIndex),
			zap.Error(err))
	}

	s.notifyTranscript(frag)

	s.buffer.AddFragment(frag.Text)

	s.tryExtraction(ctx, meetingID)
}

// tryExtraction spawns one extraction attempt unless one is already
// outstanding for this session.
func (s *Session) tryExtraction(ctx context.Context, meetingID string) {
	s.mu.Lock()
	if s.state != StateActive || s.attemptBusy {
		s.mu.Unlock()
		return
	}
	s.attemptBusy = true
	s.attemptWG.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.attemptWG.Done()
		defer func() {
			s.mu.Lock()
			s.attemptBusy = false
			s.mu.Unlock()
		}()
		s.runAttempt(ctx, meetingID)
	}()
}

// runAttempt performs one gated buffer attempt and processes its result.
func (s *Session) runAttempt(ctx context.Context, meetingID string) {
	result, err := s.buffer.Attempt(ctx)
	if err != nil {
		s.log.Warn("extraction attempt failed",
			zap.String("meeting_id", meetingID),
			zap.Error(err))
		return
	}
	if result == nil {
		return
	}
	s.handleResult(ctx, meetingID, result)
}

// handleResult submits a non-empty cycle's tasks and fans them out.
// Unparseable cycles are invisible beyond a debug line.
func (s *Session) handleResult(ctx context.Context, meetingID string, result *extraction.Result) {
	if result.Err != "" {
		s.log.Debug("extraction cycle unparseable", zap.String("detail", result.Err))
	}
	if len(result.Tasks) == 0 {
		return
	}

	sub := backend.TaskSubmission{Tasks: result.Tasks, Summary: result.Summary}
	if err := s.recorder.SubmitTasks(ctx, meetingID, sub); err != nil {
		s.metrics.recordSubmission("error")
		s.log.Warn("task submission failed",
			zap.String("meeting_id", meetingID),
			zap.Int("tasks", len(result.Tasks)),
			zap.Error(err))
	} else {
		s.metrics.recordSubmission("ok")
		s.log.Info("tasks submitted",
			zap.String("meeting_id", meetingID),
			zap.Int("tasks", len(result.Tasks)))
	}

	s.notifyTasks(result)
}

// normalizeTranscript collapses whitespace and guarantees terminal
// punctuation so persisted segments and buffered fragments agree with the
// backend's own normalization.
func normalizeTranscript(text string) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	if cleaned == "" {
		return ""
	}
	switch cleaned[len(cleaned)-1] {
	case '.', '!', '?':
	default:
		cleaned += "."
	}
	return cleaned
}
