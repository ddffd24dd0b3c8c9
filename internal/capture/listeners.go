package capture

import (
	"github.com/google/uuid"

	"github.com/minutedhq/minuted/internal/extraction"
)

// OnTranscript registers a listener for finalized transcript fragments.
// The returned func unsubscribes it; calling it twice is harmless.
func (s *Session) OnTranscript(fn func(Fragment)) func() {
	id := uuid.New().String()
	s.subsMu.Lock()
	s.transcriptSubs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.transcriptSubs, id)
		s.subsMu.Unlock()
	}
}

// OnTaskDetected registers a listener for extraction cycles that produced
// at least one task. The returned func unsubscribes it.
func (s *Session) OnTaskDetected(fn func(*extraction.Result)) func() {
	id := uuid.New().String()
	s.subsMu.Lock()
	s.taskSubs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.taskSubs, id)
		s.subsMu.Unlock()
	}
}

func (s *Session) notifyTranscript(frag Fragment) {
	s.subsMu.RLock()
	subs := make([]func(Fragment), 0, len(s.transcriptSubs))
	for _, fn := range s.transcriptSubs {
		subs = append(subs, fn)
	}
	s.subsMu.RUnlock()

	for _, fn := range subs {
		fn(frag)
	}
}

func (s *Session) notifyTasks(result *extraction.Result) {
	s.subsMu.RLock()
	subs := make([]func(*extraction.Result), 0, len(s.taskSubs))
	for _, fn := range s.taskSubs {
		subs = append(subs, fn)
	}
	s.subsMu.RUnlock()

	for _, fn := range subs {
		fn(result)
	}
}
