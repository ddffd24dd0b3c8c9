// Package capture owns the audio pipeline lifecycle for one meeting
// capture session.
//
// The package supports:
//   - Pumping PCM frames from an AudioSource into the transcription stream
//   - Turning finalized transcripts into normalized, deduplicated fragments
//   - Best-effort persistence of every fragment to the backend
//   - Feeding the extraction buffer and running guarded extraction attempts
//   - Fanning detected tasks out to the backend and registered listeners
//
// # Lifecycle
//
// A Session moves through Idle, Starting, Active and Stopping. Start
// acquires the audio source and the transcription stream, unwinding in
// reverse order on failure. Stop flushes one final gated extraction
// attempt, never aborting one already in flight, then tears the pipeline
// down and returns the session to Idle.
//
// A Session is constructed per meeting capture; there is no package-level
// state. At most one extraction attempt is outstanding per session no
// matter how fast fragments arrive.
package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/minutedhq/minuted/internal/backend"
	"github.com/minutedhq/minuted/internal/extraction"
	"github.com/minutedhq/minuted/internal/stt"
)

// SessionState is the lifecycle state of a capture session.
type SessionState string

const (
	StateIdle     SessionState = "idle"
	StateStarting SessionState = "starting"
	StateActive   SessionState = "active"
	StateStopping SessionState = "stopping"
)

var (
	// ErrSessionActive is returned by Start when a capture is already
	// running.
	ErrSessionActive = errors.New("capture: session already active")

	// ErrSessionIdle is returned by Stop when no capture is running.
	ErrSessionIdle = errors.New("capture: session not active")

	// ErrMissingMeetingID is returned by Start without a meeting id.
	ErrMissingMeetingID = errors.New("capture: meeting id required")
)

// Frame is one chunk of 16-bit PCM audio.
type Frame []byte

// AudioSource supplies raw audio. Start returns a frame channel that
// closes when the source ends; Stop ends the source and must be safe to
// call after the channel has already closed.
type AudioSource interface {
	Start(ctx context.Context) (<-chan Frame, error)
	Stop() error
}

// Streamer is the duplex transcription connection. The result channel
// closes after Close returns. Satisfied by *stt.Client.
type Streamer interface {
	Connect(ctx context.Context) (<-chan stt.Result, error)
	SendAudio(frame []byte) error
	Close() error
}

// Extractor is the gated fragment buffer. Satisfied by
// *extraction.Buffer.
type Extractor interface {
	AddFragment(text string) bool
	Attempt(ctx context.Context) (*extraction.Result, error)
	Clear()
}

// Recorder persists meeting artifacts. Satisfied by *backend.Client.
type Recorder interface {
	AppendSegment(ctx context.Context, meetingID string, seg backend.Segment) error
	SubmitTasks(ctx context.Context, meetingID string, sub backend.TaskSubmission) error
	CompleteMeeting(ctx context.Context, meetingID string, generateSummary bool) error
}

var _ Streamer = (*stt.Client)(nil)
var _ Recorder = (*backend.Client)(nil)

// Fragment is one finalized transcript unit after normalization.
type Fragment struct {
	Text         string    `json:"text"`
	Speaker      string    `json:"speaker,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	SegmentIndex int       `json:"segmentIndex"`
	Confidence   float64   `json:"confidence,omitempty"`
}

// Deps are the collaborators a session is built from.
type Deps struct {
	Source   AudioSource
	Stream   Streamer
	Buffer   Extractor
	Recorder Recorder
	Logger   *zap.Logger
}

const defaultDrainTimeout = 5 * time.Second

// Session drives one meeting capture through Idle, Starting, Active and
// Stopping.
type Session struct {
	source   AudioSource
	stream   Streamer
	buffer   Extractor
	recorder Recorder
	log      *zap.Logger
	metrics  *Metrics

	completeOnStop  bool
	generateSummary bool
	drainTimeout    time.Duration

	mu          sync.Mutex
	state       SessionState
	meetingID   string
	segIndex    int
	lastFinal   string
	attemptBusy bool
	cancel      context.CancelFunc
	done        chan struct{}

	attemptWG sync.WaitGroup

	subsMu         sync.RWMutex
	transcriptSubs map[string]func(Fragment)
	taskSubs       map[string]func(*extraction.Result)
}

// Option configures a Session.
type Option func(*Session)

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithCompleteOnStop makes Stop report meeting completion to the backend,
// optionally requesting summary generation.
func WithCompleteOnStop(generateSummary bool) Option {
	return func(s *Session) {
		s.completeOnStop = true
		s.generateSummary = generateSummary
	}
}

// WithDrainTimeout bounds how long Stop waits for the pipeline goroutines
// to drain after the stream closes.
func WithDrainTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.drainTimeout = d
		}
	}
}

// New creates an idle capture session.
func New(deps Deps, opts ...Option) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		source:         deps.Source,
		stream:         deps.Stream,
		buffer:         deps.Buffer,
		recorder:       deps.Recorder,
		log:            logger,
		drainTimeout:   defaultDrainTimeout,
		state:          StateIdle,
		transcriptSubs: make(map[string]func(Fragment)),
		taskSubs:       make(map[string]func(*extraction.Result)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MeetingID returns the meeting being captured, or "" when idle.
func (s *Session) MeetingID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meetingID
}
