package extraction

import (
	"context"
	"time"
)

// Task priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// TranscriptFragment is one finalized unit of transcribed speech.
// Immutable once created; owned by the Buffer while queued.
type TranscriptFragment struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskCandidate is one actionable task recovered from a transcript window.
// Deadline is an ISO date or nil; it is normalized before a Result leaves
// the Buffer and the candidate is immutable afterward.
type TaskCandidate struct {
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	Assignee      string  `json:"assignee"`
	AssigneeEmail string  `json:"assigneeEmail,omitempty"`
	Priority      string  `json:"priority"`
	Deadline      *string `json:"deadline"`
	Confidence    float64 `json:"confidence"`
}

// Result is the outcome of one completed extraction cycle. Err annotates a
// cycle whose response could not be parsed at all; the cycle still counts
// as completed and the buffer state is reset.
type Result struct {
	Tasks   []TaskCandidate `json:"tasks"`
	Summary string          `json:"summary"`
	Err     string          `json:"error,omitempty"`
}

// HoldReason explains why the buffer refused to start a call.
type HoldReason string

const (
	HoldNone     HoldReason = ""
	HoldInFlight HoldReason = "call_in_flight"
	HoldNoIntent HoldReason = "no_intent_signal"
	HoldInterval HoldReason = "min_interval"
	HoldEmpty    HoldReason = "empty_buffer"
)

// Readiness is the result of a buffer readiness check.
type Readiness struct {
	CanCall bool
	Reason  HoldReason
}

// Gate decides whether a fragment is worth an extraction call.
type Gate interface {
	Classify(text string) bool
}

// Provider issues one extraction call against an LLM API and returns the
// raw message content. Providers never retry; the buffer's backoff policy
// is the only retry control.
type Provider interface {
	Extract(ctx context.Context, transcript string, meetingDate time.Time) (string, error)

	// Available returns true if the provider is configured and ready.
	Available() bool
}

// Config holds provider configuration.
type Config struct {
	// Provider selects the implementation: "anthropic", "openai", or
	// "disabled".
	Provider  string `json:"provider"`
	Model     string `json:"model,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
	Timeout   int    `json:"timeout,omitempty"`
}
