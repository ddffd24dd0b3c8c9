package backend

import (
	"time"

	"github.com/minutedhq/minuted/internal/extraction"
)

// Segment is one finalized transcript fragment appended to a meeting's
// record. Timestamp is epoch milliseconds.
type Segment struct {
	OrgID        string `json:"orgId"`
	TeamID       string `json:"teamId,omitempty"`
	Text         string `json:"text"`
	Timestamp    int64  `json:"timestamp"`
	Speaker      string `json:"speaker,omitempty"`
	SegmentIndex int    `json:"segmentIndex"`
}

// TaskSubmission carries one extraction cycle's output to the backend.
// The backend normalizes tasks and pushes a TASK_DETECTED event to
// moderators.
type TaskSubmission struct {
	OrgID   string                     `json:"orgId"`
	TeamID  string                     `json:"teamId,omitempty"`
	Tasks   []extraction.TaskCandidate `json:"tasks"`
	Summary string                     `json:"summary,omitempty"`
}

// PendingApprovalBatch is one batch of detected tasks awaiting moderator
// review.
type PendingApprovalBatch struct {
	PendingID string                     `json:"pendingId"`
	MeetingID string                     `json:"meetingId"`
	OrgID     string                     `json:"orgId,omitempty"`
	TeamID    string                     `json:"teamId,omitempty"`
	Tasks     []extraction.TaskCandidate `json:"tasks"`
	Summary   string                     `json:"summary,omitempty"`
	CreatedAt time.Time                  `json:"createdAt"`
}

// TaskEdit overrides one task of a batch at approval time.
type TaskEdit struct {
	TaskIndex int                      `json:"taskIndex"`
	Task      extraction.TaskCandidate `json:"task"`
}

type completeRequest struct {
	OrgID           string `json:"orgId"`
	TeamID          string `json:"teamId,omitempty"`
	GenerateSummary bool   `json:"generateSummary"`
}

type approveTaskRequest struct {
	TaskIndex int `json:"taskIndex"`
}

type rejectTaskRequest struct {
	TaskIndex int    `json:"taskIndex"`
	Reason    string `json:"reason,omitempty"`
}

type approveAllRequest struct {
	Edits []TaskEdit `json:"edits,omitempty"`
}

type rejectAllRequest struct {
	Reason string `json:"reason,omitempty"`
}
