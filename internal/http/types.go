// Package http provides the local control surface for minuted.
package http

import (
	"time"

	"github.com/minutedhq/minuted/internal/backend"
	"github.com/minutedhq/minuted/internal/extraction"
)

// HealthResponse is the response body for GET /healthz and GET /readyz.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is the response body for GET /v1/status.
type StatusResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Services   map[string]string `json:"services,omitempty"`
	Session    SessionStatus     `json:"session"`
	Approvals  ApprovalsStatus   `json:"approvals"`
	Extraction *extraction.Stats `json:"extraction,omitempty"`
}

// SessionStatus describes the capture session lifecycle state.
type SessionStatus struct {
	State     string `json:"state"`
	MeetingID string `json:"meetingId,omitempty"`
}

// ApprovalsStatus summarizes the approval queue.
type ApprovalsStatus struct {
	Pending         int    `json:"pending"`
	ActivePendingID string `json:"activePendingId,omitempty"`
}

// StartSessionRequest is the request body for POST /v1/session/start.
type StartSessionRequest struct {
	MeetingID string `json:"meetingId"`
}

// SessionResponse is the response body for session start/stop.
type SessionResponse struct {
	State     string `json:"state"`
	MeetingID string `json:"meetingId,omitempty"`
}

// ApprovalsResponse is the response body for GET /v1/approvals.
type ApprovalsResponse struct {
	Approvals []backend.PendingApprovalBatch `json:"approvals"`
	Active    *backend.PendingApprovalBatch  `json:"active,omitempty"`
}

// ApproveAllRequest is the request body for batch approval.
type ApproveAllRequest struct {
	Edits []backend.TaskEdit `json:"edits,omitempty"`
}

// RejectRequest is the request body for task and batch rejection.
type RejectRequest struct {
	Reason string `json:"reason,omitempty"`
}

// SnoozeResponse is the response body for POST /v1/approvals/snooze.
type SnoozeResponse struct {
	SnoozedUntil time.Time `json:"snoozedUntil"`
}

// ResyncResponse is the response body for POST /v1/approvals/resync.
type ResyncResponse struct {
	Status  string `json:"status"`
	Pending int    `json:"pending"`
}

// ActionResponse is the response body for approval mutations.
type ActionResponse struct {
	Status string `json:"status"`
}
