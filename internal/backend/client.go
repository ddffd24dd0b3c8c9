// Package backend is the REST client for the minuted backend: transcript
// persistence, task submission, and the moderator approval surface.
//
// Capture-bot calls authenticate with an X-Bot-Key header; moderator calls
// use a Bearer token. All calls are single-shot, the pipeline never retries
// them.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// Backend column limits. Oversize values are truncated client-side so a
// verbose transcript never turns into a 422.
const (
	maxSegmentText = 8000
	maxSpeakerName = 120
)

var (
	// ErrNotModerator is returned when the backend rejects a moderator
	// call for lack of rights (HTTP 403).
	ErrNotModerator = errors.New("backend: caller is not a moderator")

	// ErrMissingMeetingID is returned when a meeting-scoped call is made
	// without a meeting identifier.
	ErrMissingMeetingID = errors.New("backend: meeting id required")

	// ErrMissingPendingID is returned when an approval mutation is made
	// without a batch identifier.
	ErrMissingPendingID = errors.New("backend: pending id required")

	// ErrNoTasks is returned when a task submission carries no tasks;
	// the backend would reject it with 422.
	ErrNoTasks = errors.New("backend: no tasks to submit")
)

// Config configures the backend client.
type Config struct {
	BaseURL string

	// BotKey authenticates capture-bot calls (segments, tasks, complete).
	BotKey string

	// AuthToken authenticates moderator calls (approvals).
	AuthToken string

	// OrgID and TeamID are stamped onto outbound payloads that do not
	// carry their own.
	OrgID  string
	TeamID string

	Timeout time.Duration
}

type authKind int

const (
	authBot authKind = iota
	authBearer
)

// Client talks to the minuted backend.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a backend client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}, nil
}

// AppendSegment persists one finalized transcript segment. Best-effort by
// contract: callers log failures and carry on.
func (c *Client) AppendSegment(ctx context.Context, meetingID string, seg Segment) error {
	if meetingID == "" {
		return ErrMissingMeetingID
	}
	c.stamp(&seg.OrgID, &seg.TeamID)
	if seg.Timestamp == 0 {
		seg.Timestamp = c.now().UnixMilli()
	}
	seg.Text = truncate(seg.Text, maxSegmentText)
	seg.Speaker = truncate(seg.Speaker, maxSpeakerName)
	return c.do(ctx, http.MethodPost, "/api/meetings/"+url.PathEscape(meetingID)+"/segments", authBot, seg, nil)
}

// SubmitTasks submits one extraction cycle's tasks for a meeting. The
// backend fans the batch out to moderators as a TASK_DETECTED push.
func (c *Client) SubmitTasks(ctx context.Context, meetingID string, sub TaskSubmission) error {
	if meetingID == "" {
		return ErrMissingMeetingID
	}
	if len(sub.Tasks) == 0 {
		return ErrNoTasks
	}
	c.stamp(&sub.OrgID, &sub.TeamID)
	return c.do(ctx, http.MethodPost, "/api/meetings/"+url.PathEscape(meetingID)+"/tasks", authBot, sub, nil)
}

// CompleteMeeting marks a meeting finished and optionally requests summary
// generation.
func (c *Client) CompleteMeeting(ctx context.Context, meetingID string, generateSummary bool) error {
	if meetingID == "" {
		return ErrMissingMeetingID
	}
	req := completeRequest{GenerateSummary: generateSummary}
	c.stamp(&req.OrgID, &req.TeamID)
	return c.do(ctx, http.MethodPost, "/api/meetings/"+url.PathEscape(meetingID)+"/complete", authBot, req, nil)
}

// PendingApprovals fetches the full pending list. Returns ErrNotModerator
// when the caller lacks moderator rights.
func (c *Client) PendingApprovals(ctx context.Context) ([]PendingApprovalBatch, error) {
	var out []PendingApprovalBatch
	if err := c.do(ctx, http.MethodGet, "/api/approvals/pending", authBearer, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveTask approves one task of a pending batch.
func (c *Client) ApproveTask(ctx context.Context, pendingID string, taskIndex int) error {
	if pendingID == "" {
		return ErrMissingPendingID
	}
	req := approveTaskRequest{TaskIndex: taskIndex}
	return c.do(ctx, http.MethodPost, "/api/approvals/"+url.PathEscape(pendingID)+"/approve", authBearer, req, nil)
}

// RejectTask rejects one task of a pending batch.
func (c *Client) RejectTask(ctx context.Context, pendingID string, taskIndex int, reason string) error {
	if pendingID == "" {
		return ErrMissingPendingID
	}
	req := rejectTaskRequest{TaskIndex: taskIndex, Reason: reason}
	return c.do(ctx, http.MethodPost, "/api/approvals/"+url.PathEscape(pendingID)+"/reject", authBearer, req, nil)
}

// ApproveAll approves every task of a batch, with optional per-task edits
// applied server-side before approval.
func (c *Client) ApproveAll(ctx context.Context, pendingID string, edits []TaskEdit) error {
	if pendingID == "" {
		return ErrMissingPendingID
	}
	req := approveAllRequest{Edits: edits}
	return c.do(ctx, http.MethodPost, "/api/approvals/"+url.PathEscape(pendingID)+"/approve-all", authBearer, req, nil)
}

// RejectAll rejects every task of a batch.
func (c *Client) RejectAll(ctx context.Context, pendingID string, reason string) error {
	if pendingID == "" {
		return ErrMissingPendingID
	}
	req := rejectAllRequest{Reason: reason}
	return c.do(ctx, http.MethodPost, "/api/approvals/"+url.PathEscape(pendingID)+"/reject-all", authBearer, req, nil)
}

// stamp fills empty org/team fields from the client config.
func (c *Client) stamp(orgID, teamID *string) {
	if *orgID == "" {
		*orgID = c.cfg.OrgID
	}
	if *teamID == "" {
		*teamID = c.cfg.TeamID
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// do performs a single request. No retries.
func (c *Client) do(ctx context.Context, method, path string, auth authKind, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	switch auth {
	case authBot:
		req.Header.Set("X-Bot-Key", c.cfg.BotKey)
	case authBearer:
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if auth == authBearer && resp.StatusCode == http.StatusForbidden {
		return ErrNotModerator
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, string(data))
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
