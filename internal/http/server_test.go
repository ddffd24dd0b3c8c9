package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/minutedhq/minuted/internal/backend"
	"github.com/minutedhq/minuted/internal/capture"
	"github.com/minutedhq/minuted/internal/extraction"
)

type fakeSession struct {
	mu        sync.Mutex
	state     capture.SessionState
	meetingID string
	startErr  error
	stopErr   error
}

func newFakeSession() *fakeSession {
	return &fakeSession{state: capture.StateIdle}
}

func (f *fakeSession) Start(_ context.Context, meetingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if f.state == capture.StateActive {
		return capture.ErrSessionActive
	}
	f.state = capture.StateActive
	f.meetingID = meetingID
	return nil
}

func (f *fakeSession) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	if f.state != capture.StateActive {
		return capture.ErrSessionIdle
	}
	f.state = capture.StateIdle
	f.meetingID = ""
	return nil
}

func (f *fakeSession) State() capture.SessionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) MeetingID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meetingID
}

type fakeQueue struct {
	mu        sync.Mutex
	batches   []backend.PendingApprovalBatch
	snoozedTo time.Time
	resyncErr error
	actionErr error
	calls     []string
}

func (f *fakeQueue) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeQueue) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeQueue) List() []backend.PendingApprovalBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.PendingApprovalBatch(nil), f.batches...)
}

func (f *fakeQueue) Active() *backend.PendingApprovalBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil
	}
	head := f.batches[0]
	return &head
}

func (f *fakeQueue) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeQueue) Resync(context.Context) error {
	f.record("resync")
	return f.resyncErr
}

func (f *fakeQueue) Snooze() time.Time {
	f.record("snooze")
	return f.snoozedTo
}

func (f *fakeQueue) Approve(_ context.Context, pendingID string, taskIndex int) error {
	f.record(fmt.Sprintf("approve %s %d", pendingID, taskIndex))
	return f.actionErr
}

func (f *fakeQueue) Reject(_ context.Context, pendingID string, taskIndex int, reason string) error {
	f.record(fmt.Sprintf("reject %s %d %s", pendingID, taskIndex, reason))
	return f.actionErr
}

func (f *fakeQueue) ApproveAll(_ context.Context, pendingID string, edits []backend.TaskEdit) error {
	f.record(fmt.Sprintf("approve-all %s %d", pendingID, len(edits)))
	return f.actionErr
}

func (f *fakeQueue) RejectAll(_ context.Context, pendingID string, reason string) error {
	f.record(fmt.Sprintf("reject-all %s %s", pendingID, reason))
	return f.actionErr
}

// setupTestServer creates a test server with default configuration.
func setupTestServer(t *testing.T) (*Server, *fakeSession, *fakeQueue) {
	t.Helper()

	sess := newFakeSession()
	queue := &fakeQueue{}

	cfg := &Config{
		Host: "localhost",
		Port: 9090,
	}

	server, err := NewServer(sess, queue, zap.NewNop(), cfg)
	require.NoError(t, err)

	return server, sess, queue
}

func postJSON(t *testing.T, server *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(http.MethodPost, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	t.Run("creates server with valid config", func(t *testing.T) {
		cfg := &Config{
			Host: "localhost",
			Port: 9090,
		}

		server, err := NewServer(newFakeSession(), &fakeQueue{}, zap.NewNop(), cfg)
		require.NoError(t, err)
		assert.NotNil(t, server)
		assert.NotNil(t, server.echo)
		assert.Equal(t, cfg, server.config)
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(newFakeSession(), &fakeQueue{}, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.NotNil(t, server)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 9090, server.config.Port)
		assert.Equal(t, defaultShutdownTimeout, server.config.ShutdownTimeout)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(newFakeSession(), &fakeQueue{}, nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when session is nil", func(t *testing.T) {
		_, err := NewServer(nil, &fakeQueue{}, zap.NewNop(), nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "session controller cannot be nil")
	})

	t.Run("returns error when queue is nil", func(t *testing.T) {
		_, err := NewServer(newFakeSession(), nil, zap.NewNop(), nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "approval queue cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	server, _, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	err := json.Unmarshal(rec.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleReady(t *testing.T) {
	server, _, _ := setupTestServer(t)

	t.Run("starting until SetReady", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("ready after SetReady", func(t *testing.T) {
		server.SetReady(true)

		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ready", resp.Status)
	})
}

func TestHandleMetricsEndpoint(t *testing.T) {
	server, _, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestHandleStatus(t *testing.T) {
	sess := newFakeSession()
	queue := &fakeQueue{
		batches: []backend.PendingApprovalBatch{
			{PendingID: "p-1", MeetingID: "m-1"},
			{PendingID: "p-2", MeetingID: "m-1"},
		},
	}
	stats := extraction.Stats{Fragments: 4, HasIntentSignal: true}

	server, err := NewServer(sess, queue, zap.NewNop(), &Config{
		Host:     "localhost",
		Port:     9090,
		Version:  "1.2.3",
		Services: map[string]string{"stt": "deepgram", "extraction": "anthropic"},
	}, WithBufferStats(staticStats{stats}))
	require.NoError(t, err)

	require.NoError(t, sess.Start(context.Background(), "m-1"))

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "deepgram", resp.Services["stt"])
	assert.Equal(t, "active", resp.Session.State)
	assert.Equal(t, "m-1", resp.Session.MeetingID)
	assert.Equal(t, 2, resp.Approvals.Pending)
	assert.Equal(t, "p-1", resp.Approvals.ActivePendingID)
	require.NotNil(t, resp.Extraction)
	assert.Equal(t, 4, resp.Extraction.Fragments)
	assert.True(t, resp.Extraction.HasIntentSignal)
}

type staticStats struct {
	stats extraction.Stats
}

func (s staticStats) Stats() extraction.Stats { return s.stats }

func TestHandleSessionStart(t *testing.T) {
	t.Run("starts a capture session", func(t *testing.T) {
		server, sess, _ := setupTestServer(t)

		rec := postJSON(t, server, "/v1/session/start", StartSessionRequest{MeetingID: "m-42"})

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp SessionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "active", resp.State)
		assert.Equal(t, "m-42", resp.MeetingID)
		assert.Equal(t, capture.StateActive, sess.State())
	})

	t.Run("rejects missing meeting id", func(t *testing.T) {
		server, sess, _ := setupTestServer(t)

		rec := postJSON(t, server, "/v1/session/start", StartSessionRequest{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "meetingId field is required")
		assert.Equal(t, capture.StateIdle, sess.State())
	})

	t.Run("rejects invalid json", func(t *testing.T) {
		server, _, _ := setupTestServer(t)

		req := httptest.NewRequest(http.MethodPost, "/v1/session/start", bytes.NewReader([]byte("not json")))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("conflict when already active", func(t *testing.T) {
		server, sess, _ := setupTestServer(t)
		require.NoError(t, sess.Start(context.Background(), "m-1"))

		rec := postJSON(t, server, "/v1/session/start", StartSessionRequest{MeetingID: "m-2"})

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "m-1", sess.MeetingID())
	})

	t.Run("bad gateway when pipeline fails to start", func(t *testing.T) {
		server, sess, _ := setupTestServer(t)
		sess.startErr = errors.New("stt dial: connection refused")

		rec := postJSON(t, server, "/v1/session/start", StartSessionRequest{MeetingID: "m-1"})

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, rec.Body.String(), "connection refused")
	})
}

func TestHandleSessionStop(t *testing.T) {
	t.Run("stops the running session", func(t *testing.T) {
		server, sess, _ := setupTestServer(t)
		require.NoError(t, sess.Start(context.Background(), "m-1"))

		rec := postJSON(t, server, "/v1/session/stop", nil)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp SessionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "idle", resp.State)
		assert.Equal(t, capture.StateIdle, sess.State())
	})

	t.Run("conflict when idle", func(t *testing.T) {
		server, _, _ := setupTestServer(t)

		rec := postJSON(t, server, "/v1/session/stop", nil)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("bad gateway on teardown failure", func(t *testing.T) {
		server, sess, _ := setupTestServer(t)
		require.NoError(t, sess.Start(context.Background(), "m-1"))
		sess.stopErr = errors.New("drain timed out")

		rec := postJSON(t, server, "/v1/session/stop", nil)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, rec.Body.String(), "drain timed out")
	})
}

func TestHandleApprovals(t *testing.T) {
	server, _, queue := setupTestServer(t)
	queue.batches = []backend.PendingApprovalBatch{
		{PendingID: "p-new", MeetingID: "m-1"},
		{PendingID: "p-old", MeetingID: "m-1"},
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/approvals", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ApprovalsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Approvals, 2)
	assert.Equal(t, "p-new", resp.Approvals[0].PendingID)
	require.NotNil(t, resp.Active)
	assert.Equal(t, "p-new", resp.Active.PendingID)
}

func TestApprovalActions(t *testing.T) {
	t.Run("approves one task", func(t *testing.T) {
		server, _, queue := setupTestServer(t)

		rec := postJSON(t, server, "/v1/approvals/p-1/tasks/2/approve", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"approve p-1 2"}, queue.callLog())
	})

	t.Run("rejects one task with reason", func(t *testing.T) {
		server, _, queue := setupTestServer(t)

		rec := postJSON(t, server, "/v1/approvals/p-1/tasks/0/reject", RejectRequest{Reason: "duplicate"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"reject p-1 0 duplicate"}, queue.callLog())
	})

	t.Run("approves whole batch with edits", func(t *testing.T) {
		server, _, queue := setupTestServer(t)

		body := ApproveAllRequest{Edits: []backend.TaskEdit{{TaskIndex: 0}, {TaskIndex: 1}}}
		rec := postJSON(t, server, "/v1/approvals/p-1/approve", body)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"approve-all p-1 2"}, queue.callLog())
	})

	t.Run("rejects whole batch", func(t *testing.T) {
		server, _, queue := setupTestServer(t)

		rec := postJSON(t, server, "/v1/approvals/p-1/reject", RejectRequest{Reason: "not actionable"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"reject-all p-1 not actionable"}, queue.callLog())
	})

	t.Run("surfaces mutation failure as bad gateway", func(t *testing.T) {
		server, _, queue := setupTestServer(t)
		queue.actionErr = errors.New("approve failed: backend returned 500")

		rec := postJSON(t, server, "/v1/approvals/p-1/tasks/0/approve", nil)

		assert.Equal(t, http.StatusBadGateway, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp["message"], "approve failed")
	})

	t.Run("rejects non-numeric task index", func(t *testing.T) {
		server, _, queue := setupTestServer(t)

		rec := postJSON(t, server, "/v1/approvals/p-1/tasks/two/approve", nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, queue.callLog())
	})

	t.Run("rejects negative task index", func(t *testing.T) {
		server, _, queue := setupTestServer(t)

		rec := postJSON(t, server, "/v1/approvals/p-1/tasks/-1/reject", nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, queue.callLog())
	})
}

func TestHandleSnooze(t *testing.T) {
	server, _, queue := setupTestServer(t)
	queue.snoozedTo = time.Date(2024, 3, 14, 11, 0, 0, 0, time.UTC)

	rec := postJSON(t, server, "/v1/approvals/snooze", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp SnoozeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, queue.snoozedTo.Equal(resp.SnoozedUntil))
	assert.Equal(t, []string{"snooze"}, queue.callLog())
}

func TestHandleResync(t *testing.T) {
	t.Run("resyncs and reports count", func(t *testing.T) {
		server, _, queue := setupTestServer(t)
		queue.batches = []backend.PendingApprovalBatch{{PendingID: "p-1"}}

		rec := postJSON(t, server, "/v1/approvals/resync", nil)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp ResyncResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, 1, resp.Pending)
		assert.Equal(t, []string{"resync"}, queue.callLog())
	})

	t.Run("surfaces resync failure", func(t *testing.T) {
		server, _, queue := setupTestServer(t)
		queue.resyncErr = errors.New("approval resync failed: 502")

		rec := postJSON(t, server, "/v1/approvals/resync", nil)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, rec.Body.String(), "approval resync failed")
	})
}

func TestServerLifecycle(t *testing.T) {
	t.Run("starts and shuts down on context cancel", func(t *testing.T) {
		cfg := &Config{
			Host: "localhost",
			Port: 0, // Use random available port
		}

		server, err := NewServer(newFakeSession(), &fakeQueue{}, zap.NewNop(), cfg)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())

		errChan := make(chan error, 1)
		go func() {
			errChan <- server.Start(ctx)
		}()

		// Give server time to start
		time.Sleep(100 * time.Millisecond)

		cancel()

		select {
		case err := <-errChan:
			assert.ErrorIs(t, err, http.ErrServerClosed)
		case <-time.After(6 * time.Second):
			t.Fatal("server did not shut down in time")
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("adds request ID to response", func(t *testing.T) {
		server, _, _ := setupTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()

		server.echo.ServeHTTP(rec, req)

		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("recovers from panic", func(t *testing.T) {
		server, _, _ := setupTestServer(t)

		// Add a route that panics
		server.echo.GET("/panic", func(c echo.Context) error {
			panic("test panic")
		})

		req := httptest.NewRequest(http.MethodGet, "/panic", nil)
		rec := httptest.NewRecorder()

		// Should not panic, middleware should recover
		assert.NotPanics(t, func() {
			server.echo.ServeHTTP(rec, req)
		})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
