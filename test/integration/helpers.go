package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/minutedhq/minuted/internal/backend"
)

const (
	testBotKey   = "bot-key-integration"
	testModToken = "mod-token-integration"
)

// scriptedSTT plays a fixed transcription script over the streaming
// protocol. The first inbound audio frame releases the whole script;
// CloseStream is answered with a clean close handshake and other control
// frames are ignored.
type scriptedSTT struct {
	srv    *httptest.Server
	script []string

	mu   sync.Mutex
	sent bool
}

func newScriptedSTT(t *testing.T, script ...string) *scriptedSTT {
	t.Helper()

	s := &scriptedSTT{script: script}
	upgrader := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			switch kind {
			case websocket.BinaryMessage:
				for _, msg := range s.take() {
					if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
						return
					}
				}
			case websocket.TextMessage:
				var ctrl struct {
					Type string `json:"type"`
				}
				if err := json.Unmarshal(data, &ctrl); err == nil && ctrl.Type == "CloseStream" {
					_ = conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *scriptedSTT) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *scriptedSTT) take() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent {
		return nil
	}
	s.sent = true
	return s.script
}

// resultMessage builds one transcription payload in the provider's wire
// shape.
func resultMessage(transcript string, confidence float64, isFinal bool) string {
	msg := map[string]any{
		"type":     "Results",
		"is_final": isFinal,
		"channel": map[string]any{
			"alternatives": []map[string]any{
				{"transcript": transcript, "confidence": confidence},
			},
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// meetingBackend is an in-memory control-plane stand-in. Bot-key writes
// are recorded, each task submission becomes one pending approval batch,
// and the moderator endpoints mutate the pending list the way the real
// backend does.
type meetingBackend struct {
	srv *httptest.Server

	mu          sync.Mutex
	segments    []backend.Segment
	submissions []backend.TaskSubmission
	batches     []backend.PendingApprovalBatch
	completes   int
	resolved    map[string]string
	nextPending int
}

func newMeetingBackend(t *testing.T) *meetingBackend {
	t.Helper()

	b := &meetingBackend{resolved: make(map[string]string)}
	b.srv = httptest.NewServer(http.HandlerFunc(b.route))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *meetingBackend) url() string {
	return b.srv.URL
}

func (b *meetingBackend) route(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/api/meetings/"):
		b.routeMeeting(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/approvals"):
		b.routeApprovals(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (b *meetingBackend) routeMeeting(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Bot-Key") != testBotKey {
		http.Error(w, "bad bot key", http.StatusUnauthorized)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/meetings/"), "/")
	if len(parts) != 2 || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	meetingID := parts[0]
	body, _ := io.ReadAll(r.Body)

	b.mu.Lock()
	defer b.mu.Unlock()

	switch parts[1] {
	case "segments":
		var seg backend.Segment
		if err := json.Unmarshal(body, &seg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.segments = append(b.segments, seg)
	case "tasks":
		var sub backend.TaskSubmission
		if err := json.Unmarshal(body, &sub); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.submissions = append(b.submissions, sub)
		b.nextPending++
		b.batches = append(b.batches, backend.PendingApprovalBatch{
			PendingID: fmt.Sprintf("pend_%03d", b.nextPending),
			MeetingID: meetingID,
			OrgID:     sub.OrgID,
			TeamID:    sub.TeamID,
			Tasks:     sub.Tasks,
			Summary:   sub.Summary,
			CreatedAt: time.Now(),
		})
	case "complete":
		b.completes++
	default:
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (b *meetingBackend) routeApprovals(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+testModToken {
		http.Error(w, "not a moderator", http.StatusForbidden)
		return
	}

	if r.URL.Path == "/api/approvals/pending" && r.Method == http.MethodGet {
		b.mu.Lock()
		batches := make([]backend.PendingApprovalBatch, len(b.batches))
		copy(batches, b.batches)
		b.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(batches)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/approvals/"), "/")
	if len(parts) != 2 || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	pendingID, action := parts[0], parts[1]

	b.mu.Lock()
	defer b.mu.Unlock()

	idx := -1
	for i, batch := range b.batches {
		if batch.PendingID == pendingID {
			idx = i
			break
		}
	}
	if idx < 0 {
		http.NotFound(w, r)
		return
	}

	switch action {
	case "approve-all", "reject-all", "approve", "reject":
		// Single-task actions resolve the whole batch here; every
		// scripted batch carries exactly one task.
		b.resolved[pendingID] = action
		b.batches = append(b.batches[:idx], b.batches[idx+1:]...)
	default:
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (b *meetingBackend) segmentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.segments)
}

func (b *meetingBackend) submissionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.submissions)
}

func (b *meetingBackend) allSegments() []backend.Segment {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]backend.Segment, len(b.segments))
	copy(out, b.segments)
	return out
}

func (b *meetingBackend) allSubmissions() []backend.TaskSubmission {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]backend.TaskSubmission, len(b.submissions))
	copy(out, b.submissions)
	return out
}

func (b *meetingBackend) completeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completes
}

func (b *meetingBackend) resolution(pendingID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resolved[pendingID]
}
