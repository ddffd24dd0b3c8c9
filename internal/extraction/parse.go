package extraction

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// taskListResponse is the JSON shape the model is instructed to return.
type taskListResponse struct {
	Tasks   []TaskCandidate `json:"tasks"`
	Summary string          `json:"summary"`
}

// taskObjectRe matches one syntactically complete task object inside
// otherwise-broken JSON. Field order is fixed to the order the prompt
// requests; an object serialized in a different order is not recovered.
// Kept deliberately narrow rather than grown into a JSON grammar.
var taskObjectRe = regexp.MustCompile(
	`\{\s*"title"\s*:\s*"(?:[^"\\]|\\.)*"\s*,` +
		`\s*"description"\s*:\s*"(?:[^"\\]|\\.)*"\s*,` +
		`\s*"assignee"\s*:\s*"(?:[^"\\]|\\.)*"\s*,` +
		`\s*"priority"\s*:\s*"(?:[^"\\]|\\.)*"\s*,` +
		`\s*"deadline"\s*:\s*(?:"(?:[^"\\]|\\.)*"|null)\s*,` +
		`\s*"confidence"\s*:\s*-?[0-9.]+\s*\}`)

// stripCodeFences removes surrounding markdown code fences. Models wrap
// JSON in fences despite instructions often enough to handle it here.
func stripCodeFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

// parseTaskJSON parses LLM message content into a Result. Malformed or
// truncated payloads go through a salvage pass that recovers individually
// well-formed task objects and discards the remainder; when salvage also
// comes up empty the Result carries an error annotation instead of
// failing the cycle.
func parseTaskJSON(content string) Result {
	cleaned := stripCodeFences(content)

	var resp taskListResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err == nil {
		return Result{Tasks: sanitizeTasks(resp.Tasks), Summary: resp.Summary}
	}

	salvaged := sanitizeTasks(salvageTasks(cleaned))
	if len(salvaged) == 0 {
		return Result{Err: fmt.Sprintf("unparseable extraction response: %s", truncateForLog(cleaned, 160))}
	}
	return Result{
		Tasks:   salvaged,
		Summary: fmt.Sprintf("Partial result: recovered %d task(s) from a malformed response", len(salvaged)),
	}
}

// salvageTasks pattern-matches complete task objects inside broken JSON.
func salvageTasks(content string) []TaskCandidate {
	var tasks []TaskCandidate
	for _, m := range taskObjectRe.FindAllString(content, -1) {
		var t TaskCandidate
		if err := json.Unmarshal([]byte(m), &t); err != nil {
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks
}

// sanitizeTasks applies the backend's task validation rules locally so a
// result never carries obviously invalid candidates.
func sanitizeTasks(in []TaskCandidate) []TaskCandidate {
	var out []TaskCandidate
	for _, t := range in {
		if s, ok := sanitizeTask(t); ok {
			out = append(out, s)
		}
	}
	return out
}

func sanitizeTask(t TaskCandidate) (TaskCandidate, bool) {
	t.Title = strings.TrimSpace(t.Title)
	if len(t.Title) < 3 {
		return t, false
	}
	if len(t.Title) > 200 {
		t.Title = t.Title[:200]
	}

	t.Description = strings.TrimSpace(t.Description)
	if len(t.Description) > 4000 {
		t.Description = t.Description[:4000]
	}

	t.Assignee = strings.TrimSpace(t.Assignee)
	if t.Assignee == "" {
		t.Assignee = strings.TrimSpace(t.AssigneeEmail)
	}

	switch strings.ToLower(strings.TrimSpace(t.Priority)) {
	case PriorityHigh:
		t.Priority = PriorityHigh
	case PriorityLow:
		t.Priority = PriorityLow
	default:
		t.Priority = PriorityMedium
	}

	if t.Confidence < 0 {
		t.Confidence = 0
	}
	if t.Confidence > 1 {
		t.Confidence = 1
	}

	return t, true
}

func truncateForLog(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
