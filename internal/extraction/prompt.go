package extraction

import (
	"fmt"
	"time"
)

// extractPrompt is the system prompt for task extraction.
const extractPrompt = `You are an expert at identifying actionable tasks in meeting transcripts.

Your task is to extract concrete, assignable work items from the provided transcript excerpt. A task should be:
1. Actionable: something a person can actually do
2. Specific: free of filler and conversational noise
3. Attributed: assigned to a named person when the transcript names one

Respond with a JSON object containing:
- "tasks": array of task objects, each with:
  - "title": short imperative title (a few words)
  - "description": one or two sentences of detail
  - "assignee": the responsible person's name, or "" if unclear
  - "priority": "high", "medium", or "low"
  - "deadline": the deadline exactly as spoken (e.g. "Friday", "next week", "2024-06-01"), or null if none was mentioned
  - "confidence": how certain you are this is a real task (0.0 to 1.0)
- "summary": one sentence summarizing what was discussed

Do not invent tasks. If the excerpt contains no actionable work, return an empty tasks array.
Respond ONLY with the JSON object, no additional text.`

// buildUserPrompt embeds the transcript window and the meeting date the
// model should use when interpreting relative deadlines.
func buildUserPrompt(transcript string, meetingDate time.Time) string {
	return fmt.Sprintf("Meeting date: %s\n\nTranscript excerpt:\n%s",
		meetingDate.Format("2006-01-02"), transcript)
}
