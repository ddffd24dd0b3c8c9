package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGate_StrongActionOverride(t *testing.T) {
	g := NewGate(Config{})

	// Strong-action vocabulary passes regardless of surrounding content.
	tests := []struct {
		name string
		text string
	}{
		{name: "action item", text: "okay so the action item here is the migration"},
		{name: "task for", text: "let's make that a task for Dana"},
		{name: "assigned to", text: "this one is assigned to the platform team"},
		{name: "take the action", text: "Priya will take the action on vendor outreach"},
		{name: "create a task", text: "can you create a task so we don't lose it"},
		{name: "plural action items", text: "two action items came out of that discussion"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, g.Classify(tt.text))
		})
	}
}

func TestGate_WeakFamilies(t *testing.T) {
	g := NewGate(Config{})

	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "commitment verb", text: "I'll send the updated numbers around", want: true},
		{name: "needs to", text: "somebody needs to review the rollout plan", want: true},
		{name: "ownership", text: "Marcus is responsible for the launch checklist", want: true},
		{name: "follow up", text: "let's follow up with legal on that", want: true},
		{name: "deadline word", text: "the deadline moved again", want: true},
		{name: "by friday", text: "we promised the draft by Friday", want: true},
		{name: "asap", text: "they want the fix ASAP", want: true},
		{name: "small talk", text: "the weather was great over the weekend", want: false},
		{name: "status only", text: "the dashboard looks green across all regions", want: false},
		{name: "empty", text: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Classify(tt.text))
		})
	}
}

func TestGate_MinFamiliesThreshold(t *testing.T) {
	g := NewGate(Config{MinFamilies: 2})

	// One weak family is no longer enough.
	assert.False(t, g.Classify("I'll look into it at some point"))

	// Commitment verb plus deadline vocabulary crosses the threshold.
	assert.True(t, g.Classify("I'll send the summary by Friday"))

	// Strong action still overrides the threshold.
	assert.True(t, g.Classify("one action item from my side"))
}

func TestGate_InvalidPatternSkipped(t *testing.T) {
	g := NewGate(Config{Patterns: []Pattern{
		{Name: "broken", Family: FamilyStrongAction, Regex: `(?i)\b(unclosed`},
		{Name: "ok", Family: FamilyStrongAction, Regex: `(?i)\baction item\b`},
	}})

	assert.True(t, g.Classify("new action item for the infra board"))
	assert.False(t, g.Classify("unclosed parenthesis text"))
}

func TestGate_Signals(t *testing.T) {
	g := NewGate(Config{})

	sig := g.Signals("Priya will take the action and finish it by Friday")
	assert.Contains(t, sig, FamilyStrongAction)
	assert.Contains(t, sig, FamilyTimeUrgency)

	assert.Empty(t, g.Signals("nothing of note was said"))
}
