package intent

// DefaultPatterns returns the built-in signal table.
//
// Strong-action patterns catch explicit task vocabulary. The weak families
// catch commitment verbs, ownership phrases, and deadline vocabulary;
// any one of them is enough to fire the gate at the default threshold.
func DefaultPatterns() []Pattern {
	return []Pattern{
		// Strong action: explicit task/assignment vocabulary.
		{Name: "action_item", Family: FamilyStrongAction, Regex: `(?i)\baction\s+items?\b`},
		{Name: "task_for", Family: FamilyStrongAction, Regex: `(?i)\btasks?\s+for\b`},
		{Name: "assign_to", Family: FamilyStrongAction, Regex: `(?i)\bassign(?:ed|ing)?\s+(?:this\s+|that\s+|it\s+)?to\b`},
		{Name: "take_the_action", Family: FamilyStrongAction, Regex: `(?i)\btakes?\s+the\s+action\b`},
		{Name: "create_task", Family: FamilyStrongAction, Regex: `(?i)\b(?:add|create|open|file)\s+a\s+(?:task|ticket|todo)\b`},
		{Name: "put_on_list", Family: FamilyStrongAction, Regex: `(?i)\bput\s+(?:it|this|that)\s+on\s+(?:the|my|our)\s+list\b`},

		// Commitment verbs.
		{Name: "will_do", Family: FamilyActionVerb, Regex: `(?i)\b(?:i|we|you|she|he|they)(?:'ll|\s+will)\s+\w+`},
		{Name: "going_to", Family: FamilyActionVerb, Regex: `(?i)\b(?:am|is|are|'m|'re)\s*going\s+to\s+\w+`},
		{Name: "needs_to", Family: FamilyActionVerb, Regex: `(?i)\bneeds?\s+to\s+\w+`},
		{Name: "should", Family: FamilyActionVerb, Regex: `(?i)\bshould\s+\w+`},
		{Name: "must", Family: FamilyActionVerb, Regex: `(?i)\bmust\s+\w+`},
		{Name: "have_to", Family: FamilyActionVerb, Regex: `(?i)\b(?:have|has|had)\s+to\s+\w+`},

		// Ownership phrases.
		{Name: "responsible_for", Family: FamilyResponsibility, Regex: `(?i)\b(?:is|are|'s)\s+responsible\s+for\b`},
		{Name: "owns", Family: FamilyResponsibility, Regex: `(?i)\bowns?\s+(?:this|that|the)\b`},
		{Name: "take_care_of", Family: FamilyResponsibility, Regex: `(?i)\btakes?\s+care\s+of\b`},
		{Name: "follow_up", Family: FamilyResponsibility, Regex: `(?i)\bfollow(?:s|ing)?[\s-]?up\b`},
		{Name: "on_point", Family: FamilyResponsibility, Regex: `(?i)\b(?:is|are)\s+on\s+point\s+for\b`},
		{Name: "will_handle", Family: FamilyResponsibility, Regex: `(?i)\bhandles?\s+(?:this|that|the)\b`},

		// Deadline vocabulary.
		{Name: "by_day", Family: FamilyTimeUrgency, Regex: `(?i)\bby\s+(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday|tomorrow|tonight|noon|then)\b`},
		{Name: "deadline", Family: FamilyTimeUrgency, Regex: `(?i)\bdeadline\b`},
		{Name: "due", Family: FamilyTimeUrgency, Regex: `(?i)\bdue\s+(?:by|on|date|this|next|tomorrow|today)\b`},
		{Name: "eod", Family: FamilyTimeUrgency, Regex: `(?i)\b(?:eod|eow|cob)\b`},
		{Name: "end_of_week", Family: FamilyTimeUrgency, Regex: `(?i)\bend\s+of\s+(?:the\s+)?(?:day|week|month|sprint)\b`},
		{Name: "relative_day", Family: FamilyTimeUrgency, Regex: `(?i)\b(?:tomorrow|next\s+week|this\s+week)\b`},
		{Name: "asap", Family: FamilyTimeUrgency, Regex: `(?i)\b(?:asap|urgent(?:ly)?|right\s+away|as\s+soon\s+as\s+possible)\b`},
	}
}
