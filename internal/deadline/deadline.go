// Package deadline normalizes natural-language deadline phrases into
// calendar dates relative to a reference instant.
//
// Model output is free-form: a deadline may arrive as an ISO date, a
// concrete date in prose, a relative phrase ("tomorrow", "end of week"),
// a weekday name, or a literal meaning "no deadline". Normalize maps all
// of these onto ISO dates and collapses everything unrecognized to nil
// instead of failing the extraction cycle that produced it.
package deadline

import (
	"regexp"
	"strings"
	"time"
)

// ISODate is the wire format for normalized deadlines.
const ISODate = "2006-01-02"

var isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// unspecifiedLiterals are model spellings of "no deadline".
var unspecifiedLiterals = map[string]struct{}{
	"not specified": {},
	"unspecified":   {},
	"none":          {},
	"n/a":           {},
	"na":            {},
	"null":          {},
	"tbd":           {},
}

// dateLayouts are tried in order for values that look like concrete dates.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"01/02/2006",
	"2006/01/02",
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Normalize converts a raw deadline phrase into an ISO date string relative
// to ref. A nil result means the deadline is unspecified or unrecognized;
// Normalize never returns an error.
func Normalize(raw string, ref time.Time) *string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	v := strings.ToLower(trimmed)
	if _, ok := unspecifiedLiterals[v]; ok {
		return nil
	}

	// Already normalized.
	if isoDateRe.MatchString(v) {
		return &v
	}

	// Concrete dates in other spellings. time.Parse matches month and
	// weekday names case-insensitively, so the raw value is fine here.
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return isoPtr(t)
		}
	}

	switch v {
	case "today":
		return isoPtr(ref)
	case "tomorrow":
		return isoPtr(ref.AddDate(0, 0, 1))
	case "yesterday":
		return isoPtr(ref.AddDate(0, 0, -1))
	case "next week":
		return isoPtr(ref.AddDate(0, 0, 7))
	case "end of week", "end of the week":
		return isoPtr(endOfWeek(ref))
	case "end of next week":
		return isoPtr(endOfWeek(ref).AddDate(0, 0, 7))
	}

	if wd, ok := weekdayNames[strings.TrimPrefix(v, "next ")]; ok {
		return isoPtr(nextWeekday(ref, wd))
	}

	return nil
}

// endOfWeek returns the Friday strictly after ref's day. A Friday reference
// advances a full week; the window never collapses to zero.
func endOfWeek(ref time.Time) time.Time {
	return nextWeekday(ref, time.Friday)
}

// nextWeekday returns the next occurrence of wd strictly in the future
// relative to ref. When ref already falls on wd the result is seven days
// out, which also gives "next <weekday>" its skip-a-week meaning when the
// named day matches ref's own weekday.
func nextWeekday(ref time.Time, wd time.Weekday) time.Time {
	days := (int(wd) - int(ref.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return ref.AddDate(0, 0, days)
}

func isoPtr(t time.Time) *string {
	s := t.Format(ISODate)
	return &s
}
