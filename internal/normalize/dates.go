package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ParseDeadline parses a source deadline string into UTC. All adapters go
// through this one routine so a given raw string always maps to the same
// instant regardless of which source produced it. Date-only inputs resolve
// to end of day UTC. An unparseable string returns an error; callers keep
// the raw text and leave the deadline nil rather than guessing.
func ParseDeadline(text string) (time.Time, error) {
	text = stripDatePrefixes(text)
	text = strings.ReplaceAll(text, "a.m.", "AM")
	text = strings.ReplaceAll(text, "p.m.", "PM")
	text = strings.ReplaceAll(text, " am", " AM")
	text = strings.ReplaceAll(text, " pm", " PM")
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("empty deadline string")
	}

	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", text); err == nil {
		return toEndOfDay(t), nil
	}

	formats := []string{
		"2006-01-02 15:04:05",
		"2 January 2006",
		"02 January 2006",
		"2 January 2006 3 PM",
		"2 January 2006 3:04 PM",
		"January 2, 2006",
		"January 2, 2006 3:04 PM",
		"Jan 2, 2006",
		"2 Jan 2006",
		"02 Jan 2006",
		"01/02/2006",
		"1/2/2006",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, text); err == nil {
			if strings.Contains(format, ":") {
				return t.UTC(), nil
			}
			return toEndOfDay(t), nil
		}
	}

	if t := extractDate(text); !t.IsZero() {
		return toEndOfDay(t), nil
	}

	return time.Time{}, fmt.Errorf("unable to parse deadline: %q", text)
}

// toEndOfDay sets the time to 23:59:59.999999999 UTC
func toEndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, time.UTC)
}

var (
	isoDateRe   = regexp.MustCompile(`\b(20\d{2})-(\d{2})-(\d{2})\b`)
	slashDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(20\d{2})\b`)
	monthDayRe  = regexp.MustCompile(`\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+(\d{1,2}),?\s+(20\d{2})\b`)
	dayMonthRe  = regexp.MustCompile(`\b(\d{1,2})\s+(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+(20\d{2})\b`)
)

// extractDate pulls the first recognizable date out of surrounding prose.
// Used for deadlines buried in scraped page text and PDF snippets.
func extractDate(text string) time.Time {
	if m := isoDateRe.FindString(text); m != "" {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			return t
		}
	}

	if m := slashDateRe.FindStringSubmatch(text); len(m) == 4 {
		dateStr := fmt.Sprintf("%s/%s/%s", m[1], m[2], m[3])
		if t, err := time.Parse("1/2/2006", dateStr); err == nil {
			return t
		}
		// Day-first fallback for UK-style sources.
		dateStr = fmt.Sprintf("%s/%s/%s", m[2], m[1], m[3])
		if t, err := time.Parse("1/2/2006", dateStr); err == nil {
			return t
		}
	}

	if m := monthDayRe.FindStringSubmatch(text); len(m) == 4 {
		dateStr := fmt.Sprintf("%s %s %s", m[1], m[2], m[3])
		for _, f := range []string{"January 2 2006", "Jan 2 2006"} {
			if t, err := time.Parse(f, dateStr); err == nil {
				return t
			}
		}
	}

	if m := dayMonthRe.FindStringSubmatch(text); len(m) == 4 {
		dateStr := fmt.Sprintf("%s %s %s", m[1], m[2], m[3])
		for _, f := range []string{"2 January 2006", "2 Jan 2006"} {
			if t, err := time.Parse(f, dateStr); err == nil {
				return t
			}
		}
	}

	return time.Time{}
}

// stripDatePrefixes removes label text that sources attach to deadline fields.
func stripDatePrefixes(s string) string {
	prefixes := []string{
		"Closing date:", "Deadline:", "Due date:",
		"Applications close:", "Expires:", "Ends:",
	}
	sLower := strings.ToLower(s)
	for _, p := range prefixes {
		if idx := strings.Index(sLower, strings.ToLower(p)); idx != -1 {
			s = s[idx+len(p):]
			sLower = sLower[idx+len(p):]
		}
	}
	return strings.TrimSpace(s)
}
