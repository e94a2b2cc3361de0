package models

import (
	"strings"
	"time"
)

// DateLayout is the layout used for tefapDate and other stored calendar dates
const DateLayout = "2006-01-02"

// DOBLayout is the canonical date-of-birth token used for duplicate matching
const DOBLayout = "01-02-2006"

var dateLayouts = []string{
	DateLayout,
	DOBLayout,
	"01/02/2006",
	"1/2/2006",
	"1-2-2006",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseDate parses the date formats found in stored documents
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeDOB converts a date of birth to MM-DD-YYYY.
// Values that do not parse are returned trimmed so they still match themselves.
func NormalizeDOB(s string) string {
	t, ok := ParseDate(s)
	if !ok {
		return strings.TrimSpace(s)
	}
	return t.Format(DOBLayout)
}

// NormalizeName trims a name for matching. Case is significant.
func NormalizeName(s string) string {
	return strings.TrimSpace(s)
}

// Today formats now as a stored calendar date
func Today(now time.Time) string {
	return now.Format(DateLayout)
}
