package cloudevents

import (
	"time"
)

// ParseTime parses a ce_time property. RFC3339 with or without fractional
// seconds is accepted, plus a few lenient layouts seen from other producers.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}

	formats := []string{
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, &time.ParseError{
		Layout:  time.RFC3339Nano,
		Value:   s,
		Message: ": cannot parse as CloudEvents time",
	}
}

// FormatTime renders t for the ce_time property, or "" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
