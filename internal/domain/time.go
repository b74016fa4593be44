package domain

import (
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp interprets the loosely ISO-formatted timestamps found in
// exports and state files. Values without an offset are taken as UTC.
// Returns the zero time when the value is empty or unparseable.
func ParseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		return t.UTC()
	}

	return time.Time{}
}
