package search

import (
	"fmt"
	"time"
)

// DateLayout is the bare-date form accepted for window bounds.
const DateLayout = "2006-01-02"

// ParseBound parses a window bound given as RFC 3339 or as a bare date in
// loc. A bare end date covers that whole day. Empty input is the zero time.
func ParseBound(raw string, isEnd bool, loc *time.Location) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("want RFC3339 or %s, got %q", DateLayout, raw)
	}
	if isEnd {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}
