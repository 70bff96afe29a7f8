package broadcast

import (
	"strings"
	"time"
)

// ParseTimestampUTC parses an ISO-8601 timestamp, defensively treating naive
// strings (no zone marker) as UTC by appending "Z" before parsing.
//
// Some backend code paths serialize timestamps without timezone information;
// interpreting those in the viewer's local zone would shift the visibility
// window by the UTC offset.
func ParseTimestampUTC(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if naiveTimestamp(s) {
		s += "Z"
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05Z", "2006-01-02 15:04:05Z07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// naiveTimestamp reports whether s lacks any zone designator.
// A timestamp is naive when it has no trailing Z and no +hh:mm/-hh:mm offset
// after the time-of-day part.
func naiveTimestamp(s string) bool {
	if strings.HasSuffix(s, "Z") || strings.HasSuffix(s, "z") {
		return false
	}
	// Only look after the date part: the date itself contains '-'.
	sep := strings.IndexAny(s, "T ")
	if sep < 0 {
		return true
	}
	rest := s[sep+1:]
	return !strings.ContainsAny(rest, "+-")
}
