package tracker

import (
	"strconv"
	"strings"
	"time"
)

// FormatCountdown renders a duration as a compact countdown using the largest
// two non-zero units from days/hours/minutes/seconds ("1d 1h", "1m 30s",
// "45s"). Zero or negative durations yield the empty string; callers treat
// that as "due now".
func FormatCountdown(d time.Duration) string {
	if d <= 0 {
		return ""
	}

	days := int64(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int64(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int64(d / time.Minute)
	d -= time.Duration(minutes) * time.Minute
	seconds := int64(d / time.Second)

	parts := make([]string, 0, 2)
	for _, u := range []struct {
		v      int64
		suffix string
	}{
		{days, "d"},
		{hours, "h"},
		{minutes, "m"},
		{seconds, "s"},
	} {
		if u.v == 0 {
			continue
		}
		parts = append(parts, strconv.FormatInt(u.v, 10)+u.suffix)
		if len(parts) == 2 {
			break
		}
	}
	if len(parts) == 0 {
		// Sub-second remainder rounds down to "0s" territory.
		return ""
	}
	return strings.Join(parts, " ")
}
