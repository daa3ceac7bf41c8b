package util

import (
	"strconv"
	"time"
)

// StringTimeLayout is the layout used for human readable UTC times.
const StringTimeLayout = "2006-01-02 15:04:05"

// ParseTime tries RFC3339, RFC3339Nano, unix seconds and unix milliseconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		if ts >= 1e12 {
			return time.UnixMilli(ts), true
		}
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// FormatMillis renders unix milliseconds as "YYYY-MM-DD HH:MM:SS" in UTC.
func FormatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(StringTimeLayout)
}
