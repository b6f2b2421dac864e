package utils

import "time"

// TimeNowUTC returns the current time in UTC truncated to microseconds, the
// precision both postgres and sqlite keep for timestamps.
func TimeNowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// FormatISO formats t as a zone-less ISO 8601 timestamp, with microseconds
// only when they are non zero.
func FormatISO(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/1000 == 0 {
		return t.Format("2006-01-02T15:04:05")
	}
	return t.Format("2006-01-02T15:04:05.000000")
}
