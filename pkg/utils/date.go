package utils

import (
	"time"
)

// TimeNowUTC returns the current time in UTC. Every timestamp the pipeline stores is UTC.
func TimeNowUTC() time.Time {
	return time.Now().UTC()
}

// DayBucket truncates t to its UTC calendar day.
func DayBucket(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// PrettyDate formats t for human-facing messages.
func PrettyDate(t time.Time) string {
	return t.UTC().Format("02 Jan 2006 15:04 UTC")
}
