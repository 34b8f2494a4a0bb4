// Package utils provides utility functions for the application.
package utils

import (
	"time"
)

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// UTCNowAdd returns the current UTC time plus the given duration
func UTCNowAdd(d time.Duration) time.Time {
	return UTCNow().Add(d)
}

// IsExpired checks if the given time is in the past (expired)
func IsExpired(t time.Time) bool {
	return UTCNow().After(t)
}

// FetchDate returns the UTC calendar day of t, e.g. 2024-03-01
func FetchDate(t time.Time) string {
	return t.UTC().Format(FetchDateLayout)
}

// DurationMultiply scales d by a float factor
func DurationMultiply(d time.Duration, factor float64) time.Duration {
	return time.Duration(float64(d) * factor)
}

// StartOfDay returns midnight UTC of t's calendar day
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
