// Package coredata converts between Core Data's reference epoch
// (2001-01-01T00:00:00Z) and Unix time, the representation every other
// package in this module uses.
package coredata

import "time"

// referenceEpochOffset is the number of seconds between the Unix epoch and
// the Core Data reference date.
const referenceEpochOffset int64 = 978307200

// ToUnix converts a Core Data timestamp (seconds since 2001-01-01T00:00:00Z,
// as stored in ZICCLOUDSYNCINGOBJECT.ZCREATIONDATE1/ZMODIFICATIONDATE1) to
// Unix seconds.
func ToUnix(coreDataSeconds float64) int64 {
	return int64(coreDataSeconds) + referenceEpochOffset
}

// FromUnix converts Unix seconds to a Core Data timestamp.
func FromUnix(unixSeconds int64) float64 {
	return float64(unixSeconds - referenceEpochOffset)
}

// ToTime converts a Core Data timestamp to a time.Time in UTC.
func ToTime(coreDataSeconds float64) time.Time {
	return time.Unix(ToUnix(coreDataSeconds), 0).UTC()
}

// FromTime converts a time.Time to a Core Data timestamp.
func FromTime(t time.Time) float64 {
	return FromUnix(t.UTC().Unix())
}
