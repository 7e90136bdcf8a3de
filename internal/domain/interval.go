package domain

import (
	"errors"
	"time"
)

var ErrInvalidInterval = errors.New("end time must be after start time")

// Interval is a half-open time range [Start, End) in UTC.
type Interval struct {
	Start time.Time
	End   time.Time
}

func NewInterval(start, end time.Time) (Interval, error) {
	if !end.After(start) {
		return Interval{}, ErrInvalidInterval
	}
	return Interval{Start: start.UTC(), End: end.UTC()}, nil
}

// Overlaps reports whether the two intervals share at least one instant.
// Intervals that merely touch at a boundary do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}
