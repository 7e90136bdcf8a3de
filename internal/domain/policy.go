package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrClosedDay            = errors.New("the shop is closed on that day")
	ErrOutsideBusinessHours = errors.New("start time is outside business hours")
	ErrTooCloseToClosing    = errors.New("start time is too close to closing")
	ErrInThePast            = errors.New("start time is in the past")
	ErrInvalidDuration      = errors.New("duration is outside the allowed bounds")
)

// TimeOfDay is minutes since midnight in the business time zone.
type TimeOfDay int

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// SchedulePolicy holds the fixed operating rules a candidate interval must
// satisfy before existing bookings are even considered. All thresholds come
// from configuration; Validate itself never reads the wall clock or storage.
type SchedulePolicy struct {
	ClosedWeekday  time.Weekday
	OpensAt        TimeOfDay
	ClosesAt       TimeOfDay
	LastSlotBuffer time.Duration
	MinDuration    time.Duration
	MaxDuration    time.Duration
	Location       *time.Location

	// NoShowFreesSlot controls whether a no_show appointment still occupies
	// its interval for conflict checks.
	NoShowFreesSlot bool
}

// DefaultPolicy mirrors the shop's reference schedule: closed on Sundays,
// open 09:00-19:00, with no appointment starting after 18:30.
func DefaultPolicy() SchedulePolicy {
	return SchedulePolicy{
		ClosedWeekday:   time.Sunday,
		OpensAt:         9 * 60,
		ClosesAt:        19 * 60,
		LastSlotBuffer:  30 * time.Minute,
		MinDuration:     15 * time.Minute,
		MaxDuration:     8 * time.Hour,
		Location:        time.UTC,
		NoShowFreesSlot: true,
	}
}

func (p SchedulePolicy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Validate checks the candidate against the operating rules and returns the
// first violated one.
func (p SchedulePolicy) Validate(iv Interval, now time.Time) error {
	local := iv.Start.In(p.location())
	if local.Weekday() == p.ClosedWeekday {
		return ErrClosedDay
	}

	tod := TimeOfDay(local.Hour()*60 + local.Minute())
	if tod < p.OpensAt || tod >= p.ClosesAt {
		return ErrOutsideBusinessHours
	}
	lastStart := p.ClosesAt - TimeOfDay(p.LastSlotBuffer/time.Minute)
	if tod > lastStart {
		return ErrTooCloseToClosing
	}

	if iv.Start.Before(now) {
		return ErrInThePast
	}

	if d := iv.Duration(); d < p.MinDuration || d > p.MaxDuration {
		return ErrInvalidDuration
	}
	return nil
}

// BlockingStatuses is the set of statuses whose appointments occupy the
// calendar. Cancelled appointments never block; no_show blocks only when the
// policy says the slot stays taken.
func (p SchedulePolicy) BlockingStatuses() []StatusName {
	blocking := []StatusName{StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted}
	if !p.NoShowFreesSlot {
		blocking = append(blocking, StatusNoShow)
	}
	return blocking
}

// RuleName returns a stable identifier for a policy violation, for surfacing
// the violated rule to clients. Empty for non-policy errors.
func RuleName(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInterval):
		return "invalid_interval"
	case errors.Is(err, ErrClosedDay):
		return "closed_day"
	case errors.Is(err, ErrOutsideBusinessHours):
		return "outside_business_hours"
	case errors.Is(err, ErrTooCloseToClosing):
		return "too_close_to_closing"
	case errors.Is(err, ErrInThePast):
		return "in_the_past"
	case errors.Is(err, ErrInvalidDuration):
		return "invalid_duration"
	}
	return ""
}
