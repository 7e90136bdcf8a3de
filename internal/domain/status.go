package domain

import "github.com/uptrace/bun"

type StatusName string

const (
	StatusScheduled  StatusName = "scheduled"
	StatusConfirmed  StatusName = "confirmed"
	StatusInProgress StatusName = "in_progress"
	StatusCompleted  StatusName = "completed"
	StatusCancelled  StatusName = "cancelled"
	StatusNoShow     StatusName = "no_show"
)

func KnownStatuses() []StatusName {
	return []StatusName{
		StatusScheduled,
		StatusConfirmed,
		StatusInProgress,
		StatusCompleted,
		StatusCancelled,
		StatusNoShow,
	}
}

func (s StatusName) Known() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (s StatusName) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// CanTransition reports whether an appointment may move from one status to
// another. The happy path advances strictly in order; cancelled and no_show
// are reachable from any non-terminal state.
func CanTransition(from, to StatusName) bool {
	if from.Terminal() || from == to {
		return false
	}
	switch to {
	case StatusCancelled, StatusNoShow:
		return true
	case StatusConfirmed:
		return from == StatusScheduled
	case StatusInProgress:
		return from == StatusConfirmed
	case StatusCompleted:
		return from == StatusInProgress
	}
	return false
}

// AppointmentStatus is a catalog entry describing how a status is displayed.
// The status name doubles as its identifier.
type AppointmentStatus struct {
	bun.BaseModel `bun:"table:appointment_statuses,alias:st"`

	Name      StatusName `bun:"name,pk"`
	Label     string     `bun:"label,notnull"`
	Color     string     `bun:"color"`
	SortOrder int        `bun:"sort_order,notnull"`
}
