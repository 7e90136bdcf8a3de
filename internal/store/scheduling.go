package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"optiadmin/internal/domain"
)

// OverlapQuery selects appointments whose interval overlaps the candidate.
// ExcludeID carves out the appointment being rescheduled; Blocking restricts
// the check to statuses that occupy the calendar.
type OverlapQuery struct {
	Interval  domain.Interval
	ExcludeID uuid.UUID
	Blocking  []domain.StatusName
}

// CalendarTx is the writer's view of the calendar while the booking lock is
// held. Every mutation of appointment intervals goes through it.
type CalendarTx interface {
	FindOverlapping(ctx context.Context, q OverlapQuery) ([]domain.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	UpdateAppointmentInterval(ctx context.Context, id uuid.UUID, iv domain.Interval) (domain.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, to domain.StatusName) (domain.Appointment, error)
	InsertCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error)
}

type AppointmentRepository interface {
	// FindOverlapping is the advisory, lock-free variant used for interactive
	// availability feedback. Writers must re-check inside a calendar
	// transaction instead of trusting this result.
	FindOverlapping(ctx context.Context, q OverlapQuery) ([]domain.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ListAppointments(ctx context.Context, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	ListEndedBefore(ctx context.Context, cutoff time.Time, statuses []domain.StatusName) ([]domain.Appointment, error)

	// InCalendarTransaction runs fn inside a transaction that holds the
	// calendar booking lock, serializing concurrent writers.
	InCalendarTransaction(ctx context.Context, fn func(ctx context.Context, tx CalendarTx) error) error
}

type CustomerRepository interface {
	GetCustomer(ctx context.Context, id uuid.UUID) (domain.Customer, error)
}

type StatusRepository interface {
	ListStatuses(ctx context.Context) ([]domain.AppointmentStatus, error)
}

type AdminRepository interface {
	GetAdminByEmail(ctx context.Context, email string) (domain.Admin, error)
	CreateAdmin(ctx context.Context, admin domain.Admin) (domain.Admin, error)
}
