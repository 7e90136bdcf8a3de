package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"optiadmin/internal/domain"
	"optiadmin/internal/store"
)

// writeAttempts bounds automatic retries of the writer transaction on
// serialization failures before the error is surfaced.
const writeAttempts = 3

var ErrCustomerNotFound = errors.New("customer not found")

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// Conflict describes one existing appointment overlapping a candidate
// interval, with just enough detail for user-facing diagnostics.
type Conflict struct {
	AppointmentID uuid.UUID
	CustomerName  string
	Start         time.Time
	End           time.Time
}

type Availability struct {
	Available bool
	Conflicts []Conflict
}

type SlotUnavailableError struct {
	Conflicts []Conflict
}

func (e *SlotUnavailableError) Error() string {
	return fmt.Sprintf("slot unavailable: %d conflicting appointment(s)", len(e.Conflicts))
}

type TransitionError struct {
	From domain.StatusName
	To   domain.StatusName
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition appointment from %s to %s", e.From, e.To)
}

type Service struct {
	repo      store.AppointmentRepository
	customers store.CustomerRepository
	statuses  store.StatusRepository
	policy    domain.SchedulePolicy
	clock     Clock
}

func NewService(
	repo store.AppointmentRepository,
	customers store.CustomerRepository,
	statuses store.StatusRepository,
	policy domain.SchedulePolicy,
	clock Clock,
) *Service {
	if clock == nil {
		clock = SystemClock()
	}
	return &Service{
		repo:      repo,
		customers: customers,
		statuses:  statuses,
		policy:    policy,
		clock:     clock,
	}
}

// CheckAvailability is the advisory, read-only check used for interactive
// feedback. Interval and policy violations are reported without touching
// storage. The result may be stale by the time a booking is submitted; the
// writer re-checks under the calendar lock.
func (s *Service) CheckAvailability(ctx context.Context, start, end time.Time) (Availability, error) {
	iv, err := domain.NewInterval(start, end)
	if err != nil {
		return Availability{}, err
	}
	if err := s.policy.Validate(iv, s.clock.Now()); err != nil {
		return Availability{}, err
	}

	overlapping, err := s.repo.FindOverlapping(ctx, store.OverlapQuery{
		Interval: iv,
		Blocking: s.policy.BlockingStatuses(),
	})
	if err != nil {
		return Availability{}, err
	}

	return Availability{
		Available: len(overlapping) == 0,
		Conflicts: toConflicts(overlapping),
	}, nil
}

type CustomerInput struct {
	Name  string
	Phone string
	Email string
	Notes string
}

type CreateInput struct {
	// Exactly one of CustomerID and NewCustomer must be set. NewCustomer
	// creates the customer inside the same transaction as the appointment.
	CustomerID  uuid.UUID
	NewCustomer *CustomerInput

	Title       string
	Description string
	Notes       string
	StartTime   time.Time
	EndTime     time.Time

	// Status overrides the scheduled default for admin-initiated creation.
	Status domain.StatusName
}

func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Appointment, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Appointment{}, validationError("title is required")
	}
	if (in.CustomerID == uuid.Nil) == (in.NewCustomer == nil) {
		return domain.Appointment{}, validationError("exactly one of customer_id or customer is required")
	}
	if in.NewCustomer != nil && strings.TrimSpace(in.NewCustomer.Name) == "" {
		return domain.Appointment{}, validationError("customer name is required")
	}

	status := in.Status
	if status == "" {
		status = domain.StatusScheduled
	}
	if !status.Known() || status.Terminal() {
		return domain.Appointment{}, validationError("invalid initial status")
	}

	iv, err := domain.NewInterval(in.StartTime, in.EndTime)
	if err != nil {
		return domain.Appointment{}, err
	}

	if in.CustomerID != uuid.Nil {
		if _, err := s.customers.GetCustomer(ctx, in.CustomerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Appointment{}, ErrCustomerNotFound
			}
			return domain.Appointment{}, err
		}
	}

	var out domain.Appointment
	err = s.withRetry(ctx, func(ctx context.Context) error {
		return s.repo.InCalendarTransaction(ctx, func(ctx context.Context, tx store.CalendarTx) error {
			if err := s.policy.Validate(iv, s.clock.Now()); err != nil {
				return err
			}
			if err := s.ensureFree(ctx, tx, iv, uuid.Nil); err != nil {
				return err
			}

			customerID := in.CustomerID
			if in.NewCustomer != nil {
				c, err := tx.InsertCustomer(ctx, domain.Customer{
					Name:  strings.TrimSpace(in.NewCustomer.Name),
					Phone: strings.TrimSpace(in.NewCustomer.Phone),
					Email: strings.TrimSpace(in.NewCustomer.Email),
					Notes: in.NewCustomer.Notes,
				})
				if err != nil {
					return err
				}
				customerID = c.ID
			}

			appt, err := tx.InsertAppointment(ctx, domain.Appointment{
				CustomerID:  customerID,
				Title:       title,
				Description: in.Description,
				Notes:       in.Notes,
				StartTime:   iv.Start,
				EndTime:     iv.End,
				Status:      status,
			})
			if err != nil {
				if errors.Is(err, store.ErrConflict) {
					return &SlotUnavailableError{}
				}
				return err
			}
			out = appt
			return nil
		})
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

// Reschedule moves an existing appointment to a new interval, running the
// same policy and overlap validation as Create but excluding the
// appointment's own prior interval from the conflict check.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, start, end time.Time) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	iv, err := domain.NewInterval(start, end)
	if err != nil {
		return domain.Appointment{}, err
	}

	var out domain.Appointment
	err = s.withRetry(ctx, func(ctx context.Context) error {
		return s.repo.InCalendarTransaction(ctx, func(ctx context.Context, tx store.CalendarTx) error {
			current, err := tx.GetAppointment(ctx, id)
			if err != nil {
				return err
			}
			if current.Status.Terminal() {
				return validationError(fmt.Sprintf("cannot reschedule a %s appointment", current.Status))
			}
			if err := s.policy.Validate(iv, s.clock.Now()); err != nil {
				return err
			}
			if err := s.ensureFree(ctx, tx, iv, id); err != nil {
				return err
			}

			updated, err := tx.UpdateAppointmentInterval(ctx, id, iv)
			if err != nil {
				if errors.Is(err, store.ErrConflict) {
					return &SlotUnavailableError{}
				}
				return err
			}
			updated.Customer = current.Customer
			out = updated
			return nil
		})
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

// Transition moves an appointment to a new lifecycle status. Cancelling (and,
// depending on policy, marking no_show) frees the slot for future bookings;
// the status change runs under the calendar lock so a freed interval becomes
// visible atomically.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to domain.StatusName) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	if !to.Known() {
		return domain.Appointment{}, validationError(fmt.Sprintf("unknown status %q", to))
	}

	var out domain.Appointment
	err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.repo.InCalendarTransaction(ctx, func(ctx context.Context, tx store.CalendarTx) error {
			current, err := tx.GetAppointment(ctx, id)
			if err != nil {
				return err
			}
			if !domain.CanTransition(current.Status, to) {
				return &TransitionError{From: current.Status, To: to}
			}
			updated, err := tx.UpdateAppointmentStatus(ctx, id, to)
			if err != nil {
				return err
			}
			updated.Customer = current.Customer
			out = updated
			return nil
		})
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return s.Transition(ctx, id, domain.StatusCancelled)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	return s.repo.GetAppointment(ctx, id)
}

func (s *Service) List(ctx context.Context, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	start := windowStart.UTC()
	end := windowEnd.UTC()
	if end.Equal(start) || end.Before(start) {
		return nil, validationError("window_end must be after window_start")
	}
	return s.repo.ListAppointments(ctx, start, end)
}

func (s *Service) Statuses(ctx context.Context) ([]domain.AppointmentStatus, error) {
	return s.statuses.ListStatuses(ctx)
}

func (s *Service) ensureFree(ctx context.Context, tx store.CalendarTx, iv domain.Interval, excludeID uuid.UUID) error {
	overlapping, err := tx.FindOverlapping(ctx, store.OverlapQuery{
		Interval:  iv,
		ExcludeID: excludeID,
		Blocking:  s.policy.BlockingStatuses(),
	})
	if err != nil {
		return err
	}
	if len(overlapping) > 0 {
		return &SlotUnavailableError{Conflicts: toConflicts(overlapping)}
	}
	return nil
}

func (s *Service) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < writeAttempts; attempt++ {
		err = fn(ctx)
		if !errors.Is(err, store.ErrSerializationFailure) {
			return err
		}
	}
	return err
}

func toConflicts(appts []domain.Appointment) []Conflict {
	out := make([]Conflict, 0, len(appts))
	for _, a := range appts {
		out = append(out, Conflict{
			AppointmentID: a.ID,
			CustomerName:  a.CustomerName(),
			Start:         a.StartTime,
			End:           a.EndTime,
		})
	}
	return out
}
