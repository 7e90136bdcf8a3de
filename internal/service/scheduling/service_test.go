package scheduling

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"optiadmin/internal/domain"
	"optiadmin/internal/store"
)

// Monday March 2nd 2026, well before opening.
var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

type fakeRepo struct {
	findOverlappingFn func(ctx context.Context, q store.OverlapQuery) ([]domain.Appointment, error)
	getFn             func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	listFn            func(ctx context.Context, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	listEndedFn       func(ctx context.Context, cutoff time.Time, statuses []domain.StatusName) ([]domain.Appointment, error)
	inTxFn            func(ctx context.Context, fn func(ctx context.Context, tx store.CalendarTx) error) error
}

func (f *fakeRepo) FindOverlapping(ctx context.Context, q store.OverlapQuery) ([]domain.Appointment, error) {
	if f.findOverlappingFn == nil {
		panic("FindOverlapping not configured")
	}
	return f.findOverlappingFn(ctx, q)
}

func (f *fakeRepo) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.getFn == nil {
		panic("GetAppointment not configured")
	}
	return f.getFn(ctx, id)
}

func (f *fakeRepo) ListAppointments(ctx context.Context, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	if f.listFn == nil {
		panic("ListAppointments not configured")
	}
	return f.listFn(ctx, windowStart, windowEnd)
}

func (f *fakeRepo) ListEndedBefore(ctx context.Context, cutoff time.Time, statuses []domain.StatusName) ([]domain.Appointment, error) {
	if f.listEndedFn == nil {
		panic("ListEndedBefore not configured")
	}
	return f.listEndedFn(ctx, cutoff, statuses)
}

func (f *fakeRepo) InCalendarTransaction(ctx context.Context, fn func(ctx context.Context, tx store.CalendarTx) error) error {
	if f.inTxFn == nil {
		panic("InCalendarTransaction not configured")
	}
	return f.inTxFn(ctx, fn)
}

type fakeCustomers struct {
	getFn func(ctx context.Context, id uuid.UUID) (domain.Customer, error)
}

func (f *fakeCustomers) GetCustomer(ctx context.Context, id uuid.UUID) (domain.Customer, error) {
	if f.getFn == nil {
		panic("GetCustomer not configured")
	}
	return f.getFn(ctx, id)
}

type fakeStatuses struct{}

func (fakeStatuses) ListStatuses(ctx context.Context) ([]domain.AppointmentStatus, error) {
	out := make([]domain.AppointmentStatus, 0, len(domain.KnownStatuses()))
	for i, s := range domain.KnownStatuses() {
		out = append(out, domain.AppointmentStatus{Name: s, Label: string(s), SortOrder: (i + 1) * 10})
	}
	return out, nil
}

// memCalendar is an in-memory stand-in for the Postgres repository. Its
// transaction holds a mutex for the whole callback, mirroring the advisory
// calendar lock.
type memCalendar struct {
	mu        sync.Mutex
	appts     map[uuid.UUID]domain.Appointment
	customers map[uuid.UUID]domain.Customer
}

func newMemCalendar() *memCalendar {
	return &memCalendar{
		appts:     make(map[uuid.UUID]domain.Appointment),
		customers: make(map[uuid.UUID]domain.Customer),
	}
}

func (m *memCalendar) addCustomer(name string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.customers[id] = domain.Customer{ID: id, Name: name}
	return id
}

func (m *memCalendar) FindOverlapping(ctx context.Context, q store.OverlapQuery) ([]domain.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overlapLocked(q), nil
}

func (m *memCalendar) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(id)
}

func (m *memCalendar) ListAppointments(ctx context.Context, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Appointment
	for _, a := range m.appts {
		if a.StartTime.Before(windowEnd) && a.EndTime.After(windowStart) {
			out = append(out, m.withCustomerLocked(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *memCalendar) ListEndedBefore(ctx context.Context, cutoff time.Time, statuses []domain.StatusName) ([]domain.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Appointment
	for _, a := range m.appts {
		if !a.EndTime.Before(cutoff) {
			continue
		}
		for _, s := range statuses {
			if a.Status == s {
				out = append(out, a)
				break
			}
		}
	}
	return out, nil
}

func (m *memCalendar) InCalendarTransaction(ctx context.Context, fn func(ctx context.Context, tx store.CalendarTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, memTx{cal: m})
}

func (m *memCalendar) GetCustomer(ctx context.Context, id uuid.UUID) (domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return domain.Customer{}, store.ErrNotFound
	}
	return c, nil
}

func (m *memCalendar) overlapLocked(q store.OverlapQuery) []domain.Appointment {
	var out []domain.Appointment
	for _, a := range m.appts {
		if a.ID == q.ExcludeID {
			continue
		}
		blocking := false
		for _, s := range q.Blocking {
			if a.Status == s {
				blocking = true
				break
			}
		}
		if !blocking {
			continue
		}
		if a.Interval().Overlaps(q.Interval) {
			out = append(out, m.withCustomerLocked(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (m *memCalendar) getLocked(id uuid.UUID) (domain.Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return m.withCustomerLocked(a), nil
}

func (m *memCalendar) withCustomerLocked(a domain.Appointment) domain.Appointment {
	if c, ok := m.customers[a.CustomerID]; ok {
		cc := c
		a.Customer = &cc
	}
	return a
}

type memTx struct {
	cal *memCalendar
}

func (t memTx) FindOverlapping(ctx context.Context, q store.OverlapQuery) ([]domain.Appointment, error) {
	return t.cal.overlapLocked(q), nil
}

func (t memTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return t.cal.getLocked(id)
}

func (t memTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	appt.ID = uuid.New()
	appt.CreatedAt = time.Now().UTC()
	appt.UpdatedAt = appt.CreatedAt
	appt.Customer = nil
	t.cal.appts[appt.ID] = appt
	return appt, nil
}

func (t memTx) UpdateAppointmentInterval(ctx context.Context, id uuid.UUID, iv domain.Interval) (domain.Appointment, error) {
	a, ok := t.cal.appts[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	a.StartTime = iv.Start
	a.EndTime = iv.End
	a.UpdatedAt = time.Now().UTC()
	t.cal.appts[id] = a
	return a, nil
}

func (t memTx) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, to domain.StatusName) (domain.Appointment, error) {
	a, ok := t.cal.appts[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now().UTC()
	t.cal.appts[id] = a
	return a, nil
}

func (t memTx) InsertCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	for _, existing := range t.cal.customers {
		if c.Email != "" && existing.Email == c.Email {
			return domain.Customer{}, store.ErrCustomerExists
		}
		if c.Phone != "" && existing.Phone == c.Phone {
			return domain.Customer{}, store.ErrCustomerExists
		}
	}
	c.ID = uuid.New()
	t.cal.customers[c.ID] = c
	return c, nil
}

func newMemService(cal *memCalendar) *Service {
	return NewService(cal, cal, fakeStatuses{}, domain.DefaultPolicy(), fixedClock{testNow})
}

func monday(hour, min int) time.Time {
	return time.Date(2026, 3, 2, hour, min, 0, 0, time.UTC)
}

func TestCheckAvailability_InvalidInputSkipsStorage(t *testing.T) {
	repo := &fakeRepo{
		findOverlappingFn: func(ctx context.Context, q store.OverlapQuery) ([]domain.Appointment, error) {
			t.Fatalf("storage must not be queried for invalid input")
			return nil, nil
		},
	}
	svc := NewService(repo, &fakeCustomers{}, fakeStatuses{}, domain.DefaultPolicy(), fixedClock{testNow})

	_, err := svc.CheckAvailability(context.Background(), monday(10, 0), monday(10, 0))
	if !errors.Is(err, domain.ErrInvalidInterval) {
		t.Fatalf("err = %v, want %v", err, domain.ErrInvalidInterval)
	}

	sunday := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	_, err = svc.CheckAvailability(context.Background(), sunday, sunday.Add(30*time.Minute))
	if !errors.Is(err, domain.ErrClosedDay) {
		t.Fatalf("err = %v, want %v", err, domain.ErrClosedDay)
	}
}

func TestCheckAvailability_ReportsConflicts(t *testing.T) {
	cal := newMemCalendar()
	svc := newMemService(cal)
	customerID := cal.addCustomer("Ana Pereira")

	result, err := svc.CheckAvailability(context.Background(), monday(10, 0), monday(10, 30))
	if err != nil {
		t.Fatalf("CheckAvailability error: %v", err)
	}
	if !result.Available || len(result.Conflicts) != 0 {
		t.Fatalf("expected empty calendar to be available, got %+v", result)
	}

	if _, err := svc.Create(context.Background(), CreateInput{
		CustomerID: customerID,
		Title:      "Eye exam",
		StartTime:  monday(10, 0),
		EndTime:    monday(10, 30),
	}); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	result, err = svc.CheckAvailability(context.Background(), monday(10, 15), monday(10, 45))
	if err != nil {
		t.Fatalf("CheckAvailability error: %v", err)
	}
	if result.Available {
		t.Fatalf("expected overlap to be unavailable")
	}
	if len(result.Conflicts) != 1 {
		t.Fatalf("len(conflicts) = %d, want 1", len(result.Conflicts))
	}
	c := result.Conflicts[0]
	if c.CustomerName != "Ana Pereira" {
		t.Fatalf("conflict customer = %q, want %q", c.CustomerName, "Ana Pereira")
	}
	if !c.Start.Equal(monday(10, 0)) || !c.End.Equal(monday(10, 30)) {
		t.Fatalf("conflict interval = [%v, %v)", c.Start, c.End)
	}

	// Touching slots do not conflict.
	result, err = svc.CheckAvailability(context.Background(), monday(10, 30), monday(11, 0))
	if err != nil {
		t.Fatalf("CheckAvailability error: %v", err)
	}
	if !result.Available {
		t.Fatalf("touching interval must be available")
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := newMemService(newMemCalendar())
	ctx := context.Background()
	base := CreateInput{
		NewCustomer: &CustomerInput{Name: "Ana"},
		Title:       "Eye exam",
		StartTime:   monday(10, 0),
		EndTime:     monday(10, 30),
	}

	in := base
	in.Title = "  "
	if _, err := svc.Create(ctx, in); err == nil {
		t.Fatalf("expected error for empty title")
	}

	in = base
	in.NewCustomer = nil
	_, err := svc.Create(ctx, in)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}

	in = base
	in.CustomerID = uuid.New()
	if _, err := svc.Create(ctx, in); err == nil {
		t.Fatalf("expected error when both customer_id and customer are set")
	}

	in = base
	in.Status = domain.StatusCancelled
	if _, err := svc.Create(ctx, in); err == nil {
		t.Fatalf("expected error for terminal initial status")
	}
}

func TestCreate_DefaultsToScheduled(t *testing.T) {
	cal := newMemCalendar()
	svc := newMemService(cal)
	customerID := cal.addCustomer("Ana")

	appt, err := svc.Create(context.Background(), CreateInput{
		CustomerID: customerID,
		Title:      "Eye exam",
		StartTime:  monday(10, 0),
		EndTime:    monday(10, 30),
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if appt.Status != domain.StatusScheduled {
		t.Fatalf("status = %s, want %s", appt.Status, domain.StatusScheduled)
	}
	if appt.ID == uuid.Nil {
		t.Fatalf("expected assigned id")
	}
	if appt.StartTime.Location() != time.UTC {
		t.Fatalf("expected UTC start time, got %v", appt.StartTime)
	}
}

func TestCreate_SlotUnavailable(t *testing.T) {
	cal := newMemCalendar()
	svc := newMemService(cal)
	customerID := cal.addCustomer("Ana")
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateInput{
		CustomerID: customerID,
		Title:      "Eye exam",
		StartTime:  monday(10, 0),
		EndTime:    monday(10, 30),
	}); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	_, err := svc.Create(ctx, CreateInput{
		CustomerID: customerID,
		Title:      "Frame fitting",
		StartTime:  monday(10, 15),
		EndTime:    monday(10, 45),
	})
	var slotErr *SlotUnavailableError
	if !errors.As(err, &slotErr) {
		t.Fatalf("error type = %T, want *SlotUnavailableError", err)
	}
	if len(slotErr.Conflicts) != 1 || slotErr.Conflicts[0].CustomerName != "Ana" {
		t.Fatalf("conflicts = %+v", slotErr.Conflicts)
	}
}

func TestCreate_InlineCustomer(t *testing.T) {
	cal := newMemCalendar()
	svc := newMemService(cal)
	ctx := context.Background()

	appt, err := svc.Create(ctx, CreateInput{
		NewCustomer: &CustomerInput{Name: " Bruno Costa ", Email: "bruno@example.com"},
		Title:       "Contact lens check",
		StartTime:   monday(11, 0),
		EndTime:     monday(11, 30),
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	c, err := cal.GetCustomer(ctx, appt.CustomerID)
	if err != nil {
		t.Fatalf("GetCustomer error: %v", err)
	}
	if c.Name != "Bruno Costa" {
		t.Fatalf("customer name = %q, want trimmed %q", c.Name, "Bruno Costa")
	}

	// A duplicate unique field fails the whole booking without inserting an
	// appointment.
	_, err = svc.Create(ctx, CreateInput{
		NewCustomer: &CustomerInput{Name: "Other", Email: "bruno@example.com"},
		Title:       "Eye exam",
		StartTime:   monday(12, 0),
		EndTime:     monday(12, 30),
	})
	if !errors.Is(err, store.ErrCustomerExists) {
		t.Fatalf("err = %v, want %v", err, store.ErrCustomerExists)
	}
	appts, err := cal.ListAppointments(ctx, monday(9, 0), monday(19, 0))
	if err != nil {
		t.Fatalf("ListAppointments error: %v", err)
	}
	if len(appts) != 1 {
		t.Fatalf("len(appointments) = %d, want 1", len(appts))
	}
}

func TestCreate_UnknownCustomerRef(t *testing.T) {
	svc := newMemService(newMemCalendar())

	_, err := svc.Create(context.Background(), CreateInput{
		CustomerID: uuid.New(),
		Title:      "Eye exam",
		StartTime:  monday(10, 0),
		EndTime:    monday(10, 30),
	})
	if !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("err = %v, want %v", err, ErrCustomerNotFound)
	}
}

func TestReschedule_ExcludesOwnInterval(t *testing.T) {
	cal := newMemCalendar()
	svc := newMemService(cal)
	customerID := cal.addCustomer("Ana")
	ctx := context.Background()

	appt, err := svc.Create(ctx, CreateInput{
		CustomerID: customerID,
		Title:      "Eye exam",
		StartTime:  monday(10, 0),
		EndTime:    monday(10, 30),
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	// The new interval overlaps the appointment's own prior slot.
	updated, err := svc.Reschedule(ctx, appt.ID, monday(10, 15), monday(10, 45))
	if err != nil {
		t.Fatalf("Reschedule error: %v", err)
	}
	if !updated.StartTime.Equal(monday(10, 15)) || !updated.EndTime.Equal(monday(10, 45)) {
		t.Fatalf("interval = [%v, %v)", updated.StartTime, updated.EndTime)
	}
}

func TestReschedule_ConflictAndTerminal(t *testing.T) {
	cal := newMemCalendar()
	svc := newMemService(cal)
	customerID := cal.addCustomer("Ana")
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateInput{
		CustomerID: customerID,
		Title:      "Eye exam",
		StartTime:  monday(10, 0),
		EndTime:    monday(10, 30),
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	second, err := svc.Create(ctx, CreateInput{
		CustomerID: customerID,
		Title:      "Frame fitting",
		StartTime:  monday(11, 0),
		EndTime:    monday(11, 30),
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	_, err = svc.Reschedule(ctx, second.ID, monday(10, 15), monday(10, 45))
	var slotErr *SlotUnavailableError
	if !errors.As(err, &slotErr) {
		t.Fatalf("error type = %T, want *SlotUnavailableError", err)
	}

	if _, err := svc.Cancel(ctx, first.ID); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	var vErr *ValidationError
	if _, err := svc.Reschedule(ctx, first.ID, monday(12, 0), monday(12, 30)); !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}

	if _, err := svc.Reschedule(ctx, uuid.New(), monday(12, 0), monday(12, 30)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want %v", err, store.ErrNotFound)
	}
}

func TestCancel_FreesSlot(t *testing.T) {
	cal := newMemCalendar()
	svc := newMemService(cal)
	customerID := cal.addCustomer("Ana")
	ctx := context.Background()

	appt, err := svc.Create(ctx, CreateInput{
		CustomerID: customerID,
		Title:      "Eye exam",
		StartTime:  monday(10, 0),
		EndTime:    monday(10, 30),
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	result, err := svc.CheckAvailability(ctx, monday(10, 15), monday(10, 45))
	if err != nil {
		t.Fatalf("CheckAvailability error: %v", err)
	}
	if result.Available {
		t.Fatalf("expected conflict before cancellation")
	}

	if _, err := svc.Cancel(ctx, appt.ID); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}

	result, err = svc.CheckAvailability(ctx, monday(10, 15), monday(10, 45))
	if err != nil {
		t.Fatalf("CheckAvailability error: %v", err)
	}
	if !result.Available {
		t.Fatalf("expected slot to be free after cancellation")
	}
}

func TestNoShowPolicyFlag(t *testing.T) {
	run := func(t *testing.T, frees bool) Availability {
		cal := newMemCalendar()
		policy := domain.DefaultPolicy()
		policy.NoShowFreesSlot = frees
		svc := NewService(cal, cal, fakeStatuses{}, policy, fixedClock{testNow})
		customerID := cal.addCustomer("Ana")
		ctx := context.Background()

		appt, err := svc.Create(ctx, CreateInput{
			CustomerID: customerID,
			Title:      "Eye exam",
			StartTime:  monday(10, 0),
			EndTime:    monday(10, 30),
		})
		if err != nil {
			t.Fatalf("Create error: %v", err)
		}
		if _, err := svc.Transition(ctx, appt.ID, domain.StatusNoShow); err != nil {
			t.Fatalf("Transition error: %v", err)
		}

		result, err := svc.CheckAvailability(ctx, monday(10, 0), monday(10, 30))
		if err != nil {
			t.Fatalf("CheckAvailability error: %v", err)
		}
		return result
	}

	t.Run("no_show frees the slot", func(t *testing.T) {
		if result := run(t, true); !result.Available {
			t.Fatalf("expected slot freed, got %+v", result)
		}
	})
	t.Run("no_show keeps the slot", func(t *testing.T) {
		if result := run(t, false); result.Available {
			t.Fatalf("expected slot still taken, got %+v", result)
		}
	})
}

func TestTransition_Rules(t *testing.T) {
	cal := newMemCalendar()
	svc := newMemService(cal)
	customerID := cal.addCustomer("Ana")
	ctx := context.Background()

	appt, err := svc.Create(ctx, CreateInput{
		CustomerID: customerID,
		Title:      "Eye exam",
		StartTime:  monday(10, 0),
		EndTime:    monday(10, 30),
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	var tErr *TransitionError
	if _, err := svc.Transition(ctx, appt.ID, domain.StatusCompleted); !errors.As(err, &tErr) {
		t.Fatalf("error type = %T, want *TransitionError", err)
	}

	for _, to := range []domain.StatusName{domain.StatusConfirmed, domain.StatusInProgress, domain.StatusCompleted} {
		if _, err := svc.Transition(ctx, appt.ID, to); err != nil {
			t.Fatalf("Transition to %s error: %v", to, err)
		}
	}

	if _, err := svc.Transition(ctx, appt.ID, domain.StatusCancelled); !errors.As(err, &tErr) {
		t.Fatalf("error type = %T, want *TransitionError", err)
	}

	if _, err := svc.Transition(ctx, appt.ID, domain.StatusName("archived")); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestWriterRetry_BoundedOnSerializationFailure(t *testing.T) {
	attempts := 0
	repo := &fakeRepo{
		inTxFn: func(ctx context.Context, fn func(ctx context.Context, tx store.CalendarTx) error) error {
			attempts++
			if attempts < 3 {
				return store.ErrSerializationFailure
			}
			return fn(ctx, memTx{cal: newMemCalendar()})
		},
	}
	svc := NewService(repo, &fakeCustomers{}, fakeStatuses{}, domain.DefaultPolicy(), fixedClock{testNow})

	_, err := svc.Create(context.Background(), CreateInput{
		NewCustomer: &CustomerInput{Name: "Ana"},
		Title:       "Eye exam",
		StartTime:   monday(10, 0),
		EndTime:     monday(10, 30),
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}

	attempts = 0
	repo.inTxFn = func(ctx context.Context, fn func(ctx context.Context, tx store.CalendarTx) error) error {
		attempts++
		return store.ErrSerializationFailure
	}
	_, err = svc.Create(context.Background(), CreateInput{
		NewCustomer: &CustomerInput{Name: "Ana"},
		Title:       "Eye exam",
		StartTime:   monday(10, 0),
		EndTime:     monday(10, 30),
	})
	if !errors.Is(err, store.ErrSerializationFailure) {
		t.Fatalf("err = %v, want %v", err, store.ErrSerializationFailure)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestConcurrentCreate_ExactlyOneWins(t *testing.T) {
	cal := newMemCalendar()
	svc := newMemService(cal)
	customerID := cal.addCustomer("Ana")

	const workers = 2
	errs := make([]error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), CreateInput{
				CustomerID: customerID,
				Title:      "Eye exam",
				StartTime:  monday(10, 0),
				EndTime:    monday(10, 30),
			})
		}(i)
	}
	wg.Wait()

	successes, conflicts := 0, 0
	for _, err := range errs {
		var slotErr *SlotUnavailableError
		switch {
		case err == nil:
			successes++
		case errors.As(err, &slotErr):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("successes = %d, conflicts = %d, want 1 and 1", successes, conflicts)
	}
}

// TestInvariant_RandomOperations drives a random mix of creates, reschedules
// and cancellations and then verifies that no two calendar-blocking
// appointments overlap.
func TestInvariant_RandomOperations(t *testing.T) {
	cal := newMemCalendar()
	svc := newMemService(cal)
	customerID := cal.addCustomer("Ana")
	ctx := context.Background()
	rng := rand.New(rand.NewSource(1))

	randomInterval := func() (time.Time, time.Time) {
		day := rng.Intn(6) // Monday through Saturday
		startMin := 9*60 + 15*rng.Intn(39) // 09:00 .. 18:30 in 15 minute steps
		d := time.Duration(15*(1+rng.Intn(4))) * time.Minute
		start := time.Date(2026, 3, 2+day, 0, 0, 0, 0, time.UTC).Add(time.Duration(startMin) * time.Minute)
		return start, start.Add(d)
	}

	var ids []uuid.UUID
	for i := 0; i < 150; i++ {
		op := rng.Intn(100)
		switch {
		case op < 60 || len(ids) == 0:
			start, end := randomInterval()
			appt, err := svc.Create(ctx, CreateInput{
				CustomerID: customerID,
				Title:      "Visit",
				StartTime:  start,
				EndTime:    end,
			})
			if err == nil {
				ids = append(ids, appt.ID)
			}
		case op < 80:
			start, end := randomInterval()
			_, _ = svc.Reschedule(ctx, ids[rng.Intn(len(ids))], start, end)
		default:
			_, _ = svc.Cancel(ctx, ids[rng.Intn(len(ids))])
		}
	}

	appts, err := cal.ListAppointments(ctx, monday(0, 0), monday(0, 0).AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("ListAppointments error: %v", err)
	}
	var blocking []domain.Appointment
	for _, a := range appts {
		if a.Status != domain.StatusCancelled {
			blocking = append(blocking, a)
		}
	}
	if len(blocking) < 2 {
		t.Fatalf("random run produced %d blocking appointments; not enough to exercise the invariant", len(blocking))
	}
	for i := 0; i < len(blocking); i++ {
		for j := i + 1; j < len(blocking); j++ {
			if blocking[i].Interval().Overlaps(blocking[j].Interval()) {
				t.Fatalf("appointments %s and %s overlap: [%v,%v) vs [%v,%v)",
					blocking[i].ID, blocking[j].ID,
					blocking[i].StartTime, blocking[i].EndTime,
					blocking[j].StartTime, blocking[j].EndTime)
			}
		}
	}
}

func TestListAndStatuses(t *testing.T) {
	cal := newMemCalendar()
	svc := newMemService(cal)
	customerID := cal.addCustomer("Ana")
	ctx := context.Background()

	if _, err := svc.List(ctx, monday(10, 0), monday(10, 0)); err == nil {
		t.Fatalf("expected error for empty window")
	}

	if _, err := svc.Create(ctx, CreateInput{
		CustomerID: customerID,
		Title:      "Eye exam",
		StartTime:  monday(10, 0),
		EndTime:    monday(10, 30),
	}); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	appts, err := svc.List(ctx, monday(9, 0), monday(19, 0))
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(appts) != 1 {
		t.Fatalf("len(appointments) = %d, want 1", len(appts))
	}

	statuses, err := svc.Statuses(ctx)
	if err != nil {
		t.Fatalf("Statuses error: %v", err)
	}
	if len(statuses) != len(domain.KnownStatuses()) {
		t.Fatalf("len(statuses) = %d, want %d", len(statuses), len(domain.KnownStatuses()))
	}
}
