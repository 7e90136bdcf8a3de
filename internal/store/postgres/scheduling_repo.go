package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"optiadmin/internal/domain"
	"optiadmin/internal/store"
)

// calendarLockKey serializes every booking write against the single service
// resource. Readers never take it.
const calendarLockKey = "optiadmin:calendar"

type SchedulingRepo struct {
	db *bun.DB
}

func NewSchedulingRepo(db *bun.DB) *SchedulingRepo {
	return &SchedulingRepo{db: db}
}

type calendarTx struct {
	tx bun.Tx
}

func (r *SchedulingRepo) FindOverlapping(ctx context.Context, q store.OverlapQuery) ([]domain.Appointment, error) {
	return findOverlapping(ctx, r.db, q)
}

func (r *SchedulingRepo) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, r.db, id)
}

func (r *SchedulingRepo) ListAppointments(ctx context.Context, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Relation("Customer").
		Where("a.start_time < ?", windowEnd).
		Where("a.end_time > ?", windowStart).
		OrderExpr("a.start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SchedulingRepo) ListEndedBefore(ctx context.Context, cutoff time.Time, statuses []domain.StatusName) ([]domain.Appointment, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("a.end_time < ?", cutoff).
		Where("a.status IN (?)", bun.In(statuses)).
		OrderExpr("a.end_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SchedulingRepo) InCalendarTransaction(ctx context.Context, fn func(ctx context.Context, tx store.CalendarTx) error) error {
	err := r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		if err := lockCalendar(ctx, tx); err != nil {
			return err
		}
		return fn(ctx, calendarTx{tx: tx})
	})
	return mapPgError(err)
}

func lockCalendar(ctx context.Context, tx bun.Tx) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", calendarLockKey).Exec(ctx)
	return err
}

func (t calendarTx) FindOverlapping(ctx context.Context, q store.OverlapQuery) ([]domain.Appointment, error) {
	return findOverlapping(ctx, t.tx, q)
}

func (t calendarTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, t.tx, id)
}

func (t calendarTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	m.Customer = nil
	if _, err := t.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Appointment{}, mapPgError(err)
	}
	appt.ID = m.ID
	appt.CreatedAt = m.CreatedAt
	appt.UpdatedAt = m.UpdatedAt
	return appt, nil
}

func (t calendarTx) UpdateAppointmentInterval(ctx context.Context, id uuid.UUID, iv domain.Interval) (domain.Appointment, error) {
	var m domain.Appointment
	res, err := t.tx.NewUpdate().
		Model(&m).
		Set("start_time = ?", iv.Start).
		Set("end_time = ?", iv.End).
		Set("updated_at = now()").
		Where("id = ?", id).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, mapPgError(err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return m, nil
}

func (t calendarTx) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, to domain.StatusName) (domain.Appointment, error) {
	var m domain.Appointment
	res, err := t.tx.NewUpdate().
		Model(&m).
		Set("status = ?", to).
		Set("updated_at = now()").
		Where("id = ?", id).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, mapPgError(err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return m, nil
}

func (t calendarTx) InsertCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	m := c
	if _, err := t.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		err = mapPgError(err)
		if errors.Is(err, store.ErrConflict) {
			return domain.Customer{}, store.ErrCustomerExists
		}
		return domain.Customer{}, err
	}
	return m, nil
}

func findOverlapping(ctx context.Context, db bun.IDB, q store.OverlapQuery) ([]domain.Appointment, error) {
	if len(q.Blocking) == 0 {
		return nil, nil
	}
	var rows []domain.Appointment
	sel := db.NewSelect().
		Model(&rows).
		Relation("Customer").
		Where("a.start_time < ?", q.Interval.End).
		Where("a.end_time > ?", q.Interval.Start).
		Where("a.status IN (?)", bun.In(q.Blocking)).
		OrderExpr("a.start_time ASC")
	if q.ExcludeID != uuid.Nil {
		sel = sel.Where("a.id != ?", q.ExcludeID)
	}
	if err := sel.Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func getAppointment(ctx context.Context, db bun.IDB, id uuid.UUID) (domain.Appointment, error) {
	var m domain.Appointment
	err := db.NewSelect().
		Model(&m).
		Relation("Customer").
		Where("a.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return m, nil
}

// mapPgError translates driver errors into store sentinels: serialization
// and deadlock failures are retried by the writer, exclusion-constraint and
// unique violations become conflicts.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "40001", "40P01":
		return store.ErrSerializationFailure
	case "23P01":
		if pgErr.ConstraintName == "appointments_no_overlap" {
			return store.ErrConflict
		}
	case "23505":
		return store.ErrConflict
	}
	return err
}
