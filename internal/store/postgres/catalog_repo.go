package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"optiadmin/internal/domain"
	"optiadmin/internal/store"
)

type CustomerRepo struct {
	db *bun.DB
}

func NewCustomerRepo(db *bun.DB) *CustomerRepo {
	return &CustomerRepo{db: db}
}

func (r *CustomerRepo) GetCustomer(ctx context.Context, id uuid.UUID) (domain.Customer, error) {
	var m domain.Customer
	err := r.db.NewSelect().
		Model(&m).
		Where("c.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, store.ErrNotFound
		}
		return domain.Customer{}, err
	}
	return m, nil
}

type StatusRepo struct {
	db *bun.DB
}

func NewStatusRepo(db *bun.DB) *StatusRepo {
	return &StatusRepo{db: db}
}

func (r *StatusRepo) ListStatuses(ctx context.Context) ([]domain.AppointmentStatus, error) {
	var rows []domain.AppointmentStatus
	err := r.db.NewSelect().
		Model(&rows).
		OrderExpr("st.sort_order ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type AdminRepo struct {
	db *bun.DB
}

func NewAdminRepo(db *bun.DB) *AdminRepo {
	return &AdminRepo{db: db}
}

func (r *AdminRepo) GetAdminByEmail(ctx context.Context, email string) (domain.Admin, error) {
	var m domain.Admin
	err := r.db.NewSelect().
		Model(&m).
		Where("ad.email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Admin{}, store.ErrNotFound
		}
		return domain.Admin{}, err
	}
	return m, nil
}

func (r *AdminRepo) CreateAdmin(ctx context.Context, admin domain.Admin) (domain.Admin, error) {
	if _, err := r.db.NewInsert().Model(&admin).Exec(ctx); err != nil {
		if errors.Is(mapPgError(err), store.ErrConflict) {
			return domain.Admin{}, store.ErrAdminExists
		}
		return domain.Admin{}, err
	}
	return admin, nil
}
