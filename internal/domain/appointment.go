package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Appointment struct {
	bun.BaseModel `bun:"table:appointments,alias:a"`

	ID          uuid.UUID  `bun:"id,pk,type:uuid"`
	CustomerID  uuid.UUID  `bun:"customer_id,notnull,type:uuid"`
	Title       string     `bun:"title,notnull"`
	Description string     `bun:"description"`
	Notes       string     `bun:"notes"`
	StartTime   time.Time  `bun:"start_time,notnull"`
	EndTime     time.Time  `bun:"end_time,notnull"`
	Status      StatusName `bun:"status,notnull"`
	CreatedAt   time.Time  `bun:"created_at,notnull"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull"`

	Customer *Customer `bun:"rel:belongs-to,join:customer_id=id"`
}

func (a *Appointment) Interval() Interval {
	return Interval{Start: a.StartTime, End: a.EndTime}
}

// CustomerName is the display name for conflict diagnostics. Empty when the
// customer relation was not loaded.
func (a *Appointment) CustomerName() string {
	if a.Customer == nil {
		return ""
	}
	return a.Customer.Name
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}
