package postgres

import (
	"context"

	"github.com/uptrace/bun"
)

// migrationStatements is the full schema, written to be re-runnable. The
// appointments_no_overlap exclusion constraint backstops the booking
// invariant for non-terminal rows; cancelled and no_show rows never
// participate, so freeing a slot is a pure status change.
var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		id uuid PRIMARY KEY,
		name text NOT NULL,
		phone text,
		email text,
		notes text NOT NULL DEFAULT '',
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS customers_email_key ON customers (email) WHERE email <> ''`,
	`CREATE UNIQUE INDEX IF NOT EXISTS customers_phone_key ON customers (phone) WHERE phone <> ''`,

	`CREATE TABLE IF NOT EXISTS appointment_statuses (
		name text PRIMARY KEY,
		label text NOT NULL,
		color text NOT NULL DEFAULT '',
		sort_order int NOT NULL
	)`,
	`INSERT INTO appointment_statuses (name, label, color, sort_order) VALUES
		('scheduled', 'Scheduled', '#2b6cb0', 10),
		('confirmed', 'Confirmed', '#2f855a', 20),
		('in_progress', 'In progress', '#b7791f', 30),
		('completed', 'Completed', '#4a5568', 40),
		('cancelled', 'Cancelled', '#c53030', 50),
		('no_show', 'No-show', '#822727', 60)
	ON CONFLICT (name) DO NOTHING`,

	`CREATE TABLE IF NOT EXISTS appointments (
		id uuid PRIMARY KEY,
		customer_id uuid NOT NULL REFERENCES customers (id),
		title text NOT NULL,
		description text NOT NULL DEFAULT '',
		notes text NOT NULL DEFAULT '',
		start_time timestamptz NOT NULL,
		end_time timestamptz NOT NULL,
		status text NOT NULL REFERENCES appointment_statuses (name),
		created_at timestamptz NOT NULL DEFAULT now(),
		updated_at timestamptz NOT NULL DEFAULT now(),
		CONSTRAINT appointments_interval_valid CHECK (end_time > start_time),
		CONSTRAINT appointments_no_overlap EXCLUDE USING gist (
			tstzrange(start_time, end_time) WITH &&
		) WHERE (status NOT IN ('cancelled', 'no_show'))
	)`,
	`CREATE INDEX IF NOT EXISTS appointments_start_time_idx ON appointments (start_time)`,
	`CREATE INDEX IF NOT EXISTS appointments_status_idx ON appointments (status)`,

	`CREATE TABLE IF NOT EXISTS admins (
		email text PRIMARY KEY,
		password_hash text NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
}

func Migrate(ctx context.Context, db bun.IDB) error {
	for _, stmt := range migrationStatements {
		if _, err := db.NewRaw(stmt).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
