package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema statements, applied in order by Migrate. Statements are idempotent
// so migrate can run on every deploy.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS availability_rules (
		id         BIGSERIAL PRIMARY KEY,
		weekday    SMALLINT NOT NULL CHECK (weekday BETWEEN 0 AND 6),
		start_time TIME NOT NULL,
		end_time   TIME NOT NULL,
		active     BOOLEAN NOT NULL DEFAULT TRUE,
		CHECK (start_time < end_time)
	)`,
	`CREATE TABLE IF NOT EXISTS blocked_dates (
		date   DATE PRIMARY KEY,
		reason TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS busy_intervals (
		external_id TEXT PRIMARY KEY,
		start_at    TIMESTAMPTZ NOT NULL,
		end_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id             UUID PRIMARY KEY,
		date           DATE NOT NULL,
		start_time     TIME NOT NULL,
		slot_count     INTEGER NOT NULL CHECK (slot_count >= 1),
		status         TEXT NOT NULL,
		name           TEXT NOT NULL DEFAULT '',
		email          TEXT NOT NULL DEFAULT '',
		phone          TEXT NOT NULL DEFAULT '',
		notes          TEXT NOT NULL DEFAULT '',
		payment_method TEXT NOT NULL DEFAULT '',
		payment_ref    TEXT NOT NULL DEFAULT '',
		amount_cents   BIGINT NOT NULL DEFAULT 0,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// Backstop against two concurrent holds on the same starting slot.
	// Cancelled rows stay as history and must not block rebooking.
	`CREATE UNIQUE INDEX IF NOT EXISTS reservations_date_start_active
		ON reservations (date, start_time)
		WHERE status <> 'cancelled'`,
	`CREATE INDEX IF NOT EXISTS reservations_date ON reservations (date)`,
	`CREATE INDEX IF NOT EXISTS reservations_payment_ref ON reservations (payment_ref)
		WHERE payment_ref <> ''`,
	`CREATE TABLE IF NOT EXISTS contact_messages (
		id         UUID PRIMARY KEY,
		name       TEXT NOT NULL,
		email      TEXT NOT NULL,
		phone      TEXT NOT NULL DEFAULT '',
		message    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate applies the schema to db.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
