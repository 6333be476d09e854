package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore implements Store on database/sql with the lib/pq driver.
type PostgresStore struct {
	db *sql.DB
	q  querier
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.db == nil {
		// Already transaction-scoped; nested calls run in the same tx.
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&PostgresStore{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// translateErr maps driver errors onto the store sentinels.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
	}
	return err
}

func (s *PostgresStore) ActiveRules(ctx context.Context, weekday time.Weekday) ([]AvailabilityRule, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, weekday, start_time, end_time, active
		FROM availability_rules
		WHERE weekday = $1 AND active
		ORDER BY start_time`, int(weekday))
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []AvailabilityRule
	for rows.Next() {
		var r AvailabilityRule
		var wd int
		if err := rows.Scan(&r.ID, &wd, &r.Start, &r.End, &r.Active); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.Weekday = time.Weekday(wd)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) IsDateBlocked(ctx context.Context, date time.Time) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM blocked_dates WHERE date = $1)`,
		Date(date)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query blocked date: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) UpsertBlockedDate(ctx context.Context, b BlockedDate) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO blocked_dates (date, reason) VALUES ($1, $2)
		ON CONFLICT (date) DO UPDATE SET reason = EXCLUDED.reason`,
		Date(b.Date), b.Reason)
	if err != nil {
		return fmt.Errorf("upsert blocked date: %w", err)
	}
	return nil
}

func (s *PostgresStore) BusyIntervals(ctx context.Context, date time.Time) ([]BusyInterval, error) {
	day := Date(date)
	rows, err := s.q.QueryContext(ctx, `
		SELECT external_id, start_at, end_at
		FROM busy_intervals
		WHERE start_at < $1 AND end_at > $2
		ORDER BY start_at`, day.AddDate(0, 0, 1), day)
	if err != nil {
		return nil, fmt.Errorf("query busy intervals: %w", err)
	}
	defer rows.Close()

	var out []BusyInterval
	for rows.Next() {
		var b BusyInterval
		if err := rows.Scan(&b.ExternalID, &b.Start, &b.End); err != nil {
			return nil, fmt.Errorf("scan busy interval: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SyncBusyIntervals(ctx context.Context, intervals []BusyInterval) error {
	return s.InTx(ctx, func(tx Store) error {
		ps := tx.(*PostgresStore)
		keep := make([]string, 0, len(intervals))
		for _, iv := range intervals {
			keep = append(keep, iv.ExternalID)
			_, err := ps.q.ExecContext(ctx, `
				INSERT INTO busy_intervals (external_id, start_at, end_at)
				VALUES ($1, $2, $3)
				ON CONFLICT (external_id)
				DO UPDATE SET start_at = EXCLUDED.start_at, end_at = EXCLUDED.end_at`,
				iv.ExternalID, iv.Start.UTC(), iv.End.UTC())
			if err != nil {
				return fmt.Errorf("upsert busy interval %s: %w", iv.ExternalID, err)
			}
		}
		_, err := ps.q.ExecContext(ctx,
			`DELETE FROM busy_intervals WHERE NOT (external_id = ANY($1))`,
			pq.Array(keep))
		if err != nil {
			return fmt.Errorf("prune busy intervals: %w", err)
		}
		return nil
	})
}

const reservationColumns = `id, date, start_time, slot_count, status,
	name, email, phone, notes, payment_method, payment_ref, amount_cents, created_at`

func scanReservation(row interface{ Scan(...any) error }) (*Reservation, error) {
	var r Reservation
	err := row.Scan(&r.ID, &r.Date, &r.StartTime, &r.SlotCount, &r.Status,
		&r.Name, &r.Email, &r.Phone, &r.Notes,
		&r.PaymentMethod, &r.PaymentRef, &r.AmountCents, &r.CreatedAt)
	if err != nil {
		return nil, translateErr(err)
	}
	r.Date = Date(r.Date)
	return &r, nil
}

func (s *PostgresStore) ActiveReservations(ctx context.Context, date time.Time) ([]Reservation, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE date = $1 AND status <> $2
		ORDER BY start_time`, Date(date), StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateReservation(ctx context.Context, r *Reservation) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		r.ID, Date(r.Date), r.StartTime, r.SlotCount, r.Status,
		r.Name, r.Email, r.Phone, r.Notes,
		r.PaymentMethod, r.PaymentRef, r.AmountCents, r.CreatedAt)
	if err != nil {
		return translateErr(err)
	}
	return nil
}

func (s *PostgresStore) GetReservation(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id)
	return scanReservation(row)
}

func (s *PostgresStore) GetReservationByPaymentRef(ctx context.Context, ref string) (*Reservation, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE payment_ref = $1`, ref)
	return scanReservation(row)
}

func (s *PostgresStore) UpdateReservationStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE reservations SET status = $3 WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return translateErr(err)
	}
	return checkAffected(res)
}

func (s *PostgresStore) SetReservationPayment(ctx context.Context, id uuid.UUID, method, ref string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE reservations SET payment_method = $2, payment_ref = $3 WHERE id = $1`,
		id, method, ref)
	if err != nil {
		return translateErr(err)
	}
	return checkAffected(res)
}

func (s *PostgresStore) DeleteReservation(ctx context.Context, id uuid.UUID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return translateErr(err)
	}
	return checkAffected(res)
}

func (s *PostgresStore) DeleteStalePending(ctx context.Context, date, cutoff time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		DELETE FROM reservations
		WHERE date = $1 AND status = $2 AND created_at < $3`,
		Date(date), StatusPending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("evict stale pending: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) DeletePendingAt(ctx context.Context, date time.Time, start TimeOfDay) (int64, error) {
	res, err := s.q.ExecContext(ctx, `
		DELETE FROM reservations
		WHERE date = $1 AND start_time = $2 AND status = $3`,
		Date(date), start, StatusPending)
	if err != nil {
		return 0, fmt.Errorf("delete pending at %s: %w", start, err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) CreateContactMessage(ctx context.Context, m *ContactMessage) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO contact_messages (id, name, email, phone, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.Name, m.Email, m.Phone, m.Message, m.CreatedAt)
	if err != nil {
		return translateErr(err)
	}
	return nil
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
