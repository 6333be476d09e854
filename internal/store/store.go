package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence contract the services depend on. The Postgres
// implementation backs production; the in-memory one backs tests.
type Store interface {
	// InTx runs fn against a transaction-scoped Store. A non-nil error
	// from fn rolls everything back.
	InTx(ctx context.Context, fn func(Store) error) error

	// ActiveRules returns the active availability rules for a weekday,
	// ordered by start time.
	ActiveRules(ctx context.Context, weekday time.Weekday) ([]AvailabilityRule, error)

	IsDateBlocked(ctx context.Context, date time.Time) (bool, error)
	UpsertBlockedDate(ctx context.Context, b BlockedDate) error

	// BusyIntervals returns external intervals overlapping the given date.
	BusyIntervals(ctx context.Context, date time.Time) ([]BusyInterval, error)
	// SyncBusyIntervals upserts the fetched intervals by external id and
	// removes persisted rows whose external id is absent from the fetch.
	SyncBusyIntervals(ctx context.Context, intervals []BusyInterval) error

	// ActiveReservations returns non-cancelled reservations on a date.
	ActiveReservations(ctx context.Context, date time.Time) ([]Reservation, error)
	CreateReservation(ctx context.Context, r *Reservation) error
	GetReservation(ctx context.Context, id uuid.UUID) (*Reservation, error)
	GetReservationByPaymentRef(ctx context.Context, ref string) (*Reservation, error)
	// UpdateReservationStatus moves a reservation from one status to
	// another. The update is conditional on the current status matching
	// from; ErrNotFound reports that no such row exists, either because the
	// id is unknown or because a concurrent transition got there first.
	UpdateReservationStatus(ctx context.Context, id uuid.UUID, from, to string) error
	SetReservationPayment(ctx context.Context, id uuid.UUID, method, ref string) error
	DeleteReservation(ctx context.Context, id uuid.UUID) error
	// DeleteStalePending removes pending reservations on date created
	// before cutoff.
	DeleteStalePending(ctx context.Context, date time.Time, cutoff time.Time) (int64, error)
	// DeletePendingAt removes pending reservations holding the exact
	// (date, startTime) pair, regardless of slot count.
	DeletePendingAt(ctx context.Context, date time.Time, start TimeOfDay) (int64, error)

	CreateContactMessage(ctx context.Context, m *ContactMessage) error
}
