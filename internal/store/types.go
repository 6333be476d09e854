// Package store holds the persistence layer for the booking engine: the
// domain records, the Store interface, the Postgres implementation and an
// in-memory fake used by service tests.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Reservation statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// AvailabilityRule is one recurring weekly open window, edited by staff.
type AvailabilityRule struct {
	ID      int64
	Weekday time.Weekday
	Start   TimeOfDay
	End     TimeOfDay
	Active  bool
}

// BlockedDate marks a whole calendar date as closed.
type BlockedDate struct {
	Date   time.Time
	Reason string
}

// BusyInterval is an externally sourced blocking range from the synced
// calendar feed, keyed by the feed event's UID.
type BusyInterval struct {
	ExternalID string
	Start      time.Time
	End        time.Time
}

// Reservation is a hold on one or more contiguous slots.
type Reservation struct {
	ID            uuid.UUID
	Date          time.Time
	StartTime     TimeOfDay
	SlotCount     int
	Status        string
	Name          string
	Email         string
	Phone         string
	Notes         string
	PaymentMethod string
	PaymentRef    string
	AmountCents   int64
	CreatedAt     time.Time
}

// Slots expands the reservation into every slot start-time it occupies.
func (r Reservation) Slots(slotDuration time.Duration) []TimeOfDay {
	out := make([]TimeOfDay, 0, r.SlotCount)
	for k := 0; k < r.SlotCount; k++ {
		out = append(out, r.StartTime.Add(time.Duration(k)*slotDuration))
	}
	return out
}

// ContactMessage is a website contact-form submission.
type ContactMessage struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Phone     string
	Message   string
	CreatedAt time.Time
}
