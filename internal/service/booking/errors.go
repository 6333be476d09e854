package booking

import (
	"errors"
	"fmt"

	"github.com/studiolegale/sld_backend/internal/store"
)

var (
	ErrInvalidSlotCount = errors.New("booking: invalid slot count")
	ErrSlotUnavailable  = errors.New("booking: slot unavailable")
	ErrDateBlocked      = errors.New("booking: date is blocked")
	ErrNotFound         = errors.New("booking: reservation not found")
	ErrAlreadyCancelled = errors.New("booking: reservation already cancelled")
	ErrAlreadyCompleted = errors.New("booking: reservation already completed")
)

// unavailable wraps ErrSlotUnavailable naming the first conflicting slot.
func unavailable(t store.TimeOfDay) error {
	return fmt.Errorf("%w: %s", ErrSlotUnavailable, t)
}

// ConflictingTime extracts the "HH:MM" suffix from an ErrSlotUnavailable,
// or "" when the error carries none.
func ConflictingTime(err error) string {
	if !errors.Is(err, ErrSlotUnavailable) {
		return ""
	}
	msg := err.Error()
	if len(msg) < 5 {
		return ""
	}
	tail := msg[len(msg)-5:]
	if _, parseErr := store.ParseTimeOfDay(tail); parseErr != nil {
		return ""
	}
	return tail
}
