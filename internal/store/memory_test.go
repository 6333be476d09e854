package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestUpdateReservationStatusConditional(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	r := &Reservation{
		Date:      Date(time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)),
		StartTime: TimeOfDay(10 * 60),
		SlotCount: 1,
		Status:    StatusPending,
		Name:      "Mario Rossi",
		Email:     "mario@example.com",
	}
	if err := st.CreateReservation(ctx, r); err != nil {
		t.Fatalf("CreateReservation: %v", err)
	}

	// A stale from-state must not move the row.
	err := st.UpdateReservationStatus(ctx, r.ID, StatusConfirmed, StatusCompleted)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound for a mismatched from-state", err)
	}
	cur, err := st.GetReservation(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetReservation: %v", err)
	}
	if cur.Status != StatusPending {
		t.Fatalf("status = %s, want pending after a failed conditional update", cur.Status)
	}

	if err := st.UpdateReservationStatus(ctx, r.ID, StatusPending, StatusConfirmed); err != nil {
		t.Fatalf("UpdateReservationStatus: %v", err)
	}
	cur, err = st.GetReservation(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetReservation: %v", err)
	}
	if cur.Status != StatusConfirmed {
		t.Errorf("status = %s, want confirmed", cur.Status)
	}
}
