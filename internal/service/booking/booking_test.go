package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/studiolegale/sld_backend/config"
	"github.com/studiolegale/sld_backend/internal/service/calendar"
	"github.com/studiolegale/sld_backend/internal/store"
)

// 2026-09-07 is a Monday.
var monday = time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

func mustTime(t *testing.T, s string) store.TimeOfDay {
	t.Helper()
	tod, err := store.ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return tod
}

type fakeBusy struct {
	slots []store.TimeOfDay
	err   error
}

func (f *fakeBusy) BlockedSlots(ctx context.Context, date time.Time) ([]store.TimeOfDay, error) {
	return f.slots, f.err
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	return nil
}

func newTestService(t *testing.T, busy BusySource) (*bookingService, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	st.AddRule(time.Monday, mustTime(t, "09:00"), mustTime(t, "13:00"))
	st.AddRule(time.Monday, mustTime(t, "15:00"), mustTime(t, "18:00"))

	cfg := config.BookingConfig{
		SlotDurationMinutes:   30,
		MaxSlotsPerBooking:    4,
		PendingTimeoutMinutes: 30,
		ClosedWeekday:         int(time.Sunday),
		BookableDays:          60,
		PriceCents:            10000,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(st, busy, nil, cfg, logger).(*bookingService)
	return svc, st
}

func reserveReq(t *testing.T, start string, count int) ReserveRequest {
	t.Helper()
	return ReserveRequest{
		Date:      monday,
		Start:     mustTime(t, start),
		SlotCount: count,
		Name:      "Mario Rossi",
		Email:     "mario@example.com",
		Phone:     "+390612345678",
	}
}

func TestLatticeMonday(t *testing.T) {
	svc, _ := newTestService(t, nil)

	slots, err := svc.Lattice(context.Background(), monday)
	if err != nil {
		t.Fatalf("Lattice: %v", err)
	}
	if len(slots) != 14 {
		t.Fatalf("got %d slots, want 14", len(slots))
	}
	if slots[0].String() != "09:00" {
		t.Errorf("first slot = %s, want 09:00", slots[0])
	}
	if slots[len(slots)-1].String() != "17:30" {
		t.Errorf("last slot = %s, want 17:30", slots[len(slots)-1])
	}
}

func TestLatticeClosedWeekday(t *testing.T) {
	svc, st := newTestService(t, nil)
	st.AddRule(time.Sunday, mustTime(t, "09:00"), mustTime(t, "12:00"))

	sunday := monday.AddDate(0, 0, -1)
	slots, err := svc.Lattice(context.Background(), sunday)
	if err != nil {
		t.Fatalf("Lattice: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("got %d slots on the closed weekday, want 0", len(slots))
	}
}

func TestLatticeWindowShorterThanSlot(t *testing.T) {
	svc, st := newTestService(t, nil)
	st.AddRule(time.Tuesday, mustTime(t, "09:00"), mustTime(t, "09:15"))

	tuesday := monday.AddDate(0, 0, 1)
	slots, err := svc.Lattice(context.Background(), tuesday)
	if err != nil {
		t.Fatalf("Lattice: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("got %d slots from a sub-slot window, want 0", len(slots))
	}
}

func TestLatticeOverlappingRulesDeduplicated(t *testing.T) {
	svc, st := newTestService(t, nil)
	// Overlaps the 09:00-13:00 window; the union must not repeat slots.
	st.AddRule(time.Monday, mustTime(t, "10:00"), mustTime(t, "12:00"))

	slots, err := svc.Lattice(context.Background(), monday)
	if err != nil {
		t.Fatalf("Lattice: %v", err)
	}
	seen := make(map[store.TimeOfDay]bool)
	for _, s := range slots {
		if seen[s] {
			t.Fatalf("slot %s appears twice", s)
		}
		seen[s] = true
	}
	if len(slots) != 14 {
		t.Errorf("got %d slots, want 14", len(slots))
	}
}

func TestBlockedDateYieldsNoSlots(t *testing.T) {
	svc, st := newTestService(t, nil)
	if err := st.UpsertBlockedDate(context.Background(), store.BlockedDate{Date: monday, Reason: "holiday"}); err != nil {
		t.Fatalf("block date: %v", err)
	}

	slots, err := svc.AvailableSlots(context.Background(), monday)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("got %d slots on a blocked date, want 0", len(slots))
	}
}

func TestBookingRemovesSlotAndCancelRestoresIt(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	r, err := svc.Reserve(ctx, reserveReq(t, "10:00", 1))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := svc.Confirm(ctx, r.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	free, err := svc.AvailableSlots(ctx, monday)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	for _, s := range free {
		if s.String() == "10:00" {
			t.Fatal("10:00 still available after confirmed booking")
		}
	}
	if len(free) != 13 {
		t.Errorf("got %d free slots, want 13", len(free))
	}

	if err := svc.Cancel(ctx, r.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	free, err = svc.AvailableSlots(ctx, monday)
	if err != nil {
		t.Fatalf("AvailableSlots after cancel: %v", err)
	}
	restored := false
	for _, s := range free {
		if s.String() == "10:00" {
			restored = true
		}
	}
	if !restored {
		t.Error("10:00 not restored after cancellation")
	}
}

func TestMultiSlotContiguity(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	r, err := svc.Reserve(ctx, reserveReq(t, "09:00", 4))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := svc.Confirm(ctx, r.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	free, err := svc.AvailableSlots(ctx, monday)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	freeSet := make(map[string]bool)
	for _, s := range free {
		freeSet[s.String()] = true
	}
	for _, occupied := range []string{"09:00", "09:30", "10:00", "10:30"} {
		if freeSet[occupied] {
			t.Errorf("%s should be occupied", occupied)
		}
	}
	if !freeSet["11:00"] {
		t.Error("11:00 should be free")
	}
}

func TestConflictNamesFirstConflictingSlot(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	r, err := svc.Reserve(ctx, reserveReq(t, "10:30", 1))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := svc.Confirm(ctx, r.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	_, err = svc.Reserve(ctx, reserveReq(t, "10:00", 2))
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("got %v, want ErrSlotUnavailable", err)
	}
	if got := ConflictingTime(err); got != "10:30" {
		t.Errorf("conflicting time = %q, want 10:30", got)
	}
}

func TestPendingDedup(t *testing.T) {
	svc, st := newTestService(t, nil)
	ctx := context.Background()

	first, err := svc.Reserve(ctx, reserveReq(t, "10:00", 1))
	if err != nil {
		t.Fatalf("first Reserve: %v", err)
	}
	second, err := svc.Reserve(ctx, reserveReq(t, "10:00", 2))
	if err != nil {
		t.Fatalf("second Reserve: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("expected a fresh reservation id on resubmission")
	}

	active, err := st.ActiveReservations(ctx, monday)
	if err != nil {
		t.Fatalf("ActiveReservations: %v", err)
	}
	var pending []store.Reservation
	for _, r := range active {
		if r.Status == store.StatusPending {
			pending = append(pending, r)
		}
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending rows, want 1", len(pending))
	}
	if pending[0].ID != second.ID || pending[0].SlotCount != 2 {
		t.Error("resubmission did not supersede the earlier hold")
	}
}

func TestStalePendingEvicted(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	if _, err := svc.Reserve(ctx, reserveReq(t, "10:00", 2)); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	// 40 minutes later the hold is past the 30-minute timeout. The second
	// booker targets 10:30, covered by the stale span but not its start, so
	// only the timeout eviction can free it.
	svc.now = func() time.Time { return now.Add(40 * time.Minute) }
	if _, err := svc.Reserve(ctx, ReserveRequest{
		Date: monday, Start: mustTime(t, "10:30"), SlotCount: 1,
		Name: "Luisa Bianchi", Email: "luisa@example.com",
	}); err != nil {
		t.Fatalf("Reserve after timeout: %v", err)
	}
}

func TestFreshPendingBlocksOtherBookers(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.Reserve(ctx, reserveReq(t, "10:00", 2)); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	// A different starting slot overlapping the pending span must fail.
	_, err := svc.Reserve(ctx, ReserveRequest{
		Date: monday, Start: mustTime(t, "10:30"), SlotCount: 1,
		Name: "Luisa Bianchi", Email: "luisa@example.com",
	})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("got %v, want ErrSlotUnavailable", err)
	}
}

func TestInvalidSlotCount(t *testing.T) {
	svc, _ := newTestService(t, nil)
	for _, count := range []int{0, -1, 5} {
		_, err := svc.Reserve(context.Background(), reserveReq(t, "09:00", count))
		if !errors.Is(err, ErrInvalidSlotCount) {
			t.Errorf("slotCount=%d: got %v, want ErrInvalidSlotCount", count, err)
		}
	}
}

func TestReserveOnBlockedDate(t *testing.T) {
	svc, st := newTestService(t, nil)
	ctx := context.Background()
	if err := st.UpsertBlockedDate(ctx, store.BlockedDate{Date: monday, Reason: "holiday"}); err != nil {
		t.Fatalf("block date: %v", err)
	}

	_, err := svc.Reserve(ctx, reserveReq(t, "10:00", 1))
	if !errors.Is(err, ErrDateBlocked) {
		t.Errorf("got %v, want ErrDateBlocked", err)
	}
}

func TestAvailableSlotsIdempotent(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	first, err := svc.AvailableSlots(ctx, monday)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	second, err := svc.AvailableSlots(ctx, monday)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("slot %d differs: %s vs %s", i, first[i], second[i])
		}
	}
}

func TestConcurrentReserveSameSlot(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Reserve(ctx, ReserveRequest{
				Date: monday, Start: mustTime(t, "11:00"), SlotCount: 1,
				Name: "Booker", Email: "booker@example.com",
			})
		}(i)
	}
	wg.Wait()

	// The same-slot dedup treats each retry as a replacement, so every call
	// can succeed, but exactly one pending row may survive. What must never
	// happen is two surviving holds.
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrSlotUnavailable) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded == 0 {
		t.Fatal("no reserve call succeeded")
	}

	active, err := svc.store.ActiveReservations(ctx, monday)
	if err != nil {
		t.Fatalf("ActiveReservations: %v", err)
	}
	holds := 0
	for _, r := range active {
		if r.StartTime.String() == "11:00" {
			holds++
		}
	}
	if holds != 1 {
		t.Fatalf("got %d holds on 11:00, want exactly 1", holds)
	}
}

func TestConcurrentReserveAgainstConfirmed(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	r, err := svc.Reserve(ctx, reserveReq(t, "11:00", 1))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := svc.Confirm(ctx, r.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Reserve(ctx, ReserveRequest{
				Date: monday, Start: mustTime(t, "11:00"), SlotCount: 1,
				Name: "Late", Email: "late@example.com",
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, ErrSlotUnavailable) {
			t.Errorf("call %d: got %v, want ErrSlotUnavailable", i, err)
		}
	}
}

func TestExternalBusySlotBlocked(t *testing.T) {
	busy := &fakeBusy{slots: []store.TimeOfDay{mustTime(t, "09:00")}}
	svc, _ := newTestService(t, busy)

	free, err := svc.AvailableSlots(context.Background(), monday)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	for _, s := range free {
		if s.String() == "09:00" {
			t.Error("externally busy slot 09:00 still available")
		}
	}
	if len(free) != 13 {
		t.Errorf("got %d free slots, want 13", len(free))
	}
}

func TestBusySourceFailureDegrades(t *testing.T) {
	busy := &fakeBusy{err: errors.New("feed unreachable")}
	svc, _ := newTestService(t, busy)

	free, err := svc.AvailableSlots(context.Background(), monday)
	if err != nil {
		t.Fatalf("AvailableSlots must not fail on feed errors: %v", err)
	}
	if len(free) != 14 {
		t.Errorf("got %d free slots, want 14", len(free))
	}
}

func TestConfirmTransitions(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	pub := &fakePublisher{}
	svc.events = pub

	r, err := svc.Reserve(ctx, reserveReq(t, "09:00", 1))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	if err := svc.Confirm(ctx, r.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	// Idempotent: a second confirm is a no-op.
	if err := svc.Confirm(ctx, r.ID); err != nil {
		t.Fatalf("second Confirm: %v", err)
	}
	if len(pub.subjects) != 1 {
		t.Errorf("got %d published events, want 1", len(pub.subjects))
	}

	if err := svc.Complete(ctx, r.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := svc.Confirm(ctx, r.ID); !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("confirm after complete: got %v, want ErrAlreadyCompleted", err)
	}
}

func TestConfirmCancelled(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	r, err := svc.Reserve(ctx, reserveReq(t, "09:00", 1))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := svc.Cancel(ctx, r.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := svc.Confirm(ctx, r.ID); !errors.Is(err, ErrAlreadyCancelled) {
		t.Errorf("got %v, want ErrAlreadyCancelled", err)
	}
}

func TestAbandonDeletesPendingOnly(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	r, err := svc.Reserve(ctx, reserveReq(t, "09:00", 1))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := svc.Abandon(ctx, r.ID); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if _, err := svc.Get(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound after abandon", err)
	}

	r2, err := svc.Reserve(ctx, reserveReq(t, "09:00", 1))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := svc.Confirm(ctx, r2.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if err := svc.Abandon(ctx, r2.ID); err != nil {
		t.Fatalf("Abandon confirmed: %v", err)
	}
	if _, err := svc.Get(ctx, r2.ID); err != nil {
		t.Errorf("confirmed reservation must survive Abandon: %v", err)
	}
}

// flipDuringGet commits a competing status transition right after the first
// snapshot is read, exposing the window between the read and the update.
type flipDuringGet struct {
	store.Store
	inner *store.MemoryStore
	to    string
	once  sync.Once
}

func (f *flipDuringGet) GetReservation(ctx context.Context, id uuid.UUID) (*store.Reservation, error) {
	r, err := f.Store.GetReservation(ctx, id)
	if err == nil {
		f.once.Do(func() {
			_ = f.inner.UpdateReservationStatus(ctx, id, r.Status, f.to)
		})
	}
	return r, err
}

func TestConfirmDoesNotResurrectCancelled(t *testing.T) {
	svc, st := newTestService(t, nil)
	ctx := context.Background()

	r, err := svc.Reserve(ctx, reserveReq(t, "09:00", 1))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	raced := *svc
	raced.store = &flipDuringGet{Store: st, inner: st, to: store.StatusCancelled}
	if err := raced.Confirm(ctx, r.ID); !errors.Is(err, ErrAlreadyCancelled) {
		t.Fatalf("got %v, want ErrAlreadyCancelled", err)
	}

	cur, err := st.GetReservation(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetReservation: %v", err)
	}
	if cur.Status != store.StatusCancelled {
		t.Errorf("status = %s, the concurrent cancellation must win", cur.Status)
	}
}

func TestCancelDoesNotClobberCompleted(t *testing.T) {
	svc, st := newTestService(t, nil)
	ctx := context.Background()

	r, err := svc.Reserve(ctx, reserveReq(t, "09:00", 1))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := svc.Confirm(ctx, r.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	raced := *svc
	raced.store = &flipDuringGet{Store: st, inner: st, to: store.StatusCompleted}
	if err := raced.Cancel(ctx, r.ID); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("got %v, want ErrAlreadyCompleted", err)
	}

	cur, err := st.GetReservation(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetReservation: %v", err)
	}
	if cur.Status != store.StatusCompleted {
		t.Errorf("status = %s, the concurrent completion must win", cur.Status)
	}
}

// duplicateOnCreate forces the unique-index path: every insert reports the
// constraint violation the partial index raises on a lost race.
type duplicateOnCreate struct {
	store.Store
}

func (d *duplicateOnCreate) InTx(ctx context.Context, fn func(store.Store) error) error {
	return d.Store.InTx(ctx, func(tx store.Store) error {
		return fn(&duplicateOnCreate{Store: tx})
	})
}

func (d *duplicateOnCreate) CreateReservation(ctx context.Context, r *store.Reservation) error {
	return fmt.Errorf("%w: reservations_date_start_active", store.ErrDuplicate)
}

func TestInsertRaceMapsToSlotUnavailable(t *testing.T) {
	svc, st := newTestService(t, nil)

	raced := *svc
	raced.store = &duplicateOnCreate{Store: st}

	_, err := raced.Reserve(context.Background(), reserveReq(t, "11:00", 1))
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("got %v, want ErrSlotUnavailable", err)
	}
	if got := ConflictingTime(err); got != "11:00" {
		t.Errorf("conflicting time = %q, want 11:00", got)
	}
}

func TestReserveWithCalendarBusySource(t *testing.T) {
	svc, st := newTestService(t, nil)
	ctx := context.Background()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cal, err := calendar.New(st, nil, calendar.NewMemorySyncState(time.Minute),
		config.CalendarConfig{TitlePrefix: "app ", Timezone: "UTC"}, 30*time.Minute, logger)
	if err != nil {
		t.Fatalf("calendar.New: %v", err)
	}
	svc.busy = cal

	err = st.SyncBusyIntervals(ctx, []store.BusyInterval{
		{ExternalID: "1", Start: monday.Add(10 * time.Hour), End: monday.Add(10*time.Hour + 30*time.Minute)},
	})
	if err != nil {
		t.Fatalf("seed intervals: %v", err)
	}

	// The calendar adapter reads busy intervals from the same store the
	// allocator transacts against.
	if _, err := svc.Reserve(ctx, reserveReq(t, "10:00", 1)); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("got %v, want ErrSlotUnavailable for the externally busy slot", err)
	}
	if _, err := svc.Reserve(ctx, reserveReq(t, "11:00", 1)); err != nil {
		t.Fatalf("Reserve on a free slot: %v", err)
	}
}

func TestAvailableDates(t *testing.T) {
	svc, _ := newTestService(t, nil)
	svc.now = func() time.Time { return time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC) }

	dates, err := svc.AvailableDates(context.Background(), 14)
	if err != nil {
		t.Fatalf("AvailableDates: %v", err)
	}
	// Only Mondays carry rules: 2026-09-07 and 2026-09-14 fall in the window.
	if len(dates) != 2 {
		t.Fatalf("got %d dates, want 2", len(dates))
	}
	if !dates[0].Equal(monday) {
		t.Errorf("first date = %s, want %s", dates[0], monday)
	}
}
