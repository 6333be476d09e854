package calendar

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/studiolegale/sld_backend/config"
	"github.com/studiolegale/sld_backend/internal/store"
	"github.com/studiolegale/sld_backend/pkg/ical"
)

type fakeFetcher struct {
	events []ical.Event
	err    error
	calls  int
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]ical.Event, error) {
	f.calls++
	return f.events, f.err
}

var testDay = time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, fetcher FeedFetcher, state SyncState) (*calendarService, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	if state == nil {
		state = NewMemorySyncState(10 * time.Minute)
	}
	cfg := config.CalendarConfig{
		TitlePrefix: "app ",
		Timezone:    "UTC",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := New(st, fetcher, state, cfg, 30*time.Minute, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cs := svc.(*calendarService)
	cs.now = func() time.Time { return time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC) }
	return cs, st
}

func TestSyncFiltersByTitlePrefix(t *testing.T) {
	fetcher := &fakeFetcher{events: []ical.Event{
		{UID: "1", Summary: "App Consulenza", Start: testDay.Add(10 * time.Hour), End: testDay.Add(11 * time.Hour)},
		{UID: "2", Summary: "Palestra", Start: testDay.Add(12 * time.Hour), End: testDay.Add(13 * time.Hour)},
		{UID: "3", Summary: "APP udienza", Start: testDay.Add(14 * time.Hour), End: testDay.Add(15 * time.Hour)},
	}}
	svc, st := newTestService(t, fetcher, nil)

	if !svc.Sync(context.Background(), true) {
		t.Fatal("Sync returned false")
	}
	intervals, err := st.BusyIntervals(context.Background(), testDay)
	if err != nil {
		t.Fatalf("BusyIntervals: %v", err)
	}
	if len(intervals) != 2 {
		t.Fatalf("got %d intervals, want 2 (prefix filter is case-insensitive)", len(intervals))
	}
}

func TestSyncRemovesVanishedEvents(t *testing.T) {
	fetcher := &fakeFetcher{events: []ical.Event{
		{UID: "keep", Summary: "app a", Start: testDay.Add(10 * time.Hour), End: testDay.Add(11 * time.Hour)},
		{UID: "drop", Summary: "app b", Start: testDay.Add(12 * time.Hour), End: testDay.Add(13 * time.Hour)},
	}}
	svc, st := newTestService(t, fetcher, nil)
	ctx := context.Background()

	svc.Sync(ctx, true)
	fetcher.events = fetcher.events[:1]
	svc.Sync(ctx, true)

	intervals, err := st.BusyIntervals(ctx, testDay)
	if err != nil {
		t.Fatalf("BusyIntervals: %v", err)
	}
	if len(intervals) != 1 || intervals[0].ExternalID != "keep" {
		t.Fatalf("got %+v, want only the surviving event", intervals)
	}
}

func TestSyncDebounce(t *testing.T) {
	fetcher := &fakeFetcher{}
	state := NewMemorySyncState(10 * time.Minute)
	svc, _ := newTestService(t, fetcher, state)
	ctx := context.Background()

	if !svc.Sync(ctx, false) {
		t.Fatal("first sync should run")
	}
	if svc.Sync(ctx, false) {
		t.Error("second sync within the TTL should be skipped")
	}
	if !svc.Sync(ctx, true) {
		t.Error("forced sync must bypass the debounce")
	}
	if fetcher.calls != 2 {
		t.Errorf("fetcher called %d times, want 2", fetcher.calls)
	}
}

func TestSyncFeedFailureIsSoft(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	svc, _ := newTestService(t, fetcher, nil)

	if svc.Sync(context.Background(), true) {
		t.Error("failed sync must report false, not panic or propagate")
	}
}

func TestSyncFailureReleasesDebounceWindow(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	state := NewMemorySyncState(10 * time.Minute)
	svc, _ := newTestService(t, fetcher, state)
	ctx := context.Background()

	if svc.Sync(ctx, false) {
		t.Fatal("failed sync must report false")
	}

	// The failed attempt must not consume the window; the next caller
	// retries immediately once the feed recovers.
	fetcher.err = nil
	if !svc.Sync(ctx, false) {
		t.Error("sync after a failed fetch should run without waiting out the TTL")
	}
	if svc.Sync(ctx, false) {
		t.Error("successful sync must claim the window again")
	}
}

func TestNormalizeMissingEnd(t *testing.T) {
	svc, _ := newTestService(t, &fakeFetcher{}, nil)

	out := svc.normalize([]ical.Event{
		{UID: "1", Summary: "app x", Start: testDay.Add(10 * time.Hour)},
	})
	if len(out) != 1 {
		t.Fatalf("got %d intervals, want 1", len(out))
	}
	if got := out[0].End.Sub(out[0].Start); got != 30*time.Minute {
		t.Errorf("missing end defaulted to %v, want slot duration", got)
	}
}

func TestNormalizeAllDay(t *testing.T) {
	svc, _ := newTestService(t, &fakeFetcher{}, nil)

	out := svc.normalize([]ical.Event{
		{UID: "1", Summary: "app ferie", Start: testDay, AllDay: true},
	})
	if len(out) != 1 {
		t.Fatalf("got %d intervals, want 1", len(out))
	}
	if got := out[0].End.Sub(out[0].Start); got != 24*time.Hour {
		t.Errorf("all-day interval spans %v, want 24h", got)
	}
}

func TestNormalizeDropsPastEvents(t *testing.T) {
	svc, _ := newTestService(t, &fakeFetcher{}, nil)

	past := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	out := svc.normalize([]ical.Event{
		{UID: "old", Summary: "app vecchio", Start: past, End: past.Add(time.Hour)},
	})
	if len(out) != 0 {
		t.Errorf("got %d intervals, want 0 for events ending before today", len(out))
	}
}

func TestNormalizeKeepsEventsEndingEarlyLocalToday(t *testing.T) {
	st := store.NewMemoryStore()
	cfg := config.CalendarConfig{TitlePrefix: "app ", Timezone: "Europe/Rome"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := New(st, &fakeFetcher{}, NewMemorySyncState(time.Minute), cfg, 30*time.Minute, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cs := svc.(*calendarService)
	// 10:00 CEST on 2026-09-01.
	cs.now = func() time.Time { return time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC) }

	// Ended at 00:30 local today, which is 22:30 UTC the previous day. The
	// cutoff is local midnight, so the event is still "today".
	end := time.Date(2026, 8, 31, 22, 30, 0, 0, time.UTC)
	out := cs.normalize([]ical.Event{
		{UID: "1", Summary: "app notturno", Start: end.Add(-time.Hour), End: end},
	})
	if len(out) != 1 {
		t.Fatalf("got %d intervals, want 1 (event ends today in local time)", len(out))
	}
}

func TestBlockedSlotsAlignment(t *testing.T) {
	svc, st := newTestService(t, &fakeFetcher{}, nil)
	ctx := context.Background()

	// 10:45-11:10 must block the 10:30 slot (containing the start) and the
	// 11:00 slot (overlapped).
	err := st.SyncBusyIntervals(ctx, []store.BusyInterval{
		{ExternalID: "1", Start: testDay.Add(10*time.Hour + 45*time.Minute), End: testDay.Add(11*time.Hour + 10*time.Minute)},
	})
	if err != nil {
		t.Fatalf("seed intervals: %v", err)
	}

	slots, err := svc.BlockedSlots(ctx, testDay)
	if err != nil {
		t.Fatalf("BlockedSlots: %v", err)
	}
	want := []string{"10:30", "11:00"}
	if len(slots) != len(want) {
		t.Fatalf("got %v, want %v", slots, want)
	}
	for i, w := range want {
		if slots[i].String() != w {
			t.Errorf("slot %d = %s, want %s", i, slots[i], w)
		}
	}
}

func TestBlockedSlotsExactBoundary(t *testing.T) {
	svc, st := newTestService(t, &fakeFetcher{}, nil)
	ctx := context.Background()

	err := st.SyncBusyIntervals(ctx, []store.BusyInterval{
		{ExternalID: "1", Start: testDay.Add(9 * time.Hour), End: testDay.Add(10 * time.Hour)},
	})
	if err != nil {
		t.Fatalf("seed intervals: %v", err)
	}

	slots, err := svc.BlockedSlots(ctx, testDay)
	if err != nil {
		t.Fatalf("BlockedSlots: %v", err)
	}
	want := []string{"09:00", "09:30"}
	if len(slots) != len(want) {
		t.Fatalf("got %v, want %v", slots, want)
	}
}

func TestMemorySyncStateTTL(t *testing.T) {
	state := NewMemorySyncState(10 * time.Minute)
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	state.now = func() time.Time { return now }

	due, _ := state.Due(context.Background())
	if !due {
		t.Fatal("first window must be due")
	}
	due, _ = state.Due(context.Background())
	if due {
		t.Fatal("window inside TTL must not be due")
	}

	now = now.Add(11 * time.Minute)
	due, _ = state.Due(context.Background())
	if !due {
		t.Fatal("window after TTL must be due again")
	}
}
