package booking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/studiolegale/sld_backend/internal/store"
)

// Lattice enumerates the raw grid of candidate slot start-times for a date:
// every active rule window for the weekday walked in slot-duration steps.
// A blocked date or the closed weekday yields an empty lattice.
func (s *bookingService) Lattice(ctx context.Context, date time.Time) ([]store.TimeOfDay, error) {
	return s.lattice(ctx, s.store, date)
}

func (s *bookingService) lattice(ctx context.Context, st store.Store, date time.Time) ([]store.TimeOfDay, error) {
	date = store.Date(date)
	if date.Weekday() == s.closedWeekday {
		return nil, nil
	}

	blocked, err := st.IsDateBlocked(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("check blocked date: %w", err)
	}
	if blocked {
		return nil, nil
	}

	rules, err := st.ActiveRules(ctx, date.Weekday())
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	seen := make(map[store.TimeOfDay]bool)
	var out []store.TimeOfDay
	for _, rule := range rules {
		for t := rule.Start; t.Add(s.slotDuration) <= rule.End; t = t.Add(s.slotDuration) {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// externalBusy resolves the externally blocked slots for a date. Failures
// degrade to "no busy intervals"; the feed must never take availability
// down with it. Resolved outside any store transaction so the feed adapter
// is free to hit the store or the network.
func (s *bookingService) externalBusy(ctx context.Context, date time.Time) map[store.TimeOfDay]bool {
	if s.busy == nil {
		return nil
	}
	date = store.Date(date)
	blocked, err := s.busy.BlockedSlots(ctx, date)
	if err != nil {
		s.logger.Warn("calendar busy slots unavailable",
			"date", date.Format("2006-01-02"), "error", err)
		return nil
	}
	out := make(map[store.TimeOfDay]bool, len(blocked))
	for _, t := range blocked {
		out[t] = true
	}
	return out
}

// occupiedSlots unions slots held by non-cancelled reservations with the
// pre-resolved external busy set.
func (s *bookingService) occupiedSlots(ctx context.Context, st store.Store, date time.Time, busy map[store.TimeOfDay]bool) (map[store.TimeOfDay]bool, error) {
	occupied := make(map[store.TimeOfDay]bool)

	reservations, err := st.ActiveReservations(ctx, store.Date(date))
	if err != nil {
		return nil, fmt.Errorf("load reservations: %w", err)
	}
	for _, r := range reservations {
		for _, t := range r.Slots(s.slotDuration) {
			occupied[t] = true
		}
	}

	for t := range busy {
		occupied[t] = true
	}
	return occupied, nil
}

// AvailableSlots returns the lattice minus occupied slots, ascending.
func (s *bookingService) AvailableSlots(ctx context.Context, date time.Time) ([]store.TimeOfDay, error) {
	return s.availableSlots(ctx, s.store, date, s.externalBusy(ctx, date))
}

func (s *bookingService) availableSlots(ctx context.Context, st store.Store, date time.Time, busy map[store.TimeOfDay]bool) ([]store.TimeOfDay, error) {
	lattice, err := s.lattice(ctx, st, date)
	if err != nil {
		return nil, err
	}
	if len(lattice) == 0 {
		return []store.TimeOfDay{}, nil
	}

	occupied, err := s.occupiedSlots(ctx, st, date, busy)
	if err != nil {
		return nil, err
	}

	free := make([]store.TimeOfDay, 0, len(lattice))
	for _, t := range lattice {
		if !occupied[t] {
			free = append(free, t)
		}
	}
	return free, nil
}

// AvailableDates scans the next `days` calendar days starting tomorrow and
// returns those with at least one free slot.
func (s *bookingService) AvailableDates(ctx context.Context, days int) ([]time.Time, error) {
	if days <= 0 || days > s.bookableDays {
		days = s.bookableDays
	}

	start := store.Date(s.now()).AddDate(0, 0, 1)
	var out []time.Time
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i)
		free, err := s.AvailableSlots(ctx, date)
		if err != nil {
			return nil, err
		}
		if len(free) > 0 {
			out = append(out, date)
		}
	}
	return out, nil
}
