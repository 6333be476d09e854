package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by service tests. InTx serializes
// writers under one mutex and restores a snapshot on error, which matches
// the transactional guarantees the services rely on.
type MemoryStore struct {
	mu sync.Mutex

	rules        []AvailabilityRule
	blocked      map[string]BlockedDate
	busy         map[string]BusyInterval
	reservations map[uuid.UUID]Reservation
	contacts     map[uuid.UUID]ContactMessage

	nextRuleID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blocked:      make(map[string]BlockedDate),
		busy:         make(map[string]BusyInterval),
		reservations: make(map[uuid.UUID]Reservation),
		contacts:     make(map[uuid.UUID]ContactMessage),
	}
}

// AddRule seeds an availability rule. Test helper.
func (s *MemoryStore) AddRule(weekday time.Weekday, start, end TimeOfDay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRuleID++
	s.rules = append(s.rules, AvailabilityRule{
		ID: s.nextRuleID, Weekday: weekday, Start: start, End: end, Active: true,
	})
}

func dateKey(t time.Time) string {
	return Date(t).Format("2006-01-02")
}

func (s *MemoryStore) snapshot() *MemoryStore {
	cp := NewMemoryStore()
	cp.rules = append([]AvailabilityRule(nil), s.rules...)
	for k, v := range s.blocked {
		cp.blocked[k] = v
	}
	for k, v := range s.busy {
		cp.busy[k] = v
	}
	for k, v := range s.reservations {
		cp.reservations[k] = v
	}
	for k, v := range s.contacts {
		cp.contacts[k] = v
	}
	cp.nextRuleID = s.nextRuleID
	return cp
}

func (s *MemoryStore) restore(from *MemoryStore) {
	s.rules = from.rules
	s.blocked = from.blocked
	s.busy = from.busy
	s.reservations = from.reservations
	s.contacts = from.contacts
	s.nextRuleID = from.nextRuleID
}

// InTx holds the store mutex for the whole callback. fn must operate only
// on the Store it is handed; calling back into the parent MemoryStore, even
// through a collaborator, deadlocks.
func (s *MemoryStore) InTx(ctx context.Context, fn func(Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot()
	if err := fn(&txMemoryStore{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *MemoryStore) ActiveRules(ctx context.Context, weekday time.Weekday) ([]AvailabilityRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeRules(weekday), nil
}

func (s *MemoryStore) activeRules(weekday time.Weekday) []AvailabilityRule {
	var out []AvailabilityRule
	for _, r := range s.rules {
		if r.Weekday == weekday && r.Active {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func (s *MemoryStore) IsDateBlocked(ctx context.Context, date time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blocked[dateKey(date)]
	return ok, nil
}

func (s *MemoryStore) UpsertBlockedDate(ctx context.Context, b BlockedDate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertBlockedDate(b)
	return nil
}

func (s *MemoryStore) upsertBlockedDate(b BlockedDate) {
	b.Date = Date(b.Date)
	s.blocked[dateKey(b.Date)] = b
}

func (s *MemoryStore) BusyIntervals(ctx context.Context, date time.Time) ([]BusyInterval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busyIntervals(date), nil
}

func (s *MemoryStore) busyIntervals(date time.Time) []BusyInterval {
	day := Date(date)
	next := day.AddDate(0, 0, 1)
	var out []BusyInterval
	for _, b := range s.busy {
		if b.Start.Before(next) && b.End.After(day) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func (s *MemoryStore) SyncBusyIntervals(ctx context.Context, intervals []BusyInterval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncBusyIntervals(intervals)
	return nil
}

func (s *MemoryStore) syncBusyIntervals(intervals []BusyInterval) {
	keep := make(map[string]bool, len(intervals))
	for _, iv := range intervals {
		keep[iv.ExternalID] = true
		s.busy[iv.ExternalID] = iv
	}
	for id := range s.busy {
		if !keep[id] {
			delete(s.busy, id)
		}
	}
}

func (s *MemoryStore) ActiveReservations(ctx context.Context, date time.Time) ([]Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeReservations(date), nil
}

func (s *MemoryStore) activeReservations(date time.Time) []Reservation {
	day := Date(date)
	var out []Reservation
	for _, r := range s.reservations {
		if r.Date.Equal(day) && r.Status != StatusCancelled {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out
}

func (s *MemoryStore) CreateReservation(ctx context.Context, r *Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createReservation(r)
}

func (s *MemoryStore) createReservation(r *Reservation) error {
	for _, existing := range s.reservations {
		if existing.Date.Equal(Date(r.Date)) && existing.StartTime == r.StartTime &&
			existing.Status != StatusCancelled {
			return fmt.Errorf("%w: reservations_date_start_active", ErrDuplicate)
		}
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.Date = Date(r.Date)
	s.reservations[r.ID] = *r
	return nil
}

func (s *MemoryStore) GetReservation(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getReservation(id)
}

func (s *MemoryStore) getReservation(id uuid.UUID) (*Reservation, error) {
	r, ok := s.reservations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *MemoryStore) GetReservationByPaymentRef(ctx context.Context, ref string) (*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getReservationByPaymentRef(ref)
}

func (s *MemoryStore) getReservationByPaymentRef(ref string) (*Reservation, error) {
	for _, r := range s.reservations {
		if r.PaymentRef == ref && ref != "" {
			cp := r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateReservationStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateReservationStatus(id, from, to)
}

func (s *MemoryStore) updateReservationStatus(id uuid.UUID, from, to string) error {
	r, ok := s.reservations[id]
	if !ok || r.Status != from {
		return ErrNotFound
	}
	r.Status = to
	s.reservations[id] = r
	return nil
}

func (s *MemoryStore) SetReservationPayment(ctx context.Context, id uuid.UUID, method, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setReservationPayment(id, method, ref)
}

func (s *MemoryStore) setReservationPayment(id uuid.UUID, method, ref string) error {
	r, ok := s.reservations[id]
	if !ok {
		return ErrNotFound
	}
	r.PaymentMethod = method
	r.PaymentRef = ref
	s.reservations[id] = r
	return nil
}

func (s *MemoryStore) DeleteReservation(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteReservation(id)
}

func (s *MemoryStore) deleteReservation(id uuid.UUID) error {
	if _, ok := s.reservations[id]; !ok {
		return ErrNotFound
	}
	delete(s.reservations, id)
	return nil
}

func (s *MemoryStore) DeleteStalePending(ctx context.Context, date, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteStalePending(date, cutoff), nil
}

func (s *MemoryStore) deleteStalePending(date, cutoff time.Time) int64 {
	day := Date(date)
	var n int64
	for id, r := range s.reservations {
		if r.Date.Equal(day) && r.Status == StatusPending && r.CreatedAt.Before(cutoff) {
			delete(s.reservations, id)
			n++
		}
	}
	return n
}

func (s *MemoryStore) DeletePendingAt(ctx context.Context, date time.Time, start TimeOfDay) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletePendingAt(date, start), nil
}

func (s *MemoryStore) deletePendingAt(date time.Time, start TimeOfDay) int64 {
	day := Date(date)
	var n int64
	for id, r := range s.reservations {
		if r.Date.Equal(day) && r.StartTime == start && r.Status == StatusPending {
			delete(s.reservations, id)
			n++
		}
	}
	return n
}

func (s *MemoryStore) CreateContactMessage(ctx context.Context, m *ContactMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createContactMessage(m)
}

func (s *MemoryStore) createContactMessage(m *ContactMessage) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.contacts[m.ID] = *m
	return nil
}

// txMemoryStore is the view handed to InTx callbacks. The parent mutex is
// already held, so it calls the unlocked variants.
type txMemoryStore struct {
	s *MemoryStore
}

func (t *txMemoryStore) InTx(ctx context.Context, fn func(Store) error) error {
	return fn(t)
}

func (t *txMemoryStore) ActiveRules(ctx context.Context, weekday time.Weekday) ([]AvailabilityRule, error) {
	return t.s.activeRules(weekday), nil
}

func (t *txMemoryStore) IsDateBlocked(ctx context.Context, date time.Time) (bool, error) {
	_, ok := t.s.blocked[dateKey(date)]
	return ok, nil
}

func (t *txMemoryStore) UpsertBlockedDate(ctx context.Context, b BlockedDate) error {
	t.s.upsertBlockedDate(b)
	return nil
}

func (t *txMemoryStore) BusyIntervals(ctx context.Context, date time.Time) ([]BusyInterval, error) {
	return t.s.busyIntervals(date), nil
}

func (t *txMemoryStore) SyncBusyIntervals(ctx context.Context, intervals []BusyInterval) error {
	t.s.syncBusyIntervals(intervals)
	return nil
}

func (t *txMemoryStore) ActiveReservations(ctx context.Context, date time.Time) ([]Reservation, error) {
	return t.s.activeReservations(date), nil
}

func (t *txMemoryStore) CreateReservation(ctx context.Context, r *Reservation) error {
	return t.s.createReservation(r)
}

func (t *txMemoryStore) GetReservation(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	return t.s.getReservation(id)
}

func (t *txMemoryStore) GetReservationByPaymentRef(ctx context.Context, ref string) (*Reservation, error) {
	return t.s.getReservationByPaymentRef(ref)
}

func (t *txMemoryStore) UpdateReservationStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	return t.s.updateReservationStatus(id, from, to)
}

func (t *txMemoryStore) SetReservationPayment(ctx context.Context, id uuid.UUID, method, ref string) error {
	return t.s.setReservationPayment(id, method, ref)
}

func (t *txMemoryStore) DeleteReservation(ctx context.Context, id uuid.UUID) error {
	return t.s.deleteReservation(id)
}

func (t *txMemoryStore) DeleteStalePending(ctx context.Context, date, cutoff time.Time) (int64, error) {
	return t.s.deleteStalePending(date, cutoff), nil
}

func (t *txMemoryStore) DeletePendingAt(ctx context.Context, date time.Time, start TimeOfDay) (int64, error) {
	return t.s.deletePendingAt(date, start), nil
}

func (t *txMemoryStore) CreateContactMessage(ctx context.Context, m *ContactMessage) error {
	return t.s.createContactMessage(m)
}
