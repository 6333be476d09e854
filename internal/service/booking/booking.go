// Package booking implements the appointment availability and slot
// allocation engine: lattice generation, occupancy resolution, availability
// queries and the transactional reservation allocator.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/studiolegale/sld_backend/config"
	"github.com/studiolegale/sld_backend/internal/store"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type ReserveRequest struct {
	Date      time.Time
	Start     store.TimeOfDay
	SlotCount int
	Name      string
	Email     string
	Phone     string
	Notes     string
}

// Event is the payload published on booking lifecycle subjects.
type Event struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	Date          string    `json:"date"`
	Start         string    `json:"start"`
	SlotCount     int       `json:"slot_count"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
}

const (
	SubjectConfirmed = "sld.booking.confirmed"
	SubjectCancelled = "sld.booking.cancelled"
)

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// BusySource yields externally blocked slot start-times for a date. The
// calendar feed adapter implements it; tests substitute a fake.
type BusySource interface {
	BlockedSlots(ctx context.Context, date time.Time) ([]store.TimeOfDay, error)
}

// Publisher pushes lifecycle events to the message bus. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

type Service interface {
	Lattice(ctx context.Context, date time.Time) ([]store.TimeOfDay, error)
	AvailableSlots(ctx context.Context, date time.Time) ([]store.TimeOfDay, error)
	AvailableDates(ctx context.Context, days int) ([]time.Time, error)

	Reserve(ctx context.Context, req ReserveRequest) (*store.Reservation, error)
	Confirm(ctx context.Context, id uuid.UUID) error
	Cancel(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*store.Reservation, error)
	GetByPaymentRef(ctx context.Context, ref string) (*store.Reservation, error)
	SetPayment(ctx context.Context, id uuid.UUID, method, ref string) error
	Abandon(ctx context.Context, id uuid.UUID) error
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type bookingService struct {
	store  store.Store
	busy   BusySource
	events Publisher
	logger *slog.Logger

	slotDuration   time.Duration
	maxSlots       int
	pendingTimeout time.Duration
	closedWeekday  time.Weekday
	bookableDays   int
	priceCents     int64

	now func() time.Time
}

func New(st store.Store, busy BusySource, events Publisher, cfg config.BookingConfig, logger *slog.Logger) Service {
	return &bookingService{
		store:          st,
		busy:           busy,
		events:         events,
		logger:         logger,
		slotDuration:   cfg.SlotDuration(),
		maxSlots:       cfg.MaxSlotsPerBooking,
		pendingTimeout: cfg.PendingTimeout(),
		closedWeekday:  time.Weekday(cfg.ClosedWeekday),
		bookableDays:   cfg.BookableDays,
		priceCents:     int64(cfg.PriceCents),
		now:            time.Now,
	}
}

// Reserve validates the requested span and creates a pending reservation.
// Eviction of stale pending rows, the same-slot dedup, the availability
// re-check and the insert all run inside one transaction; the partial unique
// index on (date, start_time) converts a lost race into ErrSlotUnavailable.
func (s *bookingService) Reserve(ctx context.Context, req ReserveRequest) (*store.Reservation, error) {
	if req.SlotCount < 1 || req.SlotCount > s.maxSlots {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrInvalidSlotCount, req.SlotCount, s.maxSlots)
	}

	date := store.Date(req.Date)
	required := make([]store.TimeOfDay, 0, req.SlotCount)
	for k := 0; k < req.SlotCount; k++ {
		required = append(required, req.Start.Add(time.Duration(k)*s.slotDuration))
	}

	blocked, err := s.store.IsDateBlocked(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("check blocked date: %w", err)
	}
	if blocked {
		return nil, ErrDateBlocked
	}

	reservation := &store.Reservation{
		ID:          uuid.New(),
		Date:        date,
		StartTime:   req.Start,
		SlotCount:   req.SlotCount,
		Status:      store.StatusPending,
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		Notes:       req.Notes,
		AmountCents: s.priceCents * int64(req.SlotCount),
		CreatedAt:   s.now().UTC(),
	}

	// The feed adapter may hit the store or the network, so the external
	// busy set is resolved before the transaction opens.
	busy := s.externalBusy(ctx, date)

	err = s.store.InTx(ctx, func(tx store.Store) error {
		cutoff := s.now().Add(-s.pendingTimeout)
		if _, err := tx.DeleteStalePending(ctx, date, cutoff); err != nil {
			return err
		}

		// A resubmission from the same checkout flow replaces its earlier
		// hold instead of colliding with it.
		if _, err := tx.DeletePendingAt(ctx, date, req.Start); err != nil {
			return err
		}

		free, err := s.availableSlots(ctx, tx, date, busy)
		if err != nil {
			return err
		}
		freeSet := make(map[store.TimeOfDay]bool, len(free))
		for _, t := range free {
			freeSet[t] = true
		}
		for _, t := range required {
			if !freeSet[t] {
				return unavailable(t)
			}
		}

		// Re-check against confirmed rows covers the window between the
		// availability snapshot and the insert for non-first slots.
		active, err := tx.ActiveReservations(ctx, date)
		if err != nil {
			return err
		}
		confirmed := make(map[store.TimeOfDay]bool)
		for _, r := range active {
			if r.Status != store.StatusConfirmed {
				continue
			}
			for _, t := range r.Slots(s.slotDuration) {
				confirmed[t] = true
			}
		}
		for _, t := range required {
			if confirmed[t] {
				return unavailable(t)
			}
		}

		if err := tx.CreateReservation(ctx, reservation); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return unavailable(req.Start)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("reservation created",
		"reservation_id", reservation.ID,
		"date", date.Format("2006-01-02"),
		"start", req.Start.String(),
		"slot_count", req.SlotCount)
	return reservation, nil
}

// Confirm transitions pending to confirmed and publishes the confirmation
// event. Confirming an already-confirmed reservation is a no-op. The update
// is conditional on the snapshotted status; a transition that commits in
// between makes it a no-op and the re-read decides the outcome.
func (s *bookingService) Confirm(ctx context.Context, id uuid.UUID) error {
	for {
		r, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		switch r.Status {
		case store.StatusConfirmed:
			return nil
		case store.StatusCancelled:
			return ErrAlreadyCancelled
		case store.StatusCompleted:
			return ErrAlreadyCompleted
		}

		err = s.store.UpdateReservationStatus(ctx, id, r.Status, store.StatusConfirmed)
		if errors.Is(err, store.ErrNotFound) {
			// Lost the race; re-read and map the winner's state.
			continue
		}
		if err != nil {
			return fmt.Errorf("confirm reservation: %w", err)
		}

		s.publish(SubjectConfirmed, r)
		s.logger.Info("reservation confirmed", "reservation_id", id)
		return nil
	}
}

// Cancel transitions pending or confirmed to cancelled, freeing the slots.
func (s *bookingService) Cancel(ctx context.Context, id uuid.UUID) error {
	for {
		r, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		switch r.Status {
		case store.StatusCancelled:
			return nil
		case store.StatusCompleted:
			return ErrAlreadyCompleted
		}

		err = s.store.UpdateReservationStatus(ctx, id, r.Status, store.StatusCancelled)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("cancel reservation: %w", err)
		}

		s.publish(SubjectCancelled, r)
		s.logger.Info("reservation cancelled", "reservation_id", id)
		return nil
	}
}

// Complete transitions confirmed to completed.
func (s *bookingService) Complete(ctx context.Context, id uuid.UUID) error {
	for {
		r, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		switch r.Status {
		case store.StatusCompleted:
			return nil
		case store.StatusCancelled:
			return ErrAlreadyCancelled
		case store.StatusPending:
			return fmt.Errorf("%w: cannot complete a pending reservation", ErrNotFound)
		}

		err = s.store.UpdateReservationStatus(ctx, id, store.StatusConfirmed, store.StatusCompleted)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("complete reservation: %w", err)
		}
		return nil
	}
}

func (s *bookingService) Get(ctx context.Context, id uuid.UUID) (*store.Reservation, error) {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return r, nil
}

func (s *bookingService) GetByPaymentRef(ctx context.Context, ref string) (*store.Reservation, error) {
	r, err := s.store.GetReservationByPaymentRef(ctx, ref)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get reservation by payment ref: %w", err)
	}
	return r, nil
}

func (s *bookingService) SetPayment(ctx context.Context, id uuid.UUID, method, ref string) error {
	if err := s.store.SetReservationPayment(ctx, id, method, ref); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("set reservation payment: %w", err)
	}
	return nil
}

// Abandon deletes a pending reservation whose checkout failed before any
// payment was created. Non-pending rows are left untouched.
func (s *bookingService) Abandon(ctx context.Context, id uuid.UUID) error {
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != store.StatusPending {
		return nil
	}
	if err := s.store.DeleteReservation(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("abandon reservation: %w", err)
	}
	return nil
}

// publish sends a lifecycle event; failures are logged, never propagated.
func (s *bookingService) publish(subject string, r *store.Reservation) {
	if s.events == nil {
		return
	}
	payload, err := json.Marshal(Event{
		ReservationID: r.ID,
		Date:          r.Date.Format("2006-01-02"),
		Start:         r.StartTime.String(),
		SlotCount:     r.SlotCount,
		Name:          r.Name,
		Email:         r.Email,
	})
	if err != nil {
		s.logger.Error("marshal booking event", "error", err)
		return
	}
	if err := s.events.Publish(subject+"."+r.ID.String(), payload); err != nil {
		s.logger.Error("publish booking event", "subject", subject, "error", err)
	}
}
