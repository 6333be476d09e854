// Package notification composes and sends booking confirmation emails with
// a calendar invite attached. It runs strictly after a reservation is
// confirmed; failures here never touch the reservation.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/studiolegale/sld_backend/config"
	"github.com/studiolegale/sld_backend/internal/store"
	"github.com/studiolegale/sld_backend/pkg/email"
	"github.com/studiolegale/sld_backend/pkg/ical"
)

type Service interface {
	// SendConfirmation emails the customer and the studio about a confirmed
	// reservation, attaching the .ics invite.
	SendConfirmation(ctx context.Context, r *store.Reservation) error
}

type notificationService struct {
	mailer       *email.Client
	studio       config.StudioConfig
	slotDuration time.Duration
	location     *time.Location
	logger       *slog.Logger
}

func New(mailer *email.Client, studio config.StudioConfig, booking config.BookingConfig, timezone string, logger *slog.Logger) (Service, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load notification timezone %q: %w", timezone, err)
	}
	return &notificationService{
		mailer:       mailer,
		studio:       studio,
		slotDuration: booking.SlotDuration(),
		location:     loc,
		logger:       logger,
	}, nil
}

func (s *notificationService) SendConfirmation(ctx context.Context, r *store.Reservation) error {
	start := r.StartTime.At(r.Date, s.location)
	end := start.Add(time.Duration(r.SlotCount) * s.slotDuration)

	invite := ical.Invite{
		UID:            r.ID.String() + "@" + s.studio.Website,
		Summary:        "Appuntamento " + s.studio.Name,
		Description:    fmt.Sprintf("Appuntamento con %s", s.studio.LawyerName),
		Location:       s.studio.Address,
		URL:            s.studio.MapsURL,
		Organizer:      s.studio.Email,
		Start:          start,
		End:            end,
		ReminderBefore: time.Hour,
	}

	attachment := email.Attachment{
		Filename:    "appuntamento.ics",
		ContentType: "text/calendar",
		Data:        invite.Encode(),
	}

	when := fmt.Sprintf("%s alle %s", start.Format("02/01/2006"), r.StartTime)
	customer := email.Message{
		To:      []string{r.Email},
		Subject: fmt.Sprintf("Conferma appuntamento %s", start.Format("02/01/2006")),
		TextBody: fmt.Sprintf(
			"Gentile %s,\n\nil Suo appuntamento presso %s è confermato per il %s.\n\nIndirizzo: %s\nTelefono: %s\n\nIn allegato l'invito per il Suo calendario.\n\n%s",
			r.Name, s.studio.Name, when, s.studio.Address, s.studio.Phone, s.studio.LawyerName),
		Attachments: []email.Attachment{attachment},
	}
	if err := s.mailer.Send(ctx, customer); err != nil {
		return fmt.Errorf("send customer confirmation: %w", err)
	}

	if s.studio.Email != "" {
		staff := email.Message{
			To:      []string{s.studio.Email},
			Subject: fmt.Sprintf("Nuovo appuntamento %s %s", start.Format("02/01/2006"), r.StartTime),
			TextBody: fmt.Sprintf(
				"Nuovo appuntamento confermato.\n\nCliente: %s\nEmail: %s\nTelefono: %s\nData: %s\nDurata: %d slot\nNote: %s",
				r.Name, r.Email, r.Phone, when, r.SlotCount, r.Notes),
			Attachments: []email.Attachment{attachment},
		}
		if err := s.mailer.Send(ctx, staff); err != nil {
			// The customer already has their confirmation.
			s.logger.Error("send staff copy", "reservation_id", r.ID, "error", err)
		}
	}
	return nil
}
