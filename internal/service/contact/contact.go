// Package contact persists website contact-form submissions and notifies
// the studio inbox.
package contact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/studiolegale/sld_backend/config"
	"github.com/studiolegale/sld_backend/internal/store"
	"github.com/studiolegale/sld_backend/pkg/email"
	"github.com/studiolegale/sld_backend/pkg/util/phone"
)

var ErrInvalidSubmission = errors.New("contact: invalid submission")

type SubmitRequest struct {
	Name    string
	Email   string
	Phone   string
	Message string
}

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*store.ContactMessage, error)
}

type contactService struct {
	store  store.Store
	mailer *email.Client
	studio config.StudioConfig
	logger *slog.Logger
}

func New(st store.Store, mailer *email.Client, studio config.StudioConfig, logger *slog.Logger) Service {
	return &contactService{store: st, mailer: mailer, studio: studio, logger: logger}
}

func (s *contactService) Submit(ctx context.Context, req SubmitRequest) (*store.ContactMessage, error) {
	name := strings.TrimSpace(req.Name)
	addr := strings.TrimSpace(req.Email)
	body := strings.TrimSpace(req.Message)
	if name == "" || addr == "" || body == "" {
		return nil, fmt.Errorf("%w: name, email and message are required", ErrInvalidSubmission)
	}

	normalized := strings.TrimSpace(req.Phone)
	if normalized != "" {
		if e164, err := phone.Normalize(normalized, s.studio.PhoneRegion); err == nil {
			normalized = e164
		}
		// An unparseable phone is kept verbatim; the message itself is what
		// matters.
	}

	msg := &store.ContactMessage{
		Name:    name,
		Email:   addr,
		Phone:   normalized,
		Message: body,
	}
	if err := s.store.CreateContactMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("store contact message: %w", err)
	}

	s.notifyStudio(ctx, msg)
	return msg, nil
}

// notifyStudio forwards the submission to the studio inbox. Failures are
// logged only; the submission is already stored.
func (s *contactService) notifyStudio(ctx context.Context, msg *store.ContactMessage) {
	if s.mailer == nil || s.studio.Email == "" {
		return
	}
	err := s.mailer.Send(ctx, email.Message{
		To:      []string{s.studio.Email},
		Subject: "Nuovo messaggio dal sito: " + msg.Name,
		TextBody: fmt.Sprintf("Da: %s <%s>\nTelefono: %s\n\n%s",
			msg.Name, msg.Email, msg.Phone, msg.Message),
	})
	if err != nil && !errors.Is(err, email.ErrDisabled{}) {
		s.logger.Error("forward contact message", "contact_id", msg.ID, "error", err)
	}
}
