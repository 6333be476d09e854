// Package payment models the checkout providers as explicit variants behind
// one Provider interface, selected by a factory keyed on configuration.
package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/studiolegale/sld_backend/config"
	"github.com/studiolegale/sld_backend/pkg/paypal"
	"github.com/studiolegale/sld_backend/pkg/stripe"
)

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type CreateRequest struct {
	ReservationID uuid.UUID
	AmountCents   int64
	Description   string
	CustomerEmail string
}

// Checkout is what the handler needs to send the client onward: where to
// redirect and the reference the confirmation path will look the
// reservation up by.
type Checkout struct {
	RedirectURL string
	Reference   string
}

// ---------------------------------------------------------------------------
// Provider variants
// ---------------------------------------------------------------------------

type Provider interface {
	Name() string
	Create(ctx context.Context, req CreateRequest) (*Checkout, error)
}

// demoProvider skips the gateway entirely and redirects straight to the
// success URL. Used for local development and demos.
type demoProvider struct {
	successURL string
}

func (p *demoProvider) Name() string { return "demo" }

func (p *demoProvider) Create(ctx context.Context, req CreateRequest) (*Checkout, error) {
	ref := "demo-" + req.ReservationID.String()
	sep := "?"
	if strings.Contains(p.successURL, "?") {
		sep = "&"
	}
	return &Checkout{
		RedirectURL: p.successURL + sep + "ref=" + ref,
		Reference:   ref,
	}, nil
}

type stripeProvider struct {
	client     *stripe.Client
	currency   string
	successURL string
	cancelURL  string
}

func (p *stripeProvider) Name() string { return "stripe" }

func (p *stripeProvider) Create(ctx context.Context, req CreateRequest) (*Checkout, error) {
	session, err := p.client.CreateCheckoutSession(ctx, req.AmountCents, p.currency,
		req.Description, p.successURL, p.cancelURL,
		map[string]string{"reservation_id": req.ReservationID.String()})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	return &Checkout{RedirectURL: session.URL, Reference: session.ID}, nil
}

type paypalProvider struct {
	client     *paypal.Client
	currency   string
	successURL string
	cancelURL  string
}

func (p *paypalProvider) Name() string { return "paypal" }

func (p *paypalProvider) Create(ctx context.Context, req CreateRequest) (*Checkout, error) {
	pay, err := p.client.CreatePayment(ctx, req.AmountCents, p.currency,
		req.Description, p.successURL, p.cancelURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	return &Checkout{RedirectURL: pay.ApprovalURL, Reference: pay.ID}, nil
}

// ---------------------------------------------------------------------------
// Factory
// ---------------------------------------------------------------------------

type Service interface {
	// Provider resolves the variant for a requested method. In demo mode
	// every method resolves to the demo provider.
	Provider(method string) (Provider, error)
	// ExecutePayPal completes an approved PayPal payment.
	ExecutePayPal(ctx context.Context, paymentID, payerID string) error
}

type paymentService struct {
	mode      string
	providers map[string]Provider
	paypal    *paypal.Client
	logger    *slog.Logger
}

func New(cfg config.PaymentConfig, stripeClient *stripe.Client, paypalClient *paypal.Client, logger *slog.Logger) Service {
	s := &paymentService{
		mode:      cfg.Mode,
		providers: make(map[string]Provider),
		paypal:    paypalClient,
		logger:    logger,
	}

	if cfg.Mode == "demo" {
		demo := &demoProvider{successURL: cfg.SuccessURL}
		s.providers["demo"] = demo
		s.providers["stripe"] = demo
		s.providers["paypal"] = demo
		return s
	}

	// Sandbox and live share the client code; the configured keys decide
	// which gateway environment answers.
	if stripeClient != nil {
		s.providers["stripe"] = &stripeProvider{
			client:     stripeClient,
			currency:   cfg.Currency,
			successURL: cfg.SuccessURL,
			cancelURL:  cfg.CancelURL,
		}
	}
	if paypalClient != nil {
		s.providers["paypal"] = &paypalProvider{
			client:     paypalClient,
			currency:   cfg.Currency,
			successURL: cfg.SuccessURL,
			cancelURL:  cfg.CancelURL,
		}
	}
	return s
}

func (s *paymentService) Provider(method string) (Provider, error) {
	p, ok := s.providers[strings.ToLower(method)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	return p, nil
}

func (s *paymentService) ExecutePayPal(ctx context.Context, paymentID, payerID string) error {
	if s.paypal == nil {
		return ErrUnknownMethod
	}
	if _, err := s.paypal.ExecutePayment(ctx, paymentID, payerID); err != nil {
		return fmt.Errorf("%w: %v", ErrNotCompleted, err)
	}
	return nil
}
