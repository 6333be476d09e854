package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/studiolegale/sld_backend/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDemoModeMapsAllMethods(t *testing.T) {
	svc := New(config.PaymentConfig{
		Mode:       "demo",
		SuccessURL: "https://example.com/success",
	}, nil, nil, testLogger())

	for _, method := range []string{"demo", "stripe", "paypal", "STRIPE"} {
		p, err := svc.Provider(method)
		if err != nil {
			t.Fatalf("Provider(%q): %v", method, err)
		}
		if p.Name() != "demo" {
			t.Errorf("Provider(%q).Name() = %q, want demo", method, p.Name())
		}
	}
}

func TestDemoCheckout(t *testing.T) {
	svc := New(config.PaymentConfig{
		Mode:       "demo",
		SuccessURL: "https://example.com/success",
	}, nil, nil, testLogger())

	p, err := svc.Provider("demo")
	if err != nil {
		t.Fatalf("Provider: %v", err)
	}
	id := uuid.New()
	checkout, err := p.Create(context.Background(), CreateRequest{
		ReservationID: id,
		AmountCents:   10000,
		Description:   "Consulenza legale",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if checkout.Reference != "demo-"+id.String() {
		t.Errorf("reference = %q", checkout.Reference)
	}
	if !strings.HasPrefix(checkout.RedirectURL, "https://example.com/success?ref=") {
		t.Errorf("redirect = %q", checkout.RedirectURL)
	}
}

func TestUnknownMethod(t *testing.T) {
	svc := New(config.PaymentConfig{Mode: "live"}, nil, nil, testLogger())

	if _, err := svc.Provider("bitcoin"); !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("got %v, want ErrUnknownMethod", err)
	}
	// Without configured gateway clients no method resolves outside demo mode.
	if _, err := svc.Provider("stripe"); !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("got %v, want ErrUnknownMethod", err)
	}
}
