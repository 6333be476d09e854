package contact

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/studiolegale/sld_backend/config"
	"github.com/studiolegale/sld_backend/internal/store"
)

func newTestService() (Service, *store.MemoryStore) {
	st := store.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(st, nil, config.StudioConfig{PhoneRegion: "IT"}, logger)
	return svc, st
}

func TestSubmit(t *testing.T) {
	svc, _ := newTestService()

	msg, err := svc.Submit(context.Background(), SubmitRequest{
		Name:    "Mario Rossi",
		Email:   "mario@example.com",
		Phone:   "06 1234 5678",
		Message: "Vorrei una consulenza.",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if msg.ID.String() == "" {
		t.Error("missing id")
	}
	if msg.Phone != "+390612345678" {
		t.Errorf("phone = %q, want normalized E.164", msg.Phone)
	}
}

func TestSubmitKeepsUnparseablePhone(t *testing.T) {
	svc, _ := newTestService()

	msg, err := svc.Submit(context.Background(), SubmitRequest{
		Name:    "Mario Rossi",
		Email:   "mario@example.com",
		Phone:   "interno 42",
		Message: "Richiamatemi.",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if msg.Phone != "interno 42" {
		t.Errorf("phone = %q, want the raw value kept", msg.Phone)
	}
}

func TestSubmitValidation(t *testing.T) {
	svc, _ := newTestService()

	tests := []SubmitRequest{
		{Email: "a@b.c", Message: "x"},
		{Name: "A", Message: "x"},
		{Name: "A", Email: "a@b.c"},
		{Name: "  ", Email: "a@b.c", Message: "x"},
	}
	for i, req := range tests {
		if _, err := svc.Submit(context.Background(), req); !errors.Is(err, ErrInvalidSubmission) {
			t.Errorf("case %d: got %v, want ErrInvalidSubmission", i, err)
		}
	}
}
