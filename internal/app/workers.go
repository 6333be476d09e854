package app

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
	"go.uber.org/fx"

	"github.com/studiolegale/sld_backend/internal/service/booking"
	"github.com/studiolegale/sld_backend/internal/service/notification"
)

// WorkerModule registers all NATS event workers.
var WorkerModule = fx.Module("workers",
	fx.Invoke(RegisterWorkers),
)

type WorkerParams struct {
	fx.In

	Lc       fx.Lifecycle
	NC       *nats.Conn
	Booking  booking.Service
	NotifSvc notification.Service
}

func RegisterWorkers(p WorkerParams) {
	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			startConfirmationWorker(p.NC, p.Booking, p.NotifSvc)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// Drain handled by ProvideNatsClient
			return nil
		},
	})
}

// ---------------------------------------------------------------------------
// confirmation_worker
// ---------------------------------------------------------------------------

// startConfirmationWorker sends the confirmation email when a reservation
// reaches confirmed. Send failures are logged only; the reservation stays
// confirmed regardless.
func startConfirmationWorker(nc *nats.Conn, bookingSvc booking.Service, notifSvc notification.Service) {
	_, err := nc.Subscribe(booking.SubjectConfirmed+".*", func(msg *nats.Msg) {
		var event booking.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.Warn("confirmation_worker: bad event payload", "err", err)
			return
		}

		ctx := context.Background()
		reservation, err := bookingSvc.Get(ctx, event.ReservationID)
		if err != nil {
			slog.Warn("confirmation_worker: reservation not found",
				"id", event.ReservationID, "err", err)
			return
		}

		if err := notifSvc.SendConfirmation(ctx, reservation); err != nil {
			slog.Error("confirmation_worker: send confirmation failed",
				"id", reservation.ID, "err", err)
		}
	})
	if err != nil {
		slog.Error("confirmation_worker: subscribe failed", "err", err)
	}

	slog.Info("confirmation_worker: started")
}
