package app

import (
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/studiolegale/sld_backend/config"
	"github.com/studiolegale/sld_backend/internal/service/booking"
	"github.com/studiolegale/sld_backend/internal/service/calendar"
	"github.com/studiolegale/sld_backend/internal/service/contact"
	"github.com/studiolegale/sld_backend/internal/service/notification"
	"github.com/studiolegale/sld_backend/internal/service/payment"
	"github.com/studiolegale/sld_backend/internal/store"
	"github.com/studiolegale/sld_backend/pkg/email"
	"github.com/studiolegale/sld_backend/pkg/paypal"
	"github.com/studiolegale/sld_backend/pkg/stripe"
)

// ServiceModule provides all application service dependencies.
var ServiceModule = fx.Module("services",
	fx.Provide(
		ProvideCalendarService,
		ProvideBookingService,
		ProvidePaymentService,
		ProvideContactService,
		ProvideNotificationService,
	),
)

func ProvideCalendarService(st store.Store, rdb *redis.Client, cfg *config.Config, logger *slog.Logger) (calendar.Service, error) {
	var fetcher calendar.FeedFetcher
	if cfg.Calendar.ICalURL != "" {
		fetcher = calendar.NewHTTPFetcher(cfg.Calendar.ICalURL, cfg.Calendar.FetchTimeout())
	}
	state := calendar.NewRedisSyncState(rdb, cfg.Calendar.CacheTTL())
	return calendar.New(st, fetcher, state, cfg.Calendar, cfg.Booking.SlotDuration(), logger)
}

func ProvideBookingService(st store.Store, cal calendar.Service, nc *nats.Conn, cfg *config.Config, logger *slog.Logger) booking.Service {
	return booking.New(st, cal, nc, cfg.Booking, logger)
}

func ProvidePaymentService(cfg *config.Config, stripeClient *stripe.Client, paypalClient *paypal.Client, logger *slog.Logger) payment.Service {
	return payment.New(cfg.Payment, stripeClient, paypalClient, logger)
}

func ProvideContactService(st store.Store, mailer *email.Client, cfg *config.Config, logger *slog.Logger) contact.Service {
	return contact.New(st, mailer, cfg.Studio, logger)
}

func ProvideNotificationService(mailer *email.Client, cfg *config.Config, logger *slog.Logger) (notification.Service, error) {
	return notification.New(mailer, cfg.Studio, cfg.Booking, cfg.Calendar.Timezone, logger)
}
