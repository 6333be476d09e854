package router

import (
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/studiolegale/sld_backend/config"
	"github.com/studiolegale/sld_backend/internal/api/http/handler"
	"github.com/studiolegale/sld_backend/internal/service/booking"
	"github.com/studiolegale/sld_backend/internal/service/contact"
	"github.com/studiolegale/sld_backend/internal/service/payment"
	"github.com/studiolegale/sld_backend/pkg/stripe"
)

// Module provides the Router to the fx graph.
var Module = fx.Module("router", fx.Provide(NewRouter))

type Params struct {
	fx.In

	Cfg        *config.Config
	Redis      *redis.Client
	Logger     *slog.Logger
	BookingSvc booking.Service
	PaymentSvc payment.Service
	ContactSvc contact.Service
	Stripe     *stripe.Client `optional:"true"`
}

type Router struct {
	p Params
}

func NewRouter(p Params) *Router {
	return &Router{p: p}
}

func (r *Router) Register(app *fiber.App) {
	r.registerSystemRoutes(app)

	bookingH := handler.NewBookingHandler(r.p.BookingSvc, r.p.PaymentSvc,
		r.p.Stripe, r.p.Cfg.Payment, r.p.Cfg.Studio, r.p.Logger)
	contactH := handler.NewContactHandler(r.p.ContactSvc, r.p.Logger)

	api := app.Group("/api/v1")

	r.registerBookingRoutes(api, bookingH)
	r.registerContactRoutes(api, contactH)
}

func (r *Router) registerSystemRoutes(app *fiber.App) {
	app.Get(healthcheck.LivenessEndpoint, healthcheck.New())
	app.Get(healthcheck.ReadinessEndpoint, healthcheck.New())
	app.Get(healthcheck.StartupEndpoint, healthcheck.New())

	if r.p.Cfg.Observability.Enabled && r.p.Cfg.Observability.Metrics.Enabled {
		path := r.p.Cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		app.Get(path, adaptor.HTTPHandler(promhttp.Handler()))
	}
}
