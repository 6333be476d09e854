package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/studiolegale/sld_backend/internal/api/http/handler"
)

func (r *Router) registerBookingRoutes(api fiber.Router, h *handler.BookingHandler) {
	grp := api.Group("/booking")

	grp.Get("/slots/:date", h.Slots)
	grp.Get("/dates", h.Dates)
	grp.Post("/checkout", h.Checkout)
	grp.Post("/webhook/stripe", h.StripeWebhook)
	grp.Get("/paypal/execute", h.PayPalExecute)
}
