package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/studiolegale/sld_backend/internal/api/http/handler"
)

func (r *Router) registerContactRoutes(api fiber.Router, h *handler.ContactHandler) {
	api.Post("/contact", h.Submit)
}
