package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/studiolegale/sld_backend/internal/service/contact"
)

type ContactHandler struct {
	svc    contact.Service
	logger *slog.Logger
}

func NewContactHandler(svc contact.Service, logger *slog.Logger) *ContactHandler {
	return &ContactHandler{svc: svc, logger: logger}
}

type submitContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func (h *ContactHandler) Submit(c fiber.Ctx) error {
	var req submitContactRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	msg, err := h.svc.Submit(c.Context(), contact.SubmitRequest{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Message: req.Message,
	})
	if err != nil {
		if errors.Is(err, contact.ErrInvalidSubmission) {
			return badRequest(c, "name, email and message are required")
		}
		h.logger.Error("submit contact message", "error", err)
		return internalError(c)
	}
	return created(c, fiber.Map{"id": msg.ID})
}
