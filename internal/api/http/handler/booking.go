package handler

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/studiolegale/sld_backend/config"
	"github.com/studiolegale/sld_backend/internal/service/booking"
	"github.com/studiolegale/sld_backend/internal/service/payment"
	"github.com/studiolegale/sld_backend/internal/store"
	"github.com/studiolegale/sld_backend/pkg/stripe"
	"github.com/studiolegale/sld_backend/pkg/util/phone"
)

type BookingHandler struct {
	booking    booking.Service
	payments   payment.Service
	stripe     *stripe.Client
	paymentCfg config.PaymentConfig
	studioCfg  config.StudioConfig
	logger     *slog.Logger
}

func NewBookingHandler(b booking.Service, p payment.Service, sc *stripe.Client, paymentCfg config.PaymentConfig, studioCfg config.StudioConfig, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		booking:    b,
		payments:   p,
		stripe:     sc,
		paymentCfg: paymentCfg,
		studioCfg:  studioCfg,
		logger:     logger,
	}
}

// Slots returns the free slots for a date as "HH:MM" strings.
func (h *BookingHandler) Slots(c fiber.Ctx) error {
	date, err := store.ParseDate(c.Params("date"))
	if err != nil {
		return badRequest(c, "invalid date, expected YYYY-MM-DD")
	}

	slots, err := h.booking.AvailableSlots(c.Context(), date)
	if err != nil {
		h.logger.Error("available slots", "error", err)
		return internalError(c)
	}

	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.String())
	}
	return ok(c, fiber.Map{"date": date.Format("2006-01-02"), "slots": out})
}

// Dates returns upcoming dates with at least one free slot.
func (h *BookingHandler) Dates(c fiber.Ctx) error {
	days := 0
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return badRequest(c, "days must be a positive integer")
		}
		days = n
	}

	dates, err := h.booking.AvailableDates(c.Context(), days)
	if err != nil {
		h.logger.Error("available dates", "error", err)
		return internalError(c)
	}

	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.Format("2006-01-02"))
	}
	return ok(c, fiber.Map{"dates": out})
}

type checkoutRequest struct {
	Date          string `json:"date"`
	Time          string `json:"time"`
	SlotCount     int    `json:"slot_count"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Notes         string `json:"notes"`
	PaymentMethod string `json:"payment_method"`
}

// Checkout reserves the requested span and creates a payment with the
// selected provider, returning the redirect URL.
func (h *BookingHandler) Checkout(c fiber.Ctx) error {
	var req checkoutRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Name == "" || req.Email == "" {
		return badRequest(c, "name and email are required")
	}

	date, err := store.ParseDate(req.Date)
	if err != nil {
		return badRequest(c, "invalid date, expected YYYY-MM-DD")
	}
	start, err := store.ParseTimeOfDay(req.Time)
	if err != nil {
		return badRequest(c, "invalid time, expected HH:MM")
	}
	if req.SlotCount == 0 {
		req.SlotCount = 1
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "stripe"
	}

	if normalized, err := phone.Normalize(req.Phone, h.studioCfg.PhoneRegion); err == nil {
		req.Phone = normalized
	}

	provider, err := h.payments.Provider(req.PaymentMethod)
	if err != nil {
		return badRequest(c, "unknown payment method")
	}

	reservation, err := h.booking.Reserve(c.Context(), booking.ReserveRequest{
		Date:      date,
		Start:     start,
		SlotCount: req.SlotCount,
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Notes:     req.Notes,
	})
	if err != nil {
		return h.mapReserveError(c, err)
	}

	checkout, err := provider.Create(c.Context(), payment.CreateRequest{
		ReservationID: reservation.ID,
		AmountCents:   reservation.AmountCents,
		Description:   "Appuntamento " + h.studioCfg.Name + " " + date.Format("02/01/2006") + " " + start.String(),
		CustomerEmail: req.Email,
	})
	if err != nil {
		// The hold must not survive a failed payment creation.
		if abandonErr := h.booking.Abandon(c.Context(), reservation.ID); abandonErr != nil {
			h.logger.Error("abandon after payment failure",
				"reservation_id", reservation.ID, "error", abandonErr)
		}
		h.logger.Error("create payment", "provider", provider.Name(), "error", err)
		return badGateway(c, "payment provider unavailable")
	}

	if err := h.booking.SetPayment(c.Context(), reservation.ID, provider.Name(), checkout.Reference); err != nil {
		h.logger.Error("set payment ref", "reservation_id", reservation.ID, "error", err)
		return internalError(c)
	}

	// Demo checkouts have no gateway callback to confirm them.
	if provider.Name() == "demo" {
		if err := h.booking.Confirm(c.Context(), reservation.ID); err != nil {
			h.logger.Error("confirm demo reservation", "reservation_id", reservation.ID, "error", err)
			return internalError(c)
		}
	}

	return created(c, fiber.Map{
		"reservation_id": reservation.ID,
		"url":            checkout.RedirectURL,
	})
}

func (h *BookingHandler) mapReserveError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, booking.ErrInvalidSlotCount):
		return badRequest(c, "slot count out of range")
	case errors.Is(err, booking.ErrDateBlocked):
		return conflict(c, fiber.Map{"error": "date is not bookable"})
	case errors.Is(err, booking.ErrSlotUnavailable):
		body := fiber.Map{"error": "slot unavailable"}
		if t := booking.ConflictingTime(err); t != "" {
			body["conflicting_time"] = t
		}
		return conflict(c, body)
	default:
		h.logger.Error("reserve", "error", err)
		return internalError(c)
	}
}

// StripeWebhook confirms reservations on checkout completion events.
func (h *BookingHandler) StripeWebhook(c fiber.Ctx) error {
	if h.stripe == nil {
		return notFound(c, "stripe not configured")
	}

	event, err := h.stripe.VerifyWebhook(c.Body(), c.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("stripe webhook rejected", "error", err)
		return badRequest(c, "invalid signature")
	}

	if event.Type != "checkout.session.completed" {
		return ok(c, fiber.Map{"received": true})
	}

	reservation, err := h.booking.GetByPaymentRef(c.Context(), event.Data.Object.ID)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			h.logger.Warn("webhook for unknown session", "session_id", event.Data.Object.ID)
			return ok(c, fiber.Map{"received": true})
		}
		h.logger.Error("lookup reservation for webhook", "error", err)
		return internalError(c)
	}
	if err := h.booking.Confirm(c.Context(), reservation.ID); err != nil {
		h.logger.Error("confirm from webhook", "reservation_id", reservation.ID, "error", err)
		return internalError(c)
	}
	return ok(c, fiber.Map{"received": true})
}

// PayPalExecute completes an approved PayPal payment after the return
// redirect and confirms the reservation.
func (h *BookingHandler) PayPalExecute(c fiber.Ctx) error {
	paymentID := c.Query("paymentId")
	payerID := c.Query("PayerID")
	if paymentID == "" || payerID == "" {
		return badRequest(c, "paymentId and PayerID are required")
	}

	if err := h.payments.ExecutePayPal(c.Context(), paymentID, payerID); err != nil {
		h.logger.Error("execute paypal payment", "payment_id", paymentID, "error", err)
		return badGateway(c, "payment execution failed")
	}

	reservation, err := h.booking.GetByPaymentRef(c.Context(), paymentID)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return notFound(c, "reservation not found")
		}
		h.logger.Error("lookup reservation for paypal", "error", err)
		return internalError(c)
	}
	if err := h.booking.Confirm(c.Context(), reservation.ID); err != nil {
		h.logger.Error("confirm from paypal", "reservation_id", reservation.ID, "error", err)
		return internalError(c)
	}

	if h.paymentCfg.SuccessURL != "" {
		return c.Redirect().To(h.paymentCfg.SuccessURL)
	}
	return ok(c, fiber.Map{"confirmed": true})
}
