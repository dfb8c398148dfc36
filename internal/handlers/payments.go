package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/salemchat/salem/internal/payments"
)

type paymentStatusUpdater interface {
	UpdateStatus(ctx context.Context, paymentID string, status payments.Status) error
}

// PaymentsHandler receives provider status callbacks for QR invoices.
type PaymentsHandler struct {
	logger   *slog.Logger
	validate *validator.Validate
	payments paymentStatusUpdater
}

// NewPaymentsHandler creates the payments callback handler.
func NewPaymentsHandler(log *slog.Logger, paymentService paymentStatusUpdater) *PaymentsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PaymentsHandler{
		logger:   log.With(slog.String("handler", "payments")),
		validate: validator.New(),
		payments: paymentService,
	}
}

func (h *PaymentsHandler) Register(e *echo.Echo) {
	e.POST("/payments/callback", h.Callback)
}

// CallbackRequest is the provider status notification payload.
type CallbackRequest struct {
	PaymentID string `json:"paymentId" validate:"required"`
	Status    string `json:"status" validate:"required"`
}

// Callback records a payment status change.
func (h *PaymentsHandler) Callback(c echo.Context) error {
	var req CallbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	status, ok := payments.ParseStatus(req.Status)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status")
	}
	if err := h.payments.UpdateStatus(c.Request().Context(), req.PaymentID, status); err != nil {
		if errors.Is(err, payments.ErrPaymentNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "payment not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	h.logger.Info("payment callback processed",
		slog.String("payment_id", req.PaymentID),
		slog.String("status", string(status)))
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
