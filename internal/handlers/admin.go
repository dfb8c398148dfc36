package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/salemchat/salem/internal/auth"
	"github.com/salemchat/salem/internal/business"
	"github.com/salemchat/salem/internal/channel"
	"github.com/salemchat/salem/internal/channel/adapters/local"
	"github.com/salemchat/salem/internal/history"
	"github.com/salemchat/salem/internal/leads"
	"github.com/salemchat/salem/internal/payments"
)

type adminBusinessStore interface {
	Get(ctx context.Context, businessID string) (business.Config, error)
	List(ctx context.Context) ([]business.Config, error)
	Upsert(ctx context.Context, cfg business.Config) (business.Config, error)
	Delete(ctx context.Context, businessID string) error
}

type adminHistoryStore interface {
	ListRecent(ctx context.Context, businessID string, limit int) ([]history.Entry, error)
	LastN(ctx context.Context, businessID, platform, userID string, n int) ([]history.Entry, error)
}

type adminLeadStore interface {
	List(ctx context.Context, businessID string, limit int) ([]leads.Lead, error)
}

type adminPaymentStore interface {
	ListByUser(ctx context.Context, businessID, userID string) ([]payments.Payment, error)
}

// AdminHandler exposes the JWT-protected management API: business config
// CRUD, conversation history, leads, payments, and the test-message flow.
type AdminHandler struct {
	logger     *slog.Logger
	validate   *validator.Validate
	businesses adminBusinessStore
	histories  adminHistoryStore
	leads      adminLeadStore
	payments   adminPaymentStore
	processor  channel.InboundProcessor
	capture    *local.Adapter
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(log *slog.Logger, businesses adminBusinessStore, histories adminHistoryStore, leadStore adminLeadStore, paymentStore adminPaymentStore, processor channel.InboundProcessor, capture *local.Adapter) *AdminHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AdminHandler{
		logger:     log.With(slog.String("handler", "admin")),
		validate:   validator.New(),
		businesses: businesses,
		histories:  histories,
		leads:      leadStore,
		payments:   paymentStore,
		processor:  processor,
		capture:    capture,
	}
}

func (h *AdminHandler) Register(e *echo.Echo) {
	group := e.Group("/admin")
	group.GET("/configs", h.ListConfigs)
	group.POST("/configs", h.UpsertConfig)
	group.GET("/configs/:businessID", h.GetConfig)
	group.DELETE("/configs/:businessID", h.DeleteConfig)
	group.GET("/history/:businessID", h.History)
	group.GET("/history/:businessID/:userID", h.UserHistory)
	group.GET("/leads/:businessID", h.Leads)
	group.GET("/payments/:businessID/:userID", h.Payments)
	group.POST("/test-message", h.TestMessage)
}

// ConfigRequest is the admin payload for creating or replacing a business.
type ConfigRequest struct {
	BusinessID   string `json:"business_id" validate:"required,max=64"`
	BusinessName string `json:"business_name" validate:"required,max=255"`
	BusinessType string `json:"business_type" validate:"omitempty,max=64"`
	SystemPrompt string `json:"system_prompt" validate:"omitempty,max=8000"`
	AIModel      string `json:"ai_model" validate:"omitempty,max=64"`

	TelegramEnabled bool   `json:"telegram_enabled"`
	TelegramToken   string `json:"telegram_token" validate:"omitempty,max=255"`

	WhatsAppEnabled  bool           `json:"whatsapp_enabled"`
	WhatsAppProvider string         `json:"whatsapp_provider" validate:"omitempty,oneof=twilio wa-cloud dialog360 wa-business"`
	WhatsAppConfig   map[string]any `json:"whatsapp_config"`
	RoutingKey       string         `json:"routing_key" validate:"required_with=WhatsAppProvider,max=255"`

	KaspiMerchantID   string `json:"kaspi_merchant_id" validate:"omitempty,max=64"`
	HalykIIN          string `json:"halyk_iin" validate:"omitempty,len=12,numeric"`
	ManagerTelegramID string `json:"manager_telegram_id" validate:"omitempty,max=64"`
	ManagerWhatsApp   string `json:"manager_whatsapp" validate:"omitempty,max=32"`

	// LanguageDetection and SalesFunnel default to enabled when omitted;
	// QRPayments defaults to disabled.
	LanguageDetection *bool `json:"language_detection"`
	SalesFunnel       *bool `json:"sales_funnel"`
	QRPayments        bool  `json:"qr_payments"`

	Disabled bool `json:"disabled"`
}

// ListConfigs returns all business configs visible to the token.
func (h *AdminHandler) ListConfigs(c echo.Context) error {
	scope, err := auth.BusinessIDFromContext(c)
	if err != nil {
		return err
	}
	configs, err := h.businesses.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if scope != "" {
		scoped := configs[:0]
		for _, cfg := range configs {
			if cfg.BusinessID == scope {
				scoped = append(scoped, cfg)
			}
		}
		configs = scoped
	}
	if configs == nil {
		configs = []business.Config{}
	}
	return c.JSON(http.StatusOK, configs)
}

// GetConfig returns one business config.
func (h *AdminHandler) GetConfig(c echo.Context) error {
	businessID, err := h.scopedBusinessID(c)
	if err != nil {
		return err
	}
	cfg, err := h.businesses.Get(c.Request().Context(), businessID)
	if err != nil {
		if errors.Is(err, business.ErrBusinessNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "business not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, cfg)
}

// UpsertConfig creates or replaces a business config.
func (h *AdminHandler) UpsertConfig(c echo.Context) error {
	var req ConfigRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if scope, err := auth.BusinessIDFromContext(c); err != nil {
		return err
	} else if scope != "" && scope != req.BusinessID {
		return echo.NewHTTPError(http.StatusForbidden, "token is scoped to another business")
	}

	saved, err := h.businesses.Upsert(c.Request().Context(), business.Config{
		BusinessID:        req.BusinessID,
		BusinessName:      req.BusinessName,
		BusinessType:      req.BusinessType,
		SystemPrompt:      req.SystemPrompt,
		AIModel:           req.AIModel,
		TelegramEnabled:   req.TelegramEnabled,
		TelegramToken:     req.TelegramToken,
		WhatsAppEnabled:   req.WhatsAppEnabled,
		WhatsAppProvider:  req.WhatsAppProvider,
		WhatsAppConfig:    req.WhatsAppConfig,
		RoutingKey:        req.RoutingKey,
		KaspiMerchantID:   req.KaspiMerchantID,
		HalykIIN:          req.HalykIIN,
		ManagerTelegramID: req.ManagerTelegramID,
		ManagerWhatsApp:   req.ManagerWhatsApp,
		LanguageDetection: boolOr(req.LanguageDetection, true),
		SalesFunnel:       boolOr(req.SalesFunnel, true),
		QRPayments:        req.QRPayments,
		Disabled:          req.Disabled,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, saved)
}

// DeleteConfig removes a business config.
func (h *AdminHandler) DeleteConfig(c echo.Context) error {
	businessID, err := h.scopedBusinessID(c)
	if err != nil {
		return err
	}
	if err := h.businesses.Delete(c.Request().Context(), businessID); err != nil {
		if errors.Is(err, business.ErrBusinessNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "business not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// History returns recent conversation log entries. With user_id and platform
// query parameters it narrows to one conversation.
func (h *AdminHandler) History(c echo.Context) error {
	businessID, err := h.scopedBusinessID(c)
	if err != nil {
		return err
	}
	limit := queryInt(c, "limit", 50)
	userID := strings.TrimSpace(c.QueryParam("user_id"))
	platform := strings.TrimSpace(c.QueryParam("platform"))

	var entries []history.Entry
	if userID != "" && platform != "" {
		entries, err = h.histories.LastN(c.Request().Context(), businessID, platform, userID, limit)
	} else {
		entries, err = h.histories.ListRecent(c.Request().Context(), businessID, limit)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}

// UserHistory returns one user's recent entries. With a platform query
// parameter it reads the conversation log directly; otherwise it filters the
// business-wide log.
func (h *AdminHandler) UserHistory(c echo.Context) error {
	businessID, err := h.scopedBusinessID(c)
	if err != nil {
		return err
	}
	userID := strings.TrimSpace(c.Param("userID"))
	limit := queryInt(c, "limit", 50)

	if platform := strings.TrimSpace(c.QueryParam("platform")); platform != "" {
		entries, err := h.histories.LastN(c.Request().Context(), businessID, platform, userID, limit)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		if entries == nil {
			entries = []history.Entry{}
		}
		return c.JSON(http.StatusOK, entries)
	}

	all, err := h.histories.ListRecent(c.Request().Context(), businessID, 100)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	entries := []history.Entry{}
	for _, entry := range all {
		if entry.UserID == userID {
			entries = append(entries, entry)
			if len(entries) >= limit {
				break
			}
		}
	}
	return c.JSON(http.StatusOK, entries)
}

// Leads returns captured funnel leads, newest first.
func (h *AdminHandler) Leads(c echo.Context) error {
	businessID, err := h.scopedBusinessID(c)
	if err != nil {
		return err
	}
	items, err := h.leads.List(c.Request().Context(), businessID, queryInt(c, "limit", 50))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []leads.Lead{}
	}
	return c.JSON(http.StatusOK, items)
}

// Payments returns a user's invoices.
func (h *AdminHandler) Payments(c echo.Context) error {
	businessID, err := h.scopedBusinessID(c)
	if err != nil {
		return err
	}
	items, err := h.payments.ListByUser(c.Request().Context(), businessID, c.Param("userID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []payments.Payment{}
	}
	return c.JSON(http.StatusOK, items)
}

// TestMessageRequest drives the router through the in-memory test channel.
type TestMessageRequest struct {
	BusinessID string `json:"business_id" validate:"required"`
	UserID     string `json:"user_id" validate:"required"`
	Text       string `json:"text" validate:"required"`
}

// TestMessageResponse carries the bot replies produced for the test message.
type TestMessageResponse struct {
	Replies []channel.OutboundMessage `json:"replies"`
}

// TestMessage runs one message through the full routing pipeline using the
// local capture adapter and returns the replies inline.
func (h *AdminHandler) TestMessage(c echo.Context) error {
	var req TestMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if scope, err := auth.BusinessIDFromContext(c); err != nil {
		return err
	} else if scope != "" && scope != req.BusinessID {
		return echo.NewHTTPError(http.StatusForbidden, "token is scoped to another business")
	}

	cfg := channel.ChannelConfig{
		ID:         req.BusinessID + ":" + local.Type.String(),
		BusinessID: req.BusinessID,
		Platform:   local.Type,
	}
	msg := channel.InboundMessage{
		Platform:       local.Type,
		BusinessID:     req.BusinessID,
		ExternalUserID: req.UserID,
		ChatID:         req.UserID,
		Text:           req.Text,
		ReceivedAt:     time.Now().UTC(),
	}
	if err := h.processor.HandleInbound(c.Request().Context(), cfg, msg); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	replies := h.capture.Drain(req.UserID)
	if replies == nil {
		replies = []channel.OutboundMessage{}
	}
	return c.JSON(http.StatusOK, TestMessageResponse{Replies: replies})
}

func (h *AdminHandler) scopedBusinessID(c echo.Context) (string, error) {
	businessID := strings.TrimSpace(c.Param("businessID"))
	if businessID == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "business id is required")
	}
	scope, err := auth.BusinessIDFromContext(c)
	if err != nil {
		return "", err
	}
	if scope != "" && scope != businessID {
		return "", echo.NewHTTPError(http.StatusForbidden, "token is scoped to another business")
	}
	return businessID, nil
}

func boolOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
