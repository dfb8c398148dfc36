package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/salemchat/salem/internal/business"
	"github.com/salemchat/salem/internal/channel"
)

// maxWebhookBody caps the request body we are willing to buffer for
// signature verification and parsing.
const maxWebhookBody = 1 << 20

// webhookBusinessResolver is the slice of the business service the webhook
// handler needs. Implemented by business.Service.
type webhookBusinessResolver interface {
	ResolveByRoutingKey(ctx context.Context, platform channel.Platform, routingKey string) (business.Config, error)
	ListEnabledConfigs(ctx context.Context) ([]channel.ChannelConfig, error)
}

// WebhookHandler terminates provider webhooks: it resolves the tenant from
// the routing key, verifies the request, and hands the parsed message to the
// router. The provider is always acknowledged with 200 once the payload is
// accepted; processing failures never surface as webhook errors.
type WebhookHandler struct {
	logger     *slog.Logger
	registry   *channel.Registry
	businesses webhookBusinessResolver
	processor  channel.InboundProcessor
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(log *slog.Logger, registry *channel.Registry, businesses webhookBusinessResolver, processor channel.InboundProcessor) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		logger:     log.With(slog.String("handler", "webhook")),
		registry:   registry,
		businesses: businesses,
		processor:  processor,
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	// Legacy single-tenant Cloud API route kept for deployed webhook URLs.
	e.GET("/webhook/wa-cloud", func(c echo.Context) error {
		return h.verifyChallenge(c, channel.PlatformWhatsAppCloud)
	})
	e.POST("/webhook/wa-cloud", func(c echo.Context) error {
		return h.receive(c, channel.PlatformWhatsAppCloud)
	})

	e.GET("/webhook/whatsapp/:provider", h.VerifyProviderChallenge)
	e.POST("/webhook/whatsapp/:provider", h.ReceiveProvider)
}

// VerifyProviderChallenge answers the GET subscription handshake for
// providers that use one (Cloud API and on-prem Business API).
func (h *WebhookHandler) VerifyProviderChallenge(c echo.Context) error {
	platform, err := h.registry.ParsePlatform(c.Param("provider"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown provider")
	}
	return h.verifyChallenge(c, platform)
}

// ReceiveProvider accepts an inbound webhook for the given provider.
func (h *WebhookHandler) ReceiveProvider(c echo.Context) error {
	platform, err := h.registry.ParsePlatform(c.Param("provider"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown provider")
	}
	return h.receive(c, platform)
}

func (h *WebhookHandler) verifyChallenge(c echo.Context, platform channel.Platform) error {
	verifier, ok := h.registry.GetChallengeVerifier(platform)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "provider has no challenge handshake")
	}
	query := c.QueryParams()

	// The handshake carries no routing key, so the verify token is checked
	// against every enabled channel of this platform.
	configs, err := h.businesses.ListEnabledConfigs(c.Request().Context())
	if err != nil {
		h.logger.Error("list channel configs", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "config lookup failed")
	}
	for _, cfg := range configs {
		if cfg.Platform != platform {
			continue
		}
		challenge, err := verifier.VerifyChallenge(query, cfg)
		if err == nil {
			return c.String(http.StatusOK, challenge)
		}
	}
	return echo.NewHTTPError(http.StatusForbidden, "verification failed")
}

func (h *WebhookHandler) receive(c echo.Context, platform channel.Platform) error {
	parser, ok := h.registry.GetWebhookParser(platform)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "provider has no webhook parser")
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read body failed")
	}

	routingKey, err := parser.RoutingKey(c.Request(), body)
	if err != nil {
		h.logger.Warn("webhook without routing key",
			slog.String("platform", platform.String()),
			slog.Any("error", err))
		return c.NoContent(http.StatusOK)
	}

	biz, err := h.businesses.ResolveByRoutingKey(c.Request().Context(), platform, routingKey)
	if err != nil {
		if errors.Is(err, business.ErrBusinessNotFound) {
			// Unmapped numbers are dropped on purpose. There is no
			// fallback tenant.
			h.logger.Warn("webhook for unmapped routing key",
				slog.String("platform", platform.String()),
				slog.String("routing_key", routingKey))
			return c.NoContent(http.StatusOK)
		}
		h.logger.Error("resolve routing key", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "tenant lookup failed")
	}

	cfg, ok := channelConfigFor(biz, platform)
	if !ok {
		h.logger.Warn("business has no channel for platform",
			slog.String("business_id", biz.BusinessID),
			slog.String("platform", platform.String()))
		return c.NoContent(http.StatusOK)
	}

	if err := parser.VerifyWebhook(c.Request(), body, cfg); err != nil {
		h.logger.Warn("webhook verification failed",
			slog.String("business_id", biz.BusinessID),
			slog.String("platform", platform.String()),
			slog.Any("error", err))
		return echo.NewHTTPError(http.StatusUnauthorized, "verification failed")
	}

	msg, err := parser.ParseInbound(c.Request(), body, cfg)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
	}
	if msg == nil {
		// Status updates and other non-actionable events.
		return c.NoContent(http.StatusOK)
	}
	msg.BusinessID = biz.BusinessID

	if ack, ok := h.registry.GetAcknowledger(platform); ok {
		go func(msg channel.InboundMessage) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := ack.AckInbound(ctx, cfg, msg); err != nil {
				h.logger.Debug("inbound ack failed", slog.Any("error", err))
			}
		}(*msg)
	}

	go func(msg channel.InboundMessage) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := h.processor.HandleInbound(ctx, cfg, msg); err != nil {
			h.logger.Error("inbound processing failed",
				slog.String("business_id", msg.BusinessID),
				slog.String("platform", msg.Platform.String()),
				slog.Any("error", err))
		}
	}(*msg)

	return c.NoContent(http.StatusOK)
}

func channelConfigFor(biz business.Config, platform channel.Platform) (channel.ChannelConfig, bool) {
	for _, cfg := range biz.ChannelConfigs() {
		if cfg.Platform == platform {
			return cfg, true
		}
	}
	return channel.ChannelConfig{}, false
}
