// Package cloud implements the Meta WhatsApp Cloud API adapter.
package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/salemchat/salem/internal/channel"
	"github.com/salemchat/salem/internal/channel/adapters/whatsapp"
)

// Type is the platform identifier for this adapter.
const Type = channel.PlatformWhatsAppCloud

const defaultGraphVersion = "v23.0"

// Adapter implements channel.Adapter, channel.Sender, channel.WebhookParser,
// channel.ChallengeVerifier, and channel.Acknowledger for the Cloud API.
type Adapter struct {
	logger  *slog.Logger
	client  *http.Client
	baseURL string
}

// New creates a Cloud API adapter.
func New(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger:  log.With(slog.String("adapter", "wa-cloud")),
		client:  whatsapp.DefaultHTTPClient,
		baseURL: "https://graph.facebook.com",
	}
}

// Type returns the Cloud API platform identifier.
func (a *Adapter) Type() channel.Platform {
	return Type
}

// Descriptor returns the Cloud API channel metadata.
func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "WhatsApp Cloud API",
		OutboundPolicy: channel.OutboundPolicy{
			TextLimit:      whatsapp.TextLimit,
			RetryMax:       1,
			RetryBackoffMs: 2000,
		},
	}
}

// NormalizeConfig validates a Cloud API channel configuration map.
func (a *Adapter) NormalizeConfig(raw map[string]any) (map[string]any, error) {
	normalized := map[string]any{}
	for _, key := range []string{"accessToken", "phoneNumberId", "verifyToken", "appSecret", "graphVersion"} {
		if value, ok := raw[key].(string); ok && strings.TrimSpace(value) != "" {
			normalized[key] = strings.TrimSpace(value)
		}
	}
	if normalized["accessToken"] == nil {
		return nil, fmt.Errorf("wa-cloud accessToken is required")
	}
	if normalized["phoneNumberId"] == nil {
		return nil, fmt.Errorf("wa-cloud phoneNumberId is required")
	}
	return normalized, nil
}

func (a *Adapter) graphVersion(cfg channel.ChannelConfig) string {
	if version := cfg.CredentialString("graphVersion"); version != "" {
		return version
	}
	return defaultGraphVersion
}

func (a *Adapter) messagesURL(cfg channel.ChannelConfig) string {
	return fmt.Sprintf("%s/%s/%s/messages", a.baseURL, a.graphVersion(cfg), cfg.CredentialString("phoneNumberId"))
}

func (a *Adapter) authHeaders(cfg channel.ChannelConfig) map[string]string {
	return map[string]string{"Authorization": "Bearer " + cfg.CredentialString("accessToken")}
}

// Send delivers a text or interactive message through the Graph API.
func (a *Adapter) Send(ctx context.Context, cfg channel.ChannelConfig, msg channel.OutboundMessage) error {
	to := whatsapp.NormalizePhone(msg.Target)
	if to == "" {
		return fmt.Errorf("wa-cloud target is required")
	}
	if cfg.CredentialString("accessToken") == "" || cfg.CredentialString("phoneNumberId") == "" {
		return fmt.Errorf("wa-cloud credentials are required")
	}
	payload := whatsapp.BuildMessagePayload(to, msg.Text, msg.Buttons)
	if err := whatsapp.PostJSON(ctx, a.client, Type, a.messagesURL(cfg), a.authHeaders(cfg), payload); err != nil {
		return err
	}
	a.logger.Info("message sent", slog.String("config_id", cfg.ID), slog.String("to", to))
	return nil
}

// RoutingKey returns the receiving phone_number_id from the webhook body.
func (a *Adapter) RoutingKey(_ *http.Request, body []byte) (string, error) {
	return whatsapp.PhoneNumberID(body)
}

// VerifyWebhook checks the X-Hub-Signature-256 header Meta signs every POST
// with. When an appSecret is configured the HMAC must match; without one the
// header must still be present.
func (a *Adapter) VerifyWebhook(r *http.Request, body []byte, cfg channel.ChannelConfig) error {
	return whatsapp.VerifyHubSignature(r, body, cfg.CredentialString("appSecret"))
}

// ParseInbound extracts the normalized message from a webhook POST body.
func (a *Adapter) ParseInbound(_ *http.Request, body []byte, cfg channel.ChannelConfig) (*channel.InboundMessage, error) {
	return whatsapp.ParseGraphInbound(Type, cfg, body)
}

// VerifyChallenge handles the hub.challenge subscription handshake.
func (a *Adapter) VerifyChallenge(query url.Values, cfg channel.ChannelConfig) (string, error) {
	verifyToken := cfg.CredentialString("verifyToken")
	if verifyToken == "" {
		return "", channel.ErrWebhookUnauthorized
	}
	if query.Get("hub.mode") != "subscribe" || query.Get("hub.verify_token") != verifyToken {
		return "", channel.ErrWebhookUnauthorized
	}
	return query.Get("hub.challenge"), nil
}

// AckInbound marks the message as read and shows a typing indicator. Both are
// best effort.
func (a *Adapter) AckInbound(ctx context.Context, cfg channel.ChannelConfig, msg channel.InboundMessage) error {
	if msg.ProviderMessageID != "" {
		payload := map[string]any{
			"messaging_product": "whatsapp",
			"status":            "read",
			"message_id":        msg.ProviderMessageID,
		}
		if err := whatsapp.PostJSON(ctx, a.client, Type, a.messagesURL(cfg), a.authHeaders(cfg), payload); err != nil {
			return fmt.Errorf("mark as read: %w", err)
		}
	}
	if msg.ExternalUserID != "" {
		payload := map[string]any{
			"messaging_product": "whatsapp",
			"recipient_type":    "individual",
			"to":                msg.ExternalUserID,
			"type":              "typing_on",
		}
		if err := whatsapp.PostJSON(ctx, a.client, Type, a.messagesURL(cfg), a.authHeaders(cfg), payload); err != nil {
			return fmt.Errorf("typing indicator: %w", err)
		}
	}
	return nil
}
