// Package business implements the self-hosted WhatsApp Business API adapter.
// The wire format matches the Cloud API but the deployment authenticates with
// its own bearer token, verify token, and optional app-secret signatures.
package business

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
const Type = channel.PlatformWABusiness

const defaultGraphVersion = "v17.0"

// Adapter implements channel.Adapter, channel.Sender, channel.WebhookParser,
// and channel.ChallengeVerifier for the Business API.
type Adapter struct {
	logger  *slog.Logger
	client  *http.Client
	baseURL string
}

// New creates a Business API adapter.
func New(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger:  log.With(slog.String("adapter", "wa-business")),
		client:  whatsapp.DefaultHTTPClient,
		baseURL: "https://graph.facebook.com",
	}
}

// Type returns the Business API platform identifier.
func (a *Adapter) Type() channel.Platform {
	return Type
}

// Descriptor returns the Business API channel metadata.
func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "WhatsApp Business API",
		OutboundPolicy: channel.OutboundPolicy{
			TextLimit:      whatsapp.TextLimit,
			RetryMax:       1,
			RetryBackoffMs: 2000,
		},
	}
}

// NormalizeConfig validates a Business API channel configuration map.
func (a *Adapter) NormalizeConfig(raw map[string]any) (map[string]any, error) {
	normalized := map[string]any{}
	for _, key := range []string{"accessToken", "phoneNumberId", "webhookToken", "appSecret", "graphVersion"} {
		if value, ok := raw[key].(string); ok && strings.TrimSpace(value) != "" {
			normalized[key] = strings.TrimSpace(value)
		}
	}
	if normalized["accessToken"] == nil {
		return nil, fmt.Errorf("wa-business accessToken is required")
	}
	if normalized["phoneNumberId"] == nil {
		return nil, fmt.Errorf("wa-business phoneNumberId is required")
	}
	if normalized["webhookToken"] == nil {
		return nil, fmt.Errorf("wa-business webhookToken is required")
	}
	return normalized, nil
}

func (a *Adapter) messagesURL(cfg channel.ChannelConfig) string {
	version := cfg.CredentialString("graphVersion")
	if version == "" {
		version = defaultGraphVersion
	}
	return fmt.Sprintf("%s/%s/%s/messages", a.baseURL, version, cfg.CredentialString("phoneNumberId"))
}

// Send delivers a text or interactive message through the deployment.
func (a *Adapter) Send(ctx context.Context, cfg channel.ChannelConfig, msg channel.OutboundMessage) error {
	accessToken := cfg.CredentialString("accessToken")
	if accessToken == "" || cfg.CredentialString("phoneNumberId") == "" {
		return fmt.Errorf("wa-business credentials are required")
	}
	to := whatsapp.NormalizePhone(msg.Target)
	if to == "" {
		return fmt.Errorf("wa-business target is required")
	}
	payload := whatsapp.BuildMessagePayload(to, msg.Text, msg.Buttons)
	headers := map[string]string{"Authorization": "Bearer " + accessToken}
	if err := whatsapp.PostJSON(ctx, a.client, Type, a.messagesURL(cfg), headers, payload); err != nil {
		return err
	}
	a.logger.Info("message sent", slog.String("config_id", cfg.ID), slog.String("to", to))
	return nil
}

// RoutingKey returns the receiving phone_number_id from the webhook body.
func (a *Adapter) RoutingKey(_ *http.Request, body []byte) (string, error) {
	return whatsapp.PhoneNumberID(body)
}

// VerifyWebhook checks the X-Hub-Signature-256 header when an app secret is
// configured. Deployments without a secret fall back to requiring the header
// to be present, matching what the API sends.
func (a *Adapter) VerifyWebhook(r *http.Request, body []byte, cfg channel.ChannelConfig) error {
	return whatsapp.VerifyHubSignature(r, body, cfg.CredentialString("appSecret"))
}

// ParseInbound extracts the normalized message from a webhook body. Button
// taps arrive as interactive button_reply payloads and surface as callbacks.
func (a *Adapter) ParseInbound(_ *http.Request, body []byte, cfg channel.ChannelConfig) (*channel.InboundMessage, error) {
	return whatsapp.ParseGraphInbound(Type, cfg, body)
}

// VerifyChallenge handles the hub.verify_token subscription handshake.
func (a *Adapter) VerifyChallenge(query url.Values, cfg channel.ChannelConfig) (string, error) {
	webhookToken := cfg.CredentialString("webhookToken")
	if webhookToken == "" {
		return "", channel.ErrWebhookUnauthorized
	}
	if query.Get("hub.mode") != "subscribe" || query.Get("hub.verify_token") != webhookToken {
		return "", channel.ErrWebhookUnauthorized
	}
	return query.Get("hub.challenge"), nil
}
