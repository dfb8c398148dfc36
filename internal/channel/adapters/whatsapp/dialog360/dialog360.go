// Package dialog360 implements the 360Dialog WhatsApp adapter. The API key
// travels in the D360-API-KEY header in both directions and doubles as the
// webhook routing key.
package dialog360

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/salemchat/salem/internal/channel"
	"github.com/salemchat/salem/internal/channel/adapters/whatsapp"
)

// Type is the platform identifier for this adapter.
const Type = channel.PlatformDialog360

const apiKeyHeader = "D360-API-KEY"

// Adapter implements channel.Adapter, channel.Sender, and
// channel.WebhookParser for 360Dialog.
type Adapter struct {
	logger  *slog.Logger
	client  *http.Client
	baseURL string
}

// New creates a 360Dialog adapter.
func New(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger:  log.With(slog.String("adapter", "dialog360")),
		client:  whatsapp.DefaultHTTPClient,
		baseURL: "https://waba.360dialog.io/v1",
	}
}

// Type returns the 360Dialog platform identifier.
func (a *Adapter) Type() channel.Platform {
	return Type
}

// Descriptor returns the 360Dialog channel metadata.
func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "360Dialog WhatsApp",
		OutboundPolicy: channel.OutboundPolicy{
			TextLimit:      whatsapp.TextLimit,
			RetryMax:       1,
			RetryBackoffMs: 2000,
		},
	}
}

// NormalizeConfig validates a 360Dialog channel configuration map.
func (a *Adapter) NormalizeConfig(raw map[string]any) (map[string]any, error) {
	apiKey, _ := raw["apiKey"].(string)
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("dialog360 apiKey is required")
	}
	return map[string]any{"apiKey": apiKey}, nil
}

// Send delivers a text or interactive message through the 360Dialog API.
func (a *Adapter) Send(ctx context.Context, cfg channel.ChannelConfig, msg channel.OutboundMessage) error {
	apiKey := cfg.CredentialString("apiKey")
	if apiKey == "" {
		return fmt.Errorf("dialog360 apiKey is required")
	}
	to := whatsapp.NormalizePhone(msg.Target)
	if to == "" {
		return fmt.Errorf("dialog360 target is required")
	}
	payload := whatsapp.BuildMessagePayload(to, msg.Text, msg.Buttons)
	// The v1 bridge predates the messaging_product field.
	delete(payload, "messaging_product")
	headers := map[string]string{apiKeyHeader: apiKey}
	if err := whatsapp.PostJSON(ctx, a.client, Type, a.baseURL+"/messages", headers, payload); err != nil {
		return err
	}
	a.logger.Info("message sent", slog.String("config_id", cfg.ID), slog.String("to", to))
	return nil
}

// RoutingKey returns the API key carried by the webhook request.
func (a *Adapter) RoutingKey(r *http.Request, _ []byte) (string, error) {
	key := strings.TrimSpace(r.Header.Get(apiKeyHeader))
	if key == "" {
		return "", channel.ErrRoutingKeyNotFound
	}
	return key, nil
}

// VerifyWebhook checks the webhook's API key against the config.
func (a *Adapter) VerifyWebhook(r *http.Request, _ []byte, cfg channel.ChannelConfig) error {
	apiKey := cfg.CredentialString("apiKey")
	received := strings.TrimSpace(r.Header.Get(apiKeyHeader))
	if apiKey == "" || received == "" {
		return channel.ErrWebhookUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(received)) != 1 {
		return channel.ErrWebhookUnauthorized
	}
	return nil
}

// ParseInbound extracts the normalized message from a webhook body.
func (a *Adapter) ParseInbound(_ *http.Request, body []byte, cfg channel.ChannelConfig) (*channel.InboundMessage, error) {
	return whatsapp.ParseGraphInbound(Type, cfg, body)
}
