// Package business manages per-tenant bot configuration: which channels are
// enabled, provider credentials, AI prompt and model, and manager contacts.
package business

import (
	"errors"
	"strings"
	"time"

	"github.com/salemchat/salem/internal/channel"
)

// ErrBusinessNotFound is returned when no config exists for a business ID.
var ErrBusinessNotFound = errors.New("business not found")

// Config is one tenant's bot configuration.
type Config struct {
	BusinessID   string `json:"business_id"`
	BusinessName string `json:"business_name"`
	BusinessType string `json:"business_type"`
	SystemPrompt string `json:"system_prompt"`
	AIModel      string `json:"ai_model"`

	TelegramEnabled bool   `json:"telegram_enabled"`
	TelegramToken   string `json:"telegram_token,omitempty"`

	WhatsAppEnabled bool `json:"whatsapp_enabled"`
	// WhatsAppProvider selects the WhatsApp transport: twilio, wa-cloud,
	// dialog360, or wa-business.
	WhatsAppProvider string `json:"whatsapp_provider,omitempty"`
	// WhatsAppConfig holds provider-specific credentials (tokens, phone
	// number IDs, API keys).
	WhatsAppConfig map[string]any `json:"whatsapp_config,omitempty"`
	// RoutingKey is the provider-side identifier inbound webhooks carry
	// (phone_number_id, destination number, API key).
	RoutingKey string `json:"routing_key,omitempty"`

	KaspiMerchantID   string `json:"kaspi_merchant_id,omitempty"`
	HalykIIN          string `json:"halyk_iin,omitempty"`
	ManagerTelegramID string `json:"manager_telegram_id,omitempty"`
	ManagerWhatsApp   string `json:"manager_whatsapp,omitempty"`

	// LanguageDetection enables automatic language switching on confident
	// detections. Manual selection via the language keyboard always works.
	LanguageDetection bool `json:"language_detection"`
	// SalesFunnel enables the three-question qualification flow.
	SalesFunnel bool `json:"sales_funnel"`
	// QRPayments enables QR invoice generation from the pay button.
	QRPayments bool `json:"qr_payments"`

	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Model returns the configured AI model or the default.
func (c Config) Model() string {
	if model := strings.TrimSpace(c.AIModel); model != "" {
		return model
	}
	return "gpt-4o"
}

// ChannelConfigs projects the business config into per-platform channel
// configs consumed by the channel manager and webhook handlers.
func (c Config) ChannelConfigs() []channel.ChannelConfig {
	var configs []channel.ChannelConfig
	if c.TelegramEnabled && strings.TrimSpace(c.TelegramToken) != "" {
		configs = append(configs, channel.ChannelConfig{
			ID:         c.BusinessID + ":telegram",
			BusinessID: c.BusinessID,
			Platform:   channel.PlatformTelegram,
			Credentials: map[string]any{
				"botToken": c.TelegramToken,
			},
			Disabled:  c.Disabled,
			UpdatedAt: c.UpdatedAt,
		})
	}
	if c.WhatsAppEnabled {
		platform := channel.Platform(strings.TrimSpace(strings.ToLower(c.WhatsAppProvider)))
		if platform != "" {
			credentials := map[string]any{}
			for key, value := range c.WhatsAppConfig {
				credentials[key] = value
			}
			configs = append(configs, channel.ChannelConfig{
				ID:          c.BusinessID + ":" + platform.String(),
				BusinessID:  c.BusinessID,
				Platform:    platform,
				Credentials: credentials,
				RoutingKey:  c.RoutingKey,
				Disabled:    c.Disabled,
				UpdatedAt:   c.UpdatedAt,
			})
		}
	}
	return configs
}

// TelegramChannelConfig returns the telegram channel config when telegram is
// enabled. Used for manager escalation notifications.
func (c Config) TelegramChannelConfig() (channel.ChannelConfig, bool) {
	for _, cfg := range c.ChannelConfigs() {
		if cfg.Platform == channel.PlatformTelegram {
			return cfg, true
		}
	}
	return channel.ChannelConfig{}, false
}
