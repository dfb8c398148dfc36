// Package channel provides a unified abstraction for multi-platform messaging channels.
// It defines types, interfaces, and a registry for channel adapters such as Telegram
// and the WhatsApp provider family.
package channel

import (
	"strings"
	"time"
)

// Platform identifies a messaging platform (e.g., "telegram", "wa-cloud").
type Platform string

const (
	PlatformTelegram      Platform = "telegram"
	PlatformWhatsAppCloud Platform = "wa-cloud"
	PlatformTwilio        Platform = "twilio"
	PlatformDialog360     Platform = "dialog360"
	PlatformWABusiness    Platform = "wa-business"
	// PlatformTest is a loopback platform used by the admin test-message endpoint.
	PlatformTest Platform = "test"
)

// String returns the platform as a plain string.
func (p Platform) String() string {
	return string(p)
}

// ConversationKey identifies one end user on one platform. All processing for a
// key is serialized by the router.
type ConversationKey struct {
	Platform       Platform
	ExternalUserID string
}

// String returns the stable storage form "platform_userID".
func (k ConversationKey) String() string {
	return string(k.Platform) + "_" + k.ExternalUserID
}

// IsZero reports whether the key is missing either component.
func (k ConversationKey) IsZero() bool {
	return strings.TrimSpace(string(k.Platform)) == "" || strings.TrimSpace(k.ExternalUserID) == ""
}

// InboundMessage is a normalized message received from any platform.
type InboundMessage struct {
	Platform          Platform
	ExternalUserID    string
	ChatID            string
	Text              string
	CallbackData      string
	ProviderMessageID string
	BusinessID        string
	SenderName        string
	ReceivedAt        time.Time
	Raw               map[string]any
}

// Key returns the conversation key for this message.
func (m InboundMessage) Key() ConversationKey {
	return ConversationKey{Platform: m.Platform, ExternalUserID: m.ExternalUserID}
}

// IsCallback reports whether the message is a button press rather than text.
func (m InboundMessage) IsCallback() bool {
	return strings.TrimSpace(m.CallbackData) != ""
}

// ButtonAction describes how a button behaves when pressed.
type ButtonAction string

const (
	ButtonActionCallback ButtonAction = "callback"
	ButtonActionURL      ButtonAction = "url"
)

// Button is an interactive element attached to an outbound message.
type Button struct {
	Label  string       `json:"label"`
	Action ButtonAction `json:"action"`
	Data   string       `json:"data"`
}

// OutboundMessage pairs a delivery target with reply content.
type OutboundMessage struct {
	Target  string   `json:"target"`
	Text    string   `json:"text"`
	Buttons []Button `json:"buttons,omitempty"`
}

// IsEmpty reports whether the message carries no content.
func (m OutboundMessage) IsEmpty() bool {
	return strings.TrimSpace(m.Text) == "" && len(m.Buttons) == 0
}

// ChannelConfig holds one business's integration with one platform.
// Disabled: true means the channel is stopped; false means enabled.
type ChannelConfig struct {
	ID          string         `json:"id"`
	BusinessID  string         `json:"business_id"`
	Platform    Platform       `json:"platform"`
	Credentials map[string]any `json:"credentials"`
	// RoutingKey is the provider-side identifier that inbound webhooks are
	// matched against (phone_number_id, destination number, API key).
	RoutingKey string    `json:"routing_key"`
	Disabled   bool      `json:"disabled"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CredentialString returns the trimmed string value for the given credentials key.
func (c ChannelConfig) CredentialString(key string) string {
	if c.Credentials == nil {
		return ""
	}
	raw, ok := c.Credentials[key]
	if !ok || raw == nil {
		return ""
	}
	value, ok := raw.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}
