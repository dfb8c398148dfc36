// Package whatsapp holds plumbing shared by the WhatsApp provider adapters:
// the Graph-style webhook payload model, interactive message building, and a
// JSON poster that maps provider failures onto retryable errors.
package whatsapp

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/salemchat/salem/internal/channel"
)

const (
	// MaxInteractiveButtons is the provider-side cap on reply buttons.
	MaxInteractiveButtons = 3
	// MaxButtonTitleLength is the provider-side cap on button titles.
	MaxButtonTitleLength = 20
	// TextLimit is the WhatsApp text body limit shared by all providers.
	TextLimit = 4096
)

// DefaultHTTPClient is used by adapters that are not given their own client.
var DefaultHTTPClient = &http.Client{Timeout: 30 * time.Second}

// GraphPayload models the webhook body shared by Meta Cloud API, the on-prem
// Business API, and 360Dialog's v1 bridge (which drops the entry envelope).
type GraphPayload struct {
	Object string       `json:"object"`
	Entry  []GraphEntry `json:"entry"`

	// 360Dialog delivers messages and contacts at the top level.
	Messages []GraphMessage `json:"messages"`
	Contacts []GraphContact `json:"contacts"`
}

type GraphEntry struct {
	ID      string        `json:"id"`
	Changes []GraphChange `json:"changes"`
}

type GraphChange struct {
	Field string     `json:"field"`
	Value GraphValue `json:"value"`
}

type GraphValue struct {
	Metadata GraphMetadata   `json:"metadata"`
	Messages []GraphMessage  `json:"messages"`
	Contacts []GraphContact  `json:"contacts"`
	Statuses json.RawMessage `json:"statuses"`
}

type GraphMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type GraphMessage struct {
	From        string            `json:"from"`
	ID          string            `json:"id"`
	Timestamp   string            `json:"timestamp"`
	Type        string            `json:"type"`
	Text        *GraphText        `json:"text"`
	Button      *GraphButton      `json:"button"`
	Interactive *GraphInteractive `json:"interactive"`
}

type GraphText struct {
	Body string `json:"body"`
}

type GraphButton struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

type GraphInteractive struct {
	Type        string            `json:"type"`
	ButtonReply *GraphButtonReply `json:"button_reply"`
}

type GraphButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type GraphContact struct {
	WaID    string       `json:"wa_id"`
	Profile GraphProfile `json:"profile"`
}

type GraphProfile struct {
	Name string `json:"name"`
}

// value returns the first change value, tolerating the 360Dialog flat shape.
func (p *GraphPayload) value() GraphValue {
	if len(p.Entry) > 0 && len(p.Entry[0].Changes) > 0 {
		return p.Entry[0].Changes[0].Value
	}
	return GraphValue{Messages: p.Messages, Contacts: p.Contacts}
}

// PhoneNumberID extracts the routing key from a Graph webhook body.
func PhoneNumberID(body []byte) (string, error) {
	var payload GraphPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode webhook body: %w", err)
	}
	id := strings.TrimSpace(payload.value().Metadata.PhoneNumberID)
	if id == "" {
		return "", channel.ErrRoutingKeyNotFound
	}
	return id, nil
}

// ParseGraphInbound extracts a normalized inbound message from a Graph webhook
// body. A nil message with nil error means the payload carries no user message
// (status updates, delivery receipts) and must be acknowledged silently.
func ParseGraphInbound(platform channel.Platform, cfg channel.ChannelConfig, body []byte) (*channel.InboundMessage, error) {
	var payload GraphPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode webhook body: %w", err)
	}
	value := payload.value()
	if len(value.Messages) == 0 {
		return nil, nil
	}
	message := value.Messages[0]
	from := strings.TrimSpace(message.From)
	if from == "" {
		return nil, nil
	}

	msg := channel.InboundMessage{
		Platform:          platform,
		ExternalUserID:    from,
		ChatID:            from,
		ProviderMessageID: strings.TrimSpace(message.ID),
		BusinessID:        cfg.BusinessID,
		ReceivedAt:        parseTimestamp(message.Timestamp),
	}
	if len(value.Contacts) > 0 {
		msg.SenderName = strings.TrimSpace(value.Contacts[0].Profile.Name)
	}

	switch {
	case message.Interactive != nil && message.Interactive.ButtonReply != nil:
		msg.CallbackData = strings.TrimSpace(message.Interactive.ButtonReply.ID)
		msg.Text = strings.TrimSpace(message.Interactive.ButtonReply.Title)
	case message.Button != nil:
		msg.CallbackData = strings.TrimSpace(message.Button.Payload)
		msg.Text = strings.TrimSpace(message.Button.Text)
	case message.Text != nil:
		msg.Text = strings.TrimSpace(message.Text.Body)
	}
	if msg.Text == "" && msg.CallbackData == "" {
		return nil, nil
	}
	return &msg, nil
}

func parseTimestamp(raw string) time.Time {
	seconds, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || seconds <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(seconds, 0).UTC()
}

// NormalizePhone strips the transport prefix and surrounding spaces from a
// phone-style address ("whatsapp:+7701..." becomes "+7701...").
func NormalizePhone(raw string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "whatsapp:"))
}

// BuildMessagePayload builds the provider message body. Callback buttons are
// rendered as interactive reply buttons; URL buttons cannot be expressed as
// reply buttons and are appended to the text instead.
func BuildMessagePayload(to, text string, buttons []channel.Button) map[string]any {
	replies := make([]map[string]any, 0, MaxInteractiveButtons)
	var extraLines []string
	for _, button := range buttons {
		if button.Action == channel.ButtonActionURL {
			extraLines = append(extraLines, button.Label+": "+button.Data)
			continue
		}
		if len(replies) == MaxInteractiveButtons {
			continue
		}
		replies = append(replies, map[string]any{
			"type": "reply",
			"reply": map[string]any{
				"id":    button.Data,
				"title": TruncateButtonTitle(button.Label),
			},
		})
	}
	if len(extraLines) > 0 {
		text = strings.TrimSpace(text + "\n\n" + strings.Join(extraLines, "\n"))
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
	}
	if len(replies) == 0 {
		payload["type"] = "text"
		payload["text"] = map[string]any{"body": text}
		return payload
	}
	payload["type"] = "interactive"
	payload["interactive"] = map[string]any{
		"type":   "button",
		"body":   map[string]any{"text": text},
		"action": map[string]any{"buttons": replies},
	}
	return payload
}

// TruncateButtonTitle cuts a button title to the provider limit on a rune
// boundary.
func TruncateButtonTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= MaxButtonTitleLength {
		return title
	}
	return string(runes[:MaxButtonTitleLength])
}

// PostJSON sends a JSON payload and maps non-2xx responses onto ProviderError
// so the outbound retry policy can classify them.
func PostJSON(ctx context.Context, client *http.Client, platform channel.Platform, url string, headers map[string]string, payload any) error {
	if client == nil {
		client = DefaultHTTPClient
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &channel.ProviderError{
		Platform:   platform,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(detail)),
	}
}

// VerifyHubSignature authenticates a Graph webhook POST via the
// X-Hub-Signature-256 header. With an app secret the HMAC over the raw body
// must match; without one the header must at least be present. A request that
// fails either check is rejected.
func VerifyHubSignature(r *http.Request, body []byte, appSecret string) error {
	signature := strings.TrimSpace(r.Header.Get("X-Hub-Signature-256"))
	if signature == "" {
		return channel.ErrWebhookUnauthorized
	}
	if appSecret == "" {
		return nil
	}
	signature = strings.TrimPrefix(signature, "sha256=")
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return channel.ErrWebhookUnauthorized
	}
	return nil
}
