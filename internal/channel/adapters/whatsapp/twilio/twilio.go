// Package twilio implements the Twilio WhatsApp adapter. Inbound webhooks are
// form encoded; outbound goes through the Twilio REST API with basic auth.
package twilio

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/salemchat/salem/internal/channel"
	"github.com/salemchat/salem/internal/channel/adapters/whatsapp"
)

// Type is the platform identifier for this adapter.
const Type = channel.PlatformTwilio

// Adapter implements channel.Adapter, channel.Sender, and
// channel.WebhookParser for Twilio's WhatsApp transport.
type Adapter struct {
	logger  *slog.Logger
	client  *http.Client
	baseURL string
}

// New creates a Twilio adapter.
func New(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger:  log.With(slog.String("adapter", "twilio")),
		client:  whatsapp.DefaultHTTPClient,
		baseURL: "https://api.twilio.com",
	}
}

// Type returns the Twilio platform identifier.
func (a *Adapter) Type() channel.Platform {
	return Type
}

// Descriptor returns the Twilio channel metadata.
func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Twilio WhatsApp",
		OutboundPolicy: channel.OutboundPolicy{
			// Twilio splits longer bodies into segments; stay under one segment
			// chain limit.
			TextLimit:      1600,
			RetryMax:       1,
			RetryBackoffMs: 2000,
		},
	}
}

// NormalizeConfig validates a Twilio channel configuration map.
func (a *Adapter) NormalizeConfig(raw map[string]any) (map[string]any, error) {
	normalized := map[string]any{}
	for _, key := range []string{"accountSid", "authToken", "fromNumber"} {
		value, _ := raw[key].(string)
		value = strings.TrimSpace(value)
		if value == "" {
			return nil, fmt.Errorf("twilio %s is required", key)
		}
		normalized[key] = value
	}
	return normalized, nil
}

// Send delivers a message through the Twilio REST API. Twilio's WhatsApp
// transport has no interactive reply buttons, so button labels are appended
// to the body as plain lines.
func (a *Adapter) Send(ctx context.Context, cfg channel.ChannelConfig, msg channel.OutboundMessage) error {
	accountSid := cfg.CredentialString("accountSid")
	authToken := cfg.CredentialString("authToken")
	fromNumber := cfg.CredentialString("fromNumber")
	if accountSid == "" || authToken == "" || fromNumber == "" {
		return fmt.Errorf("twilio credentials are required")
	}
	to := whatsapp.NormalizePhone(msg.Target)
	if to == "" {
		return fmt.Errorf("twilio target is required")
	}

	body := msg.Text
	if lines := buttonLines(msg.Buttons); lines != "" {
		body = strings.TrimSpace(body + "\n\n" + lines)
	}
	form := url.Values{}
	form.Set("From", "whatsapp:"+fromNumber)
	form.Set("To", "whatsapp:"+to)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", a.baseURL, accountSid)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(accountSid, authToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		a.logger.Info("message sent", slog.String("config_id", cfg.ID), slog.String("to", to))
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &channel.ProviderError{
		Platform:   Type,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(detail)),
	}
}

func buttonLines(buttons []channel.Button) string {
	var lines []string
	for _, button := range buttons {
		if button.Action == channel.ButtonActionURL {
			lines = append(lines, button.Label+": "+button.Data)
			continue
		}
		lines = append(lines, "• "+button.Label)
	}
	return strings.Join(lines, "\n")
}

// RoutingKey returns the receiving WhatsApp number from the form body.
func (a *Adapter) RoutingKey(_ *http.Request, body []byte) (string, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return "", fmt.Errorf("decode form body: %w", err)
	}
	to := whatsapp.NormalizePhone(form.Get("To"))
	if to == "" {
		return "", channel.ErrRoutingKeyNotFound
	}
	return to, nil
}

// VerifyWebhook checks the X-Twilio-Signature header: base64 HMAC-SHA1 of the
// full request URL with the sorted form parameters appended, keyed by the
// account auth token.
func (a *Adapter) VerifyWebhook(r *http.Request, body []byte, cfg channel.ChannelConfig) error {
	authToken := cfg.CredentialString("authToken")
	signature := strings.TrimSpace(r.Header.Get("X-Twilio-Signature"))
	if authToken == "" || signature == "" {
		return channel.ErrWebhookUnauthorized
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return channel.ErrWebhookUnauthorized
	}
	expected := computeSignature(authToken, requestURL(r), form)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return channel.ErrWebhookUnauthorized
	}
	return nil
}

func requestURL(r *http.Request) string {
	scheme := "https"
	if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto != "" {
		scheme = proto
	} else if r.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func computeSignature(authToken, requestURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for key := range form {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	payload := requestURL
	for _, key := range keys {
		payload += key + form.Get(key)
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ParseInbound extracts the normalized message from a form-encoded webhook.
func (a *Adapter) ParseInbound(_ *http.Request, body []byte, cfg channel.ChannelConfig) (*channel.InboundMessage, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("decode form body: %w", err)
	}
	from := whatsapp.NormalizePhone(form.Get("From"))
	text := strings.TrimSpace(form.Get("Body"))
	if from == "" || text == "" {
		// Status callbacks carry MessageStatus but no body.
		return nil, nil
	}
	return &channel.InboundMessage{
		Platform:          Type,
		ExternalUserID:    from,
		ChatID:            from,
		Text:              text,
		ProviderMessageID: strings.TrimSpace(form.Get("MessageSid")),
		BusinessID:        cfg.BusinessID,
		SenderName:        strings.TrimSpace(form.Get("ProfileName")),
		ReceivedAt:        time.Now().UTC(),
	}, nil
}
