package twilio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/salemchat/salem/internal/channel"
)

func twilioConfig() channel.ChannelConfig {
	return channel.ChannelConfig{
		ID:         "biz:twilio",
		BusinessID: "biz",
		Platform:   Type,
		Credentials: map[string]any{
			"accountSid": "AC123",
			"authToken":  "secret-token",
			"fromNumber": "+15005550006",
		},
	}
}

func inboundForm() url.Values {
	form := url.Values{}
	form.Set("From", "whatsapp:+77051234567")
	form.Set("To", "whatsapp:+15005550006")
	form.Set("Body", "привет")
	form.Set("MessageSid", "SM123")
	form.Set("ProfileName", "Aidar")
	return form
}

func TestRoutingKeyStripsPrefix(t *testing.T) {
	t.Parallel()
	a := New(slog.Default())
	key, err := a.RoutingKey(nil, []byte(inboundForm().Encode()))
	if err != nil {
		t.Fatalf("routing key: %v", err)
	}
	if key != "+15005550006" {
		t.Fatalf("unexpected key %q", key)
	}
	if _, err := a.RoutingKey(nil, []byte("Body=hi")); !errors.Is(err, channel.ErrRoutingKeyNotFound) {
		t.Fatalf("expected ErrRoutingKeyNotFound, got %v", err)
	}
}

func TestParseInbound(t *testing.T) {
	t.Parallel()
	a := New(slog.Default())
	msg, err := a.ParseInbound(nil, []byte(inboundForm().Encode()), twilioConfig())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg == nil {
		t.Fatalf("expected actionable message")
	}
	if msg.ExternalUserID != "+77051234567" || msg.Text != "привет" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.SenderName != "Aidar" || msg.ProviderMessageID != "SM123" {
		t.Fatalf("unexpected meta: %+v", msg)
	}
}

func TestParseInboundIgnoresStatusCallbacks(t *testing.T) {
	t.Parallel()
	a := New(slog.Default())
	form := url.Values{}
	form.Set("MessageSid", "SM123")
	form.Set("MessageStatus", "delivered")
	msg, err := a.ParseInbound(nil, []byte(form.Encode()), twilioConfig())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg != nil {
		t.Fatalf("status callback must not be actionable, got %+v", msg)
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	t.Parallel()
	a := New(slog.Default())
	body := inboundForm().Encode()
	form, _ := url.ParseQuery(body)

	req := httptest.NewRequest(http.MethodPost, "https://bot.example.kz/webhook/whatsapp/twilio", strings.NewReader(body))
	req.Host = "bot.example.kz"
	req.Header.Set("X-Twilio-Signature", computeSignature("secret-token", "https://bot.example.kz/webhook/whatsapp/twilio", form))
	if err := a.VerifyWebhook(req, []byte(body), twilioConfig()); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}

	req.Header.Set("X-Twilio-Signature", "forged")
	if err := a.VerifyWebhook(req, []byte(body), twilioConfig()); !errors.Is(err, channel.ErrWebhookUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	req.Header.Del("X-Twilio-Signature")
	if err := a.VerifyWebhook(req, []byte(body), twilioConfig()); !errors.Is(err, channel.ErrWebhookUnauthorized) {
		t.Fatalf("expected unauthorized for missing signature, got %v", err)
	}
}

func TestSendPostsFormWithBasicAuth(t *testing.T) {
	t.Parallel()
	var gotPath, gotUser, gotPass string
	var gotForm url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		raw, _ := io.ReadAll(r.Body)
		gotForm, _ = url.ParseQuery(string(raw))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	a := New(slog.Default())
	a.baseURL = server.URL
	a.client = server.Client()

	err := a.Send(context.Background(), twilioConfig(), channel.OutboundMessage{
		Target: "+77051234567",
		Text:   "Здравствуйте!",
		Buttons: []channel.Button{
			{Label: "💬 Менеджер", Action: channel.ButtonActionCallback, Data: "manager"},
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/2010-04-01/Accounts/AC123/Messages.json" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotUser != "AC123" || gotPass != "secret-token" {
		t.Fatalf("unexpected basic auth %q:%q", gotUser, gotPass)
	}
	if gotForm.Get("From") != "whatsapp:+15005550006" || gotForm.Get("To") != "whatsapp:+77051234567" {
		t.Fatalf("unexpected addressing: %v", gotForm)
	}
	if !strings.Contains(gotForm.Get("Body"), "• 💬 Менеджер") {
		t.Fatalf("expected button line appended, got %q", gotForm.Get("Body"))
	}
}

func TestSendMapsProviderFailures(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	a := New(slog.Default())
	a.baseURL = server.URL
	a.client = server.Client()

	err := a.Send(context.Background(), twilioConfig(), channel.OutboundMessage{Target: "+77051234567", Text: "x"})
	if !channel.IsRetryable(err) {
		t.Fatalf("expected retryable provider error, got %v", err)
	}
}
