package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/salemchat/salem/internal/business"
	"github.com/salemchat/salem/internal/channel"
	wabusiness "github.com/salemchat/salem/internal/channel/adapters/whatsapp/business"
	"github.com/salemchat/salem/internal/channel/adapters/whatsapp/cloud"
	"github.com/salemchat/salem/internal/channel/adapters/whatsapp/dialog360"
)

type fakeResolver struct {
	configs []business.Config
}

func (f *fakeResolver) ResolveByRoutingKey(_ context.Context, platform channel.Platform, routingKey string) (business.Config, error) {
	for _, cfg := range f.configs {
		if strings.EqualFold(cfg.WhatsAppProvider, platform.String()) && cfg.RoutingKey == routingKey {
			return cfg, nil
		}
	}
	return business.Config{}, business.ErrBusinessNotFound
}

func (f *fakeResolver) ListEnabledConfigs(context.Context) ([]channel.ChannelConfig, error) {
	var channels []channel.ChannelConfig
	for _, cfg := range f.configs {
		channels = append(channels, cfg.ChannelConfigs()...)
	}
	return channels, nil
}

type fakeProcessor struct {
	received chan channel.InboundMessage
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{received: make(chan channel.InboundMessage, 4)}
}

func (f *fakeProcessor) HandleInbound(_ context.Context, _ channel.ChannelConfig, msg channel.InboundMessage) error {
	f.received <- msg
	return nil
}

func (f *fakeProcessor) wait(t *testing.T) channel.InboundMessage {
	t.Helper()
	select {
	case msg := <-f.received:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("no message processed")
		return channel.InboundMessage{}
	}
}

func (f *fakeProcessor) expectNone(t *testing.T) {
	t.Helper()
	select {
	case msg := <-f.received:
		t.Fatalf("unexpected message processed: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func webhookTestRegistry() *channel.Registry {
	registry := channel.NewRegistry()
	registry.MustRegister(cloud.New(slog.Default()))
	registry.MustRegister(dialog360.New(slog.Default()))
	registry.MustRegister(wabusiness.New(slog.Default()))
	return registry
}

func dialogBusiness() business.Config {
	return business.Config{
		BusinessID:       "construct_shop",
		BusinessName:     "СтройМаркет",
		WhatsAppEnabled:  true,
		WhatsAppProvider: "dialog360",
		WhatsAppConfig:   map[string]any{"apiKey": "d360-key"},
		RoutingKey:       "d360-key",
	}
}

func graphBusiness() business.Config {
	return business.Config{
		BusinessID:       "construct_shop",
		BusinessName:     "СтройМаркет",
		WhatsAppEnabled:  true,
		WhatsAppProvider: "wa-business",
		WhatsAppConfig: map[string]any{
			"accessToken":   "token-1",
			"phoneNumberId": "999888777",
			"webhookToken":  "hook-secret",
			"appSecret":     "app-secret",
		},
		RoutingKey: "999888777",
	}
}

func newWebhookEcho(resolver *fakeResolver, processor *fakeProcessor) *echo.Echo {
	e := echo.New()
	h := NewWebhookHandler(slog.Default(), webhookTestRegistry(), resolver, processor)
	h.Register(e)
	return e
}

func TestReceiveDialog360RoutesByAPIKey(t *testing.T) {
	t.Parallel()
	processor := newFakeProcessor()
	e := newWebhookEcho(&fakeResolver{configs: []business.Config{dialogBusiness()}}, processor)

	body := `{"messages":[{"from":"77051234567","id":"d1","type":"text","text":{"body":"цемент"}}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp/dialog360", strings.NewReader(body))
	req.Header.Set("D360-API-KEY", "d360-key")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	msg := processor.wait(t)
	if msg.BusinessID != "construct_shop" {
		t.Fatalf("expected business id stamped, got %q", msg.BusinessID)
	}
	if msg.Text != "цемент" {
		t.Fatalf("unexpected text %q", msg.Text)
	}
}

func TestReceiveUnmappedRoutingKeyIsDropped(t *testing.T) {
	t.Parallel()
	processor := newFakeProcessor()
	e := newWebhookEcho(&fakeResolver{}, processor)

	body := `{"messages":[{"from":"77051234567","id":"d1","type":"text","text":{"body":"цемент"}}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp/dialog360", strings.NewReader(body))
	req.Header.Set("D360-API-KEY", "unknown-key")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("provider must still get 200 for unmapped keys, got %d", rec.Code)
	}
	processor.expectNone(t)
}

func TestReceiveForgedSignatureRejected(t *testing.T) {
	t.Parallel()
	processor := newFakeProcessor()
	e := newWebhookEcho(&fakeResolver{configs: []business.Config{graphBusiness()}}, processor)

	body := `{"entry":[{"changes":[{"value":{
		"metadata":{"phone_number_id":"999888777"},
		"messages":[{"from":"77051234567","id":"wamid.1","type":"text","text":{"body":"привет"}}]
	}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp/wa-business", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	processor.expectNone(t)
}

func TestReceiveValidSignatureProcessed(t *testing.T) {
	t.Parallel()
	processor := newFakeProcessor()
	e := newWebhookEcho(&fakeResolver{configs: []business.Config{graphBusiness()}}, processor)

	body := `{"entry":[{"changes":[{"value":{"metadata":{"phone_number_id":"999888777"},"messages":[{"from":"77051234567","id":"wamid.1","type":"text","text":{"body":"привет"}}]}}]}]}`
	mac := hmac.New(sha256.New, []byte("app-secret"))
	mac.Write([]byte(body))
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp/wa-business", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	msg := processor.wait(t)
	if msg.Text != "привет" || msg.ExternalUserID != "77051234567" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestReceiveStatusUpdateAcknowledgedWithoutProcessing(t *testing.T) {
	t.Parallel()
	processor := newFakeProcessor()
	e := newWebhookEcho(&fakeResolver{configs: []business.Config{graphBusiness()}}, processor)

	body := `{"entry":[{"changes":[{"value":{"metadata":{"phone_number_id":"999888777"},"statuses":[{"id":"wamid.1","status":"delivered"}]}}]}]}`
	mac := hmac.New(sha256.New, []byte("app-secret"))
	mac.Write([]byte(body))
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp/wa-business", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	processor.expectNone(t)
}

func TestVerifyChallengeEchoesForKnownToken(t *testing.T) {
	t.Parallel()
	cfg := graphBusiness()
	cfg.WhatsAppProvider = "wa-cloud"
	cfg.WhatsAppConfig = map[string]any{
		"accessToken":   "token-1",
		"phoneNumberId": "111222333",
		"verifyToken":   "hook-secret",
	}
	e := newWebhookEcho(&fakeResolver{configs: []business.Config{cfg}}, newFakeProcessor())

	req := httptest.NewRequest(http.MethodGet,
		"/webhook/wa-cloud?hub.mode=subscribe&hub.verify_token=hook-secret&hub.challenge=42", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "42" {
		t.Fatalf("expected challenge echo, got %d %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet,
		"/webhook/wa-cloud?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for bad verify token, got %d", rec.Code)
	}
}

func TestUnknownProviderIs404(t *testing.T) {
	t.Parallel()
	e := newWebhookEcho(&fakeResolver{}, newFakeProcessor())
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp/smoke-signals", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
