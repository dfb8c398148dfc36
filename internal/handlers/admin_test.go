package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/salemchat/salem/internal/auth"
	"github.com/salemchat/salem/internal/business"
	"github.com/salemchat/salem/internal/channel"
	"github.com/salemchat/salem/internal/channel/adapters/local"
	"github.com/salemchat/salem/internal/history"
	"github.com/salemchat/salem/internal/leads"
	"github.com/salemchat/salem/internal/payments"
)

const testJWTSecret = "test-secret"

type fakeBusinessStore struct {
	configs map[string]business.Config
}

func (f *fakeBusinessStore) Get(_ context.Context, businessID string) (business.Config, error) {
	cfg, ok := f.configs[businessID]
	if !ok {
		return business.Config{}, business.ErrBusinessNotFound
	}
	return cfg, nil
}

func (f *fakeBusinessStore) List(context.Context) ([]business.Config, error) {
	var configs []business.Config
	for _, cfg := range f.configs {
		configs = append(configs, cfg)
	}
	return configs, nil
}

func (f *fakeBusinessStore) Upsert(_ context.Context, cfg business.Config) (business.Config, error) {
	if f.configs == nil {
		f.configs = map[string]business.Config{}
	}
	f.configs[cfg.BusinessID] = cfg
	return cfg, nil
}

func (f *fakeBusinessStore) Delete(_ context.Context, businessID string) error {
	if _, ok := f.configs[businessID]; !ok {
		return business.ErrBusinessNotFound
	}
	delete(f.configs, businessID)
	return nil
}

type fakeHistoryStore struct {
	entries []history.Entry
}

func (f *fakeHistoryStore) ListRecent(_ context.Context, businessID string, limit int) ([]history.Entry, error) {
	return f.entries, nil
}

func (f *fakeHistoryStore) LastN(_ context.Context, businessID, platform, userID string, n int) ([]history.Entry, error) {
	var filtered []history.Entry
	for _, entry := range f.entries {
		if entry.Platform == platform && entry.UserID == userID {
			filtered = append(filtered, entry)
		}
	}
	return filtered, nil
}

type fakeLeadStore struct {
	items []leads.Lead
}

func (f *fakeLeadStore) List(context.Context, string, int) ([]leads.Lead, error) {
	return f.items, nil
}

type fakePaymentStore struct {
	items []payments.Payment
}

func (f *fakePaymentStore) ListByUser(context.Context, string, string) ([]payments.Payment, error) {
	return f.items, nil
}

// echoProcessor replies to every message through the capture adapter, the way
// the real router replies through the channel manager.
type echoProcessor struct {
	capture *local.Adapter
}

func (p *echoProcessor) HandleInbound(ctx context.Context, cfg channel.ChannelConfig, msg channel.InboundMessage) error {
	return p.capture.Send(ctx, cfg, channel.OutboundMessage{
		Target: msg.ChatID,
		Text:   "Здравствуйте! Чем могу помочь?",
	})
}

type adminFixture struct {
	echo      *echo.Echo
	store     *fakeBusinessStore
	histories *fakeHistoryStore
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	store := &fakeBusinessStore{configs: map[string]business.Config{
		"construct_shop": {
			BusinessID:   "construct_shop",
			BusinessName: "СтройМаркет",
		},
	}}
	histories := &fakeHistoryStore{entries: []history.Entry{
		{ID: 1, BusinessID: "construct_shop", Platform: "telegram", UserID: "u1", Message: "привет"},
	}}
	capture := local.New(slog.Default())

	e := echo.New()
	e.Use(auth.JWTMiddleware(testJWTSecret, nil))
	h := NewAdminHandler(slog.Default(), store, histories,
		&fakeLeadStore{items: []leads.Lead{{BusinessID: "construct_shop", Status: "new"}}},
		&fakePaymentStore{items: []payments.Payment{{PaymentID: "pay-1", Status: payments.StatusPending}}},
		&echoProcessor{capture: capture}, capture)
	h.Register(e)
	return &adminFixture{echo: e, store: store, histories: histories}
}

func (f *adminFixture) request(t *testing.T, method, path, businessScope string, body string) *httptest.ResponseRecorder {
	t.Helper()
	token, _, err := auth.GenerateToken("admin-1", businessScope, testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+token)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func TestAdminRequiresJWT(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/configs", nil)
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestAdminConfigCRUD(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)

	rec := f.request(t, http.MethodPost, "/admin/configs", "", `{
		"business_id": "flower_shop",
		"business_name": "Гүлдер",
		"whatsapp_enabled": true,
		"whatsapp_provider": "wa-cloud",
		"whatsapp_config": {"accessToken": "t", "phoneNumberId": "111"},
		"routing_key": "111"
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = f.request(t, http.MethodGet, "/admin/configs/flower_shop", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get failed: %d", rec.Code)
	}
	var cfg business.Config
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.BusinessName != "Гүлдер" || cfg.RoutingKey != "111" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	rec = f.request(t, http.MethodDelete, "/admin/configs/flower_shop", "", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete failed: %d", rec.Code)
	}
	rec = f.request(t, http.MethodGet, "/admin/configs/flower_shop", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestAdminUpsertValidation(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)

	rec := f.request(t, http.MethodPost, "/admin/configs", "", `{"business_name": "Без ID"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing business_id, got %d", rec.Code)
	}

	rec = f.request(t, http.MethodPost, "/admin/configs", "", `{
		"business_id": "x",
		"business_name": "X",
		"whatsapp_provider": "carrier-pigeon",
		"routing_key": "1"
	}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown provider, got %d", rec.Code)
	}
}

func TestAdminScopedTokenIsConfined(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)

	rec := f.request(t, http.MethodGet, "/admin/configs/construct_shop", "flower_shop", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign business, got %d", rec.Code)
	}

	rec = f.request(t, http.MethodGet, "/admin/configs/construct_shop", "construct_shop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for own business, got %d", rec.Code)
	}
}

func TestAdminHistoryAndLeads(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)

	rec := f.request(t, http.MethodGet, "/admin/history/construct_shop?user_id=u1&platform=telegram", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history failed: %d", rec.Code)
	}
	var entries []history.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].Message != "привет" {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	rec = f.request(t, http.MethodGet, "/admin/leads/construct_shop", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("leads failed: %d", rec.Code)
	}

	rec = f.request(t, http.MethodGet, "/admin/payments/construct_shop/u1", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("payments failed: %d", rec.Code)
	}
}

func TestAdminTestMessageReturnsReplies(t *testing.T) {
	t.Parallel()
	f := newAdminFixture(t)

	rec := f.request(t, http.MethodPost, "/admin/test-message", "", `{
		"business_id": "construct_shop",
		"user_id": "tester-1",
		"text": "привет"
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("test message failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp TestMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Replies) != 1 || !strings.Contains(resp.Replies[0].Text, "Здравствуйте") {
		t.Fatalf("unexpected replies: %+v", resp.Replies)
	}
}
