package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/salemchat/salem/internal/payments"
)

type fakeStatusUpdater struct {
	updates map[string]payments.Status
}

func (f *fakeStatusUpdater) UpdateStatus(_ context.Context, paymentID string, status payments.Status) error {
	if _, ok := f.updates[paymentID]; !ok {
		return payments.ErrPaymentNotFound
	}
	f.updates[paymentID] = status
	return nil
}

func postCallback(t *testing.T, updater *fakeStatusUpdater, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	NewPaymentsHandler(slog.Default(), updater).Register(e)
	req := httptest.NewRequest(http.MethodPost, "/payments/callback", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestPaymentCallbackUpdatesStatus(t *testing.T) {
	t.Parallel()
	updater := &fakeStatusUpdater{updates: map[string]payments.Status{"pay-1": payments.StatusPending}}
	rec := postCallback(t, updater, `{"paymentId": "pay-1", "status": "completed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if updater.updates["pay-1"] != payments.StatusCompleted {
		t.Fatalf("status not updated: %v", updater.updates)
	}
}

func TestPaymentCallbackUnknownInvoice(t *testing.T) {
	t.Parallel()
	updater := &fakeStatusUpdater{updates: map[string]payments.Status{}}
	rec := postCallback(t, updater, `{"paymentId": "missing", "status": "completed"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPaymentCallbackRejectsBadPayloads(t *testing.T) {
	t.Parallel()
	updater := &fakeStatusUpdater{updates: map[string]payments.Status{"pay-1": payments.StatusPending}}

	rec := postCallback(t, updater, `{"status": "completed"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing paymentId, got %d", rec.Code)
	}

	rec = postCallback(t, updater, `{"paymentId": "pay-1", "status": "teleported"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
	if updater.updates["pay-1"] != payments.StatusPending {
		t.Fatalf("status must not change on rejected payloads")
	}
}
