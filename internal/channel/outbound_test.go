package channel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"testing"
)

func TestNormalizeOutboundPolicyDefaults(t *testing.T) {
	t.Parallel()
	policy := NormalizeOutboundPolicy(OutboundPolicy{})
	if policy.TextLimit != 4096 {
		t.Fatalf("expected text limit 4096, got %d", policy.TextLimit)
	}
	if policy.RetryMax != 1 {
		t.Fatalf("expected retry max 1, got %d", policy.RetryMax)
	}
	if policy.RetryBackoffMs != 2000 {
		t.Fatalf("expected retry backoff 2000ms, got %d", policy.RetryBackoffMs)
	}
}

func TestNormalizeOutboundPolicyKeepsExplicit(t *testing.T) {
	t.Parallel()
	policy := NormalizeOutboundPolicy(OutboundPolicy{TextLimit: 1600, RetryMax: 3, RetryBackoffMs: 500})
	if policy.TextLimit != 1600 || policy.RetryMax != 3 || policy.RetryBackoffMs != 500 {
		t.Fatalf("explicit policy overwritten: %+v", policy)
	}
}

func TestTruncateText(t *testing.T) {
	t.Parallel()
	if got := TruncateText("short", 4096); got != "short" {
		t.Fatalf("expected unchanged text, got %q", got)
	}
	long := strings.Repeat("ж", 5000)
	got := TruncateText(long, 4096)
	runes := []rune(got)
	if len(runes) != 4096 {
		t.Fatalf("expected 4096 runes, got %d", len(runes))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis suffix")
	}
}

type countingSender struct {
	calls int
	errs  []error
}

func (s *countingSender) Send(context.Context, ChannelConfig, OutboundMessage) error {
	s.calls++
	if s.calls <= len(s.errs) {
		return s.errs[s.calls-1]
	}
	return nil
}

func TestSendWithConfigRetriesTransientFailure(t *testing.T) {
	t.Parallel()
	m := NewManager(slog.Default(), NewRegistry(), nil, nil)
	sender := &countingSender{errs: []error{
		&ProviderError{Platform: PlatformWhatsAppCloud, StatusCode: http.StatusTooManyRequests, Body: "rate limited"},
	}}
	cfg := ChannelConfig{ID: "c1", BusinessID: "biz", Platform: PlatformWhatsAppCloud}
	policy := OutboundPolicy{TextLimit: 4096, RetryMax: 1, RetryBackoffMs: 1}
	err := m.sendWithConfig(context.Background(), sender, cfg, OutboundMessage{Target: "7700", Text: "hi"}, policy)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sender.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", sender.calls)
	}
}

func TestSendWithConfigDoesNotRetryPermanentFailure(t *testing.T) {
	t.Parallel()
	m := NewManager(slog.Default(), NewRegistry(), nil, nil)
	sender := &countingSender{errs: []error{
		&ProviderError{Platform: PlatformWhatsAppCloud, StatusCode: http.StatusUnauthorized, Body: "bad token"},
		errors.New("should not be reached"),
	}}
	cfg := ChannelConfig{ID: "c1", BusinessID: "biz", Platform: PlatformWhatsAppCloud}
	policy := OutboundPolicy{TextLimit: 4096, RetryMax: 3, RetryBackoffMs: 1}
	err := m.sendWithConfig(context.Background(), sender, cfg, OutboundMessage{Target: "7700", Text: "hi"}, policy)
	if err == nil {
		t.Fatalf("expected error")
	}
	if sender.calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", sender.calls)
	}
}

func TestSendWithConfigGivesUpAfterRetryBudget(t *testing.T) {
	t.Parallel()
	m := NewManager(slog.Default(), NewRegistry(), nil, nil)
	transient := &ProviderError{Platform: PlatformTwilio, StatusCode: http.StatusBadGateway, Body: "upstream"}
	sender := &countingSender{errs: []error{transient, transient, transient}}
	cfg := ChannelConfig{ID: "c1", BusinessID: "biz", Platform: PlatformTwilio}
	policy := OutboundPolicy{TextLimit: 4096, RetryMax: 1, RetryBackoffMs: 1}
	err := m.sendWithConfig(context.Background(), sender, cfg, OutboundMessage{Target: "7700", Text: "hi"}, policy)
	if err == nil {
		t.Fatalf("expected error after retry budget")
	}
	if sender.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", sender.calls)
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	cases := []struct {
		status int
		want   bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
	}
	for _, tc := range cases {
		err := &ProviderError{Platform: PlatformWABusiness, StatusCode: tc.status}
		if got := IsRetryable(err); got != tc.want {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, got)
		}
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatalf("plain error should not be retryable")
	}
}
