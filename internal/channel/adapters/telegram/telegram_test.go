package telegram

import (
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/salemchat/salem/internal/channel"
)

func TestNormalizeConfig(t *testing.T) {
	t.Parallel()
	a := New(slog.Default())
	normalized, err := a.NormalizeConfig(map[string]any{"botToken": "  123:abc  ", "junk": true})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if normalized["botToken"] != "123:abc" {
		t.Fatalf("expected trimmed token, got %v", normalized["botToken"])
	}
	if _, ok := normalized["junk"]; ok {
		t.Fatalf("unexpected extra key kept")
	}
	if _, err := a.NormalizeConfig(map[string]any{}); err == nil {
		t.Fatalf("expected error for missing token")
	}
}

func TestTruncateTextRuneBoundary(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("ж", 4000) // 2 bytes per rune, exceeds the byte limit
	got := truncateText(long)
	if len(got) > maxMessageLength {
		t.Fatalf("expected at most %d bytes, got %d", maxMessageLength, len(got))
	}
	if !utf8.ValidString(got) {
		t.Fatalf("expected valid utf-8 after truncation")
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis suffix")
	}
	if short := truncateText("привет"); short != "привет" {
		t.Fatalf("short text must pass through, got %q", short)
	}
}

func TestSanitizeTextStripsInvalidBytes(t *testing.T) {
	t.Parallel()
	if got := sanitizeText("ok\xffok"); got != "okok" {
		t.Fatalf("expected invalid bytes stripped, got %q", got)
	}
}

func TestInlineKeyboard(t *testing.T) {
	t.Parallel()
	keyboard, ok := inlineKeyboard([]channel.Button{
		{Label: "🇷🇺 Русский", Action: channel.ButtonActionCallback, Data: "lang_ru"},
		{Label: "💳 Kaspi Pay", Action: channel.ButtonActionURL, Data: "https://kaspi.kz/pay?x=1"},
	})
	if !ok {
		t.Fatalf("expected keyboard")
	}
	if len(keyboard.InlineKeyboard) != 2 {
		t.Fatalf("expected one row per button, got %d", len(keyboard.InlineKeyboard))
	}
	first := keyboard.InlineKeyboard[0][0]
	if first.CallbackData == nil || *first.CallbackData != "lang_ru" {
		t.Fatalf("expected callback button, got %+v", first)
	}
	second := keyboard.InlineKeyboard[1][0]
	if second.URL == nil || *second.URL != "https://kaspi.kz/pay?x=1" {
		t.Fatalf("expected url button, got %+v", second)
	}
	if _, ok := inlineKeyboard(nil); ok {
		t.Fatalf("expected no keyboard for empty buttons")
	}
}

func TestBuildInboundFromTextMessage(t *testing.T) {
	t.Parallel()
	a := New(slog.Default())
	update := tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 7,
			From:      &tgbotapi.User{ID: 42, UserName: "aidar"},
			Chat:      &tgbotapi.Chat{ID: 42},
			Text:      "  привет  ",
			Date:      1700000000,
		},
	}
	cfg := channel.ChannelConfig{ID: "biz:telegram", BusinessID: "biz", Platform: Type}
	msg, ok := a.buildInbound(nil, cfg, update)
	if !ok {
		t.Fatalf("expected actionable message")
	}
	if msg.ExternalUserID != "42" || msg.ChatID != "42" || msg.Text != "привет" {
		t.Fatalf("unexpected inbound: %+v", msg)
	}
	if msg.BusinessID != "biz" || msg.SenderName != "aidar" || msg.ProviderMessageID != "7" {
		t.Fatalf("unexpected inbound meta: %+v", msg)
	}
}

func TestBuildInboundFromCallbackQuery(t *testing.T) {
	t.Parallel()
	a := New(slog.Default())
	update := tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb1",
			From:    &tgbotapi.User{ID: 42, FirstName: "Aidar", LastName: "N"},
			Data:    "lang_kz",
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 42}},
		},
	}
	cfg := channel.ChannelConfig{ID: "biz:telegram", BusinessID: "biz", Platform: Type}
	msg, ok := a.buildInbound(nil, cfg, update)
	if !ok {
		t.Fatalf("expected actionable callback")
	}
	if !msg.IsCallback() || msg.CallbackData != "lang_kz" {
		t.Fatalf("expected callback data, got %+v", msg)
	}
	if msg.SenderName != "Aidar N" {
		t.Fatalf("expected full-name fallback, got %q", msg.SenderName)
	}
}

func TestBuildInboundSkipsNonActionable(t *testing.T) {
	t.Parallel()
	a := New(slog.Default())
	cfg := channel.ChannelConfig{ID: "biz:telegram", BusinessID: "biz", Platform: Type}
	if _, ok := a.buildInbound(nil, cfg, tgbotapi.Update{}); ok {
		t.Fatalf("empty update must be skipped")
	}
	update := tgbotapi.Update{Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 1}}}
	if _, ok := a.buildInbound(nil, cfg, update); ok {
		t.Fatalf("message without text must be skipped")
	}
}

func TestWrapAPIError(t *testing.T) {
	t.Parallel()
	err := wrapAPIError(&tgbotapi.Error{Code: 429, Message: "Too Many Requests"})
	if !channel.IsRetryable(err) {
		t.Fatalf("expected 429 to be retryable, got %v", err)
	}
	err = wrapAPIError(&tgbotapi.Error{Code: 403, Message: "Forbidden"})
	if channel.IsRetryable(err) {
		t.Fatalf("403 must not be retryable")
	}
}
