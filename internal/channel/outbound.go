package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// OutboundPolicy configures how outbound messages are truncated and retried.
type OutboundPolicy struct {
	TextLimit      int `json:"text_limit,omitempty"`
	RetryMax       int `json:"retry_max,omitempty"`
	RetryBackoffMs int `json:"retry_backoff_ms,omitempty"`
}

// NormalizeOutboundPolicy fills zero-value fields with sensible defaults.
func NormalizeOutboundPolicy(policy OutboundPolicy) OutboundPolicy {
	if policy.TextLimit <= 0 {
		policy.TextLimit = 4096
	}
	if policy.RetryMax <= 0 {
		policy.RetryMax = 1
	}
	if policy.RetryBackoffMs <= 0 {
		policy.RetryBackoffMs = 2000
	}
	return policy
}

// TruncateText shortens text to at most limit runes, appending "..." when cut.
// The cut never splits a rune.
func TruncateText(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	cut := limit - 3
	if cut < 0 {
		cut = 0
	}
	return string(runes[:cut]) + "..."
}

func (m *Manager) resolveOutboundPolicy(platform Platform) OutboundPolicy {
	policy, ok := m.registry.GetOutboundPolicy(platform)
	if !ok {
		policy = OutboundPolicy{}
	}
	return NormalizeOutboundPolicy(policy)
}

// buildOutboundMessages applies the policy to an outbound message before dispatch.
func buildOutboundMessages(msg OutboundMessage, policy OutboundPolicy) ([]OutboundMessage, error) {
	if msg.IsEmpty() {
		return nil, fmt.Errorf("message is required")
	}
	item := msg
	item.Text = TruncateText(strings.TrimSpace(item.Text), policy.TextLimit)
	return []OutboundMessage{item}, nil
}

// sendWithConfig dispatches one message with the retry policy. The first
// attempt always runs; retries happen only for transient provider failures.
func (m *Manager) sendWithConfig(ctx context.Context, sender Sender, cfg ChannelConfig, msg OutboundMessage, policy OutboundPolicy) error {
	if sender == nil {
		return fmt.Errorf("unsupported platform: %s", cfg.Platform)
	}
	target := strings.TrimSpace(msg.Target)
	if target == "" {
		return fmt.Errorf("target is required")
	}
	if msg.IsEmpty() {
		return fmt.Errorf("message is required")
	}
	var lastErr error
	for i := 0; i <= policy.RetryMax; i++ {
		err := sender.Send(ctx, cfg, OutboundMessage{Target: target, Text: msg.Text, Buttons: msg.Buttons})
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryable(err) {
			break
		}
		if i == policy.RetryMax {
			break
		}
		if m.logger != nil {
			m.logger.Warn("send outbound retry",
				slog.String("platform", cfg.Platform.String()),
				slog.Int("attempt", i+1),
				slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * time.Duration(policy.RetryBackoffMs) * time.Millisecond):
		}
	}
	return fmt.Errorf("send outbound failed: %w", lastErr)
}
