// Package local implements an in-memory adapter for the admin test-message
// flow. Outbound messages are captured per target instead of being delivered,
// so the HTTP handler can return the bot's reply inline.
package local

import (
	"context"
	"log/slog"
	"sync"

	"github.com/salemchat/salem/internal/channel"
)

// Type is the platform identifier for this adapter.
const Type = channel.PlatformTest

// Adapter implements channel.Adapter and channel.Sender with an in-memory
// capture buffer.
type Adapter struct {
	logger *slog.Logger
	mu     sync.Mutex
	sent   map[string][]channel.OutboundMessage
}

// New creates a local capture adapter.
func New(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger: log.With(slog.String("adapter", "local")),
		sent:   map[string][]channel.OutboundMessage{},
	}
}

// Type returns the test platform identifier.
func (a *Adapter) Type() channel.Platform {
	return Type
}

// Descriptor returns the test channel metadata.
func (a *Adapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Local Test",
		OutboundPolicy: channel.OutboundPolicy{
			TextLimit: 4096,
		},
	}
}

// Send captures the message for later draining.
func (a *Adapter) Send(_ context.Context, cfg channel.ChannelConfig, msg channel.OutboundMessage) error {
	a.mu.Lock()
	a.sent[msg.Target] = append(a.sent[msg.Target], msg)
	a.mu.Unlock()
	a.logger.Debug("message captured",
		slog.String("config_id", cfg.ID),
		slog.String("target", msg.Target))
	return nil
}

// Drain returns and clears everything captured for the target.
func (a *Adapter) Drain(target string) []channel.OutboundMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	captured := a.sent[target]
	delete(a.sent, target)
	return captured
}
