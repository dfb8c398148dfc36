package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
)

// ErrStopNotSupported is returned when a connection does not support graceful shutdown.
var ErrStopNotSupported = errors.New("channel connection stop not supported")

// ErrRoutingKeyNotFound is returned by webhook parsers when the payload carries
// no provider-side identifier to match a business against.
var ErrRoutingKeyNotFound = errors.New("channel webhook routing key not found")

// ErrWebhookUnauthorized is returned when webhook verification fails.
var ErrWebhookUnauthorized = errors.New("channel webhook unauthorized")

// InboundHandler is a callback invoked when a message arrives from a channel.
type InboundHandler func(ctx context.Context, cfg ChannelConfig, msg InboundMessage) error

// Adapter is the base interface every channel adapter must implement.
type Adapter interface {
	Type() Platform
	Descriptor() Descriptor
}

// Descriptor holds read-only metadata for a registered platform.
// It contains no behavior, all behavior is expressed through optional interfaces.
type Descriptor struct {
	Type           Platform
	DisplayName    string
	OutboundPolicy OutboundPolicy
}

// ConfigNormalizer validates and normalizes channel configurations before use.
type ConfigNormalizer interface {
	NormalizeConfig(raw map[string]any) (map[string]any, error)
}

// Sender is an adapter capable of sending outbound messages.
type Sender interface {
	Send(ctx context.Context, cfg ChannelConfig, msg OutboundMessage) error
}

// Receiver is an adapter capable of establishing a long-lived connection to receive messages.
type Receiver interface {
	Connect(ctx context.Context, cfg ChannelConfig, handler InboundHandler) (Connection, error)
}

// WebhookParser is an adapter that receives messages through HTTP webhooks
// rather than a long-lived connection. The body is read once by the HTTP
// handler and passed in so that signature checks see the exact raw bytes.
type WebhookParser interface {
	// RoutingKey extracts the provider-side identifier used to resolve the
	// owning business. Returns ErrRoutingKeyNotFound when the payload carries none.
	RoutingKey(r *http.Request, body []byte) (string, error)
	// VerifyWebhook authenticates the request against the resolved config.
	// Returns ErrWebhookUnauthorized on failure.
	VerifyWebhook(r *http.Request, body []byte, cfg ChannelConfig) error
	// ParseInbound extracts the normalized message. A nil message with a nil
	// error means the payload is valid but not actionable (status updates,
	// delivery receipts) and must be acknowledged without processing.
	ParseInbound(r *http.Request, body []byte, cfg ChannelConfig) (*InboundMessage, error)
}

// ChallengeVerifier handles provider subscription handshakes delivered as GET
// requests (Meta's hub.challenge flow).
type ChallengeVerifier interface {
	VerifyChallenge(query url.Values, cfg ChannelConfig) (string, error)
}

// Acknowledger confirms receipt to the provider (read receipts, typing
// indicators). Callers invoke it fire-and-forget; failures are logged and
// never affect webhook acknowledgment.
type Acknowledger interface {
	AckInbound(ctx context.Context, cfg ChannelConfig, msg InboundMessage) error
}

// Connection represents an active, long-lived link to a channel platform.
type Connection interface {
	ConfigID() string
	BusinessID() string
	Platform() Platform
	Stop(ctx context.Context) error
	Running() bool
}

// BaseConnection is a default Connection implementation backed by a stop function.
type BaseConnection struct {
	configID   string
	businessID string
	platform   Platform
	stop       func(ctx context.Context) error
	running    atomic.Bool
}

// NewConnection creates a BaseConnection for the given config and stop function.
func NewConnection(cfg ChannelConfig, stop func(ctx context.Context) error) *BaseConnection {
	conn := &BaseConnection{
		configID:   cfg.ID,
		businessID: cfg.BusinessID,
		platform:   cfg.Platform,
		stop:       stop,
	}
	conn.running.Store(true)
	return conn
}

// ConfigID returns the channel configuration identifier.
func (c *BaseConnection) ConfigID() string {
	return c.configID
}

// BusinessID returns the business identifier that owns this connection.
func (c *BaseConnection) BusinessID() string {
	return c.businessID
}

// Platform returns the platform this connection serves.
func (c *BaseConnection) Platform() Platform {
	return c.platform
}

// Stop gracefully shuts down the connection.
func (c *BaseConnection) Stop(ctx context.Context) error {
	if c.stop == nil {
		return ErrStopNotSupported
	}
	c.running.Store(false)
	return c.stop(ctx)
}

// Running reports whether the connection is still active.
func (c *BaseConnection) Running() bool {
	return c.running.Load()
}

// ProviderError is a transport-level failure reported by a platform API.
type ProviderError struct {
	Platform   Platform
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s api error: status %d: %s", e.Platform, e.StatusCode, e.Body)
}

// Retryable reports whether the failure is transient (rate limit or server error).
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsRetryable reports whether err is a transient provider failure worth retrying.
func IsRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable()
	}
	return false
}
