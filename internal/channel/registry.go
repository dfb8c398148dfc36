package channel

import (
	"fmt"
	"strings"
	"sync"
)

// Registry holds all registered channel adapters and provides typed capability
// accessors. It must be created via NewRegistry and passed explicitly to
// components that need it.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Platform]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: map[Platform]Adapter{},
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter is nil")
	}
	platform := normalizePlatform(adapter.Type().String())
	if platform == "" {
		return fmt.Errorf("platform is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[platform]; exists {
		return fmt.Errorf("platform already registered: %s", platform)
	}
	r.adapters[platform] = adapter
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(adapter Adapter) {
	if err := r.Register(adapter); err != nil {
		panic(err)
	}
}

// Unregister removes a platform from the registry.
func (r *Registry) Unregister(platform Platform) bool {
	normalized := normalizePlatform(platform.String())
	if normalized == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[normalized]; !exists {
		return false
	}
	delete(r.adapters, normalized)
	return true
}

// Get returns the adapter for the given platform.
func (r *Registry) Get(platform Platform) (Adapter, bool) {
	normalized := normalizePlatform(platform.String())
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[normalized]
	return adapter, ok
}

// List returns all registered adapters.
func (r *Registry) List() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		items = append(items, a)
	}
	return items
}

// Types returns all registered platforms.
func (r *Registry) Types() []Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]Platform, 0, len(r.adapters))
	for platform := range r.adapters {
		items = append(items, platform)
	}
	return items
}

// GetDescriptor returns the descriptor for the given platform.
func (r *Registry) GetDescriptor(platform Platform) (Descriptor, bool) {
	adapter, ok := r.Get(platform)
	if !ok {
		return Descriptor{}, false
	}
	return adapter.Descriptor(), true
}

// GetOutboundPolicy returns the outbound policy for the given platform.
func (r *Registry) GetOutboundPolicy(platform Platform) (OutboundPolicy, bool) {
	desc, ok := r.GetDescriptor(platform)
	if !ok {
		return OutboundPolicy{}, false
	}
	return desc.OutboundPolicy, true
}

// ParsePlatform validates and normalizes a raw string into a registered Platform.
func (r *Registry) ParsePlatform(raw string) (Platform, error) {
	platform := normalizePlatform(raw)
	if platform == "" {
		return "", fmt.Errorf("unsupported platform: %s", raw)
	}
	if _, ok := r.Get(platform); !ok {
		return "", fmt.Errorf("unsupported platform: %s", raw)
	}
	return platform, nil
}

// GetSender returns the Sender for the given platform, or nil if unsupported.
func (r *Registry) GetSender(platform Platform) (Sender, bool) {
	adapter, ok := r.Get(platform)
	if !ok {
		return nil, false
	}
	sender, ok := adapter.(Sender)
	return sender, ok
}

// GetReceiver returns the Receiver for the given platform, or nil if unsupported.
func (r *Registry) GetReceiver(platform Platform) (Receiver, bool) {
	adapter, ok := r.Get(platform)
	if !ok {
		return nil, false
	}
	receiver, ok := adapter.(Receiver)
	return receiver, ok
}

// GetWebhookParser returns the WebhookParser for the given platform, or nil if unsupported.
func (r *Registry) GetWebhookParser(platform Platform) (WebhookParser, bool) {
	adapter, ok := r.Get(platform)
	if !ok {
		return nil, false
	}
	parser, ok := adapter.(WebhookParser)
	return parser, ok
}

// GetChallengeVerifier returns the ChallengeVerifier for the given platform, or nil if unsupported.
func (r *Registry) GetChallengeVerifier(platform Platform) (ChallengeVerifier, bool) {
	adapter, ok := r.Get(platform)
	if !ok {
		return nil, false
	}
	verifier, ok := adapter.(ChallengeVerifier)
	return verifier, ok
}

// GetAcknowledger returns the Acknowledger for the given platform, or nil if unsupported.
func (r *Registry) GetAcknowledger(platform Platform) (Acknowledger, bool) {
	adapter, ok := r.Get(platform)
	if !ok {
		return nil, false
	}
	acknowledger, ok := adapter.(Acknowledger)
	return acknowledger, ok
}

// NormalizeConfig validates and normalizes a channel credentials map.
func (r *Registry) NormalizeConfig(platform Platform, raw map[string]any) (map[string]any, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	adapter, ok := r.Get(platform)
	if !ok {
		return nil, fmt.Errorf("unsupported platform: %s", platform)
	}
	if normalizer, ok := adapter.(ConfigNormalizer); ok {
		return normalizer.NormalizeConfig(raw)
	}
	return raw, nil
}

func normalizePlatform(raw string) Platform {
	normalized := strings.TrimSpace(strings.ToLower(raw))
	if normalized == "" {
		return ""
	}
	return Platform(normalized)
}
