package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// ConfigSource lists enabled channel configs for periodic refresh.
type ConfigSource interface {
	ListEnabledConfigs(ctx context.Context) ([]ChannelConfig, error)
}

// InboundProcessor handles normalized inbound messages. Implemented by the
// conversation router.
type InboundProcessor interface {
	HandleInbound(ctx context.Context, cfg ChannelConfig, msg InboundMessage) error
}

// ConnectionStatus describes runtime status for one configured channel connection.
type ConnectionStatus struct {
	ConfigID   string    `json:"config_id"`
	BusinessID string    `json:"business_id"`
	Platform   Platform  `json:"platform"`
	Running    bool      `json:"running"`
	LastError  string    `json:"last_error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Manager coordinates channel adapters, connection lifecycle, and message dispatch.
// Connection lifecycle lives in connection.go, outbound pipeline in outbound.go.
type Manager struct {
	registry        *Registry
	source          ConfigSource
	processor       InboundProcessor
	refreshInterval time.Duration
	logger          *slog.Logger

	mu             sync.Mutex
	refreshMu      sync.Mutex
	connections    map[string]*connectionEntry
	connectionMeta map[string]ConnectionStatus
}

// NewManager creates a Manager with the given logger, registry, config source, and inbound processor.
func NewManager(log *slog.Logger, registry *Registry, source ConfigSource, processor InboundProcessor) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Manager{
		registry:        registry,
		source:          source,
		processor:       processor,
		refreshInterval: 5 * time.Minute,
		connections:     map[string]*connectionEntry{},
		connectionMeta:  map[string]ConnectionStatus{},
		logger:          log.With(slog.String("component", "channel")),
	}
}

// Registry returns the adapter registry used by this manager.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// RegisterAdapter adds an adapter to the registry and logs the registration.
func (m *Manager) RegisterAdapter(adapter Adapter) {
	if adapter == nil {
		return
	}
	if err := m.registry.Register(adapter); err != nil {
		if m.logger != nil {
			m.logger.Warn("adapter registration failed", slog.String("platform", adapter.Type().String()), slog.Any("error", err))
		}
		return
	}
	if m.logger != nil {
		m.logger.Info("adapter registered", slog.String("platform", adapter.Type().String()))
	}
}

// Refresh performs a full reconcile of all adapter connections against the store.
// Mainly used at startup, after config changes, and as a periodic safety net.
func (m *Manager) Refresh(ctx context.Context) {
	if ctx != nil {
		m.refresh(ctx)
	}
}

// Start begins the periodic config refresh loop.
func (m *Manager) Start(ctx context.Context) {
	if m.logger != nil {
		m.logger.Info("manager start")
	}
	go func() {
		m.refresh(ctx)
		ticker := time.NewTicker(m.refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				if m.logger != nil {
					m.logger.Info("manager stop")
				}
				m.stopAll(ctx)
				return
			case <-ticker.C:
				m.refresh(ctx)
			}
		}
	}()
}

// HandleInbound forwards a normalized message to the inbound processor.
// Adapters and webhook handlers call this after parsing.
func (m *Manager) HandleInbound(ctx context.Context, cfg ChannelConfig, msg InboundMessage) error {
	if m.processor == nil {
		return fmt.Errorf("inbound processor not configured")
	}
	if msg.Key().IsZero() {
		return fmt.Errorf("conversation key is required")
	}
	return m.processor.HandleInbound(ctx, cfg, msg)
}

// Send delivers an outbound message through the channel described by cfg,
// applying the platform's outbound policy.
func (m *Manager) Send(ctx context.Context, cfg ChannelConfig, msg OutboundMessage) error {
	sender, ok := m.registry.GetSender(cfg.Platform)
	if !ok {
		return fmt.Errorf("unsupported platform: %s", cfg.Platform)
	}
	if strings.TrimSpace(msg.Target) == "" {
		return fmt.Errorf("target is required")
	}
	if msg.IsEmpty() {
		return fmt.Errorf("message is required")
	}
	if m.logger != nil {
		m.logger.Info("send outbound", slog.String("platform", cfg.Platform.String()), slog.String("business_id", cfg.BusinessID))
	}
	policy := m.resolveOutboundPolicy(cfg.Platform)
	outbound, err := buildOutboundMessages(msg, policy)
	if err != nil {
		return err
	}
	for _, item := range outbound {
		if err := m.sendWithConfig(ctx, sender, cfg, item, policy); err != nil {
			if m.logger != nil {
				m.logger.Error("send outbound failed", slog.String("platform", cfg.Platform.String()), slog.String("business_id", cfg.BusinessID), slog.Any("error", err))
			}
			return err
		}
	}
	return nil
}

// Shutdown stops all active connections.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stopAll(ctx)
	return nil
}

// ConnectionStatuses returns observed channel connection statuses for a business.
func (m *Manager) ConnectionStatuses(businessID string) []ConnectionStatus {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return []ConnectionStatus{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]ConnectionStatus, 0, len(m.connectionMeta))
	for _, status := range m.connectionMeta {
		if status.BusinessID == businessID {
			items = append(items, status)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Platform == items[j].Platform {
			return items[i].ConfigID < items[j].ConfigID
		}
		return items[i].Platform < items[j].Platform
	})
	return items
}

func (m *Manager) stopConnection(ctx context.Context, id string, entry *connectionEntry) {
	if entry == nil || entry.connection == nil {
		return
	}
	if err := entry.connection.Stop(ctx); err != nil && !errors.Is(err, ErrStopNotSupported) && m.logger != nil {
		m.logger.Warn("connection stop failed", slog.String("config_id", id), slog.Any("error", err))
	}
}
