package business

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salemchat/salem/internal/channel"
)

// Service provides business config CRUD backed by Postgres with an in-memory
// read-through cache. The cache is refreshed on every write and periodically.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]Config
}

// NewService creates a business config service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "business")),
		cache:  map[string]Config{},
	}
}

const configColumns = `business_id, business_name, business_type, system_prompt, ai_model,
	telegram_enabled, telegram_token, whatsapp_enabled, whatsapp_provider, whatsapp_config,
	routing_key, kaspi_merchant_id, halyk_iin, manager_telegram_id, manager_whatsapp,
	language_detection, sales_funnel, qr_payments,
	disabled, created_at, updated_at`

func scanConfig(row pgx.Row) (Config, error) {
	var cfg Config
	err := row.Scan(
		&cfg.BusinessID, &cfg.BusinessName, &cfg.BusinessType, &cfg.SystemPrompt, &cfg.AIModel,
		&cfg.TelegramEnabled, &cfg.TelegramToken, &cfg.WhatsAppEnabled, &cfg.WhatsAppProvider, &cfg.WhatsAppConfig,
		&cfg.RoutingKey, &cfg.KaspiMerchantID, &cfg.HalykIIN, &cfg.ManagerTelegramID, &cfg.ManagerWhatsApp,
		&cfg.LanguageDetection, &cfg.SalesFunnel, &cfg.QRPayments,
		&cfg.Disabled, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	return cfg, err
}

// Get returns the config for a business, serving from cache when possible.
func (s *Service) Get(ctx context.Context, businessID string) (Config, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return Config{}, fmt.Errorf("business id is required")
	}
	s.mu.RLock()
	cached, ok := s.cache[businessID]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}
	if s.pool == nil {
		return Config{}, ErrBusinessNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+configColumns+` FROM businesses WHERE business_id = $1`, businessID)
	cfg, err := scanConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Config{}, ErrBusinessNotFound
		}
		return Config{}, fmt.Errorf("get business: %w", err)
	}
	s.mu.Lock()
	s.cache[cfg.BusinessID] = cfg
	s.mu.Unlock()
	return cfg, nil
}

// List returns all business configs, newest first.
func (s *Service) List(ctx context.Context) ([]Config, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("business store not configured")
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+configColumns+` FROM businesses ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list businesses: %w", err)
	}
	defer rows.Close()
	var configs []Config
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan business: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// Upsert creates or replaces the config for a business.
func (s *Service) Upsert(ctx context.Context, cfg Config) (Config, error) {
	if s.pool == nil {
		return Config{}, fmt.Errorf("business store not configured")
	}
	cfg.BusinessID = strings.TrimSpace(cfg.BusinessID)
	if cfg.BusinessID == "" {
		return Config{}, fmt.Errorf("business id is required")
	}
	if cfg.AIModel == "" {
		cfg.AIModel = "gpt-4o"
	}
	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO businesses (
			business_id, business_name, business_type, system_prompt, ai_model,
			telegram_enabled, telegram_token, whatsapp_enabled, whatsapp_provider, whatsapp_config,
			routing_key, kaspi_merchant_id, halyk_iin, manager_telegram_id, manager_whatsapp,
			language_detection, sales_funnel, qr_payments,
			disabled, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$20)
		ON CONFLICT (business_id) DO UPDATE SET
			business_name = EXCLUDED.business_name,
			business_type = EXCLUDED.business_type,
			system_prompt = EXCLUDED.system_prompt,
			ai_model = EXCLUDED.ai_model,
			telegram_enabled = EXCLUDED.telegram_enabled,
			telegram_token = EXCLUDED.telegram_token,
			whatsapp_enabled = EXCLUDED.whatsapp_enabled,
			whatsapp_provider = EXCLUDED.whatsapp_provider,
			whatsapp_config = EXCLUDED.whatsapp_config,
			routing_key = EXCLUDED.routing_key,
			kaspi_merchant_id = EXCLUDED.kaspi_merchant_id,
			halyk_iin = EXCLUDED.halyk_iin,
			manager_telegram_id = EXCLUDED.manager_telegram_id,
			manager_whatsapp = EXCLUDED.manager_whatsapp,
			language_detection = EXCLUDED.language_detection,
			sales_funnel = EXCLUDED.sales_funnel,
			qr_payments = EXCLUDED.qr_payments,
			disabled = EXCLUDED.disabled,
			updated_at = EXCLUDED.updated_at
		RETURNING `+configColumns,
		cfg.BusinessID, cfg.BusinessName, cfg.BusinessType, cfg.SystemPrompt, cfg.AIModel,
		cfg.TelegramEnabled, cfg.TelegramToken, cfg.WhatsAppEnabled, cfg.WhatsAppProvider, cfg.WhatsAppConfig,
		cfg.RoutingKey, cfg.KaspiMerchantID, cfg.HalykIIN, cfg.ManagerTelegramID, cfg.ManagerWhatsApp,
		cfg.LanguageDetection, cfg.SalesFunnel, cfg.QRPayments,
		cfg.Disabled, now,
	)
	saved, err := scanConfig(row)
	if err != nil {
		return Config{}, fmt.Errorf("upsert business: %w", err)
	}
	s.mu.Lock()
	s.cache[saved.BusinessID] = saved
	s.mu.Unlock()
	s.logger.Info("business config saved", slog.String("business_id", saved.BusinessID))
	return saved, nil
}

// Delete removes a business config.
func (s *Service) Delete(ctx context.Context, businessID string) error {
	if s.pool == nil {
		return fmt.Errorf("business store not configured")
	}
	businessID = strings.TrimSpace(businessID)
	tag, err := s.pool.Exec(ctx, `DELETE FROM businesses WHERE business_id = $1`, businessID)
	if err != nil {
		return fmt.Errorf("delete business: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBusinessNotFound
	}
	s.mu.Lock()
	delete(s.cache, businessID)
	s.mu.Unlock()
	s.logger.Info("business config deleted", slog.String("business_id", businessID))
	return nil
}

// ResolveByRoutingKey finds the enabled business whose WhatsApp integration
// matches the given provider and routing key exactly. There is no fallback:
// an unmapped key means the message is dropped by the caller.
func (s *Service) ResolveByRoutingKey(ctx context.Context, platform channel.Platform, routingKey string) (Config, error) {
	routingKey = strings.TrimSpace(routingKey)
	if routingKey == "" {
		return Config{}, ErrBusinessNotFound
	}
	s.mu.RLock()
	for _, cfg := range s.cache {
		if s.matchesRoutingKey(cfg, platform, routingKey) {
			s.mu.RUnlock()
			return cfg, nil
		}
	}
	s.mu.RUnlock()
	if s.pool == nil {
		return Config{}, ErrBusinessNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+configColumns+` FROM businesses
		 WHERE whatsapp_enabled = true AND whatsapp_provider = $1 AND routing_key = $2 AND disabled = false`,
		platform.String(), routingKey)
	cfg, err := scanConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Config{}, ErrBusinessNotFound
		}
		return Config{}, fmt.Errorf("resolve routing key: %w", err)
	}
	s.mu.Lock()
	s.cache[cfg.BusinessID] = cfg
	s.mu.Unlock()
	return cfg, nil
}

func (s *Service) matchesRoutingKey(cfg Config, platform channel.Platform, routingKey string) bool {
	return !cfg.Disabled &&
		cfg.WhatsAppEnabled &&
		strings.EqualFold(cfg.WhatsAppProvider, platform.String()) &&
		cfg.RoutingKey == routingKey
}

// ListEnabledConfigs implements channel.ConfigSource: it projects all enabled
// businesses into channel configs for the connection manager.
func (s *Service) ListEnabledConfigs(ctx context.Context) ([]channel.ChannelConfig, error) {
	configs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var channels []channel.ChannelConfig
	for _, cfg := range configs {
		if cfg.Disabled {
			continue
		}
		channels = append(channels, cfg.ChannelConfigs()...)
	}
	return channels, nil
}

// RefreshCache reloads the whole cache from the database. Scheduled via cron.
func (s *Service) RefreshCache(ctx context.Context) error {
	configs, err := s.List(ctx)
	if err != nil {
		return err
	}
	fresh := make(map[string]Config, len(configs))
	for _, cfg := range configs {
		fresh[cfg.BusinessID] = cfg
	}
	s.mu.Lock()
	s.cache = fresh
	s.mu.Unlock()
	s.logger.Debug("business cache refreshed", slog.Int("count", len(fresh)))
	return nil
}
