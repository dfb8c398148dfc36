// Package leads persists completed sales-funnel submissions.
package leads

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salemchat/salem/internal/funnel"
)

// Lead is a stored funnel submission.
type Lead struct {
	ID              string    `json:"id"`
	BusinessID      string    `json:"business_id"`
	UserID          string    `json:"user_id"`
	Platform        string    `json:"platform"`
	Language        string    `json:"language,omitempty"`
	ProductInterest string    `json:"product_interest,omitempty"`
	Purpose         string    `json:"purpose,omitempty"`
	Budget          string    `json:"budget,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// Service provides lead persistence. It implements funnel.LeadSaver.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a lead service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "leads")),
	}
}

// SaveLead persists a completed funnel submission.
func (s *Service) SaveLead(ctx context.Context, lead funnel.Lead) error {
	if s.pool == nil {
		return fmt.Errorf("lead store not configured")
	}
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO leads (id, business_id, user_id, platform, language, product_interest, purpose, budget, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'new', $9)`,
		id, lead.BusinessID, lead.UserID, lead.Platform, lead.Language,
		lead.ProductInterest, lead.Purpose, lead.Budget, lead.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save lead: %w", err)
	}
	s.logger.Info("lead saved",
		slog.String("lead_id", id),
		slog.String("business_id", lead.BusinessID),
		slog.String("platform", lead.Platform))
	return nil
}

// List returns leads for a business, newest first.
func (s *Service) List(ctx context.Context, businessID string, limit int) ([]Lead, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("lead store not configured")
	}
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return nil, fmt.Errorf("business id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, business_id, user_id, platform, COALESCE(language, ''),
			COALESCE(product_interest, ''), COALESCE(purpose, ''), COALESCE(budget, ''),
			status, created_at
		FROM leads
		WHERE business_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		businessID, limit)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()
	var items []Lead
	for rows.Next() {
		var lead Lead
		if err := rows.Scan(&lead.ID, &lead.BusinessID, &lead.UserID, &lead.Platform, &lead.Language,
			&lead.ProductInterest, &lead.Purpose, &lead.Budget, &lead.Status, &lead.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		items = append(items, lead)
	}
	return items, rows.Err()
}
