// Package history persists the per-conversation message log. The respond
// package reads recent entries for conversational context; the admin API
// exposes them for inspection.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one logged inbound message with its eventual reply.
type Entry struct {
	ID         int64     `json:"id"`
	BusinessID string    `json:"business_id"`
	Platform   string    `json:"platform"`
	UserID     string    `json:"user_id"`
	Message    string    `json:"message"`
	Response   string    `json:"response,omitempty"`
	Language   string    `json:"language,omitempty"`
	FunnelStep string    `json:"funnel_step,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Service provides history persistence.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a history service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "history")),
	}
}

// Append logs an inbound message and returns the entry ID for the later
// response update.
func (s *Service) Append(ctx context.Context, entry Entry) (int64, error) {
	if s.pool == nil {
		return 0, fmt.Errorf("history store not configured")
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO chat_history (business_id, platform, user_id, message, language, funnel_step)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		entry.BusinessID, entry.Platform, entry.UserID, entry.Message, entry.Language, entry.FunnelStep,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("append history: %w", err)
	}
	return id, nil
}

// SetResponse records the reply generated for an entry.
func (s *Service) SetResponse(ctx context.Context, id int64, response string) error {
	if s.pool == nil {
		return fmt.Errorf("history store not configured")
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE chat_history SET response = $1 WHERE id = $2`, response, id)
	if err != nil {
		return fmt.Errorf("set history response: %w", err)
	}
	return nil
}

// LastN returns the most recent entries for one conversation, newest first.
func (s *Service) LastN(ctx context.Context, businessID, platform, userID string, n int) ([]Entry, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("history store not configured")
	}
	if n <= 0 {
		n = 5
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, business_id, platform, user_id, message, COALESCE(response, ''), COALESCE(language, ''), COALESCE(funnel_step, ''), timestamp
		FROM chat_history
		WHERE business_id = $1 AND platform = $2 AND user_id = $3
		ORDER BY timestamp DESC
		LIMIT $4`,
		businessID, platform, userID, n)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()
	return collect(rows.Next, rows.Err, func(dst *Entry) error {
		return rows.Scan(&dst.ID, &dst.BusinessID, &dst.Platform, &dst.UserID,
			&dst.Message, &dst.Response, &dst.Language, &dst.FunnelStep, &dst.Timestamp)
	})
}

// ListRecent returns the latest entries for a business across all
// conversations, newest first. Used by the admin history endpoint.
func (s *Service) ListRecent(ctx context.Context, businessID string, limit int) ([]Entry, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("history store not configured")
	}
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return nil, fmt.Errorf("business id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, business_id, platform, user_id, message, COALESCE(response, ''), COALESCE(language, ''), COALESCE(funnel_step, ''), timestamp
		FROM chat_history
		WHERE business_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`,
		businessID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()
	return collect(rows.Next, rows.Err, func(dst *Entry) error {
		return rows.Scan(&dst.ID, &dst.BusinessID, &dst.Platform, &dst.UserID,
			&dst.Message, &dst.Response, &dst.Language, &dst.FunnelStep, &dst.Timestamp)
	})
}

func collect(next func() bool, rowsErr func() error, scan func(*Entry) error) ([]Entry, error) {
	var entries []Entry
	for next() {
		var entry Entry
		if err := scan(&entry); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rowsErr()
}
