// Package payments builds QR payment payloads for Kazakh payment providers
// and tracks invoice status. It never calls provider APIs; status changes
// arrive via the payments callback endpoint.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPaymentNotFound is returned when no invoice exists for a payment ID.
var ErrPaymentNotFound = errors.New("payment not found")

// Status is an invoice lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, bool) {
	switch Status(strings.TrimSpace(strings.ToLower(raw))) {
	case StatusPending:
		return StatusPending, true
	case StatusCompleted:
		return StatusCompleted, true
	case StatusFailed:
		return StatusFailed, true
	case StatusCancelled:
		return StatusCancelled, true
	default:
		return "", false
	}
}

// Provider identifies a payment rail.
type Provider string

const (
	ProviderKaspi Provider = "kaspi"
	ProviderHalyk Provider = "halyk"
	ProviderJusan Provider = "jusan"
)

// Payment is one QR invoice.
type Payment struct {
	PaymentID   string    `json:"payment_id"`
	BusinessID  string    `json:"business_id"`
	UserID      string    `json:"user_id"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Provider    Provider  `json:"provider"`
	QRData      string    `json:"qr_data"`
	CreatedAt   time.Time `json:"created_at"`
}

// KaspiQRData builds the Kaspi Pay deep link encoded into the QR code.
func KaspiQRData(merchantID, paymentID string, amount float64, description string) string {
	params := url.Values{}
	params.Set("service", "P2P")
	params.Set("merchant", merchantID)
	params.Set("amount", formatAmount(amount))
	params.Set("txn_id", paymentID)
	params.Set("desc", description)
	return "https://kaspi.kz/pay?" + params.Encode()
}

// HalykQRData builds the Halyk Bank payment link.
func HalykQRData(iin, paymentID string, amount float64, description string) string {
	params := url.Values{}
	params.Set("iin", iin)
	params.Set("amount", formatAmount(amount))
	params.Set("purpose", description)
	params.Set("txn", paymentID)
	return "https://pay.halykbank.kz?" + params.Encode()
}

// UniversalQRData builds a bank-agnostic SPD payment payload.
func UniversalQRData(recipientName, accountNumber, paymentID string, amount float64, description string) string {
	return strings.Join([]string{
		"SPD*1.0",
		"ACC:" + accountNumber,
		"RN:" + recipientName,
		"AM:" + formatAmount(amount),
		"CUR:KZT",
		"MSG:" + description,
		"ID:" + paymentID,
	}, "*")
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

// Service creates and tracks QR invoices.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a payment service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "payments")),
	}
}

// CreateKaspi creates a pending Kaspi invoice.
func (s *Service) CreateKaspi(ctx context.Context, businessID, userID, merchantID string, amount float64, description string) (Payment, error) {
	paymentID := uuid.NewString()
	payment := Payment{
		PaymentID:   paymentID,
		BusinessID:  businessID,
		UserID:      userID,
		Amount:      amount,
		Currency:    "KZT",
		Description: description,
		Status:      StatusPending,
		Provider:    ProviderKaspi,
		QRData:      KaspiQRData(merchantID, paymentID, amount, description),
		CreatedAt:   time.Now().UTC(),
	}
	return payment, s.insert(ctx, payment)
}

// CreateHalyk creates a pending Halyk invoice.
func (s *Service) CreateHalyk(ctx context.Context, businessID, userID, iin string, amount float64, description string) (Payment, error) {
	paymentID := uuid.NewString()
	payment := Payment{
		PaymentID:   paymentID,
		BusinessID:  businessID,
		UserID:      userID,
		Amount:      amount,
		Currency:    "KZT",
		Description: description,
		Status:      StatusPending,
		Provider:    ProviderHalyk,
		QRData:      HalykQRData(iin, paymentID, amount, description),
		CreatedAt:   time.Now().UTC(),
	}
	return payment, s.insert(ctx, payment)
}

func (s *Service) insert(ctx context.Context, payment Payment) error {
	if s.pool == nil {
		return fmt.Errorf("payment store not configured")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payments (payment_id, business_id, user_id, amount, currency, description, status, provider, qr_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		payment.PaymentID, payment.BusinessID, payment.UserID, payment.Amount, payment.Currency,
		payment.Description, payment.Status, payment.Provider, payment.QRData, payment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	s.logger.Info("payment created",
		slog.String("payment_id", payment.PaymentID),
		slog.String("business_id", payment.BusinessID),
		slog.String("provider", string(payment.Provider)))
	return nil
}

// UpdateStatus records a provider callback for an invoice.
func (s *Service) UpdateStatus(ctx context.Context, paymentID string, status Status) error {
	if s.pool == nil {
		return fmt.Errorf("payment store not configured")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE payments SET status = $1, updated_at = now() WHERE payment_id = $2`,
		status, strings.TrimSpace(paymentID))
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	s.logger.Info("payment status updated",
		slog.String("payment_id", paymentID),
		slog.String("status", string(status)))
	return nil
}

// Get returns one invoice.
func (s *Service) Get(ctx context.Context, paymentID string) (Payment, error) {
	if s.pool == nil {
		return Payment{}, fmt.Errorf("payment store not configured")
	}
	var payment Payment
	err := s.pool.QueryRow(ctx, `
		SELECT payment_id, business_id, user_id, amount, currency, description, status, provider, qr_data, created_at
		FROM payments WHERE payment_id = $1`,
		strings.TrimSpace(paymentID),
	).Scan(&payment.PaymentID, &payment.BusinessID, &payment.UserID, &payment.Amount, &payment.Currency,
		&payment.Description, &payment.Status, &payment.Provider, &payment.QRData, &payment.CreatedAt)
	if err != nil {
		return Payment{}, ErrPaymentNotFound
	}
	return payment, nil
}

// ListByUser returns a user's invoices, newest first.
func (s *Service) ListByUser(ctx context.Context, businessID, userID string) ([]Payment, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("payment store not configured")
	}
	rows, err := s.pool.Query(ctx, `
		SELECT payment_id, business_id, user_id, amount, currency, description, status, provider, qr_data, created_at
		FROM payments
		WHERE business_id = $1 AND user_id = $2
		ORDER BY created_at DESC`,
		businessID, userID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()
	var items []Payment
	for rows.Next() {
		var payment Payment
		if err := rows.Scan(&payment.PaymentID, &payment.BusinessID, &payment.UserID, &payment.Amount, &payment.Currency,
			&payment.Description, &payment.Status, &payment.Provider, &payment.QRData, &payment.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		items = append(items, payment)
	}
	return items, rows.Err()
}
