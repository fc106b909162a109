package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/genstudio/backend/internal/apperr"
	"github.com/genstudio/backend/internal/models"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ErrInvalidAmount is returned for zero or negative credit/debit amounts.
var ErrInvalidAmount = fmt.Errorf("%w: amount must be a positive integer", apperr.ErrValidation)

// Metadata is optional context recorded on the transaction.
type Metadata struct {
	// Kind is purchase (default) or refund for credits; ignored for debits.
	Kind             models.TxKind
	PaymentMethod    string
	PaymentReference string
	GenerationID     *uuid.UUID
}

// Result reports the outcome of a credit or debit. A debit rejected for
// insufficient balance has Success false, the unchanged balance and no Transaction.
type Result struct {
	Success     bool
	Balance     int64
	Transaction *models.Transaction
}

type Service interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (int64, error)
	Credit(ctx context.Context, userID uuid.UUID, amount int64, description string, meta Metadata) (Result, error)
	Debit(ctx context.Context, userID uuid.UUID, amount int64, description string, meta Metadata) (Result, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error)
}

type service struct {
	store Store
	log   *slog.Logger
}

func NewService(store Store, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{store: store, log: log}
}

var _ Service = (*service)(nil)

// GetBalance returns 0 for users that have never been credited.
func (s *service) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.store.Balance(ctx, userID)
}

func (s *service) Credit(ctx context.Context, userID uuid.UUID, amount int64, description string, meta Metadata) (Result, error) {
	if amount <= 0 {
		return Result{}, ErrInvalidAmount
	}
	kind := meta.Kind
	switch kind {
	case "":
		kind = models.TxPurchase
	case models.TxPurchase, models.TxRefund:
	default:
		return Result{}, fmt.Errorf("%w: credit kind %q", apperr.ErrValidation, kind)
	}

	tx := newTransaction(userID, kind, amount, description, meta)
	balance, err := s.store.Apply(ctx, tx)
	if err != nil {
		return Result{}, err
	}
	s.log.InfoContext(ctx, "credits added",
		"user_id", userID, "amount", amount, "kind", kind, "balance", balance, "transaction_id", tx.ID)
	return Result{Success: true, Balance: balance, Transaction: tx}, nil
}

func (s *service) Debit(ctx context.Context, userID uuid.UUID, amount int64, description string, meta Metadata) (Result, error) {
	if amount <= 0 {
		return Result{}, ErrInvalidAmount
	}

	tx := newTransaction(userID, models.TxUsage, -amount, description, meta)
	balance, err := s.store.Apply(ctx, tx)
	if errors.Is(err, apperr.ErrInsufficientCredits) {
		s.log.InfoContext(ctx, "debit rejected", "user_id", userID, "amount", amount, "balance", balance)
		return Result{Success: false, Balance: balance}, nil
	}
	if err != nil {
		return Result{}, err
	}
	s.log.InfoContext(ctx, "credits deducted",
		"user_id", userID, "amount", amount, "balance", balance, "transaction_id", tx.ID)
	return Result{Success: true, Balance: balance, Transaction: tx}, nil
}

func (s *service) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.store.ListTransactions(ctx, userID, limit)
}

func newTransaction(userID uuid.UUID, kind models.TxKind, amount int64, description string, meta Metadata) *models.Transaction {
	return &models.Transaction{
		ID:               uuid.New(),
		UserID:           userID,
		Kind:             kind,
		Amount:           amount,
		Description:      description,
		PaymentMethod:    meta.PaymentMethod,
		PaymentReference: meta.PaymentReference,
		GenerationID:     meta.GenerationID,
	}
}
