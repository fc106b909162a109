package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/genstudio/backend/internal/apperr"
	"github.com/genstudio/backend/internal/models"
)

// Repository is the Postgres ledger store.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `SELECT balance FROM credit_balances WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read balance: %w", apperr.ErrPersistence, err)
	}
	return balance, nil
}

// Apply runs in its own transaction. The balance row is created on first touch
// and then locked with SELECT ... FOR UPDATE, so concurrent calls for the same
// user queue behind each other.
func (r *Repository) Apply(ctx context.Context, t *models.Transaction) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %w", apperr.ErrPersistence, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO credit_balances (user_id, balance) VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, t.UserID); err != nil {
		return 0, fmt.Errorf("%w: init balance: %w", apperr.ErrPersistence, err)
	}

	var balance int64
	if err := tx.QueryRow(ctx, `
		SELECT balance FROM credit_balances WHERE user_id = $1 FOR UPDATE
	`, t.UserID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("%w: lock balance: %w", apperr.ErrPersistence, err)
	}

	next := balance + t.Amount
	if next < 0 {
		return balance, apperr.ErrInsufficientCredits
	}

	if _, err := tx.Exec(ctx, `
		UPDATE credit_balances SET balance = $1, updated_at = now() WHERE user_id = $2
	`, next, t.UserID); err != nil {
		return 0, fmt.Errorf("%w: update balance: %w", apperr.ErrPersistence, err)
	}

	t.BalanceAfter = next
	err = tx.QueryRow(ctx, `
		INSERT INTO credit_transactions
			(id, user_id, kind, amount, balance_after, description, payment_method, payment_reference, generation_id)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9)
		RETURNING created_at
	`, t.ID, t.UserID, string(t.Kind), t.Amount, t.BalanceAfter, t.Description,
		t.PaymentMethod, t.PaymentReference, t.GenerationID).Scan(&t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return balance, fmt.Errorf("%w: transaction already recorded for generation", apperr.ErrConflict)
		}
		return 0, fmt.Errorf("%w: insert transaction: %w", apperr.ErrPersistence, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", apperr.ErrPersistence, err)
	}
	return next, nil
}

func (r *Repository) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, kind, amount, balance_after, description,
		       COALESCE(payment_method, ''), COALESCE(payment_reference, ''), generation_id, created_at
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions: %w", apperr.ErrPersistence, err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		var kind string
		if err := rows.Scan(&t.ID, &t.UserID, &kind, &t.Amount, &t.BalanceAfter, &t.Description,
			&t.PaymentMethod, &t.PaymentReference, &t.GenerationID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan transaction: %w", apperr.ErrPersistence, err)
		}
		t.Kind = models.TxKind(kind)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list transactions: %w", apperr.ErrPersistence, err)
	}
	return out, nil
}
