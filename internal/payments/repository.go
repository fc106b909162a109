package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/genstudio/backend/internal/apperr"
	"github.com/genstudio/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, p *models.Purchase) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO purchases (charge_id, user_id, package_id, credits, amount_satang, method, status, authorize_uri)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
		RETURNING created_at, updated_at
	`, p.ChargeID, p.UserID, p.PackageID, p.Credits, p.AmountSatang, p.Method, p.Status, p.AuthorizeURI,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: purchase %s already recorded", apperr.ErrConflict, p.ChargeID)
	}
	if err != nil {
		return fmt.Errorf("%w: insert purchase: %w", apperr.ErrPersistence, err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, chargeID string) (*models.Purchase, error) {
	var p models.Purchase
	var authorizeURI *string
	err := r.pool.QueryRow(ctx, `
		SELECT charge_id, user_id, package_id, credits, amount_satang, method, status, authorize_uri, created_at, updated_at
		FROM purchases WHERE charge_id = $1
	`, chargeID).Scan(&p.ChargeID, &p.UserID, &p.PackageID, &p.Credits, &p.AmountSatang, &p.Method,
		&p.Status, &authorizeURI, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get purchase: %w", apperr.ErrPersistence, err)
	}
	if authorizeURI != nil {
		p.AuthorizeURI = *authorizeURI
	}
	return &p, nil
}

func (r *Repository) Transition(ctx context.Context, chargeID string, to models.PurchaseStatus, from ...models.PurchaseStatus) (bool, error) {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE purchases SET status = $2, updated_at = NOW()
		WHERE charge_id = $1 AND status = ANY($3::text[])
	`, chargeID, to, states)
	if err != nil {
		return false, fmt.Errorf("%w: transition purchase: %w", apperr.ErrPersistence, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.Get(ctx, chargeID); err != nil {
		return false, err
	}
	return false, nil
}
