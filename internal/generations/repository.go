package generations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/genstudio/backend/internal/apperr"
	"github.com/genstudio/backend/internal/models"
)

const generationColumns = `id, user_id, provider, type, prompt, model, parameters, status,
	result_url, error_message, api_cost, user_cost, processing_time_ms,
	needs_reconciliation, usage_transaction_id, created_at, updated_at, completed_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, g *models.Generation) error {
	if g.Parameters == nil {
		g.Parameters = map[string]any{}
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO generations (id, user_id, provider, type, prompt, model, parameters, status, api_cost, user_cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, g.ID, g.UserID, g.Provider, g.Type, g.Prompt, g.Model, g.Parameters, string(g.Status),
		g.APICost, g.UserCost).Scan(&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: create generation: %w", apperr.ErrPersistence, err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+generationColumns+` FROM generations WHERE id = $1`, id)
	g, err := scanGeneration(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get generation: %w", apperr.ErrPersistence, err)
	}
	return g, nil
}

// Update is a single statement. parameters || patch merges top-level keys, so
// attaching a task handle keeps every other parameter.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, p Patch, from ...models.GenerationStatus) (*models.Generation, error) {
	params := "{}"
	if len(p.Parameters) > 0 {
		b, err := json.Marshal(p.Parameters)
		if err != nil {
			return nil, fmt.Errorf("%w: encode parameters: %w", apperr.ErrValidation, err)
		}
		params = string(b)
	}
	var status *string
	if p.Status != nil {
		s := string(*p.Status)
		status = &s
	}
	var processingMS *int64
	if p.ProcessingTime != nil {
		ms := p.ProcessingTime.Milliseconds()
		processingMS = &ms
	}
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, string(s))
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE generations SET
			status               = COALESCE($2, status),
			result_url           = COALESCE($3, result_url),
			error_message        = COALESCE($4, error_message),
			api_cost             = COALESCE($5, api_cost),
			user_cost            = COALESCE($6, user_cost),
			processing_time_ms   = COALESCE($7, processing_time_ms),
			completed_at         = COALESCE($8, completed_at),
			needs_reconciliation = COALESCE($9, needs_reconciliation),
			usage_transaction_id = COALESCE($10, usage_transaction_id),
			parameters           = parameters || $11::jsonb,
			updated_at           = now()
		WHERE id = $1 AND (cardinality($12::text[]) = 0 OR status = ANY($12::text[]))
		RETURNING `+generationColumns,
		id, status, p.ResultURL, p.ErrorMessage, p.APICost, p.UserCost, processingMS,
		p.CompletedAt, p.NeedsReconciliation, p.UsageTransactionID, params, allowed)

	g, err := scanGeneration(row)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM generations WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("%w: check generation: %w", apperr.ErrPersistence, err)
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, ErrStaleStatus
	}
	if err != nil {
		return nil, fmt.Errorf("%w: update generation: %w", apperr.ErrPersistence, err)
	}
	return g, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int, types ...string) ([]*models.Generation, error) {
	if types == nil {
		types = []string{}
	}
	return r.list(ctx, `SELECT `+generationColumns+`
		FROM generations
		WHERE user_id = $1 AND (cardinality($3::text[]) = 0 OR type = ANY($3::text[]))
		ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit, types)
}

func (r *Repository) ListByStatus(ctx context.Context, status models.GenerationStatus, limit int) ([]*models.Generation, error) {
	return r.list(ctx, `SELECT `+generationColumns+`
		FROM generations WHERE status = $1
		ORDER BY created_at ASC LIMIT $2`, string(status), limit)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]*models.Generation, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list generations: %w", apperr.ErrPersistence, err)
	}
	defer rows.Close()
	var out []*models.Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan generation: %w", apperr.ErrPersistence, err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list generations: %w", apperr.ErrPersistence, err)
	}
	return out, nil
}

func scanGeneration(row pgx.Row) (*models.Generation, error) {
	var g models.Generation
	var status string
	var processingMS int64
	err := row.Scan(&g.ID, &g.UserID, &g.Provider, &g.Type, &g.Prompt, &g.Model, &g.Parameters, &status,
		&g.ResultURL, &g.ErrorMessage, &g.APICost, &g.UserCost, &processingMS,
		&g.NeedsReconciliation, &g.UsageTransactionID, &g.CreatedAt, &g.UpdatedAt, &g.CompletedAt)
	if err != nil {
		return nil, err
	}
	g.Status = models.GenerationStatus(status)
	g.ProcessingTime = time.Duration(processingMS) * time.Millisecond
	return &g, nil
}
