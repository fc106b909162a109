// Package generations persists generation records. IDs are always supplied by
// the caller.
package generations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/genstudio/backend/internal/apperr"
	"github.com/genstudio/backend/internal/models"
)

var (
	ErrNotFound = fmt.Errorf("generation %w", apperr.ErrNotFound)
	// ErrStaleStatus means a conditional update found the record in a status
	// other than the expected ones. Someone else already moved it.
	ErrStaleStatus = fmt.Errorf("%w: generation status changed", apperr.ErrConflict)
)

// Patch lists the fields to change; nil fields are left alone. Parameters is
// merged key by key into the stored parameters.
type Patch struct {
	Status              *models.GenerationStatus
	ResultURL           *string
	ErrorMessage        *string
	APICost             *int64
	UserCost            *int64
	ProcessingTime      *time.Duration
	CompletedAt         *time.Time
	NeedsReconciliation *bool
	UsageTransactionID  *uuid.UUID
	Parameters          map[string]any
}

type Store interface {
	Create(ctx context.Context, g *models.Generation) error
	Get(ctx context.Context, id uuid.UUID) (*models.Generation, error)
	// Update applies p. With from non-empty it only applies while the current
	// status is one of from, and returns ErrStaleStatus otherwise.
	Update(ctx context.Context, id uuid.UUID, p Patch, from ...models.GenerationStatus) (*models.Generation, error)
	// ListByUser returns the newest records first. With types non-empty only
	// records of those types are returned; the limit applies after filtering.
	ListByUser(ctx context.Context, userID uuid.UUID, limit int, types ...string) ([]*models.Generation, error)
	// ListByStatus returns the oldest records first.
	ListByStatus(ctx context.Context, status models.GenerationStatus, limit int) ([]*models.Generation, error)
}

var (
	_ Store = (*Repository)(nil)
	_ Store = (*MemoryStore)(nil)
)

// Status is a convenience for building patches.
func Status(s models.GenerationStatus) *models.GenerationStatus { return &s }
