package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/genstudio/backend/internal/models"
)

// Store is the durable balance + transaction log. Apply is the only write path:
// it adds tx.Amount to the user's balance and appends tx with BalanceAfter set,
// serialized per user. When the new balance would be negative it writes nothing
// and returns apperr.ErrInsufficientCredits along with the current balance.
type Store interface {
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	Apply(ctx context.Context, tx *models.Transaction) (int64, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error)
}

var (
	_ Store = (*Repository)(nil)
	_ Store = (*MemoryStore)(nil)
)
