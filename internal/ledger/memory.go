package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/genstudio/backend/internal/apperr"
	"github.com/genstudio/backend/internal/models"
)

// MemoryStore keeps balances in process. Each user has its own mutex so
// writes for one user are linearized while different users proceed in parallel.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*memAccount
	now      func() time.Time
}

type memAccount struct {
	mu      sync.Mutex
	balance int64
	txs     []*models.Transaction
	usage   map[uuid.UUID]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[uuid.UUID]*memAccount), now: time.Now}
}

func (s *MemoryStore) account(userID uuid.UUID) *memAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		a = &memAccount{usage: make(map[uuid.UUID]struct{})}
		s.accounts[userID] = a
	}
	return a
}

func (s *MemoryStore) Balance(_ context.Context, userID uuid.UUID) (int64, error) {
	a := s.account(userID)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance, nil
}

func (s *MemoryStore) Apply(_ context.Context, t *models.Transaction) (int64, error) {
	a := s.account(t.UserID)
	a.mu.Lock()
	defer a.mu.Unlock()

	next := a.balance + t.Amount
	if next < 0 {
		return a.balance, apperr.ErrInsufficientCredits
	}
	if t.Kind == models.TxUsage && t.GenerationID != nil {
		if _, dup := a.usage[*t.GenerationID]; dup {
			return a.balance, fmt.Errorf("%w: transaction already recorded for generation", apperr.ErrConflict)
		}
		a.usage[*t.GenerationID] = struct{}{}
	}

	a.balance = next
	t.BalanceAfter = next
	t.CreatedAt = s.now()
	cp := *t
	a.txs = append(a.txs, &cp)
	return next, nil
}

// ListTransactions walks the append-only log backwards.
func (s *MemoryStore) ListTransactions(_ context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error) {
	a := s.account(userID)
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*models.Transaction, 0, min(limit, len(a.txs)))
	for i := len(a.txs) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *a.txs[i]
		out = append(out, &cp)
	}
	return out, nil
}
