package payments

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/genstudio/backend/internal/apperr"
	"github.com/genstudio/backend/internal/models"
)

var ErrPurchaseNotFound = fmt.Errorf("%w: purchase", apperr.ErrNotFound)

// Store persists purchases keyed by gateway charge id.
type Store interface {
	Create(ctx context.Context, p *models.Purchase) error
	Get(ctx context.Context, chargeID string) (*models.Purchase, error)
	// Transition moves the purchase to status to if it is currently one of
	// from. It reports whether this call made the change.
	Transition(ctx context.Context, chargeID string, to models.PurchaseStatus, from ...models.PurchaseStatus) (bool, error)
}

type MemoryStore struct {
	mu        sync.Mutex
	purchases map[string]models.Purchase
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{purchases: make(map[string]models.Purchase)}
}

func (s *MemoryStore) Create(_ context.Context, p *models.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.purchases[p.ChargeID]; ok {
		return fmt.Errorf("%w: purchase %s already recorded", apperr.ErrConflict, p.ChargeID)
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.purchases[p.ChargeID] = *p
	return nil
}

func (s *MemoryStore) Get(_ context.Context, chargeID string) (*models.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.purchases[chargeID]
	if !ok {
		return nil, ErrPurchaseNotFound
	}
	return &p, nil
}

func (s *MemoryStore) Transition(_ context.Context, chargeID string, to models.PurchaseStatus, from ...models.PurchaseStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.purchases[chargeID]
	if !ok {
		return false, ErrPurchaseNotFound
	}
	if !slices.Contains(from, p.Status) {
		return false, nil
	}
	p.Status = to
	p.UpdatedAt = time.Now()
	s.purchases[chargeID] = p
	return true, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*Repository)(nil)
)
