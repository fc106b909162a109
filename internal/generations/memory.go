package generations

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/genstudio/backend/internal/apperr"
	"github.com/genstudio/backend/internal/models"
)

type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*models.Generation
	order   []uuid.UUID
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]*models.Generation), now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, g *models.Generation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[g.ID]; exists {
		return fmt.Errorf("%w: generation %s already exists", apperr.ErrConflict, g.ID)
	}
	now := s.now()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now
	if g.Parameters == nil {
		g.Parameters = map[string]any{}
	}
	s.records[g.ID] = clone(g)
	s.order = append(s.order, g.ID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*models.Generation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(g), nil
}

func (s *MemoryStore) Update(_ context.Context, id uuid.UUID, p Patch, from ...models.GenerationStatus) (*models.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if len(from) > 0 && !slices.Contains(from, g.Status) {
		return nil, ErrStaleStatus
	}

	if p.Status != nil {
		g.Status = *p.Status
	}
	if p.ResultURL != nil {
		g.ResultURL = ptr(*p.ResultURL)
	}
	if p.ErrorMessage != nil {
		g.ErrorMessage = ptr(*p.ErrorMessage)
	}
	if p.APICost != nil {
		g.APICost = *p.APICost
	}
	if p.UserCost != nil {
		g.UserCost = *p.UserCost
	}
	if p.ProcessingTime != nil {
		g.ProcessingTime = *p.ProcessingTime
	}
	if p.CompletedAt != nil {
		g.CompletedAt = ptr(*p.CompletedAt)
	}
	if p.NeedsReconciliation != nil {
		g.NeedsReconciliation = *p.NeedsReconciliation
	}
	if p.UsageTransactionID != nil {
		g.UsageTransactionID = ptr(*p.UsageTransactionID)
	}
	if len(p.Parameters) > 0 {
		if g.Parameters == nil {
			g.Parameters = map[string]any{}
		}
		maps.Copy(g.Parameters, p.Parameters)
	}
	g.UpdatedAt = s.now()
	return clone(g), nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID uuid.UUID, limit int, types ...string) ([]*models.Generation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Generation
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		g := s.records[s.order[i]]
		if g.UserID != userID {
			continue
		}
		if len(types) == 0 || slices.Contains(types, g.Type) {
			out = append(out, clone(g))
		}
	}
	return out, nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status models.GenerationStatus, limit int) ([]*models.Generation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Generation
	for _, id := range s.order {
		if len(out) >= limit {
			break
		}
		if g := s.records[id]; g.Status == status {
			out = append(out, clone(g))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func clone(g *models.Generation) *models.Generation {
	cp := *g
	cp.Parameters = maps.Clone(g.Parameters)
	if g.ResultURL != nil {
		cp.ResultURL = ptr(*g.ResultURL)
	}
	if g.ErrorMessage != nil {
		cp.ErrorMessage = ptr(*g.ErrorMessage)
	}
	if g.CompletedAt != nil {
		cp.CompletedAt = ptr(*g.CompletedAt)
	}
	if g.UsageTransactionID != nil {
		cp.UsageTransactionID = ptr(*g.UsageTransactionID)
	}
	return &cp
}

func ptr[T any](v T) *T { return &v }
