// Package providers talks to the upstream generation APIs.
package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/genstudio/backend/internal/apperr"
	"github.com/genstudio/backend/internal/orchestrator"
)

// Registry routes requests to the client registered for their provider.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]orchestrator.Gateway
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]orchestrator.Gateway)}
}

func (r *Registry) Register(provider string, gw orchestrator.Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[provider] = gw
}

// Providers lists the registered provider names.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.clients))
	for name := range r.clients {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Submit(ctx context.Context, req orchestrator.ProviderRequest) (orchestrator.Submission, error) {
	gw, err := r.client(req.Provider)
	if err != nil {
		return orchestrator.Submission{}, err
	}
	return gw.Submit(ctx, req)
}

func (r *Registry) Poll(ctx context.Context, provider, taskHandle string) (orchestrator.PollResult, error) {
	gw, err := r.client(provider)
	if err != nil {
		return orchestrator.PollResult{}, err
	}
	return gw.Poll(ctx, provider, taskHandle)
}

func (r *Registry) client(provider string) (orchestrator.Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gw, ok := r.clients[provider]
	if !ok {
		return nil, fmt.Errorf("%w: no client configured for provider %q", apperr.ErrProviderUnavailable, provider)
	}
	return gw, nil
}

var _ orchestrator.Gateway = (*Registry)(nil)
