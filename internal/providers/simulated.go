package providers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/genstudio/backend/internal/models"
	"github.com/genstudio/backend/internal/orchestrator"
)

// Simulated stands in for every provider in development. Images complete
// immediately; videos succeed once delay has passed since submission.
type Simulated struct {
	mu        sync.Mutex
	submitted map[string]time.Time
	delay     time.Duration
	baseURL   string
	now       func() time.Time
}

func NewSimulated(delay time.Duration) *Simulated {
	return &Simulated{
		submitted: make(map[string]time.Time),
		delay:     delay,
		baseURL:   "https://simulated.invalid/outputs/",
		now:       time.Now,
	}
}

func (s *Simulated) Submit(_ context.Context, req orchestrator.ProviderRequest) (orchestrator.Submission, error) {
	handle := "sim-" + req.GenerationID.String()
	if !models.IsVideoType(req.Type) {
		return orchestrator.Submission{Result: &orchestrator.Result{URL: s.baseURL + handle + ".webp"}}, nil
	}
	s.mu.Lock()
	s.submitted[handle] = s.now()
	s.mu.Unlock()
	return orchestrator.Submission{TaskHandle: handle}, nil
}

// Poll reports success for handles it no longer remembers, such as after a
// restart.
func (s *Simulated) Poll(_ context.Context, _ string, taskHandle string) (orchestrator.PollResult, error) {
	s.mu.Lock()
	at, ok := s.submitted[taskHandle]
	s.mu.Unlock()
	if ok && s.now().Sub(at) < s.delay {
		return orchestrator.PollResult{State: orchestrator.PollPending}, nil
	}
	s.mu.Lock()
	delete(s.submitted, taskHandle)
	s.mu.Unlock()
	return orchestrator.PollResult{State: orchestrator.PollSucceeded, URL: fmt.Sprintf("%s%s.mp4", s.baseURL, taskHandle)}, nil
}

var _ orchestrator.Gateway = (*Simulated)(nil)
