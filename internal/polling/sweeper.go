package polling

import (
	"context"
	"log/slog"
	"time"

	"github.com/genstudio/backend/internal/generations"
	"github.com/genstudio/backend/internal/models"
)

const sweepBatch = 100

// Sweeper periodically hands every non-terminal generation to visit. It
// recovers generations whose poll job was lost and drives polling when no
// job queue is running.
type Sweeper struct {
	gens     generations.Store
	visit    func(ctx context.Context, gen *models.Generation) error
	interval time.Duration
	log      *slog.Logger
}

func NewSweeper(gens generations.Store, interval time.Duration, visit func(ctx context.Context, gen *models.Generation) error, log *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{gens: gens, visit: visit, interval: interval, log: log}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep visits one batch of processing and pending generations, oldest first,
// and returns how many were visited.
func (s *Sweeper) Sweep(ctx context.Context) int {
	visited := 0
	for _, status := range []models.GenerationStatus{models.GenerationProcessing, models.GenerationPending} {
		gens, err := s.gens.ListByStatus(ctx, status, sweepBatch)
		if err != nil {
			s.log.ErrorContext(ctx, "sweep: list generations failed", "status", status, "error", err)
			continue
		}
		for _, g := range gens {
			if ctx.Err() != nil {
				return visited
			}
			if err := s.visit(ctx, g); err != nil {
				s.log.WarnContext(ctx, "sweep: visit failed", "generation_id", g.ID, "error", err)
			}
			visited++
		}
	}
	return visited
}
