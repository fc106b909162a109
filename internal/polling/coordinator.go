// Package polling advances asynchronous generations by asking the provider
// for their status until they reach a terminal state.
package polling

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/genstudio/backend/internal/generations"
	"github.com/genstudio/backend/internal/lock"
	"github.com/genstudio/backend/internal/models"
	"github.com/genstudio/backend/internal/orchestrator"
)

const (
	DefaultTimeout = 30 * time.Minute
	lockTTL        = 2 * time.Minute
)

const (
	reasonTimedOut  = "generation timed out"
	reasonNoResult  = "provider returned no result"
	reasonNoHandle  = "missing provider task handle"
	reasonFailedDef = "generation failed"
)

// Finalizer applies terminal transitions. *orchestrator.Service satisfies it.
type Finalizer interface {
	FinalizeSuccess(ctx context.Context, gen *models.Generation, url string, reportedCost *int64) (*models.Generation, error)
	FinalizeFailure(ctx context.Context, gen *models.Generation, reason string) (*models.Generation, error)
}

type Coordinator struct {
	gens      generations.Store
	gateway   orchestrator.Gateway
	finalizer Finalizer
	locks     lock.Keyed
	timeout   time.Duration
	log       *slog.Logger
	now       func() time.Time
}

// NewCoordinator builds a Coordinator. A nil locks falls back to an in-process
// lock and a non-positive timeout to DefaultTimeout.
func NewCoordinator(gens generations.Store, gateway orchestrator.Gateway, finalizer Finalizer,
	locks lock.Keyed, timeout time.Duration, log *slog.Logger) *Coordinator {
	if locks == nil {
		locks = lock.NewLocalKeyed()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		gens:      gens,
		gateway:   gateway,
		finalizer: finalizer,
		locks:     locks,
		timeout:   timeout,
		log:       log,
		now:       time.Now,
	}
}

// Step performs at most one provider poll for the generation and applies the
// outcome. It always returns the latest known record; terminal records are
// returned as-is without contacting the provider.
func (c *Coordinator) Step(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	gen, err := c.gens.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if gen.Status.Terminal() {
		return gen, nil
	}

	release, err := c.locks.Acquire(ctx, "poll:"+id.String(), lockTTL)
	if err != nil {
		if !errors.Is(err, lock.ErrHeld) {
			c.log.WarnContext(ctx, "poll lock unavailable", "generation_id", id, "error", err)
		}
		return gen, nil
	}
	defer release()

	// Another poller may have finished it while we waited for the lock.
	gen, err = c.gens.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch gen.Status {
	case models.GenerationProcessing:
		return c.poll(ctx, gen)
	case models.GenerationPending:
		if c.expired(gen) {
			return c.finalizer.FinalizeFailure(ctx, gen, reasonTimedOut)
		}
	}
	return gen, nil
}

func (c *Coordinator) poll(ctx context.Context, gen *models.Generation) (*models.Generation, error) {
	log := c.log.With("generation_id", gen.ID, "provider", gen.Provider)

	handle := gen.TaskHandle()
	if handle == "" {
		log.ErrorContext(ctx, "processing generation has no task handle")
		return c.finalizer.FinalizeFailure(ctx, gen, reasonNoHandle)
	}

	res, err := c.gateway.Poll(ctx, gen.Provider, handle)
	if err != nil {
		log.WarnContext(ctx, "provider poll failed", "task_handle", handle, "error", err)
		if c.expired(gen) {
			return c.finalizer.FinalizeFailure(ctx, gen, reasonTimedOut)
		}
		return gen, nil
	}

	switch res.State {
	case orchestrator.PollSucceeded:
		if res.URL == "" {
			log.WarnContext(ctx, "provider reported success without a result", "task_handle", handle)
			return c.finalizer.FinalizeFailure(ctx, gen, reasonNoResult)
		}
		return c.finalizer.FinalizeSuccess(ctx, gen, res.URL, res.Cost)
	case orchestrator.PollFailed:
		reason := res.Reason
		if reason == "" {
			reason = reasonFailedDef
		}
		return c.finalizer.FinalizeFailure(ctx, gen, reason)
	default:
		if c.expired(gen) {
			log.WarnContext(ctx, "generation timed out", "age", c.now().Sub(gen.CreatedAt))
			return c.finalizer.FinalizeFailure(ctx, gen, reasonTimedOut)
		}
		return gen, nil
	}
}

func (c *Coordinator) expired(gen *models.Generation) bool {
	return c.now().Sub(gen.CreatedAt) > c.timeout
}
