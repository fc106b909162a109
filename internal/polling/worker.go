package polling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/genstudio/backend/internal/generations"
	"github.com/genstudio/backend/internal/models"
)

const DefaultInterval = 5 * time.Second

type PollGenerationArgs struct {
	GenerationID uuid.UUID `json:"generation_id"`
}

func (PollGenerationArgs) Kind() string { return "poll_generation" }

// InsertOpts keeps a single live poll job per generation.
func (PollGenerationArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{UniqueOpts: river.UniqueOpts{ByArgs: true}}
}

// Stepper advances one generation. *Coordinator satisfies it.
type Stepper interface {
	Step(ctx context.Context, id uuid.UUID) (*models.Generation, error)
}

// PollWorker polls one generation per run and snoozes itself until the
// generation is terminal.
type PollWorker struct {
	river.WorkerDefaults[PollGenerationArgs]
	stepper  Stepper
	interval time.Duration
}

func NewPollWorker(stepper Stepper, interval time.Duration) *PollWorker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &PollWorker{stepper: stepper, interval: interval}
}

func (w *PollWorker) Work(ctx context.Context, job *river.Job[PollGenerationArgs]) error {
	gen, err := w.stepper.Step(ctx, job.Args.GenerationID)
	if errors.Is(err, generations.ErrNotFound) {
		return river.JobCancel(err)
	}
	if err != nil {
		return fmt.Errorf("poll generation %s: %w", job.Args.GenerationID, err)
	}
	if gen.Status.Terminal() {
		return nil
	}
	return river.JobSnooze(w.interval)
}

// RiverScheduler enqueues poll jobs. It is created before the river client
// exists and bound to it afterwards.
type RiverScheduler struct {
	mu     sync.Mutex
	insert func(ctx context.Context, args PollGenerationArgs) error
	delay  time.Duration
}

func NewRiverScheduler(delay time.Duration) *RiverScheduler {
	if delay <= 0 {
		delay = DefaultInterval
	}
	return &RiverScheduler{delay: delay}
}

func (s *RiverScheduler) Bind(client *river.Client[pgx.Tx]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insert = func(ctx context.Context, args PollGenerationArgs) error {
		_, err := client.Insert(ctx, args, &river.InsertOpts{ScheduledAt: time.Now().Add(s.delay)})
		return err
	}
}

func (s *RiverScheduler) SchedulePoll(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	fn := s.insert
	s.mu.Unlock()
	if fn == nil {
		return errors.New("poll scheduler not bound to a river client")
	}
	return fn(ctx, PollGenerationArgs{GenerationID: id})
}
