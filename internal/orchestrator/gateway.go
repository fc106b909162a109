package orchestrator

import (
	"context"

	"github.com/google/uuid"
)

// ProviderRequest is what a provider adapter needs to start a generation.
type ProviderRequest struct {
	GenerationID    uuid.UUID
	Provider        string
	ProviderModel   string
	Type            string
	Prompt          string
	DurationSeconds int
	Width           int
	Height          int
	Audio           bool
	InputImage      string
	CameraFixed     bool
	PromptOptimizer bool
	Seed            *int64
}

// Result is a finished generation. Cost is the provider-reported cost in
// credits, nil when the provider does not report one.
type Result struct {
	URL  string
	Cost *int64
}

// Submission is either an immediate Result or a TaskHandle to poll.
type Submission struct {
	TaskHandle string
	Result     *Result
}

type PollState string

const (
	PollPending   PollState = "pending"
	PollSucceeded PollState = "succeeded"
	PollFailed    PollState = "failed"
)

type PollResult struct {
	State  PollState
	URL    string
	Cost   *int64
	Reason string
}

// Gateway is the provider side of a generation. Implementations enforce their
// own timeouts and return an error rather than hang.
type Gateway interface {
	Submit(ctx context.Context, req ProviderRequest) (Submission, error)
	Poll(ctx context.Context, provider, taskHandle string) (PollResult, error)
}

// Scheduler arranges for a processing generation to be polled later.
type Scheduler interface {
	SchedulePoll(ctx context.Context, generationID uuid.UUID) error
}
