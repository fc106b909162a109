package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/replicate/replicate-go"

	"github.com/genstudio/backend/internal/apperr"
	"github.com/genstudio/backend/internal/orchestrator"
)

// predictionAPI is the subset of *replicate.Client used here.
type predictionAPI interface {
	CreatePredictionWithModel(ctx context.Context, modelOwner, modelName string, input replicate.PredictionInput, webhook *replicate.Webhook, stream bool) (*replicate.Prediction, error)
	GetPrediction(ctx context.Context, id string) (*replicate.Prediction, error)
}

// Replicate runs models hosted on Replicate. Predictions are always polled;
// Replicate does not report a per-prediction cost, so the estimate is charged.
type Replicate struct {
	api predictionAPI
	log *slog.Logger
}

func NewReplicate(token string, log *slog.Logger) (*Replicate, error) {
	client, err := replicate.NewClient(replicate.WithToken(token))
	if err != nil {
		return nil, fmt.Errorf("create replicate client: %w", err)
	}
	return newReplicate(client, log), nil
}

func newReplicate(api predictionAPI, log *slog.Logger) *Replicate {
	if log == nil {
		log = slog.Default()
	}
	return &Replicate{api: api, log: log}
}

func (c *Replicate) Submit(ctx context.Context, req orchestrator.ProviderRequest) (orchestrator.Submission, error) {
	owner, name, ok := strings.Cut(req.ProviderModel, "/")
	if !ok {
		return orchestrator.Submission{}, fmt.Errorf("%w: replicate model %q is not owner/name", apperr.ErrProvider, req.ProviderModel)
	}
	input := replicate.PredictionInput{"prompt": req.Prompt}
	if req.InputImage != "" {
		input["image_input"] = []string{normalizeImage(req.InputImage)}
	}
	if req.Seed != nil {
		input["seed"] = *req.Seed
	}

	pred, err := c.api.CreatePredictionWithModel(ctx, owner, name, input, nil, false)
	if err != nil {
		return orchestrator.Submission{}, replicateError(err)
	}
	c.log.InfoContext(ctx, "replicate prediction created", "prediction_id", pred.ID, "model", req.ProviderModel)
	return orchestrator.Submission{TaskHandle: pred.ID}, nil
}

func (c *Replicate) Poll(ctx context.Context, _ string, taskHandle string) (orchestrator.PollResult, error) {
	pred, err := c.api.GetPrediction(ctx, taskHandle)
	if err != nil {
		return orchestrator.PollResult{}, replicateError(err)
	}
	switch pred.Status {
	case replicate.Succeeded:
		return orchestrator.PollResult{State: orchestrator.PollSucceeded, URL: firstOutput(pred.Output)}, nil
	case replicate.Failed, replicate.Canceled:
		reason := describe(pred.Error)
		if reason == "" {
			reason = "replicate prediction " + string(pred.Status)
		}
		return orchestrator.PollResult{State: orchestrator.PollFailed, Reason: reason}, nil
	default:
		return orchestrator.PollResult{State: orchestrator.PollPending}, nil
	}
}

// firstOutput extracts a URL from a prediction output, which is either a
// single URL or a list of them.
func firstOutput(out any) string {
	switch v := out.(type) {
	case string:
		return v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				return s
			}
		}
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func describe(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func replicateError(err error) error {
	var apiErr *replicate.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != 429 {
		return fmt.Errorf("%w: replicate: %w", apperr.ErrProvider, err)
	}
	return fmt.Errorf("%w: replicate: %w", apperr.ErrProviderUnavailable, err)
}

var _ orchestrator.Gateway = (*Replicate)(nil)
