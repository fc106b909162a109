// Package orchestrator drives a generation from submission to a terminal
// status and charges for it at most once.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/genstudio/backend/internal/apperr"
	"github.com/genstudio/backend/internal/generations"
	"github.com/genstudio/backend/internal/ledger"
	"github.com/genstudio/backend/internal/models"
	"github.com/genstudio/backend/internal/pricing"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type SubmitRequest struct {
	Model           string
	Prompt          string
	DurationSeconds int
	Width           int
	Height          int
	GenerateAudio   bool
	InputImage      string
	CameraFixed     bool
	PromptOptimizer bool
	Seed            *int64
}

type SubmitResult struct {
	Generation    *models.Generation
	TaskHandle    string
	EstimatedCost int64
}

type Service struct {
	gens      generations.Store
	ledger    ledger.Service
	estimator *pricing.Estimator
	gateway   Gateway
	scheduler Scheduler
	log       *slog.Logger
	now       func() time.Time
}

// NewService wires the orchestrator. scheduler may be nil when polling is
// driven only by callers and the sweeper.
func NewService(gens generations.Store, ledgerSvc ledger.Service, estimator *pricing.Estimator,
	gateway Gateway, scheduler Scheduler, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		gens:      gens,
		ledger:    ledgerSvc,
		estimator: estimator,
		gateway:   gateway,
		scheduler: scheduler,
		log:       log,
		now:       time.Now,
	}
}

// Submit validates and prices the request, checks the balance, records the
// generation and hands it to the provider. Nothing is written when validation
// or the balance check fails. Once the record exists a provider error leaves
// it failed and is returned as ErrProviderUnavailable (or ErrProvider when the
// provider rejected the request) together with the result.
func (s *Service) Submit(ctx context.Context, userID uuid.UUID, req SubmitRequest) (*SubmitResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", apperr.ErrValidation)
	}
	quote, err := s.estimator.Estimate(pricing.Request{
		Model:           req.Model,
		DurationSeconds: req.DurationSeconds,
		Width:           req.Width,
		Height:          req.Height,
		Audio:           req.GenerateAudio,
		ImageInput:      req.InputImage != "",
	})
	if err != nil {
		return nil, err
	}

	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance < quote.UserCost {
		return nil, fmt.Errorf("%w: required %d, available %d", apperr.ErrInsufficientCredits, quote.UserCost, balance)
	}

	gen := newGeneration(userID, req, quote)
	if err := s.gens.Create(ctx, gen); err != nil {
		return nil, err
	}
	log := s.log.With("generation_id", gen.ID, "user_id", userID, "model", gen.Model)
	log.InfoContext(ctx, "generation created", "estimated_cost", quote.APICost, "estimated_user_cost", quote.UserCost)

	w, h := dimensions(quote, req)
	sub, err := s.gateway.Submit(ctx, ProviderRequest{
		GenerationID:    gen.ID,
		Provider:        quote.Model.Provider,
		ProviderModel:   quote.Model.ProviderModel,
		Type:            gen.Type,
		Prompt:          gen.Prompt,
		DurationSeconds: req.DurationSeconds,
		Width:           w,
		Height:          h,
		Audio:           req.GenerateAudio,
		InputImage:      req.InputImage,
		CameraFixed:     req.CameraFixed,
		PromptOptimizer: req.PromptOptimizer,
		Seed:            req.Seed,
	})
	if err != nil {
		log.WarnContext(ctx, "provider submission failed", "error", err)
		failed, ferr := s.FinalizeFailure(ctx, gen, err.Error())
		if ferr != nil {
			return nil, errors.Join(submitError(err), ferr)
		}
		return &SubmitResult{Generation: failed, EstimatedCost: quote.UserCost}, submitError(err)
	}

	if sub.Result != nil {
		done, err := s.FinalizeSuccess(ctx, gen, sub.Result.URL, sub.Result.Cost)
		if err != nil {
			return nil, err
		}
		return &SubmitResult{Generation: done, EstimatedCost: quote.UserCost}, nil
	}

	// The provider job is live from here on; the handle is recorded even if
	// the caller has gone away.
	ctx = context.WithoutCancel(ctx)
	processing, err := s.gens.Update(ctx, gen.ID, generations.Patch{
		Status:     generations.Status(models.GenerationProcessing),
		Parameters: map[string]any{models.ParamTaskHandle: sub.TaskHandle},
	}, models.GenerationPending)
	if err != nil {
		log.ErrorContext(ctx, "failed to record task handle", "task_handle", sub.TaskHandle, "error", err)
		failed, ferr := s.FinalizeFailure(ctx, gen, fmt.Sprintf("task handle %s not recorded: %v", sub.TaskHandle, err))
		if ferr != nil {
			return nil, errors.Join(err, ferr)
		}
		return &SubmitResult{Generation: failed, TaskHandle: sub.TaskHandle, EstimatedCost: quote.UserCost}, err
	}
	if s.scheduler != nil {
		if err := s.scheduler.SchedulePoll(ctx, gen.ID); err != nil {
			log.WarnContext(ctx, "failed to schedule poll, sweeper will pick it up", "error", err)
		}
	}
	log.InfoContext(ctx, "generation submitted", "task_handle", sub.TaskHandle)
	return &SubmitResult{Generation: processing, TaskHandle: sub.TaskHandle, EstimatedCost: quote.UserCost}, nil
}

// FinalizeSuccess completes the generation and debits the user. The status
// transition is claimed first, so only one caller per generation ever reaches
// the debit. A failed debit does not undo the completion; the record is
// flagged for reconciliation instead. The claim, debit and flag run detached
// from ctx cancellation so a dropped caller cannot leave a completed record
// uncharged and unflagged.
func (s *Service) FinalizeSuccess(ctx context.Context, gen *models.Generation, url string, reportedCost *int64) (*models.Generation, error) {
	ctx = context.WithoutCancel(ctx)
	apiCost := gen.EstimatedCost()
	if reportedCost != nil {
		apiCost = *reportedCost
	}
	userCost := pricing.Markup(apiCost)
	now := s.now()
	elapsed := now.Sub(gen.CreatedAt)

	done, err := s.gens.Update(ctx, gen.ID, generations.Patch{
		Status:         generations.Status(models.GenerationCompleted),
		ResultURL:      &url,
		APICost:        &apiCost,
		UserCost:       &userCost,
		CompletedAt:    &now,
		ProcessingTime: &elapsed,
	}, models.GenerationPending, models.GenerationProcessing)
	if errors.Is(err, generations.ErrStaleStatus) {
		return s.gens.Get(ctx, gen.ID)
	}
	if err != nil {
		return nil, err
	}

	log := s.log.With("generation_id", gen.ID, "user_id", gen.UserID)
	log.InfoContext(ctx, "generation completed", "api_cost", apiCost, "user_cost", userCost)
	if userCost == 0 {
		return done, nil
	}

	res, err := s.ledger.Debit(ctx, gen.UserID, userCost, chargeDescription(gen), ledger.Metadata{GenerationID: &gen.ID})
	switch {
	case errors.Is(err, apperr.ErrConflict):
		log.WarnContext(ctx, "usage already recorded for generation")
		return done, nil
	case err != nil:
		return s.flagReconciliation(ctx, done, fmt.Sprintf("debit of %d failed: %v", userCost, err)), nil
	case !res.Success:
		return s.flagReconciliation(ctx, done, fmt.Sprintf("insufficient balance: needed %d, had %d", userCost, res.Balance)), nil
	}

	charged, err := s.gens.Update(ctx, gen.ID, generations.Patch{UsageTransactionID: &res.Transaction.ID})
	if err != nil {
		log.ErrorContext(ctx, "debit recorded but not linked to generation",
			"transaction_id", res.Transaction.ID, "error", err)
		return done, nil
	}
	return charged, nil
}

// FinalizeFailure marks the generation failed. Nothing is charged.
func (s *Service) FinalizeFailure(ctx context.Context, gen *models.Generation, reason string) (*models.Generation, error) {
	ctx = context.WithoutCancel(ctx)
	if reason == "" {
		reason = "generation failed"
	}
	now := s.now()
	elapsed := now.Sub(gen.CreatedAt)
	failed, err := s.gens.Update(ctx, gen.ID, generations.Patch{
		Status:         generations.Status(models.GenerationFailed),
		ErrorMessage:   &reason,
		CompletedAt:    &now,
		ProcessingTime: &elapsed,
	}, models.GenerationPending, models.GenerationProcessing)
	if errors.Is(err, generations.ErrStaleStatus) {
		return s.gens.Get(ctx, gen.ID)
	}
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "generation failed", "generation_id", gen.ID, "user_id", gen.UserID, "reason", reason)
	return failed, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	return s.gens.Get(ctx, id)
}

// ListByUser returns the user's generations newest first. media narrows the
// list to "video" or "image"; empty means all.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, limit int, media string) ([]*models.Generation, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	var types []string
	switch media {
	case string(pricing.MediaVideo):
		types = []string{models.TypeTextToVideo, models.TypeImageToVideo}
	case string(pricing.MediaImage):
		types = []string{models.TypeTextToImage, models.TypeImageToImage}
	}
	return s.gens.ListByUser(ctx, userID, limit, types...)
}

// Estimate prices a request without side effects.
func (s *Service) Estimate(req SubmitRequest) (pricing.Quote, error) {
	return s.estimator.Estimate(pricing.Request{
		Model:           req.Model,
		DurationSeconds: req.DurationSeconds,
		Width:           req.Width,
		Height:          req.Height,
		Audio:           req.GenerateAudio,
		ImageInput:      req.InputImage != "",
	})
}

func (s *Service) flagReconciliation(ctx context.Context, gen *models.Generation, reason string) *models.Generation {
	s.log.ErrorContext(ctx, "generation completed without charge, needs reconciliation",
		"generation_id", gen.ID, "user_id", gen.UserID, "user_cost", gen.UserCost, "reason", reason)
	flag := true
	flagged, err := s.gens.Update(ctx, gen.ID, generations.Patch{
		NeedsReconciliation: &flag,
		Parameters:          map[string]any{models.ParamReconciliation: reason},
	})
	if err != nil {
		s.log.ErrorContext(ctx, "failed to flag generation for reconciliation", "generation_id", gen.ID, "error", err)
		return gen
	}
	return flagged
}

func newGeneration(userID uuid.UUID, req SubmitRequest, quote pricing.Quote) *models.Generation {
	params := map[string]any{
		models.ParamEstimatedCost: quote.APICost,
		"estimatedUserCost":       quote.UserCost,
		"hasInputImage":           req.InputImage != "",
	}
	if quote.Model.Media == pricing.MediaVideo {
		params["duration"] = req.DurationSeconds
		params["generateAudio"] = req.GenerateAudio
		params["cameraFixed"] = req.CameraFixed
		params["promptOptimizer"] = req.PromptOptimizer
	}
	if w, h := dimensions(quote, req); w > 0 {
		params["width"] = w
		params["height"] = h
	}
	if req.Seed != nil {
		params["seed"] = *req.Seed
	}
	return &models.Generation{
		ID:         uuid.New(),
		UserID:     userID,
		Provider:   quote.Model.Provider,
		Type:       generationType(quote.Model.Media, req.InputImage != ""),
		Prompt:     req.Prompt,
		Model:      quote.Model.ID,
		Parameters: params,
		Status:     models.GenerationPending,
	}
}

func generationType(media pricing.Media, hasImage bool) string {
	switch {
	case media == pricing.MediaVideo && hasImage:
		return models.TypeImageToVideo
	case media == pricing.MediaVideo:
		return models.TypeTextToVideo
	case hasImage:
		return models.TypeImageToImage
	default:
		return models.TypeTextToImage
	}
}

// dimensions prefers the resolved catalog resolution over the raw request.
func dimensions(q pricing.Quote, req SubmitRequest) (int, int) {
	if q.Resolution != nil {
		return q.Resolution.Width, q.Resolution.Height
	}
	return req.Width, req.Height
}

func chargeDescription(gen *models.Generation) string {
	if models.IsVideoType(gen.Type) {
		return "Video generation: " + gen.Model
	}
	return "Image generation: " + gen.Model
}

func submitError(err error) error {
	if errors.Is(err, apperr.ErrProvider) {
		return err
	}
	return fmt.Errorf("%w: %w", apperr.ErrProviderUnavailable, err)
}
