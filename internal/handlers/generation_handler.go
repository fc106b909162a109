package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/genstudio/backend/internal/apperr"
	"github.com/genstudio/backend/internal/models"
	"github.com/genstudio/backend/internal/orchestrator"
	"github.com/genstudio/backend/internal/respond"
)

// Generations is the part of orchestrator.Service the handler needs.
type Generations interface {
	Submit(ctx context.Context, userID uuid.UUID, req orchestrator.SubmitRequest) (*orchestrator.SubmitResult, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Generation, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int, media string) ([]*models.Generation, error)
}

// Poller advances a generation by one provider poll.
type Poller interface {
	Step(ctx context.Context, id uuid.UUID) (*models.Generation, error)
}

// GenerationHandler serves /generations endpoints.
type GenerationHandler struct {
	Generations Generations
	Poller      Poller
	Logger      *slog.Logger
}

type createGenerationRequest struct {
	Model           string `json:"model"`
	Prompt          string `json:"prompt"`
	Duration        int    `json:"duration"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	GenerateAudio   bool   `json:"generate_audio"`
	InputImage      string `json:"input_image"`
	CameraFixed     bool   `json:"camera_fixed"`
	PromptOptimizer bool   `json:"prompt_optimizer"`
	Seed            *int64 `json:"seed"`
}

type generationView struct {
	ID                  uuid.UUID               `json:"id"`
	Type                string                  `json:"type"`
	Provider            string                  `json:"provider"`
	Model               string                  `json:"model"`
	Prompt              string                  `json:"prompt"`
	Status              models.GenerationStatus `json:"status"`
	ResultURL           *string                 `json:"result_url,omitempty"`
	ErrorMessage        *string                 `json:"error_message,omitempty"`
	CreditsUsed         int64                   `json:"credits_used"`
	ProcessingTimeMS    int64                   `json:"processing_time_ms,omitempty"`
	NeedsReconciliation bool                    `json:"needs_reconciliation,omitempty"`
	CreatedAt           time.Time               `json:"created_at"`
	CompletedAt         *time.Time              `json:"completed_at,omitempty"`
}

type createGenerationResponse struct {
	Generation    generationView `json:"generation"`
	TaskHandle    string         `json:"task_handle,omitempty"`
	EstimatedCost int64          `json:"estimated_cost"`
}

func viewOf(g *models.Generation) generationView {
	return generationView{
		ID:                  g.ID,
		Type:                g.Type,
		Provider:            g.Provider,
		Model:               g.Model,
		Prompt:              g.Prompt,
		Status:              g.Status,
		ResultURL:           g.ResultURL,
		ErrorMessage:        g.ErrorMessage,
		CreditsUsed:         g.UserCost,
		ProcessingTimeMS:    g.ProcessingTime.Milliseconds(),
		NeedsReconciliation: g.NeedsReconciliation,
		CreatedAt:           g.CreatedAt,
		CompletedAt:         g.CompletedAt,
	}
}

// Create handles POST /api/v1/generations. A provider failure after the
// record exists is reported with the failed generation in the body.
func (h *GenerationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	var req createGenerationRequest
	if err := decode(r, &req); err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}

	res, err := h.Generations.Submit(r.Context(), userID, orchestrator.SubmitRequest{
		Model:           req.Model,
		Prompt:          req.Prompt,
		DurationSeconds: req.Duration,
		Width:           req.Width,
		Height:          req.Height,
		GenerateAudio:   req.GenerateAudio,
		InputImage:      req.InputImage,
		CameraFixed:     req.CameraFixed,
		PromptOptimizer: req.PromptOptimizer,
		Seed:            req.Seed,
	})
	if err != nil {
		if res != nil && res.Generation != nil {
			respond.JSON(w, apperr.HTTPStatus(err), map[string]any{
				"error":      err.Error(),
				"code":       apperr.Code(err),
				"generation": viewOf(res.Generation),
			})
			return
		}
		respond.Error(w, r, h.Logger, err)
		return
	}

	status := http.StatusAccepted
	if res.Generation.Status.Terminal() {
		status = http.StatusOK
	}
	respond.JSON(w, status, createGenerationResponse{
		Generation:    viewOf(res.Generation),
		TaskHandle:    res.TaskHandle,
		EstimatedCost: res.EstimatedCost,
	})
}

// Get handles GET /api/v1/generations/{id}. Non-terminal generations are
// polled once before responding.
func (h *GenerationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respond.Error(w, r, h.Logger, fmt.Errorf("%w: invalid generation id", apperr.ErrValidation))
		return
	}

	gen, err := h.Generations.Get(r.Context(), id)
	if err == nil && gen.UserID != userID {
		err = fmt.Errorf("generation %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	if !gen.Status.Terminal() {
		polled, err := h.Poller.Step(r.Context(), id)
		switch {
		case err == nil:
			gen = polled
		case errors.Is(err, apperr.ErrNotFound):
			respond.Error(w, r, h.Logger, err)
			return
		default:
			h.Logger.WarnContext(r.Context(), "poll failed, returning stored state", "generation_id", id, "error", err)
		}
	}
	respond.JSON(w, http.StatusOK, viewOf(gen))
}

// List handles GET /api/v1/generations?limit=&media=.
func (h *GenerationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	media := r.URL.Query().Get("media")
	if media != "" && media != "video" && media != "image" {
		respond.Error(w, r, h.Logger, fmt.Errorf("%w: media must be video or image", apperr.ErrValidation))
		return
	}

	gens, err := h.Generations.ListByUser(r.Context(), userID, limit, media)
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	out := make([]generationView, 0, len(gens))
	for _, g := range gens {
		out = append(out, viewOf(g))
	}
	respond.JSON(w, http.StatusOK, map[string]any{"generations": out})
}
