package handlers

import (
	"log/slog"
	"net/http"

	"github.com/genstudio/backend/internal/pricing"
	"github.com/genstudio/backend/internal/respond"
)

// Pricer lists the catalog and prices requests.
type Pricer interface {
	Models() []pricing.Model
	Estimate(req pricing.Request) (pricing.Quote, error)
}

// CatalogHandler serves /models and /estimate.
type CatalogHandler struct {
	Pricer Pricer
	Logger *slog.Logger
}

type estimateRequest struct {
	Model         string `json:"model"`
	Duration      int    `json:"duration"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	GenerateAudio bool   `json:"generate_audio"`
	HasInputImage bool   `json:"has_input_image"`
}

type estimateResponse struct {
	Model      string              `json:"model"`
	Credits    int64               `json:"credits"`
	Resolution *pricing.Resolution `json:"resolution,omitempty"`
}

// Models handles GET /api/v1/models.
func (h *CatalogHandler) Models(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]any{"models": h.Pricer.Models()})
}

// Estimate handles POST /api/v1/estimate. Only the marked-up user cost is
// exposed.
func (h *CatalogHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := decode(r, &req); err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	q, err := h.Pricer.Estimate(pricing.Request{
		Model:           req.Model,
		DurationSeconds: req.Duration,
		Width:           req.Width,
		Height:          req.Height,
		Audio:           req.GenerateAudio,
		ImageInput:      req.HasInputImage,
	})
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, estimateResponse{Model: q.Model.ID, Credits: q.UserCost, Resolution: q.Resolution})
}
