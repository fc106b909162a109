package models

import (
	"time"

	"github.com/google/uuid"
)

// GenerationStatus moves pending -> processing -> completed|failed and never back.
type GenerationStatus string

const (
	GenerationPending    GenerationStatus = "pending"
	GenerationProcessing GenerationStatus = "processing"
	GenerationCompleted  GenerationStatus = "completed"
	GenerationFailed     GenerationStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s GenerationStatus) Terminal() bool {
	return s == GenerationCompleted || s == GenerationFailed
}

// Generation types.
const (
	TypeTextToImage  = "text_to_image"
	TypeImageToImage = "image_to_image"
	TypeTextToVideo  = "text_to_video"
	TypeImageToVideo = "image_to_video"
)

// IsVideoType reports whether t produces a video.
func IsVideoType(t string) bool {
	return t == TypeTextToVideo || t == TypeImageToVideo
}

// Well-known keys inside Generation.Parameters.
const (
	ParamTaskHandle     = "taskHandle"
	ParamEstimatedCost  = "estimatedCost"
	ParamReconciliation = "reconciliation"
)

type Generation struct {
	ID                  uuid.UUID        `json:"id"`
	UserID              uuid.UUID        `json:"user_id"`
	Provider            string           `json:"provider"`
	Type                string           `json:"type"`
	Prompt              string           `json:"prompt"`
	Model               string           `json:"model"`
	Parameters          map[string]any   `json:"parameters"`
	Status              GenerationStatus `json:"status"`
	ResultURL           *string          `json:"result_url,omitempty"`
	ErrorMessage        *string          `json:"error_message,omitempty"`
	APICost             int64            `json:"api_cost"`
	UserCost            int64            `json:"user_cost"`
	ProcessingTime      time.Duration    `json:"processing_time_ms"`
	NeedsReconciliation bool             `json:"needs_reconciliation"`
	UsageTransactionID  *uuid.UUID       `json:"usage_transaction_id,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
	CompletedAt         *time.Time       `json:"completed_at,omitempty"`
}

// TaskHandle returns the provider task handle stored in Parameters, if any.
func (g *Generation) TaskHandle() string {
	if g == nil || g.Parameters == nil {
		return ""
	}
	h, _ := g.Parameters[ParamTaskHandle].(string)
	return h
}

// EstimatedCost returns the pre-submission raw provider cost estimate in credits.
func (g *Generation) EstimatedCost() int64 {
	if g == nil || g.Parameters == nil {
		return 0
	}
	switch v := g.Parameters[ParamEstimatedCost].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
