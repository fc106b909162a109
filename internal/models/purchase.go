package models

import (
	"time"

	"github.com/google/uuid"
)

// PurchaseStatus mirrors the payment gateway charge outcome.
type PurchaseStatus string

const (
	PurchasePending    PurchaseStatus = "pending"
	PurchaseSuccessful PurchaseStatus = "successful"
	PurchaseFailed     PurchaseStatus = "failed"
)

type Purchase struct {
	ChargeID     string         `json:"charge_id"`
	UserID       uuid.UUID      `json:"user_id"`
	PackageID    string         `json:"package_id"`
	Credits      int64          `json:"credits"`
	AmountSatang int64          `json:"amount_satang"`
	Method       string         `json:"method"`
	Status       PurchaseStatus `json:"status"`
	AuthorizeURI string         `json:"authorize_uri,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
