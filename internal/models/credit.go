package models

import (
	"time"

	"github.com/google/uuid"
)

// TxKind is the kind of a credit transaction.
type TxKind string

const (
	TxPurchase TxKind = "purchase"
	TxUsage    TxKind = "usage"
	TxRefund   TxKind = "refund"
)

// Payment methods accepted for credit purchases.
const (
	PaymentCard      = "card"
	PaymentPromptPay = "promptpay"
	PaymentTrueMoney = "truemoney"
)

// Transaction is an immutable ledger row. Amount is signed: positive for
// purchase and refund, negative for usage. BalanceAfter is the user's balance
// right after Amount was applied.
type Transaction struct {
	ID               uuid.UUID  `json:"id"`
	UserID           uuid.UUID  `json:"user_id"`
	Kind             TxKind     `json:"kind"`
	Amount           int64      `json:"amount"`
	BalanceAfter     int64      `json:"balance_after"`
	Description      string     `json:"description"`
	PaymentMethod    string     `json:"payment_method,omitempty"`
	PaymentReference string     `json:"payment_reference,omitempty"`
	GenerationID     *uuid.UUID `json:"generation_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}
