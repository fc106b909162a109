package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/genstudio/backend/internal/ledger"
	"github.com/genstudio/backend/internal/models"
	"github.com/genstudio/backend/internal/payments"
	"github.com/genstudio/backend/internal/respond"
)

// Purchases is the part of payments.Service the handler needs.
type Purchases interface {
	Packages() []payments.Package
	PurchaseCredits(ctx context.Context, userID uuid.UUID, packageID string, details payments.PaymentDetails) (*payments.Outcome, error)
	ConfirmCharge(ctx context.Context, userID uuid.UUID, chargeID string) (*payments.Outcome, error)
}

// CreditHandler serves /credits endpoints.
type CreditHandler struct {
	Ledger    ledger.Service
	Purchases Purchases
	Logger    *slog.Logger
}

type purchaseRequest struct {
	PackageID     string `json:"package_id"`
	PaymentMethod string `json:"payment_method"`
	Token         string `json:"token"`
}

type purchaseResponse struct {
	Purchase       *models.Purchase `json:"purchase"`
	Credited       bool             `json:"credited"`
	Balance        int64            `json:"balance"`
	AuthorizeURI   string           `json:"authorize_uri,omitempty"`
	FailureMessage string           `json:"failure_message,omitempty"`
}

// Balance handles GET /api/v1/credits/balance.
func (h *CreditHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	balance, err := h.Ledger.GetBalance(r.Context(), userID)
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

// Transactions handles GET /api/v1/credits/transactions?limit=.
func (h *CreditHandler) Transactions(w http.ResponseWriter, r *http.Request) {
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
	txs, err := h.Ledger.ListTransactions(r.Context(), userID, limit)
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

// Packages handles GET /api/v1/credits/packages.
func (h *CreditHandler) Packages(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]any{"packages": h.Purchases.Packages()})
}

// Purchase handles POST /api/v1/credits/purchase.
func (h *CreditHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	var req purchaseRequest
	if err := decode(r, &req); err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	out, err := h.Purchases.PurchaseCredits(r.Context(), userID, req.PackageID, payments.PaymentDetails{
		Method: req.PaymentMethod,
		Token:  req.Token,
	})
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	h.writeOutcome(w, out)
}

// Confirm handles POST /api/v1/credits/purchase/{chargeId}/confirm.
func (h *CreditHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	out, err := h.Purchases.ConfirmCharge(r.Context(), userID, r.PathValue("chargeId"))
	if err != nil {
		respond.Error(w, r, h.Logger, err)
		return
	}
	h.writeOutcome(w, out)
}

// writeOutcome maps the purchase status: successful 200, pending 202,
// declined 402.
func (h *CreditHandler) writeOutcome(w http.ResponseWriter, out *payments.Outcome) {
	status := http.StatusOK
	switch out.Purchase.Status {
	case models.PurchasePending:
		status = http.StatusAccepted
	case models.PurchaseFailed:
		status = http.StatusPaymentRequired
	}
	respond.JSON(w, status, purchaseResponse{
		Purchase:       out.Purchase,
		Credited:       out.Credited,
		Balance:        out.Balance,
		AuthorizeURI:   out.AuthorizeURI,
		FailureMessage: out.FailureMessage,
	})
}
