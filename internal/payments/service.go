package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/genstudio/backend/internal/apperr"
	"github.com/genstudio/backend/internal/ledger"
	"github.com/genstudio/backend/internal/models"
)

var (
	ErrUnknownPackage = fmt.Errorf("%w: unknown package", apperr.ErrValidation)
	ErrInvalidMethod  = fmt.Errorf("%w: invalid payment method", apperr.ErrValidation)
	// ErrNotConfigured means no gateway keys were supplied.
	ErrNotConfigured = fmt.Errorf("%w: payments are not configured", apperr.ErrPaymentUnavailable)
)

type PaymentDetails struct {
	Method string
	Token  string
}

// Outcome is the result of a purchase attempt. A declined charge is an
// Outcome with a failed purchase, not an error.
type Outcome struct {
	Purchase       *models.Purchase
	Credited       bool
	Balance        int64
	AuthorizeURI   string
	FailureMessage string
}

type Service struct {
	gateway   Gateway
	store     Store
	ledger    ledger.Service
	packages  []Package
	returnURI string
	log       *slog.Logger
}

// NewService wires the purchase flow. A nil gateway makes every purchase fail
// with ErrNotConfigured.
func NewService(gateway Gateway, store Store, ledgerSvc ledger.Service, returnURI string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		gateway:   gateway,
		store:     store,
		ledger:    ledgerSvc,
		packages:  DefaultPackages(),
		returnURI: returnURI,
		log:       log,
	}
}

func (s *Service) Packages() []Package {
	return append([]Package(nil), s.packages...)
}

// PurchaseCredits charges the user for a package. Successful charges are
// credited immediately; pending ones (QR and wallet flows) are credited by
// ConfirmCharge once the gateway reports success.
func (s *Service) PurchaseCredits(ctx context.Context, userID uuid.UUID, packageID string, details PaymentDetails) (*Outcome, error) {
	pkg, err := findPackage(s.packages, packageID)
	if err != nil {
		return nil, err
	}
	switch details.Method {
	case models.PaymentCard:
		if details.Token == "" {
			return nil, fmt.Errorf("%w: card payments require a token", ErrInvalidMethod)
		}
	case models.PaymentPromptPay, models.PaymentTrueMoney:
	default:
		return nil, fmt.Errorf("%w %q", ErrInvalidMethod, details.Method)
	}
	if s.gateway == nil {
		return nil, ErrNotConfigured
	}

	// Once the charge is requested it must be recorded, whatever the caller does.
	ctx = context.WithoutCancel(ctx)
	charge, err := s.gateway.Charge(ctx, ChargeRequest{
		AmountSatang: pkg.AmountSatang(),
		Currency:     Currency,
		Description:  fmt.Sprintf("%s - %d credits (user %s)", pkg.Name, pkg.Credits, userID),
		Method:       details.Method,
		Token:        details.Token,
		ReturnURI:    s.returnURI,
	})
	if err != nil {
		if !errors.Is(err, apperr.ErrPaymentUnavailable) {
			err = fmt.Errorf("%w: %w", apperr.ErrPaymentUnavailable, err)
		}
		return nil, err
	}

	log := s.log.With("user_id", userID, "charge_id", charge.ID, "package_id", pkg.ID)
	purchase := &models.Purchase{
		ChargeID:     charge.ID,
		UserID:       userID,
		PackageID:    pkg.ID,
		Credits:      pkg.Credits,
		AmountSatang: pkg.AmountSatang(),
		Method:       details.Method,
		Status:       models.PurchasePending,
		AuthorizeURI: charge.AuthorizeURI,
	}
	if err := s.store.Create(ctx, purchase); err != nil {
		log.ErrorContext(ctx, "charge created but purchase not recorded", "status", charge.Status, "error", err)
		return nil, err
	}
	log.InfoContext(ctx, "charge created", "status", charge.Status, "method", details.Method, "amount_satang", purchase.AmountSatang)

	return s.apply(ctx, purchase, charge)
}

// ConfirmCharge re-reads a charge from the gateway and settles the purchase.
// Calling it again after settlement returns the settled outcome.
func (s *Service) ConfirmCharge(ctx context.Context, userID uuid.UUID, chargeID string) (*Outcome, error) {
	purchase, err := s.store.Get(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	if purchase.UserID != userID {
		return nil, ErrPurchaseNotFound
	}
	if purchase.Status != models.PurchasePending {
		return s.outcome(ctx, purchase, false, "")
	}
	if s.gateway == nil {
		return nil, ErrNotConfigured
	}

	charge, err := s.gateway.Retrieve(ctx, chargeID)
	if err != nil {
		if !errors.Is(err, apperr.ErrPaymentUnavailable) {
			err = fmt.Errorf("%w: %w", apperr.ErrPaymentUnavailable, err)
		}
		return nil, err
	}
	return s.apply(ctx, purchase, charge)
}

func (s *Service) apply(ctx context.Context, purchase *models.Purchase, charge *Charge) (*Outcome, error) {
	switch charge.Status {
	case ChargeSuccessful:
		return s.settle(ctx, purchase)
	case ChargeFailed:
		if _, err := s.store.Transition(ctx, purchase.ChargeID, models.PurchaseFailed, models.PurchasePending); err != nil {
			return nil, err
		}
		msg := charge.FailureMessage
		if msg == "" {
			msg = "payment failed"
		}
		s.log.InfoContext(ctx, "charge failed", "charge_id", purchase.ChargeID, "reason", msg)
		return s.reload(ctx, purchase.ChargeID, false, msg)
	default:
		return s.outcome(ctx, purchase, false, "")
	}
}

// settle claims the pending -> successful transition and credits the ledger.
// Only the caller that wins the transition credits.
func (s *Service) settle(ctx context.Context, purchase *models.Purchase) (*Outcome, error) {
	won, err := s.store.Transition(ctx, purchase.ChargeID, models.PurchaseSuccessful, models.PurchasePending)
	if err != nil {
		return nil, err
	}
	if !won {
		return s.reload(ctx, purchase.ChargeID, false, "")
	}

	_, err = s.ledger.Credit(ctx, purchase.UserID, purchase.Credits, "Credit purchase: "+purchase.PackageID, ledger.Metadata{
		Kind:             models.TxPurchase,
		PaymentMethod:    purchase.Method,
		PaymentReference: purchase.ChargeID,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "paid charge not credited, reverting to pending",
			"charge_id", purchase.ChargeID, "user_id", purchase.UserID, "credits", purchase.Credits, "error", err)
		if _, rerr := s.store.Transition(ctx, purchase.ChargeID, models.PurchasePending, models.PurchaseSuccessful); rerr != nil {
			s.log.ErrorContext(ctx, "failed to revert purchase", "charge_id", purchase.ChargeID, "error", rerr)
		}
		return nil, err
	}
	s.log.InfoContext(ctx, "credits purchased", "charge_id", purchase.ChargeID, "user_id", purchase.UserID, "credits", purchase.Credits)
	return s.reload(ctx, purchase.ChargeID, true, "")
}

func (s *Service) reload(ctx context.Context, chargeID string, credited bool, failure string) (*Outcome, error) {
	p, err := s.store.Get(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	return s.outcome(ctx, p, credited, failure)
}

func (s *Service) outcome(ctx context.Context, p *models.Purchase, credited bool, failure string) (*Outcome, error) {
	balance, err := s.ledger.GetBalance(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Purchase: p, Credited: credited, Balance: balance, FailureMessage: failure}
	if p.Status == models.PurchasePending {
		out.AuthorizeURI = p.AuthorizeURI
	}
	return out, nil
}
