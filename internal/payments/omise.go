package payments

import (
	"context"
	"fmt"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"

	"github.com/genstudio/backend/internal/apperr"
	"github.com/genstudio/backend/internal/models"
)

// OmiseGateway charges through Omise. Cards are charged with the client-side
// token; PromptPay and TrueMoney create a source first and are completed by
// the customer at the charge's authorize URI.
type OmiseGateway struct {
	client *omise.Client
}

func NewOmiseGateway(publicKey, secretKey string) (*OmiseGateway, error) {
	client, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("create omise client: %w", err)
	}
	return &OmiseGateway{client: client}, nil
}

func (g *OmiseGateway) Charge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	op := &operations.CreateCharge{
		Amount:      req.AmountSatang,
		Currency:    req.Currency,
		Description: req.Description,
	}
	switch req.Method {
	case models.PaymentCard:
		op.Card = req.Token
	case models.PaymentPromptPay, models.PaymentTrueMoney:
		source := &omise.Source{}
		err := g.call(ctx, func() error {
			return g.client.Do(source, &operations.CreateSource{
				Type:     req.Method,
				Amount:   req.AmountSatang,
				Currency: req.Currency,
			})
		})
		if err != nil {
			return nil, fmt.Errorf("%w: create omise source: %w", apperr.ErrPaymentUnavailable, err)
		}
		op.Source = source.ID
		op.ReturnURI = req.ReturnURI
	default:
		return nil, fmt.Errorf("%w %q", ErrInvalidMethod, req.Method)
	}

	charge := &omise.Charge{}
	if err := g.call(ctx, func() error { return g.client.Do(charge, op) }); err != nil {
		return nil, fmt.Errorf("%w: create omise charge: %w", apperr.ErrPaymentUnavailable, err)
	}
	return fromOmise(charge), nil
}

func (g *OmiseGateway) Retrieve(ctx context.Context, chargeID string) (*Charge, error) {
	charge := &omise.Charge{}
	err := g.call(ctx, func() error {
		return g.client.Do(charge, &operations.RetrieveCharge{ChargeID: chargeID})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: retrieve omise charge: %w", apperr.ErrPaymentUnavailable, err)
	}
	return fromOmise(charge), nil
}

// call does not start fn once ctx is done. A started request is always
// waited for, so a charge created at Omise is never reported as failed.
func (g *OmiseGateway) call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}

func fromOmise(c *omise.Charge) *Charge {
	out := &Charge{ID: c.ID, AuthorizeURI: c.AuthorizeURI}
	switch string(c.Status) {
	case "successful":
		out.Status = ChargeSuccessful
	case "pending":
		out.Status = ChargePending
	default:
		out.Status = ChargeFailed
	}
	if c.FailureMessage != nil {
		out.FailureMessage = *c.FailureMessage
	}
	return out
}

var _ Gateway = (*OmiseGateway)(nil)
