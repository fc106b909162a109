package payments

import "context"

type ChargeStatus string

const (
	ChargeSuccessful ChargeStatus = "successful"
	ChargePending    ChargeStatus = "pending"
	ChargeFailed     ChargeStatus = "failed"
)

type ChargeRequest struct {
	AmountSatang int64
	Currency     string
	Description  string
	Method       string
	// Token is the card token from the client-side SDK; card payments only.
	Token     string
	ReturnURI string
}

type Charge struct {
	ID             string
	Status         ChargeStatus
	AuthorizeURI   string
	FailureMessage string
}

// Gateway creates and looks up charges. Transport failures are returned as
// errors; a declined charge is a Charge with status failed.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*Charge, error)
	Retrieve(ctx context.Context, chargeID string) (*Charge, error)
}
