// Package gatewayrepo wraps the external card processor. The lifecycle engine
// treats any failure here as non-retryable within the request: the provider's
// message is surfaced to the caller and re-submission is the caller's call.
package gatewayrepo

import "context"

type ChargeReq struct {
	// AmountCents is the charge amount in the currency's minor unit.
	AmountCents    int64
	Currency       string
	Description    string
	IdempotencyKey string
}

type ChargeResp struct {
	TransactionRef string
}

type Repo interface {
	Charge(ctx context.Context, req ChargeReq) (*ChargeResp, error)
	Refund(ctx context.Context, transactionRef string) error
}

// DeclinedError carries the provider's failure reason verbatim.
type DeclinedError struct {
	Reason string
}

func (e *DeclinedError) Error() string {
	if e.Reason == "" {
		return "payment declined"
	}
	return "payment declined: " + e.Reason
}
