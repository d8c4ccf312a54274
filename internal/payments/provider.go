package payments

import (
	"context"

	"github.com/angelmondragon/marketcheckout/pkg/enums"
)

// Outcome is the uniform result of an authorization. Gateway faults are
// returned as errors, never as an Outcome.
type Outcome string

const (
	OutcomeSucceeded      Outcome = "succeeded"
	OutcomeDeclined       Outcome = "declined"
	OutcomeRequiresAction Outcome = "requires_action"
	OutcomeProcessing     Outcome = "processing"
)

// AuthorizeRequest carries everything a provider needs to charge once.
// AmountCents is in the currency's minor units.
type AuthorizeRequest struct {
	AmountCents      int64
	Currency         string
	CustomerRef      string
	PaymentMethodRef string
	MethodKind       enums.PaymentMethodKind
	IdempotencyKey   string
	ReturnURL        string
	Metadata         Metadata
}

// Metadata is echoed to the gateway so webhooks can find the cart again.
type Metadata struct {
	CartID string
	UserID string
}

// Result of a completed authorization call.
type Result struct {
	ReferenceID   string
	Outcome       Outcome
	DeclineReason string
	RedirectURL   string
}

// CustomerRequest creates a durable gateway customer for a buyer.
type CustomerRequest struct {
	UserID         string
	Email          string
	Name           string
	IdempotencyKey string
}

// PaymentSnapshot is the gateway's current view of a payment, used by polling.
type PaymentSnapshot struct {
	ReferenceID string
	Status      enums.PaymentTransactionStatus
	CartRef     string
	AmountCents int64
	Currency    string
}

// Provider is implemented once per card processor.
type Provider interface {
	Name() enums.PaymentGateway
	ClassifyMethod(ref string) (enums.PaymentMethodKind, error)
	Authorize(ctx context.Context, req AuthorizeRequest) (*Result, error)
	CustomerExists(ctx context.Context, customerID string) (bool, error)
	CreateCustomer(ctx context.Context, req CustomerRequest) (string, error)
	LookupPayment(ctx context.Context, referenceID string) (*PaymentSnapshot, error)
}
