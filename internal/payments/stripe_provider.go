package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/marketcheckout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
	pkgstripe "github.com/angelmondragon/marketcheckout/pkg/stripe"
)

const (
	stripeTokenPrefix         = "tok_"
	stripePaymentMethodPrefix = "pm_"
	stripeIntentPrefix        = "pi_"
)

type stripeAPI interface {
	CreateCharge(ctx context.Context, p pkgstripe.ChargeParams) (*stripe.Charge, error)
	CreatePaymentIntent(ctx context.Context, p pkgstripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	GetCharge(ctx context.Context, id string) (*stripe.Charge, error)
	CreateCustomer(ctx context.Context, p pkgstripe.CustomerParams) (*stripe.Customer, error)
	GetCustomer(ctx context.Context, id string) (*stripe.Customer, error)
}

// StripeProvider charges legacy tokens through Charges and saved payment
// methods through confirmed PaymentIntents.
type StripeProvider struct {
	api stripeAPI
}

func NewStripeProvider(api stripeAPI) (*StripeProvider, error) {
	if api == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	return &StripeProvider{api: api}, nil
}

func (p *StripeProvider) Name() enums.PaymentGateway { return enums.PaymentGatewayStripe }

func (p *StripeProvider) ClassifyMethod(ref string) (enums.PaymentMethodKind, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case strings.HasPrefix(ref, stripeTokenPrefix):
		return enums.PaymentMethodOneShot, nil
	case strings.HasPrefix(ref, stripePaymentMethodPrefix):
		return enums.PaymentMethodReusable, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment token").
			WithDetails(map[string]any{"payment_token": "must be a card token or payment method"})
	}
}

func (p *StripeProvider) Authorize(ctx context.Context, req AuthorizeRequest) (*Result, error) {
	metadata := map[string]string{
		"cart_id": req.Metadata.CartID,
		"user_id": req.Metadata.UserID,
	}
	if req.MethodKind == enums.PaymentMethodOneShot {
		return p.charge(ctx, req, metadata)
	}
	return p.confirmIntent(ctx, req, metadata)
}

func (p *StripeProvider) charge(ctx context.Context, req AuthorizeRequest, metadata map[string]string) (*Result, error) {
	ch, err := p.api.CreateCharge(ctx, pkgstripe.ChargeParams{
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		Token:          req.PaymentMethodRef,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       metadata,
	})
	if err != nil {
		return nil, err
	}
	if ch == nil || ch.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayError, "stripe returned no charge")
	}
	res := &Result{ReferenceID: ch.ID}
	switch ch.Status {
	case stripe.ChargeStatusSucceeded:
		res.Outcome = OutcomeSucceeded
	case stripe.ChargeStatusPending:
		res.Outcome = OutcomeProcessing
	default:
		res.Outcome = OutcomeDeclined
		res.DeclineReason = ch.FailureCode
	}
	return res, nil
}

func (p *StripeProvider) confirmIntent(ctx context.Context, req AuthorizeRequest, metadata map[string]string) (*Result, error) {
	if req.CustomerRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer required for saved payment methods")
	}
	pi, err := p.api.CreatePaymentIntent(ctx, pkgstripe.PaymentIntentParams{
		AmountCents:     req.AmountCents,
		Currency:        req.Currency,
		CustomerID:      req.CustomerRef,
		PaymentMethodID: req.PaymentMethodRef,
		ReturnURL:       req.ReturnURL,
		IdempotencyKey:  req.IdempotencyKey,
		Metadata:        metadata,
	})
	if err != nil {
		return nil, err
	}
	if pi == nil || pi.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayError, "stripe returned no payment intent")
	}
	res := &Result{ReferenceID: pi.ID}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		res.Outcome = OutcomeSucceeded
	case stripe.PaymentIntentStatusProcessing:
		res.Outcome = OutcomeProcessing
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		res.Outcome = OutcomeRequiresAction
		if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
			res.RedirectURL = pi.NextAction.RedirectToURL.URL
		}
	case stripe.PaymentIntentStatusRequiresPaymentMethod, stripe.PaymentIntentStatusCanceled:
		res.Outcome = OutcomeDeclined
		if pi.LastPaymentError != nil {
			res.DeclineReason = string(pi.LastPaymentError.DeclineCode)
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeGatewayError, "stripe returned unexpected intent status").
			WithDetails(map[string]any{"status": string(pi.Status)})
	}
	return res, nil
}

func (p *StripeProvider) CustomerExists(ctx context.Context, customerID string) (bool, error) {
	cust, err := p.api.GetCustomer(ctx, customerID)
	if err != nil {
		return false, err
	}
	return cust != nil, nil
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	cust, err := p.api.CreateCustomer(ctx, pkgstripe.CustomerParams{
		UserID:         req.UserID,
		Email:          req.Email,
		Name:           req.Name,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return "", err
	}
	if cust == nil || cust.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeGatewayError, "stripe returned no customer")
	}
	return cust.ID, nil
}

// LookupPayment accepts either an intent id or a charge id.
func (p *StripeProvider) LookupPayment(ctx context.Context, referenceID string) (*PaymentSnapshot, error) {
	if strings.HasPrefix(referenceID, stripeIntentPrefix) {
		pi, err := p.api.GetPaymentIntent(ctx, referenceID)
		if err != nil {
			return nil, err
		}
		return &PaymentSnapshot{
			ReferenceID: pi.ID,
			Status:      StripeIntentStatus(pi.Status),
			CartRef:     pi.Metadata["cart_id"],
			AmountCents: pi.Amount,
			Currency:    strings.ToUpper(string(pi.Currency)),
		}, nil
	}
	ch, err := p.api.GetCharge(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	return &PaymentSnapshot{
		ReferenceID: ch.ID,
		Status:      StripeChargeStatus(ch),
		CartRef:     ch.Metadata["cart_id"],
		AmountCents: ch.Amount,
		Currency:    strings.ToUpper(string(ch.Currency)),
	}, nil
}

// StripeIntentStatus maps an intent status onto the local lifecycle. Statuses
// that still wait on the buyer map to PENDING.
func StripeIntentStatus(status stripe.PaymentIntentStatus) enums.PaymentTransactionStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return enums.PaymentTxCompleted
	case stripe.PaymentIntentStatusProcessing:
		return enums.PaymentTxProcessing
	case stripe.PaymentIntentStatusCanceled:
		return enums.PaymentTxCancelled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		return enums.PaymentTxFailed
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		return enums.PaymentTxPending
	default:
		return ""
	}
}

// StripeChargeStatus maps a charge onto the local lifecycle.
func StripeChargeStatus(ch *stripe.Charge) enums.PaymentTransactionStatus {
	if ch == nil {
		return ""
	}
	if ch.Refunded {
		return enums.PaymentTxRefunded
	}
	switch ch.Status {
	case stripe.ChargeStatusSucceeded:
		return enums.PaymentTxCompleted
	case stripe.ChargeStatusPending:
		return enums.PaymentTxProcessing
	case stripe.ChargeStatusFailed:
		return enums.PaymentTxFailed
	default:
		return ""
	}
}
