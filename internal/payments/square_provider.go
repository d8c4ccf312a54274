package payments

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/marketcheckout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
	"github.com/angelmondragon/marketcheckout/pkg/square"
)

const (
	squareNoncePrefix      = "cnon:"
	squareCardOnFilePrefix = "ccof:"
)

type squareAPI interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	CreateCustomer(ctx context.Context, params square.CustomerCreateParams) (*sq.Customer, error)
	GetCustomer(ctx context.Context, customerID string) (*sq.Customer, error)
	FindCustomerByReference(ctx context.Context, userID string) (*sq.Customer, error)
}

// SquareProvider charges Web Payments nonces and cards on file.
type SquareProvider struct {
	api squareAPI
}

func NewSquareProvider(api squareAPI) (*SquareProvider, error) {
	if api == nil {
		return nil, fmt.Errorf("square client required")
	}
	return &SquareProvider{api: api}, nil
}

func (p *SquareProvider) Name() enums.PaymentGateway { return enums.PaymentGatewaySquare }

func (p *SquareProvider) ClassifyMethod(ref string) (enums.PaymentMethodKind, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case strings.HasPrefix(ref, squareNoncePrefix):
		return enums.PaymentMethodOneShot, nil
	case strings.HasPrefix(ref, squareCardOnFilePrefix):
		return enums.PaymentMethodReusable, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment token").
			WithDetails(map[string]any{"payment_token": "must be a card nonce or card on file"})
	}
}

func (p *SquareProvider) Authorize(ctx context.Context, req AuthorizeRequest) (*Result, error) {
	params := square.PaymentCreateParams{
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		SourceID:       req.PaymentMethodRef,
		IdempotencyKey: req.IdempotencyKey,
		ReferenceID:    req.Metadata.CartID,
		Note:           "user " + req.Metadata.UserID,
	}
	if req.MethodKind == enums.PaymentMethodReusable {
		params.CustomerID = req.CustomerRef
	}

	payment, err := p.api.CreatePayment(ctx, params)
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.GetID() == nil {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayError, "square returned no payment")
	}

	res := &Result{ReferenceID: *payment.GetID()}
	switch status := strings.ToUpper(derefString(payment.GetStatus())); status {
	case "COMPLETED":
		res.Outcome = OutcomeSucceeded
	case "APPROVED", "PENDING":
		res.Outcome = OutcomeProcessing
	case "FAILED", "CANCELED":
		res.Outcome = OutcomeDeclined
		res.DeclineReason = strings.ToLower(status)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeGatewayError, "square returned unknown payment status").
			WithDetails(map[string]any{"status": status})
	}
	return res, nil
}

func (p *SquareProvider) CustomerExists(ctx context.Context, customerID string) (bool, error) {
	cust, err := p.api.GetCustomer(ctx, customerID)
	if err != nil {
		return false, err
	}
	return cust != nil, nil
}

// CreateCustomer adopts a customer an earlier attempt already created for the
// user before creating a new one.
func (p *SquareProvider) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	existing, err := p.api.FindCustomerByReference(ctx, req.UserID)
	if err != nil {
		return "", err
	}
	if existing != nil && existing.GetID() != nil {
		return *existing.GetID(), nil
	}
	cust, err := p.api.CreateCustomer(ctx, square.CustomerCreateParams{
		Email:          req.Email,
		GivenName:      req.Name,
		ReferenceID:    req.UserID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return "", err
	}
	if cust == nil || cust.GetID() == nil {
		return "", pkgerrors.New(pkgerrors.CodeGatewayError, "square returned no customer")
	}
	return *cust.GetID(), nil
}

func (p *SquareProvider) LookupPayment(ctx context.Context, referenceID string) (*PaymentSnapshot, error) {
	payment, err := p.api.GetPayment(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "square payment not found")
	}
	snap := &PaymentSnapshot{
		ReferenceID: referenceID,
		Status:      SquarePaymentStatus(derefString(payment.GetStatus())),
		CartRef:     derefString(payment.GetReferenceID()),
	}
	if money := payment.GetAmountMoney(); money != nil {
		if amount := money.GetAmount(); amount != nil {
			snap.AmountCents = *amount
		}
		if currency := money.GetCurrency(); currency != nil {
			snap.Currency = string(*currency)
		}
	}
	return snap, nil
}

// SquarePaymentStatus maps a Square payment status onto the local lifecycle.
// Unknown values map to the empty status.
func SquarePaymentStatus(status string) enums.PaymentTransactionStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "COMPLETED":
		return enums.PaymentTxCompleted
	case "APPROVED", "PENDING":
		return enums.PaymentTxProcessing
	case "FAILED":
		return enums.PaymentTxFailed
	case "CANCELED":
		return enums.PaymentTxCancelled
	default:
		return ""
	}
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
