package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
)

const defaultCurrency = "USD"

// CustomerCreateParams defines the payload to create a Square customer.
// ReferenceID carries the local user id.
type CustomerCreateParams struct {
	Email          string
	GivenName      string
	ReferenceID    string
	Note           string
	IdempotencyKey string
}

func (p CustomerCreateParams) toSquareRequest(idempotencyKey string) *sq.CreateCustomerRequest {
	return &sq.CreateCustomerRequest{
		IdempotencyKey: optional(idempotencyKey),
		EmailAddress:   optional(p.Email),
		GivenName:      optional(p.GivenName),
		ReferenceID:    optional(p.ReferenceID),
		Note:           optional(p.Note),
	}
}

// PaymentCreateParams is one card authorization, captured immediately.
// SourceID is a one-shot cnon: nonce or a ccof: card on file; the latter
// needs CustomerID. ReferenceID carries the cart id so webhooks can find the
// cart again.
type PaymentCreateParams struct {
	AmountCents    int64
	Currency       string
	LocationID     string
	CustomerID     string
	SourceID       string
	IdempotencyKey string
	Note           string
	ReferenceID    string
}

func (p PaymentCreateParams) toSquareRequest(idempotencyKey string) *sq.CreatePaymentRequest {
	return &sq.CreatePaymentRequest{
		IdempotencyKey: idempotencyKey,
		SourceID:       p.SourceID,
		AmountMoney:    money(p.AmountCents, p.Currency),
		Autocomplete:   ptr(true),
		LocationID:     optional(p.LocationID),
		CustomerID:     optional(p.CustomerID),
		Note:           optional(p.Note),
		ReferenceID:    optional(p.ReferenceID),
	}
}

// optional maps blank strings to nil so Square omits the field.
func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func ptr[T any](v T) *T { return &v }

func money(amountCents int64, currency string) *sq.Money {
	if amountCents <= 0 {
		return nil
	}
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = defaultCurrency
	}
	return &sq.Money{Amount: ptr(amountCents), Currency: ptr(sq.Currency(code))}
}
