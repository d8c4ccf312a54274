package stripe

import (
	"context"
	"strings"

	"github.com/stripe/stripe-go/v84"
)

// ChargeParams creates a charge from a single-use card token.
type ChargeParams struct {
	AmountCents    int64
	Currency       string
	Token          string
	IdempotencyKey string
	Metadata       map[string]string
}

// PaymentIntentParams confirms a saved payment method for a customer.
type PaymentIntentParams struct {
	AmountCents     int64
	Currency        string
	CustomerID      string
	PaymentMethodID string
	ReturnURL       string
	IdempotencyKey  string
	Metadata        map[string]string
}

// CreateCharge charges a legacy tok_ token.
func (c *Client) CreateCharge(ctx context.Context, p ChargeParams) (*stripe.Charge, error) {
	params := &stripe.ChargeCreateParams{
		Amount:   stripe.Int64(p.AmountCents),
		Currency: stripe.String(strings.ToLower(p.Currency)),
		Source:   &stripe.PaymentSourceSourceParams{Token: stripe.String(p.Token)},
		Metadata: p.Metadata,
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	ch, err := c.api.V1Charges.Create(ctx, params)
	if err != nil {
		mapped := mapPaymentError(err, "create charge")
		c.log(ctx, "create_charge", map[string]any{"amount": p.AmountCents}, mapped)
		return nil, mapped
	}
	c.log(ctx, "create_charge", map[string]any{"charge_id": ch.ID, "status": string(ch.Status)}, nil)
	return ch, nil
}

// CreatePaymentIntent creates and confirms an intent in one call. The result
// may require a redirect for 3-D Secure.
func (c *Client) CreatePaymentIntent(ctx context.Context, p PaymentIntentParams) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(p.AmountCents),
		Currency:      stripe.String(strings.ToLower(p.Currency)),
		Customer:      stripe.String(p.CustomerID),
		PaymentMethod: stripe.String(p.PaymentMethodID),
		Confirm:       stripe.Bool(true),
		Metadata:      p.Metadata,
	}
	if p.ReturnURL != "" {
		params.ReturnURL = stripe.String(p.ReturnURL)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	pi, err := c.api.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		mapped := mapPaymentError(err, "create payment intent")
		c.log(ctx, "create_payment_intent", map[string]any{"amount": p.AmountCents, "customer_id": p.CustomerID}, mapped)
		return nil, mapped
	}
	c.log(ctx, "create_payment_intent", map[string]any{"payment_intent_id": pi.ID, "status": string(pi.Status)}, nil)
	return pi, nil
}

// GetPaymentIntent fetches an intent by id.
func (c *Client) GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	pi, err := c.api.V1PaymentIntents.Retrieve(ctx, id, &stripe.PaymentIntentRetrieveParams{})
	if err != nil {
		mapped := mapStripeError(err, "get payment intent")
		c.log(ctx, "get_payment_intent", map[string]any{"payment_intent_id": id}, mapped)
		return nil, mapped
	}
	return pi, nil
}

// GetCharge fetches a charge by id.
func (c *Client) GetCharge(ctx context.Context, id string) (*stripe.Charge, error) {
	ch, err := c.api.V1Charges.Retrieve(ctx, id, &stripe.ChargeRetrieveParams{})
	if err != nil {
		mapped := mapStripeError(err, "get charge")
		c.log(ctx, "get_charge", map[string]any{"charge_id": id}, mapped)
		return nil, mapped
	}
	return ch, nil
}
