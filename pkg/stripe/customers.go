package stripe

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v84"
)

// CustomerParams creates a Stripe customer for a buyer.
type CustomerParams struct {
	UserID         string
	Email          string
	Name           string
	IdempotencyKey string
}

func (c *Client) CreateCustomer(ctx context.Context, p CustomerParams) (*stripe.Customer, error) {
	params := &stripe.CustomerCreateParams{
		Metadata: map[string]string{"user_id": p.UserID},
	}
	if p.Email != "" {
		params.Email = stripe.String(p.Email)
	}
	if p.Name != "" {
		params.Name = stripe.String(p.Name)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	cust, err := c.api.V1Customers.Create(ctx, params)
	if err != nil {
		mapped := mapStripeError(err, "create customer")
		c.log(ctx, "create_customer", nil, mapped)
		return nil, mapped
	}
	c.log(ctx, "create_customer", map[string]any{"customer_id": cust.ID}, nil)
	return cust, nil
}

// GetCustomer returns nil when the customer was deleted or never existed.
func (c *Client) GetCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	cust, err := c.api.V1Customers.Retrieve(ctx, id, &stripe.CustomerRetrieveParams{})
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return nil, nil
		}
		mapped := mapStripeError(err, "get customer")
		c.log(ctx, "get_customer", map[string]any{"customer_id": id}, mapped)
		return nil, mapped
	}
	if cust == nil || cust.Deleted {
		return nil, nil
	}
	return cust, nil
}
