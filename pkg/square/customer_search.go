package square

import (
	"context"
	"strings"

	sq "github.com/square/square-go-sdk"
)

// FindCustomerByReference returns the customer whose reference_id is the
// given local user id, or nil when Square has none.
func (c *Client) FindCustomerByReference(ctx context.Context, userID string) (*sq.Customer, error) {
	if c == nil {
		return nil, errAccessTokenRequired
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil
	}
	fields := map[string]any{"reference_id": userID}
	c.log(ctx, "request", "find_customer", fields)

	resp, err := c.sdk.Customers.Search(ctx, &sq.SearchCustomersRequest{
		Limit: ptr(int64(1)),
		Query: &sq.CustomerQuery{Filter: &sq.CustomerFilter{
			ReferenceID: &sq.CustomerTextFilter{Exact: optional(userID)},
		}},
	})
	if err != nil {
		fields["error"] = err.Error()
		c.log(ctx, "error", "find_customer", fields)
		return nil, c.mapSquareError(err, "find customer")
	}
	for _, customer := range resp.GetCustomers() {
		if customer == nil || customer.GetID() == nil {
			continue
		}
		fields["customer_id"] = *customer.GetID()
		c.log(ctx, "response", "find_customer", fields)
		return customer, nil
	}
	c.log(ctx, "response", "find_customer", fields)
	return nil, nil
}
