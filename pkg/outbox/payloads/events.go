package payloads

import (
	"time"

	"github.com/google/uuid"
)

// OrderPaidItem is one line of an OrderPaidEvent.
type OrderPaidItem struct {
	ListingID       uuid.UUID `json:"listing_id"`
	SellerID        uuid.UUID `json:"seller_id"`
	Title           string    `json:"title"`
	Quantity        int       `json:"quantity"`
	PriceAtPurchase string    `json:"price_at_purchase"`
	LineTotal       string    `json:"line_total"`
}

// OrderPaidEvent is emitted when an order is materialized.
type OrderPaidEvent struct {
	OrderID          uuid.UUID       `json:"order_id"`
	BuyerID          uuid.UUID       `json:"buyer_id"`
	PaymentReference string          `json:"payment_reference"`
	Gateway          string          `json:"gateway"`
	Currency         string          `json:"currency"`
	Subtotal         string          `json:"subtotal"`
	Commission       string          `json:"commission"`
	Total            string          `json:"total"`
	Items            []OrderPaidItem `json:"items"`
	Recovered        bool            `json:"recovered"`
	PaidAt           time.Time       `json:"paid_at"`
}

// SellerIDs returns the distinct sellers on the order in first-seen order.
func (e OrderPaidEvent) SellerIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(e.Items))
	out := make([]uuid.UUID, 0, len(e.Items))
	for _, item := range e.Items {
		if _, ok := seen[item.SellerID]; ok {
			continue
		}
		seen[item.SellerID] = struct{}{}
		out = append(out, item.SellerID)
	}
	return out
}

// OrderRefundedEvent is emitted when a refund moves an order to REFUNDED.
type OrderRefundedEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	BuyerID          uuid.UUID `json:"buyer_id"`
	PaymentReference string    `json:"payment_reference"`
	RefundedAt       time.Time `json:"refunded_at"`
}

// PaymentRefundedEvent is emitted when a transaction reaches REFUNDED.
type PaymentRefundedEvent struct {
	TransactionID        uuid.UUID  `json:"transaction_id"`
	GatewayTransactionID string     `json:"gateway_transaction_id"`
	OrderID              *uuid.UUID `json:"order_id,omitempty"`
	AmountCents          int64      `json:"amount_cents"`
	Currency             string     `json:"currency"`
}

// PaymentOrphanedEvent flags a captured payment that could not be turned into
// an order and needs an operator refund.
type PaymentOrphanedEvent struct {
	TransactionID        uuid.UUID  `json:"transaction_id"`
	GatewayTransactionID string     `json:"gateway_transaction_id"`
	BuyerID              uuid.UUID  `json:"buyer_id"`
	CartID               *uuid.UUID `json:"cart_id,omitempty"`
	AmountCents          int64      `json:"amount_cents"`
	Currency             string     `json:"currency"`
	Reason               string     `json:"reason"`
}
