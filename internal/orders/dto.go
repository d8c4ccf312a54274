package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcheckout/pkg/db/models"
)

// OrderDTO is the buyer-facing order representation.
type OrderDTO struct {
	ID                uuid.UUID      `json:"id"`
	Status            string         `json:"status"`
	Currency          string         `json:"currency"`
	Subtotal          string         `json:"subtotal"`
	Commission        string         `json:"commission"`
	Total             string         `json:"total"`
	PaymentReference  string         `json:"payment_reference"`
	ShippingAddressID *uuid.UUID     `json:"shipping_address_id,omitempty"`
	ShippingMethodID  *uuid.UUID     `json:"shipping_method_id,omitempty"`
	Items             []OrderItemDTO `json:"items"`
	PaidAt            time.Time      `json:"paid_at"`
}

// OrderItemDTO is one purchased line.
type OrderItemDTO struct {
	ListingID       uuid.UUID `json:"listing_id"`
	SellerID        uuid.UUID `json:"seller_id"`
	Title           string    `json:"title"`
	Quantity        int       `json:"quantity"`
	PriceAtPurchase string    `json:"price_at_purchase"`
	LineTotal       string    `json:"line_total"`
}

// NewOrderDTO renders money with two decimals.
func NewOrderDTO(order *models.Order) *OrderDTO {
	if order == nil {
		return nil
	}
	items := make([]OrderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemDTO{
			ListingID:       item.ListingID,
			SellerID:        item.SellerID,
			Title:           item.Title,
			Quantity:        item.Quantity,
			PriceAtPurchase: item.PriceAtPurchase.StringFixed(2),
			LineTotal:       item.LineTotal.StringFixed(2),
		})
	}
	return &OrderDTO{
		ID:                order.ID,
		Status:            string(order.Status),
		Currency:          order.Currency,
		Subtotal:          order.Subtotal.StringFixed(2),
		Commission:        order.Commission.StringFixed(2),
		Total:             order.Total.StringFixed(2),
		PaymentReference:  order.PaymentReference,
		ShippingAddressID: order.ShippingAddressID,
		ShippingMethodID:  order.ShippingMethodID,
		Items:             items,
		PaidAt:            order.PaidAt,
	}
}
