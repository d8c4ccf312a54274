package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcheckout/internal/cart"
	"github.com/angelmondragon/marketcheckout/internal/commission"
	"github.com/angelmondragon/marketcheckout/pkg/db/models"
	"github.com/angelmondragon/marketcheckout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
	"github.com/angelmondragon/marketcheckout/pkg/logger"
	"github.com/angelmondragon/marketcheckout/pkg/outbox"
	"github.com/angelmondragon/marketcheckout/pkg/outbox/payloads"
)

// PaymentRef identifies the captured payment an order is built from.
type PaymentRef struct {
	Gateway   enums.PaymentGateway
	Reference string
}

// MaterializeInput is everything needed to turn a validated cart into an
// order. Locked must come from the same transaction passed to Materialize.
type MaterializeInput struct {
	BuyerID           uuid.UUID
	Snapshot          *cart.Snapshot
	Locked            map[uuid.UUID]*models.Listing
	Payment           PaymentRef
	Currency          string
	CommissionRate    decimal.Decimal
	ShippingAddressID *uuid.UUID
	ShippingMethodID  *uuid.UUID
	Recovered         bool
}

// Materializer creates the order, decrements stock, clears the cart and
// queues order.paid, all inside the caller's transaction.
type Materializer struct {
	orders Repository
	carts  cart.CartRepository
	stock  stockDecrementer
	outbox outboxPublisher
	logg   *logger.Logger
}

func NewMaterializer(orders Repository, carts cart.CartRepository, stock stockDecrementer, publisher outboxPublisher, logg *logger.Logger) (*Materializer, error) {
	if orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Materializer{orders: orders, carts: carts, stock: stock, outbox: publisher, logg: logg}, nil
}

// Materialize must run in the transaction that holds the stock locks. Any
// error leaves the transaction for the caller to roll back.
func (m *Materializer) Materialize(ctx context.Context, tx *gorm.DB, in MaterializeInput) (*models.Order, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if in.Snapshot == nil || in.Snapshot.Cart == nil || len(in.Snapshot.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}
	if in.Payment.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}

	priced := make([]commission.LineItem, 0, len(in.Snapshot.Lines))
	items := make([]models.OrderItem, 0, len(in.Snapshot.Lines))
	for _, line := range in.Snapshot.Lines {
		listing, ok := in.Locked[line.ListingID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeIntegrity, "listing not locked for materialization").
				WithDetails(map[string]any{"listing_id": line.ListingID.String()})
		}
		priced = append(priced, commission.LineItem{UnitPrice: listing.Price, Quantity: line.Quantity})
		items = append(items, models.OrderItem{
			ListingID:       listing.ID,
			SellerID:        listing.SellerID,
			Title:           listing.Title,
			Quantity:        line.Quantity,
			PriceAtPurchase: listing.Price,
			LineTotal:       commission.LineTotal(listing.Price, line.Quantity),
		})
	}
	totals := commission.ComputeTotals(priced, in.CommissionRate)

	order := &models.Order{
		BuyerID:           in.BuyerID,
		Status:            enums.OrderStatusPaid,
		Currency:          in.Currency,
		Subtotal:          totals.Subtotal,
		Commission:        totals.Commission,
		Total:             totals.Total,
		CommissionRate:    in.CommissionRate,
		Gateway:           in.Payment.Gateway,
		PaymentReference:  in.Payment.Reference,
		ShippingAddressID: in.ShippingAddressID,
		ShippingMethodID:  in.ShippingMethodID,
		PaidAt:            time.Now().UTC(),
	}

	for _, item := range items {
		if err := m.stock.Decrement(ctx, tx, item.ListingID, item.Quantity); err != nil {
			return nil, err
		}
	}
	if err := m.orders.WithTx(tx).Create(ctx, order, items); err != nil {
		return nil, err
	}
	if err := m.carts.WithTx(tx).Clear(ctx, in.Snapshot.Cart.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}

	source := "checkout"
	if in.Recovered {
		source = "reconciler"
	}
	if err := m.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: in.BuyerID, Source: source},
		Data:          orderPaidPayload(order, in.Recovered),
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue order.paid")
	}

	ctx = m.logg.WithOrderID(ctx, order.ID.String())
	m.logg.Info(m.logg.WithFields(ctx, map[string]any{
		"payment_reference": order.PaymentReference,
		"total":             order.Total.StringFixed(2),
		"recovered":         in.Recovered,
	}), "order materialized")
	return order, nil
}

func orderPaidPayload(order *models.Order, recovered bool) payloads.OrderPaidEvent {
	items := make([]payloads.OrderPaidItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, payloads.OrderPaidItem{
			ListingID:       item.ListingID,
			SellerID:        item.SellerID,
			Title:           item.Title,
			Quantity:        item.Quantity,
			PriceAtPurchase: item.PriceAtPurchase.StringFixed(2),
			LineTotal:       item.LineTotal.StringFixed(2),
		})
	}
	return payloads.OrderPaidEvent{
		OrderID:          order.ID,
		BuyerID:          order.BuyerID,
		PaymentReference: order.PaymentReference,
		Gateway:          string(order.Gateway),
		Currency:         order.Currency,
		Subtotal:         order.Subtotal.StringFixed(2),
		Commission:       order.Commission.StringFixed(2),
		Total:            order.Total.StringFixed(2),
		Items:            items,
		Recovered:        recovered,
		PaidAt:           order.PaidAt,
	}
}
