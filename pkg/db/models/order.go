package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcheckout/pkg/enums"
)

// Order is created exactly once per successful checkout by the materializer.
type Order struct {
	ID                uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID           uuid.UUID            `gorm:"column:buyer_id;type:uuid;not null;index"`
	Status            enums.OrderStatus    `gorm:"column:status;type:order_status;not null"`
	Currency          string               `gorm:"column:currency;type:char(3);not null"`
	Subtotal          decimal.Decimal      `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Commission        decimal.Decimal      `gorm:"column:commission;type:numeric(12,2);not null"`
	Total             decimal.Decimal      `gorm:"column:total;type:numeric(12,2);not null"`
	CommissionRate    decimal.Decimal      `gorm:"column:commission_rate;type:numeric(6,4);not null"`
	Gateway           enums.PaymentGateway `gorm:"column:gateway;type:text;not null"`
	PaymentReference  string               `gorm:"column:payment_reference;type:text;not null;uniqueIndex:ux_orders_payment_reference"`
	ShippingAddressID *uuid.UUID           `gorm:"column:shipping_address_id;type:uuid"`
	ShippingMethodID  *uuid.UUID           `gorm:"column:shipping_method_id;type:uuid"`
	Items             []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	PaidAt            time.Time            `gorm:"column:paid_at;not null"`
	ShippedAt         *time.Time           `gorm:"column:shipped_at"`
	DeliveredAt       *time.Time           `gorm:"column:delivered_at"`
	CancelledAt       *time.Time           `gorm:"column:cancelled_at"`
	RefundedAt        *time.Time           `gorm:"column:refunded_at"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// OrderItem snapshots the listing price at purchase time.
type OrderItem struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ListingID       uuid.UUID       `gorm:"column:listing_id;type:uuid;not null"`
	SellerID        uuid.UUID       `gorm:"column:seller_id;type:uuid;not null"`
	Title           string          `gorm:"column:title;type:text;not null"`
	Quantity        int             `gorm:"column:quantity;not null;check:chk_order_items_quantity_positive,quantity > 0"`
	PriceAtPurchase decimal.Decimal `gorm:"column:price_at_purchase;type:numeric(12,2);not null"`
	LineTotal       decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}
