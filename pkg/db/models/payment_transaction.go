package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcheckout/pkg/enums"
)

// PaymentTransaction mirrors one gateway payment. It targets at most one of an
// order or a subscription; gateway_transaction_id is the reconciliation key.
type PaymentTransaction struct {
	ID                   uuid.UUID                      `gorm:"column:id;type:uuid;primaryKey"`
	OrderID              *uuid.UUID                     `gorm:"column:order_id;type:uuid;index;check:chk_payment_transactions_single_target,order_id IS NULL OR subscription_id IS NULL"`
	SubscriptionID       *uuid.UUID                     `gorm:"column:subscription_id;type:uuid"`
	BuyerID              uuid.UUID                      `gorm:"column:buyer_id;type:uuid;not null;index"`
	CartID               *uuid.UUID                     `gorm:"column:cart_id;type:uuid"`
	Gateway              enums.PaymentGateway           `gorm:"column:gateway;type:text;not null"`
	GatewayTransactionID string                         `gorm:"column:gateway_transaction_id;type:text;not null;uniqueIndex:ux_payment_transactions_gateway_tx"`
	AmountCents          int64                          `gorm:"column:amount_cents;not null"`
	RefundedCents        int64                          `gorm:"column:refunded_cents;not null;default:0"`
	Currency             string                         `gorm:"column:currency;type:char(3);not null"`
	Status               enums.PaymentTransactionStatus `gorm:"column:status;type:payment_transaction_status;not null"`
	MethodKind           enums.PaymentMethodKind        `gorm:"column:method_kind;type:text;not null"`
	FailureReason        *string                        `gorm:"column:failure_reason;type:text"`
	LastEventID          *string                        `gorm:"column:last_event_id;type:text"`
	CreatedAt            time.Time                      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                      `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *PaymentTransaction) BeforeCreate(*gorm.DB) error {
	assignID(&t.ID)
	return nil
}

// FullyRefunded reports whether refunds recorded so far cover the charge.
func (t *PaymentTransaction) FullyRefunded() bool {
	return t.AmountCents > 0 && t.RefundedCents >= t.AmountCents
}

// PaymentRefund is one gateway refund counted towards RefundedCents.
type PaymentRefund struct {
	ID                   uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	PaymentTransactionID uuid.UUID `gorm:"column:payment_transaction_id;type:uuid;not null;index"`
	GatewayRefundID      string    `gorm:"column:gateway_refund_id;type:text;not null;uniqueIndex:ux_payment_refunds_gateway_refund"`
	AmountCents          int64     `gorm:"column:amount_cents;not null"`
	CreatedAt            time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (r *PaymentRefund) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}

// PaymentCustomer remembers the gateway-side customer for a buyer.
type PaymentCustomer struct {
	ID                uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	UserID            uuid.UUID            `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_payment_customers_user_gateway,priority:1"`
	Gateway           enums.PaymentGateway `gorm:"column:gateway;type:text;not null;uniqueIndex:ux_payment_customers_user_gateway,priority:2"`
	GatewayCustomerID string               `gorm:"column:gateway_customer_id;type:text;not null"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *PaymentCustomer) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}
