package webhooks

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/marketcheckout/pkg/enums"
)

// Kind is the normalized meaning of a provider notification.
type Kind string

const (
	KindProcessing Kind = "processing"
	KindSucceeded  Kind = "succeeded"
	KindFailed     Kind = "failed"
	KindCanceled   Kind = "canceled"
	KindRefunded   Kind = "refunded"
	KindUnhandled  Kind = "unhandled"
)

// Event is a provider notification reduced to what reconciliation needs.
// GatewayTransactionID always names the payment, also for refunds.
//
// For a refund with RefundID set, AmountCents is that refund alone. Without a
// RefundID it is the gateway's running refunded total, and zero means the
// whole charge.
type Event struct {
	ID                   string
	Gateway              enums.PaymentGateway
	Kind                 Kind
	GatewayTransactionID string
	RefundID             string
	CartRef              *uuid.UUID
	MethodKind           enums.PaymentMethodKind
	AmountCents          int64
	Currency             string
	FailureReason        string
	RawType              string
}

// targetStatus is the transaction status an event moves towards.
func (k Kind) targetStatus() enums.PaymentTransactionStatus {
	switch k {
	case KindProcessing:
		return enums.PaymentTxProcessing
	case KindSucceeded:
		return enums.PaymentTxCompleted
	case KindFailed:
		return enums.PaymentTxFailed
	case KindCanceled:
		return enums.PaymentTxCancelled
	case KindRefunded:
		return enums.PaymentTxRefunded
	default:
		return ""
	}
}

// KindForStatus maps a polled gateway status to the event it implies.
func KindForStatus(status enums.PaymentTransactionStatus) Kind {
	switch status {
	case enums.PaymentTxProcessing:
		return KindProcessing
	case enums.PaymentTxCompleted:
		return KindSucceeded
	case enums.PaymentTxFailed:
		return KindFailed
	case enums.PaymentTxCancelled:
		return KindCanceled
	case enums.PaymentTxRefunded:
		return KindRefunded
	default:
		return KindUnhandled
	}
}

// ParseCartRef reads a cart id echoed back by the gateway. Anything that is
// not a UUID is treated as absent.
func ParseCartRef(raw string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return nil
	}
	return &id
}
