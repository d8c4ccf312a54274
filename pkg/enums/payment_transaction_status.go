package enums

import "fmt"

// PaymentTransactionStatus maps to the payment_transaction_status enum in Postgres.
type PaymentTransactionStatus string

const (
	PaymentTxPending    PaymentTransactionStatus = "PENDING"
	PaymentTxProcessing PaymentTransactionStatus = "PROCESSING"
	PaymentTxCompleted  PaymentTransactionStatus = "COMPLETED"
	PaymentTxFailed     PaymentTransactionStatus = "FAILED"
	PaymentTxCancelled  PaymentTransactionStatus = "CANCELLED"
	PaymentTxRefunded   PaymentTransactionStatus = "REFUNDED"
)

var validPaymentTxStatuses = []PaymentTransactionStatus{
	PaymentTxPending,
	PaymentTxProcessing,
	PaymentTxCompleted,
	PaymentTxFailed,
	PaymentTxCancelled,
	PaymentTxRefunded,
}

// PENDING -> PROCESSING -> {COMPLETED, FAILED, CANCELLED}; COMPLETED -> REFUNDED.
// PENDING may jump straight to a terminal state when PROCESSING is never observed.
var paymentTxTransitions = map[PaymentTransactionStatus][]PaymentTransactionStatus{
	PaymentTxPending:    {PaymentTxProcessing, PaymentTxCompleted, PaymentTxFailed, PaymentTxCancelled},
	PaymentTxProcessing: {PaymentTxCompleted, PaymentTxFailed, PaymentTxCancelled},
	PaymentTxCompleted:  {PaymentTxRefunded},
}

func (s PaymentTransactionStatus) String() string { return string(s) }

// IsValid reports whether the value matches the canonical enum.
func (s PaymentTransactionStatus) IsValid() bool {
	for _, candidate := range validPaymentTxStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no forward transition other than a refund exists.
func (s PaymentTransactionStatus) IsTerminal() bool {
	switch s {
	case PaymentTxCompleted, PaymentTxFailed, PaymentTxCancelled, PaymentTxRefunded:
		return true
	}
	return false
}

// CanTransitionTo reports whether s -> next is a legal forward move.
func (s PaymentTransactionStatus) CanTransitionTo(next PaymentTransactionStatus) bool {
	for _, candidate := range paymentTxTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParsePaymentTransactionStatus converts raw input into PaymentTransactionStatus.
func ParsePaymentTransactionStatus(value string) (PaymentTransactionStatus, error) {
	for _, candidate := range validPaymentTxStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment transaction status %q", value)
}
