package enums

import "testing"

func TestPaymentTransactionTransitions(t *testing.T) {
	tests := []struct {
		from, to PaymentTransactionStatus
		allowed  bool
	}{
		{PaymentTxPending, PaymentTxProcessing, true},
		{PaymentTxPending, PaymentTxCompleted, true},
		{PaymentTxProcessing, PaymentTxCompleted, true},
		{PaymentTxProcessing, PaymentTxFailed, true},
		{PaymentTxProcessing, PaymentTxCancelled, true},
		{PaymentTxCompleted, PaymentTxRefunded, true},
		{PaymentTxCompleted, PaymentTxFailed, false},
		{PaymentTxCompleted, PaymentTxCompleted, false},
		{PaymentTxFailed, PaymentTxRefunded, false},
		{PaymentTxCancelled, PaymentTxCompleted, false},
		{PaymentTxProcessing, PaymentTxPending, false},
		{PaymentTxPending, PaymentTxRefunded, false},
		{PaymentTxRefunded, PaymentTxCompleted, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
			t.Fatalf("%s -> %s: expected %v got %v", tt.from, tt.to, tt.allowed, got)
		}
	}
}

func TestPaymentTransactionTerminal(t *testing.T) {
	for _, s := range []PaymentTransactionStatus{PaymentTxCompleted, PaymentTxFailed, PaymentTxCancelled, PaymentTxRefunded} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []PaymentTransactionStatus{PaymentTxPending, PaymentTxProcessing} {
		if s.IsTerminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	if !OrderStatusPaid.CanTransitionTo(OrderStatusShipped) {
		t.Fatal("PAID -> SHIPPED should be allowed")
	}
	if !OrderStatusShipped.CanTransitionTo(OrderStatusDelivered) {
		t.Fatal("SHIPPED -> DELIVERED should be allowed")
	}
	if !OrderStatusPaid.CanTransitionTo(OrderStatusRefunded) {
		t.Fatal("PAID -> REFUNDED should be allowed")
	}
	if OrderStatusCancelled.CanTransitionTo(OrderStatusRefunded) {
		t.Fatal("CANCELLED is final")
	}
	if OrderStatusDelivered.CanTransitionTo(OrderStatusPaid) {
		t.Fatal("no regression to PAID")
	}
}

func TestParseHelpers(t *testing.T) {
	if s, err := ParseListingStatus("active"); err != nil || !s.Purchasable() {
		t.Fatalf("expected purchasable active listing, got %v %v", s, err)
	}
	if _, err := ParseListingStatus("archived"); err == nil {
		t.Fatal("expected error for unknown listing status")
	}
	if g, err := ParsePaymentGateway(" Stripe "); err != nil || g != PaymentGatewayStripe {
		t.Fatalf("unexpected gateway parse %v %v", g, err)
	}
	if _, err := ParseOutboxEventType("order.paid"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
