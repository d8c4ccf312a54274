package enums

import (
	"fmt"
	"strings"
)

// PaymentGateway identifies the external card processor.
type PaymentGateway string

const (
	PaymentGatewaySquare PaymentGateway = "square"
	PaymentGatewayStripe PaymentGateway = "stripe"
	// PaymentGatewayFake is the in-process gateway used in dev.
	PaymentGatewayFake PaymentGateway = "fake"
)

func (g PaymentGateway) String() string { return string(g) }

func (g PaymentGateway) IsValid() bool {
	switch g {
	case PaymentGatewaySquare, PaymentGatewayStripe, PaymentGatewayFake:
		return true
	}
	return false
}

// ParsePaymentGateway converts raw input into PaymentGateway.
func ParsePaymentGateway(value string) (PaymentGateway, error) {
	g := PaymentGateway(strings.ToLower(strings.TrimSpace(value)))
	if !g.IsValid() {
		return "", fmt.Errorf("invalid payment gateway %q", value)
	}
	return g, nil
}

// PaymentMethodKind distinguishes one-shot tokens from reusable methods.
type PaymentMethodKind string

const (
	// PaymentMethodOneShot is a single-use token redeemed in one call.
	PaymentMethodOneShot PaymentMethodKind = "one_shot"
	// PaymentMethodReusable is attached to a gateway customer and may need
	// out-of-band confirmation.
	PaymentMethodReusable PaymentMethodKind = "reusable"
)

func (k PaymentMethodKind) String() string { return string(k) }

func (k PaymentMethodKind) IsValid() bool {
	return k == PaymentMethodOneShot || k == PaymentMethodReusable
}
