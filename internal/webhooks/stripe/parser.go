package stripewebhook

import (
	"encoding/json"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/marketcheckout/internal/webhooks"
	"github.com/angelmondragon/marketcheckout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
	pkgstripe "github.com/angelmondragon/marketcheckout/pkg/stripe"
)

// Parse verifies the Stripe-Signature header and decodes the event.
func Parse(payload []byte, header, secret string) (webhooks.Event, error) {
	event, err := pkgstripe.ConstructEvent(payload, header, secret)
	if err != nil {
		return webhooks.Event{}, err
	}
	return FromStripeEvent(event)
}

// FromStripeEvent maps the payment events checkout listens to. Charges that
// belong to a PaymentIntent are tracked through the intent's own events.
func FromStripeEvent(event stripe.Event) (webhooks.Event, error) {
	if event.ID == "" {
		return webhooks.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe event id missing")
	}
	ev := webhooks.Event{
		ID:      event.ID,
		Gateway: enums.PaymentGatewayStripe,
		Kind:    webhooks.KindUnhandled,
		RawType: string(event.Type),
	}
	if event.Data == nil {
		return webhooks.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentProcessing,
		stripe.EventTypePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentPaymentFailed,
		stripe.EventTypePaymentIntentCanceled:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return webhooks.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
		}
		fromIntent(&ev, event.Type, &pi)
	case stripe.EventTypeChargeSucceeded, stripe.EventTypeChargeFailed, stripe.EventTypeChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return webhooks.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge event")
		}
		fromCharge(&ev, event.Type, &ch)
	}
	return ev, nil
}

func fromIntent(ev *webhooks.Event, eventType stripe.EventType, pi *stripe.PaymentIntent) {
	ev.GatewayTransactionID = pi.ID
	ev.CartRef = webhooks.ParseCartRef(pi.Metadata["cart_id"])
	ev.AmountCents = pi.Amount
	ev.Currency = strings.ToUpper(string(pi.Currency))
	ev.MethodKind = enums.PaymentMethodReusable

	switch eventType {
	case stripe.EventTypePaymentIntentProcessing:
		ev.Kind = webhooks.KindProcessing
	case stripe.EventTypePaymentIntentSucceeded:
		ev.Kind = webhooks.KindSucceeded
	case stripe.EventTypePaymentIntentPaymentFailed:
		ev.Kind = webhooks.KindFailed
		ev.FailureReason = "payment_failed"
		if pi.LastPaymentError != nil && pi.LastPaymentError.Code != "" {
			ev.FailureReason = string(pi.LastPaymentError.Code)
		}
	case stripe.EventTypePaymentIntentCanceled:
		ev.Kind = webhooks.KindCanceled
		ev.FailureReason = "canceled"
		if pi.CancellationReason != "" {
			ev.FailureReason = string(pi.CancellationReason)
		}
	}
}

func fromCharge(ev *webhooks.Event, eventType stripe.EventType, ch *stripe.Charge) {
	intentID := ""
	if ch.PaymentIntent != nil {
		intentID = ch.PaymentIntent.ID
	}
	ev.Currency = strings.ToUpper(string(ch.Currency))

	// amount_refunded is the running total across every refund of the charge.
	if eventType == stripe.EventTypeChargeRefunded {
		if ch.AmountRefunded <= 0 {
			return
		}
		ev.Kind = webhooks.KindRefunded
		ev.GatewayTransactionID = ch.ID
		if intentID != "" {
			ev.GatewayTransactionID = intentID
		}
		ev.AmountCents = ch.AmountRefunded
		return
	}
	if intentID != "" {
		return
	}

	ev.GatewayTransactionID = ch.ID
	ev.CartRef = webhooks.ParseCartRef(ch.Metadata["cart_id"])
	ev.AmountCents = ch.Amount
	ev.MethodKind = enums.PaymentMethodOneShot
	if eventType == stripe.EventTypeChargeSucceeded {
		ev.Kind = webhooks.KindSucceeded
		return
	}
	ev.Kind = webhooks.KindFailed
	ev.FailureReason = "charge_failed"
	if ch.FailureCode != "" {
		ev.FailureReason = ch.FailureCode
	}
}
