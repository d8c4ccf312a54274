package squarewebhook

import (
	"encoding/json"
	"strings"

	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/marketcheckout/internal/payments"
	"github.com/angelmondragon/marketcheckout/internal/webhooks"
	"github.com/angelmondragon/marketcheckout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
)

// Notification is the envelope Square posts for every event type.
type Notification struct {
	MerchantID string           `json:"merchant_id"`
	EventID    string           `json:"event_id"`
	Type       string           `json:"type"`
	CreatedAt  string           `json:"created_at"`
	Data       NotificationData `json:"data"`
}

type NotificationData struct {
	Type   string             `json:"type"`
	ID     string             `json:"id"`
	Object NotificationObject `json:"object"`
}

type NotificationObject struct {
	Payment *sq.Payment       `json:"payment,omitempty"`
	Refund  *sq.PaymentRefund `json:"refund,omitempty"`
}

// Parse decodes a verified notification body into a reconciler event.
// Event types checkout does not care about come back as KindUnhandled.
func Parse(body []byte) (webhooks.Event, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return webhooks.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode square notification")
	}
	if n.EventID == "" {
		return webhooks.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "square event_id missing")
	}
	ev := webhooks.Event{
		ID:      n.EventID,
		Gateway: enums.PaymentGatewaySquare,
		Kind:    webhooks.KindUnhandled,
		RawType: n.Type,
	}

	switch strings.ToLower(n.Type) {
	case "payment.created", "payment.updated":
		payment := n.Data.Object.Payment
		if payment == nil {
			return webhooks.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "square payment payload missing")
		}
		fromPayment(&ev, payment)
	case "refund.created", "refund.updated":
		refund := n.Data.Object.Refund
		if refund == nil {
			return webhooks.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "square refund payload missing")
		}
		fromRefund(&ev, refund)
	}
	return ev, nil
}

func fromPayment(ev *webhooks.Event, payment *sq.Payment) {
	ev.GatewayTransactionID = deref(payment.GetID())
	ev.CartRef = webhooks.ParseCartRef(deref(payment.GetReferenceID()))
	ev.AmountCents, ev.Currency = money(payment.GetAmountMoney())
	ev.MethodKind = enums.PaymentMethodOneShot
	if deref(payment.GetCustomerID()) != "" {
		ev.MethodKind = enums.PaymentMethodReusable
	}

	status := payments.SquarePaymentStatus(deref(payment.GetStatus()))
	ev.Kind = webhooks.KindForStatus(status)
	if ev.Kind == webhooks.KindFailed || ev.Kind == webhooks.KindCanceled {
		ev.FailureReason = strings.ToLower(deref(payment.GetStatus()))
	}
}

// fromRefund only reports completed refunds. GatewayTransactionID is the
// refunded payment and AmountCents is this refund alone.
func fromRefund(ev *webhooks.Event, refund *sq.PaymentRefund) {
	if !strings.EqualFold(deref(refund.GetStatus()), "COMPLETED") {
		return
	}
	ev.GatewayTransactionID = deref(refund.GetPaymentID())
	ev.RefundID = refund.GetID()
	ev.AmountCents, ev.Currency = money(refund.GetAmountMoney())
	if ev.GatewayTransactionID != "" {
		ev.Kind = webhooks.KindRefunded
	}
}

func money(m *sq.Money) (int64, string) {
	if m == nil {
		return 0, ""
	}
	var amount int64
	if a := m.GetAmount(); a != nil {
		amount = *a
	}
	var currency string
	if c := m.GetCurrency(); c != nil {
		currency = string(*c)
	}
	return amount, currency
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
