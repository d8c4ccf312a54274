package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketcheckout/internal/payments"
	"github.com/angelmondragon/marketcheckout/internal/webhooks"
	"github.com/angelmondragon/marketcheckout/pkg/db/models"
	"github.com/angelmondragon/marketcheckout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
	"github.com/angelmondragon/marketcheckout/pkg/logger"
)

type fakeLister struct {
	rows   []models.PaymentTransaction
	cutoff time.Time
}

func (f *fakeLister) ListOpenOlderThan(_ context.Context, cutoff time.Time, _ int) ([]models.PaymentTransaction, error) {
	f.cutoff = cutoff
	return f.rows, nil
}

type fakeLookup struct {
	snapshots map[string]*payments.PaymentSnapshot
	errs      map[string]error
}

func (f *fakeLookup) Name() enums.PaymentGateway { return enums.PaymentGatewaySquare }

func (f *fakeLookup) LookupPayment(_ context.Context, ref string) (*payments.PaymentSnapshot, error) {
	if err, ok := f.errs[ref]; ok {
		return nil, err
	}
	return f.snapshots[ref], nil
}

type recordingHandler struct {
	events []webhooks.Event
}

func (r *recordingHandler) HandleEvent(_ context.Context, ev webhooks.Event) (webhooks.Outcome, error) {
	r.events = append(r.events, ev)
	return webhooks.OutcomeRecovered, nil
}

func openTxn(ref string, status enums.PaymentTransactionStatus) models.PaymentTransaction {
	cartID := uuid.New()
	return models.PaymentTransaction{
		ID:                   uuid.New(),
		BuyerID:              uuid.New(),
		CartID:               &cartID,
		Gateway:              enums.PaymentGatewaySquare,
		GatewayTransactionID: ref,
		AmountCents:          22000,
		Currency:             "USD",
		Status:               status,
		MethodKind:           enums.PaymentMethodReusable,
	}
}

func newReconcileJob(t *testing.T, lister *fakeLister, lookup *fakeLookup, handler *recordingHandler) *paymentReconcileJob {
	t.Helper()
	job, err := NewPaymentReconcileJob(PaymentReconcileJobParams{
		Logger:       logger.Nop(),
		Transactions: lister,
		Provider:     lookup,
		Reconciler:   handler,
		MinAge:       10 * time.Minute,
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	return job.(*paymentReconcileJob)
}

func TestPaymentReconcileFeedsSettledPayments(t *testing.T) {
	settled := openTxn("sq_settled", enums.PaymentTxPending)
	waiting := openTxn("sq_waiting", enums.PaymentTxPending)
	lister := &fakeLister{rows: []models.PaymentTransaction{settled, waiting}}
	lookup := &fakeLookup{snapshots: map[string]*payments.PaymentSnapshot{
		"sq_settled": {ReferenceID: "sq_settled", Status: enums.PaymentTxCompleted, AmountCents: 22000, Currency: "USD"},
		"sq_waiting": {ReferenceID: "sq_waiting", Status: enums.PaymentTxPending},
	}}
	handler := &recordingHandler{}
	job := newReconcileJob(t, lister, lookup, handler)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !lister.cutoff.Equal(now.Add(-10 * time.Minute)) {
		t.Fatalf("unexpected cutoff %s", lister.cutoff)
	}
	if len(handler.events) != 1 {
		t.Fatalf("expected one event, got %d", len(handler.events))
	}
	ev := handler.events[0]
	if ev.ID != "poll:sq_settled:COMPLETED" || ev.Kind != webhooks.KindSucceeded {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.CartRef == nil || *ev.CartRef != *settled.CartID {
		t.Fatalf("expected cart ref to fall back to the stored cart")
	}
	if ev.MethodKind != enums.PaymentMethodReusable || ev.AmountCents != 22000 {
		t.Fatalf("unexpected event fields %+v", ev)
	}
}

func TestPaymentReconcileAggregatesErrors(t *testing.T) {
	lister := &fakeLister{rows: []models.PaymentTransaction{
		openTxn("sq_a", enums.PaymentTxProcessing),
		openTxn("sq_b", enums.PaymentTxProcessing),
		openTxn("sq_gone", enums.PaymentTxProcessing),
		openTxn("sq_ok", enums.PaymentTxProcessing),
	}}
	lookup := &fakeLookup{
		snapshots: map[string]*payments.PaymentSnapshot{
			"sq_ok": {ReferenceID: "sq_ok", Status: enums.PaymentTxFailed},
		},
		errs: map[string]error{
			"sq_a":    errors.New("timeout"),
			"sq_b":    errors.New("503"),
			"sq_gone": pkgerrors.New(pkgerrors.CodeNotFound, "missing"),
		},
	}
	handler := &recordingHandler{}
	job := newReconcileJob(t, lister, lookup, handler)

	err := job.Run(context.Background())
	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("expected 2 aggregated errors, got %d (%v)", got, err)
	}
	if len(handler.events) != 1 || handler.events[0].Kind != webhooks.KindFailed {
		t.Fatalf("expected the healthy payment to be reconciled, got %+v", handler.events)
	}
}

func TestPaymentReconcileSkipsOtherGateways(t *testing.T) {
	row := openTxn("st_pi", enums.PaymentTxPending)
	row.Gateway = enums.PaymentGatewayStripe
	handler := &recordingHandler{}
	job := newReconcileJob(t, &fakeLister{rows: []models.PaymentTransaction{row}}, &fakeLookup{}, handler)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(handler.events) != 0 {
		t.Fatalf("expected no events, got %d", len(handler.events))
	}
}

func TestPaymentReconcileSettlesBeforeRefund(t *testing.T) {
	row := openTxn("sq_refunded", enums.PaymentTxProcessing)
	lister := &fakeLister{rows: []models.PaymentTransaction{row}}
	lookup := &fakeLookup{snapshots: map[string]*payments.PaymentSnapshot{
		"sq_refunded": {ReferenceID: "sq_refunded", Status: enums.PaymentTxRefunded, AmountCents: 22000, Currency: "USD"},
	}}
	handler := &recordingHandler{}
	job := newReconcileJob(t, lister, lookup, handler)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(handler.events) != 2 {
		t.Fatalf("expected settle and refund events, got %d", len(handler.events))
	}
	if got := handler.events[0]; got.Kind != webhooks.KindSucceeded || got.ID != "poll:sq_refunded:COMPLETED" {
		t.Fatalf("unexpected first event %+v", got)
	}
	if got := handler.events[1]; got.Kind != webhooks.KindRefunded || got.ID != "poll:sq_refunded:REFUNDED" || got.AmountCents != 22000 {
		t.Fatalf("unexpected second event %+v", got)
	}
}
