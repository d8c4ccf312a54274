package webhooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcheckout/internal/cart"
	"github.com/angelmondragon/marketcheckout/internal/commission"
	"github.com/angelmondragon/marketcheckout/internal/orders"
	"github.com/angelmondragon/marketcheckout/internal/payments"
	"github.com/angelmondragon/marketcheckout/pkg/db/models"
	"github.com/angelmondragon/marketcheckout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
	"github.com/angelmondragon/marketcheckout/pkg/logger"
	"github.com/angelmondragon/marketcheckout/pkg/outbox"
	"github.com/angelmondragon/marketcheckout/pkg/outbox/payloads"
)

const actorSource = "reconciler"

// Outcome describes what reconciling one event did.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeUnknown   Outcome = "unknown_payment"
	OutcomeRecovered Outcome = "recovered"
	OutcomeOrphaned  Outcome = "orphaned"
	OutcomeDeferred  Outcome = "deferred"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cartValidator interface {
	ValidateCart(ctx context.Context, tx *gorm.DB, record *models.Cart, buyerID uuid.UUID) (*cart.Snapshot, map[uuid.UUID]*models.Listing, error)
}

type orderMaterializer interface {
	Materialize(ctx context.Context, tx *gorm.DB, in orders.MaterializeInput) (*models.Order, error)
}

type outboxPublisher interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ReconcilerParams struct {
	DB             txRunner
	Transactions   *payments.TransactionRepository
	Carts          cart.CartRepository
	Validator      cartValidator
	Materializer   orderMaterializer
	Orders         orders.Repository
	Outbox         outboxPublisher
	Logger         *logger.Logger
	CommissionRate decimal.Decimal
	Currency       enums.Currency
}

// Reconciler applies provider events to local payment transactions. It is
// safe to feed the same event any number of times and in any order.
type Reconciler struct {
	db           txRunner
	transactions *payments.TransactionRepository
	carts        cart.CartRepository
	validator    cartValidator
	materializer orderMaterializer
	orders       orders.Repository
	outbox       outboxPublisher
	logg         *logger.Logger
	rate         decimal.Decimal
	currency     enums.Currency
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Transactions == nil:
		return nil, fmt.Errorf("payment transaction repository required")
	case params.Carts == nil:
		return nil, fmt.Errorf("cart repository required")
	case params.Validator == nil:
		return nil, fmt.Errorf("cart validator required")
	case params.Materializer == nil:
		return nil, fmt.Errorf("order materializer required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	if !params.Currency.IsValid() {
		return nil, fmt.Errorf("invalid currency %q", params.Currency)
	}
	return &Reconciler{
		db:           params.DB,
		transactions: params.Transactions,
		carts:        params.Carts,
		validator:    params.Validator,
		materializer: params.Materializer,
		orders:       params.Orders,
		outbox:       params.Outbox,
		logg:         params.Logger,
		rate:         params.CommissionRate,
		currency:     params.Currency,
	}, nil
}

// HandleEvent moves the matching transaction forward under a row lock.
// Duplicates, regressions and events for unknown payments are no-ops. An
// error means nothing was committed and the event may be retried.
func (r *Reconciler) HandleEvent(ctx context.Context, ev Event) (Outcome, error) {
	if ev.Kind == KindUnhandled || ev.Kind == "" {
		return OutcomeIgnored, nil
	}
	if ev.GatewayTransactionID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "gateway transaction id required")
	}
	ctx = r.logg.WithFields(ctx, map[string]any{
		"event_id":               ev.ID,
		"gateway":                string(ev.Gateway),
		"gateway_transaction_id": ev.GatewayTransactionID,
		"event_kind":             string(ev.Kind),
	})

	var outcome Outcome
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		record, err := r.transactions.WithTx(tx).FindByGatewayID(ctx, ev.GatewayTransactionID, true)
		if err != nil && !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return err
		}
		if record == nil {
			if ev.Kind == KindSucceeded && ev.CartRef != nil {
				outcome, err = r.recover(ctx, tx, nil, ev)
				return err
			}
			outcome = OutcomeUnknown
			return nil
		}
		if ev.Kind == KindRefunded {
			outcome, err = r.refund(ctx, tx, record, ev)
			return err
		}
		outcome, err = r.advance(ctx, tx, record, ev)
		if err != nil {
			return err
		}
		// A refund can be reported before the payment it reverses settles.
		if record.Status == enums.PaymentTxCompleted && record.FullyRefunded() {
			_, err = r.settleRefund(ctx, tx, record, ev.ID)
		}
		return err
	})
	if err != nil {
		return "", err
	}
	r.logg.Info(r.logg.WithField(ctx, "outcome", string(outcome)), "payment event reconciled")
	return outcome, nil
}

func (r *Reconciler) advance(ctx context.Context, tx *gorm.DB, record *models.PaymentTransaction, ev Event) (Outcome, error) {
	next := ev.Kind.targetStatus()
	if record.Status == next {
		if next == enums.PaymentTxCompleted && record.OrderID == nil {
			return r.recover(ctx, tx, record, ev)
		}
		return OutcomeDuplicate, nil
	}
	if !record.Status.CanTransitionTo(next) {
		r.logg.Warn(r.logg.WithField(ctx, "current_status", string(record.Status)), "ignoring out-of-order payment event")
		return OutcomeIgnored, nil
	}

	record.Status = next
	record.LastEventID = stringPtr(ev.ID)
	if ev.FailureReason != "" {
		record.FailureReason = stringPtr(ev.FailureReason)
	}
	if next == enums.PaymentTxCompleted && record.OrderID == nil {
		return r.recover(ctx, tx, record, ev)
	}
	if err := r.transactions.WithTx(tx).Update(ctx, record); err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}

// recover builds the order for a payment that completed outside the
// checkout request. record is nil when the payment was never stored locally.
func (r *Reconciler) recover(ctx context.Context, tx *gorm.DB, record *models.PaymentTransaction, ev Event) (Outcome, error) {
	if record == nil {
		record = &models.PaymentTransaction{
			Gateway:              ev.Gateway,
			GatewayTransactionID: ev.GatewayTransactionID,
			CartID:               ev.CartRef,
			AmountCents:          ev.AmountCents,
			Currency:             strings.ToUpper(ev.Currency),
			MethodKind:           ev.MethodKind,
		}
		if record.Currency == "" {
			record.Currency = r.currency.String()
		}
		if !record.MethodKind.IsValid() {
			record.MethodKind = enums.PaymentMethodOneShot
		}
	}
	record.Status = enums.PaymentTxCompleted
	record.LastEventID = stringPtr(ev.ID)
	if record.CartID == nil {
		record.CartID = ev.CartRef
	}

	if record.CartID == nil {
		return r.orphan(ctx, tx, record, "missing cart reference")
	}
	if !strings.EqualFold(record.Currency, r.currency.String()) {
		return r.orphan(ctx, tx, record, "currency mismatch")
	}

	existing, err := r.orders.WithTx(tx).FindByPaymentReference(ctx, record.GatewayTransactionID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		record.OrderID = &existing.ID
		if record.BuyerID == uuid.Nil {
			record.BuyerID = existing.BuyerID
		}
		if err := r.save(ctx, tx, record); err != nil {
			return "", err
		}
		return OutcomeDuplicate, nil
	}

	cartRecord, err := r.carts.WithTx(tx).FindByID(ctx, *record.CartID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return r.orphan(ctx, tx, record, "cart not found")
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if record.BuyerID == uuid.Nil {
		record.BuyerID = cartRecord.UserID
	} else if record.BuyerID != cartRecord.UserID {
		return r.orphan(ctx, tx, record, "cart belongs to another buyer")
	}
	if len(cartRecord.Items) == 0 {
		if err := r.save(ctx, tx, record); err != nil {
			return "", err
		}
		r.logg.Error(ctx, "captured payment has no cart contents to materialize",
			pkgerrors.New(pkgerrors.CodeIntegrity, "completed payment without order"))
		return OutcomeIgnored, nil
	}

	snap, locked, err := r.validator.ValidateCart(ctx, tx, cartRecord, record.BuyerID)
	if err != nil {
		if pkgerrors.ClassOf(err) == pkgerrors.ClassUser {
			return r.orphan(ctx, tx, record, strings.ToLower(string(pkgerrors.As(err).Code())))
		}
		return "", err
	}
	expected := r.amountFor(snap)
	if record.AmountCents == 0 {
		record.AmountCents = expected
	}
	if record.AmountCents != expected {
		return r.orphan(ctx, tx, record, "amount mismatch")
	}

	order, err := r.materializer.Materialize(ctx, tx, orders.MaterializeInput{
		BuyerID:        record.BuyerID,
		Snapshot:       snap,
		Locked:         locked,
		Payment:        orders.PaymentRef{Gateway: record.Gateway, Reference: record.GatewayTransactionID},
		Currency:       r.currency.String(),
		CommissionRate: r.rate,
		Recovered:      true,
	})
	if err != nil {
		return "", err
	}
	record.OrderID = &order.ID
	record.FailureReason = nil
	if err := r.save(ctx, tx, record); err != nil {
		return "", err
	}
	return OutcomeRecovered, nil
}

// orphan keeps the payment COMPLETED without an order and queues it for an
// operator refund.
func (r *Reconciler) orphan(ctx context.Context, tx *gorm.DB, record *models.PaymentTransaction, reason string) (Outcome, error) {
	record.Status = enums.PaymentTxCompleted
	record.OrderID = nil
	record.FailureReason = stringPtr(reason)
	if err := r.save(ctx, tx, record); err != nil {
		return "", err
	}
	if err := r.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentOrphaned,
		AggregateType: enums.AggregatePaymentTransaction,
		AggregateID:   record.ID,
		Actor:         &outbox.ActorRef{UserID: record.BuyerID, Source: actorSource},
		Data: payloads.PaymentOrphanedEvent{
			TransactionID:        record.ID,
			GatewayTransactionID: record.GatewayTransactionID,
			BuyerID:              record.BuyerID,
			CartID:               record.CartID,
			AmountCents:          record.AmountCents,
			Currency:             record.Currency,
			Reason:               reason,
		},
	}); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue payment.orphaned")
	}
	r.logg.Error(r.logg.WithField(ctx, "reason", reason), "captured payment orphaned",
		pkgerrors.New(pkgerrors.CodeIntegrity, reason))
	return OutcomeOrphaned, nil
}

// refund counts the refund on the row. A payment is only marked REFUNDED once
// it has settled and the refunds cover the whole charge; a full refund seen
// while the payment is still open is applied when the payment completes.
func (r *Reconciler) refund(ctx context.Context, tx *gorm.DB, record *models.PaymentTransaction, ev Event) (Outcome, error) {
	counted, err := r.countRefund(ctx, tx, record, ev)
	if err != nil {
		return "", err
	}
	if record.Status == enums.PaymentTxRefunded {
		return OutcomeDuplicate, nil
	}
	if record.Status == enums.PaymentTxCompleted && record.FullyRefunded() {
		return r.settleRefund(ctx, tx, record, ev.ID)
	}
	if !counted {
		return OutcomeDuplicate, nil
	}

	record.LastEventID = stringPtr(ev.ID)
	if err := r.transactions.WithTx(tx).Update(ctx, record); err != nil {
		return "", err
	}
	ctx = r.logg.WithFields(ctx, map[string]any{
		"refunded_cents": record.RefundedCents,
		"current_status": string(record.Status),
	})
	switch {
	case !record.FullyRefunded():
		r.logg.Info(ctx, "partial refund recorded")
		return OutcomeApplied, nil
	case record.Status == enums.PaymentTxPending || record.Status == enums.PaymentTxProcessing:
		r.logg.Info(ctx, "refund held until the payment settles")
		return OutcomeDeferred, nil
	default:
		r.logg.Warn(ctx, "refund reported for a payment that never settled")
		return OutcomeIgnored, nil
	}
}

// countRefund folds ev into record.RefundedCents and reports whether the
// total moved. Refund ids are stored so a redelivered refund counts once.
func (r *Reconciler) countRefund(ctx context.Context, tx *gorm.DB, record *models.PaymentTransaction, ev Event) (bool, error) {
	if ev.RefundID != "" {
		if ev.AmountCents <= 0 {
			return false, nil
		}
		inserted, err := r.transactions.WithTx(tx).RecordRefund(ctx, record.ID, ev.RefundID, ev.AmountCents)
		if err != nil || !inserted {
			return false, err
		}
		record.RefundedCents += ev.AmountCents
		return true, nil
	}
	total := ev.AmountCents
	if total <= 0 {
		total = record.AmountCents
	}
	if total <= record.RefundedCents {
		return false, nil
	}
	record.RefundedCents = total
	return true, nil
}

// settleRefund moves a completed, fully refunded payment and its order to
// REFUNDED.
func (r *Reconciler) settleRefund(ctx context.Context, tx *gorm.DB, record *models.PaymentTransaction, eventID string) (Outcome, error) {
	record.Status = enums.PaymentTxRefunded
	record.LastEventID = stringPtr(eventID)
	if err := r.transactions.WithTx(tx).Update(ctx, record); err != nil {
		return "", err
	}
	if err := r.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentRefunded,
		AggregateType: enums.AggregatePaymentTransaction,
		AggregateID:   record.ID,
		Actor:         &outbox.ActorRef{UserID: record.BuyerID, Source: actorSource},
		Data: payloads.PaymentRefundedEvent{
			TransactionID:        record.ID,
			GatewayTransactionID: record.GatewayTransactionID,
			OrderID:              record.OrderID,
			AmountCents:          record.AmountCents,
			Currency:             record.Currency,
		},
	}); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue payment.refunded")
	}

	if record.OrderID == nil {
		return OutcomeApplied, nil
	}
	repo := r.orders.WithTx(tx)
	order, err := repo.FindByPaymentReference(ctx, record.GatewayTransactionID)
	if err != nil {
		return "", err
	}
	if order == nil || !order.Status.CanTransitionTo(enums.OrderStatusRefunded) {
		return OutcomeApplied, nil
	}
	if err := repo.UpdateStatus(ctx, order, enums.OrderStatusRefunded); err != nil {
		return "", err
	}
	if err := r.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderRefunded,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.BuyerID, Source: actorSource},
		Data: payloads.OrderRefundedEvent{
			OrderID:          order.ID,
			BuyerID:          order.BuyerID,
			PaymentReference: order.PaymentReference,
			RefundedAt:       time.Now().UTC(),
		},
	}); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue order.refunded")
	}
	return OutcomeApplied, nil
}

func (r *Reconciler) save(ctx context.Context, tx *gorm.DB, record *models.PaymentTransaction) error {
	repo := r.transactions.WithTx(tx)
	if record.ID == uuid.Nil {
		return repo.Create(ctx, record)
	}
	return repo.Update(ctx, record)
}

func (r *Reconciler) amountFor(snap *cart.Snapshot) int64 {
	lines := make([]commission.LineItem, 0, len(snap.Lines))
	for _, line := range snap.Lines {
		lines = append(lines, commission.LineItem{UnitPrice: line.UnitPrice, Quantity: line.Quantity})
	}
	totals := commission.ComputeTotals(lines, r.rate)
	return commission.ToMinorUnits(totals.Total, r.currency.MinorUnitExponent())
}

func stringPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
