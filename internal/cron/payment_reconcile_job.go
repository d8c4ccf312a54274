package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/marketcheckout/internal/payments"
	"github.com/angelmondragon/marketcheckout/internal/webhooks"
	"github.com/angelmondragon/marketcheckout/pkg/db/models"
	"github.com/angelmondragon/marketcheckout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
	"github.com/angelmondragon/marketcheckout/pkg/logger"
)

const (
	defaultPendingAge     = 15 * time.Minute
	defaultReconcileBatch = 100
)

type openTransactionLister interface {
	ListOpenOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentTransaction, error)
}

type paymentLookup interface {
	Name() enums.PaymentGateway
	LookupPayment(ctx context.Context, referenceID string) (*payments.PaymentSnapshot, error)
}

type eventHandler interface {
	HandleEvent(ctx context.Context, ev webhooks.Event) (webhooks.Outcome, error)
}

// PaymentReconcileJobParams configure the pending-payment poll.
type PaymentReconcileJobParams struct {
	Logger       *logger.Logger
	Transactions openTransactionLister
	Provider     paymentLookup
	Reconciler   eventHandler
	MinAge       time.Duration
	BatchSize    int
}

// NewPaymentReconcileJob builds the job that asks the gateway about payments
// no webhook has settled yet.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Transactions == nil {
		return nil, fmt.Errorf("transaction repository required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("payment provider required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	minAge := params.MinAge
	if minAge <= 0 {
		minAge = defaultPendingAge
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &paymentReconcileJob{
		logg:       params.Logger,
		txns:       params.Transactions,
		provider:   params.Provider,
		reconciler: params.Reconciler,
		minAge:     minAge,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type paymentReconcileJob struct {
	logg       *logger.Logger
	txns       openTransactionLister
	provider   paymentLookup
	reconciler eventHandler
	minAge     time.Duration
	batch      int
	now        func() time.Time
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.minAge)
	rows, err := j.txns.ListOpenOlderThan(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("payment reconcile: %w", err)
	}

	var (
		errs     error
		outcomes = map[webhooks.Outcome]int{}
		skipped  int
	)
	for i := range rows {
		row := rows[i]
		if row.Gateway != j.provider.Name() {
			skipped++
			continue
		}
		outcome, err := j.reconcile(ctx, row)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("payment %s: %w", row.GatewayTransactionID, err))
			continue
		}
		if outcome == "" {
			skipped++
			continue
		}
		outcomes[outcome]++
	}

	fields := map[string]any{
		"cutoff":  cutoff,
		"scanned": len(rows),
		"skipped": skipped,
		"errors":  len(multierr.Errors(errs)),
	}
	for outcome, count := range outcomes {
		fields["outcome_"+string(outcome)] = count
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "payment reconcile complete")
	return errs
}

// reconcile returns an empty outcome when the gateway still reports the
// payment as open.
func (j *paymentReconcileJob) reconcile(ctx context.Context, row models.PaymentTransaction) (webhooks.Outcome, error) {
	snap, err := j.provider.LookupPayment(ctx, row.GatewayTransactionID)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			j.logg.Warn(j.logg.WithField(ctx, "gateway_transaction_id", row.GatewayTransactionID), "gateway has no record of open payment")
			return "", nil
		}
		return "", err
	}
	if snap.Status == row.Status {
		return "", nil
	}
	kind := webhooks.KindForStatus(snap.Status)
	if kind == webhooks.KindUnhandled {
		return "", nil
	}

	cartRef := webhooks.ParseCartRef(snap.CartRef)
	if cartRef == nil {
		cartRef = row.CartID
	}
	currency := snap.Currency
	if currency == "" {
		currency = row.Currency
	}
	amount := snap.AmountCents
	if amount == 0 {
		amount = row.AmountCents
	}
	ev := webhooks.Event{
		ID:                   fmt.Sprintf("poll:%s:%s", row.GatewayTransactionID, snap.Status),
		Gateway:              row.Gateway,
		Kind:                 kind,
		GatewayTransactionID: row.GatewayTransactionID,
		CartRef:              cartRef,
		MethodKind:           row.MethodKind,
		AmountCents:          amount,
		Currency:             currency,
		RawType:              "poll",
	}
	// A refunded payment settled first; feed that before the refund.
	if kind == webhooks.KindRefunded {
		settled := ev
		settled.ID = fmt.Sprintf("poll:%s:%s", row.GatewayTransactionID, enums.PaymentTxCompleted)
		settled.Kind = webhooks.KindSucceeded
		if _, err := j.reconciler.HandleEvent(ctx, settled); err != nil {
			return "", err
		}
	}
	return j.reconciler.HandleEvent(ctx, ev)
}
