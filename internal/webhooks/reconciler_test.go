package webhooks

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcheckout/internal/cart"
	"github.com/angelmondragon/marketcheckout/internal/orders"
	"github.com/angelmondragon/marketcheckout/internal/payments"
	"github.com/angelmondragon/marketcheckout/internal/stock"
	"github.com/angelmondragon/marketcheckout/pkg/db"
	"github.com/angelmondragon/marketcheckout/pkg/db/models"
	"github.com/angelmondragon/marketcheckout/pkg/enums"
	"github.com/angelmondragon/marketcheckout/pkg/logger"
	"github.com/angelmondragon/marketcheckout/pkg/outbox"
)

type reconcileFixture struct {
	conn       *gorm.DB
	reconciler *Reconciler
	buyerID    uuid.UUID
	cart       models.Cart
	listing    models.Listing
}

// newReconcileFixture seeds a buyer whose cart holds two units at 100.00
// from a listing with five in stock.
func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	dsn := "file:webhooks_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	carts := cart.NewRepository(conn)
	ledger := stock.NewLedger()
	validator, err := cart.NewValidator(carts, ledger)
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	publisher := outbox.NewService(outbox.NewRepository(conn), logger.Nop())
	orderRepo := orders.NewRepository(conn)
	mat, err := orders.NewMaterializer(orderRepo, carts, ledger, publisher, logger.Nop())
	if err != nil {
		t.Fatalf("materializer: %v", err)
	}
	reconciler, err := NewReconciler(ReconcilerParams{
		DB:             db.FromGorm(conn),
		Transactions:   payments.NewTransactionRepository(conn),
		Carts:          carts,
		Validator:      validator,
		Materializer:   mat,
		Orders:         orderRepo,
		Outbox:         publisher,
		Logger:         logger.Nop(),
		CommissionRate: decimal.RequireFromString("0.10"),
		Currency:       enums.CurrencyUSD,
	})
	if err != nil {
		t.Fatalf("reconciler: %v", err)
	}

	f := &reconcileFixture{conn: conn, reconciler: reconciler, buyerID: uuid.New()}
	f.cart = models.Cart{UserID: f.buyerID}
	mustCreate(t, conn, &f.cart)
	f.listing = models.Listing{SellerID: uuid.New(), Title: "walnut shelf", Price: decimal.RequireFromString("100.00"), Quantity: 5, Status: enums.ListingStatusActive}
	mustCreate(t, conn, &f.listing)
	mustCreate(t, conn, &models.CartItem{CartID: f.cart.ID, ListingID: f.listing.ID, Quantity: 2})
	return f
}

func mustCreate(t *testing.T, conn *gorm.DB, value any) {
	t.Helper()
	if err := conn.Create(value).Error; err != nil {
		t.Fatalf("create %T: %v", value, err)
	}
}

func (f *reconcileFixture) seedTransaction(t *testing.T, status enums.PaymentTransactionStatus, amount int64) *models.PaymentTransaction {
	t.Helper()
	txn := &models.PaymentTransaction{
		BuyerID:              f.buyerID,
		CartID:               &f.cart.ID,
		Gateway:              enums.PaymentGatewayFake,
		GatewayTransactionID: "fake_" + uuid.NewString(),
		AmountCents:          amount,
		Currency:             "USD",
		Status:               status,
		MethodKind:           enums.PaymentMethodReusable,
	}
	mustCreate(t, f.conn, txn)
	return txn
}

func (f *reconcileFixture) event(kind Kind, gatewayID string) Event {
	return Event{
		ID:                   "evt_" + uuid.NewString(),
		Gateway:              enums.PaymentGatewayFake,
		Kind:                 kind,
		GatewayTransactionID: gatewayID,
		CartRef:              &f.cart.ID,
		AmountCents:          22000,
		Currency:             "USD",
	}
}

func (f *reconcileFixture) reload(t *testing.T, gatewayID string) models.PaymentTransaction {
	t.Helper()
	var txn models.PaymentTransaction
	if err := f.conn.First(&txn, "gateway_transaction_id = ?", gatewayID).Error; err != nil {
		t.Fatalf("reload transaction: %v", err)
	}
	return txn
}

func (f *reconcileFixture) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := f.conn.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func (f *reconcileFixture) handle(t *testing.T, ev Event, want Outcome) {
	t.Helper()
	got, err := f.reconciler.HandleEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("handle %s: %v", ev.Kind, err)
	}
	if got != want {
		t.Fatalf("expected outcome %s, got %s", want, got)
	}
}

func TestReconcileSucceededMaterializesPendingPayment(t *testing.T) {
	f := newReconcileFixture(t)
	txn := f.seedTransaction(t, enums.PaymentTxPending, 22000)
	ev := f.event(KindSucceeded, txn.GatewayTransactionID)

	f.handle(t, ev, OutcomeRecovered)

	got := f.reload(t, txn.GatewayTransactionID)
	if got.Status != enums.PaymentTxCompleted || got.OrderID == nil {
		t.Fatalf("expected COMPLETED with order, got %+v", got)
	}
	var order models.Order
	if err := f.conn.First(&order, "id = ?", *got.OrderID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if !order.Total.Equal(decimal.RequireFromString("220")) || order.PaymentReference != txn.GatewayTransactionID {
		t.Fatalf("unexpected order: total=%s ref=%s", order.Total, order.PaymentReference)
	}
	var listing models.Listing
	if err := f.conn.First(&listing, "id = ?", f.listing.ID).Error; err != nil {
		t.Fatalf("load listing: %v", err)
	}
	if listing.Quantity != 3 {
		t.Fatalf("expected stock 3, got %d", listing.Quantity)
	}
	if n := f.count(t, &models.CartItem{}, "cart_id = ?", f.cart.ID); n != 0 {
		t.Fatalf("expected cart cleared, got %d", n)
	}

	f.handle(t, ev, OutcomeDuplicate)
	f.handle(t, f.event(KindSucceeded, txn.GatewayTransactionID), OutcomeDuplicate)
	if n := f.count(t, &models.Order{}, ""); n != 1 {
		t.Fatalf("redelivery must not create orders, got %d", n)
	}
}

func TestReconcileUnknownPaymentWithCartReference(t *testing.T) {
	f := newReconcileFixture(t)
	ev := f.event(KindSucceeded, "fake_unknown")

	f.handle(t, ev, OutcomeRecovered)

	got := f.reload(t, "fake_unknown")
	if got.Status != enums.PaymentTxCompleted || got.OrderID == nil || got.BuyerID != f.buyerID {
		t.Fatalf("expected recovered transaction for buyer, got %+v", got)
	}
	if got.AmountCents != 22000 || got.MethodKind != enums.PaymentMethodOneShot {
		t.Fatalf("unexpected recovered fields: %+v", got)
	}
}

func TestReconcileUnknownPaymentWithoutCartIsNoop(t *testing.T) {
	f := newReconcileFixture(t)
	ev := f.event(KindSucceeded, "fake_stranger")
	ev.CartRef = nil

	f.handle(t, ev, OutcomeUnknown)
	f.handle(t, f.event(KindFailed, "fake_stranger"), OutcomeUnknown)
	if n := f.count(t, &models.PaymentTransaction{}, ""); n != 0 {
		t.Fatalf("expected no transactions, got %d", n)
	}
}

func TestReconcileOrphansWhenCartNoLongerValid(t *testing.T) {
	f := newReconcileFixture(t)
	txn := f.seedTransaction(t, enums.PaymentTxProcessing, 22000)
	if err := f.conn.Model(&models.Listing{}).Where("id = ?", f.listing.ID).Update("quantity", 1).Error; err != nil {
		t.Fatalf("drain stock: %v", err)
	}

	f.handle(t, f.event(KindSucceeded, txn.GatewayTransactionID), OutcomeOrphaned)

	got := f.reload(t, txn.GatewayTransactionID)
	if got.Status != enums.PaymentTxCompleted || got.OrderID != nil {
		t.Fatalf("expected COMPLETED without order, got %+v", got)
	}
	if got.FailureReason == nil || *got.FailureReason != "insufficient_stock" {
		t.Fatalf("unexpected orphan reason: %v", got.FailureReason)
	}
	if n := f.count(t, &models.Order{}, ""); n != 0 {
		t.Fatalf("expected no order, got %d", n)
	}

	f.handle(t, f.event(KindSucceeded, txn.GatewayTransactionID), OutcomeOrphaned)
	if n := f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventPaymentOrphaned); n != 1 {
		t.Fatalf("expected exactly one payment.orphaned event, got %d", n)
	}
}

func TestReconcileOrphansOnAmountMismatch(t *testing.T) {
	f := newReconcileFixture(t)
	txn := f.seedTransaction(t, enums.PaymentTxPending, 100)

	f.handle(t, f.event(KindSucceeded, txn.GatewayTransactionID), OutcomeOrphaned)

	got := f.reload(t, txn.GatewayTransactionID)
	if got.FailureReason == nil || *got.FailureReason != "amount mismatch" {
		t.Fatalf("unexpected orphan reason: %v", got.FailureReason)
	}
}

func TestReconcileEmptyCartKeepsPaymentWithoutOrder(t *testing.T) {
	f := newReconcileFixture(t)
	txn := f.seedTransaction(t, enums.PaymentTxPending, 22000)
	if err := f.conn.Where("cart_id = ?", f.cart.ID).Delete(&models.CartItem{}).Error; err != nil {
		t.Fatalf("empty cart: %v", err)
	}

	f.handle(t, f.event(KindSucceeded, txn.GatewayTransactionID), OutcomeIgnored)

	got := f.reload(t, txn.GatewayTransactionID)
	if got.Status != enums.PaymentTxCompleted || got.OrderID != nil {
		t.Fatalf("expected COMPLETED without order, got %+v", got)
	}
}

func TestReconcileStatusTransitions(t *testing.T) {
	f := newReconcileFixture(t)
	txn := f.seedTransaction(t, enums.PaymentTxPending, 22000)

	f.handle(t, f.event(KindProcessing, txn.GatewayTransactionID), OutcomeApplied)
	f.handle(t, f.event(KindProcessing, txn.GatewayTransactionID), OutcomeDuplicate)

	failed := f.event(KindFailed, txn.GatewayTransactionID)
	failed.FailureReason = "card_declined"
	f.handle(t, failed, OutcomeApplied)
	got := f.reload(t, txn.GatewayTransactionID)
	if got.Status != enums.PaymentTxFailed || got.FailureReason == nil || *got.FailureReason != "card_declined" {
		t.Fatalf("expected FAILED with reason, got %+v", got)
	}

	f.handle(t, f.event(KindProcessing, txn.GatewayTransactionID), OutcomeIgnored)
	f.handle(t, f.event(KindSucceeded, txn.GatewayTransactionID), OutcomeIgnored)
	if got := f.reload(t, txn.GatewayTransactionID); got.Status != enums.PaymentTxFailed {
		t.Fatalf("regression must not change status, got %s", got.Status)
	}
	if n := f.count(t, &models.Order{}, ""); n != 0 {
		t.Fatalf("failed payment must not create orders, got %d", n)
	}
}

func TestReconcileRefundMovesOrderToRefunded(t *testing.T) {
	f := newReconcileFixture(t)
	txn := f.seedTransaction(t, enums.PaymentTxPending, 22000)
	f.handle(t, f.event(KindSucceeded, txn.GatewayTransactionID), OutcomeRecovered)

	partial := f.event(KindRefunded, txn.GatewayTransactionID)
	partial.AmountCents = 5000
	f.handle(t, partial, OutcomeApplied)
	if got := f.reload(t, txn.GatewayTransactionID); got.Status != enums.PaymentTxCompleted || got.RefundedCents != 5000 {
		t.Fatalf("partial refund must only be counted, got %s/%d", got.Status, got.RefundedCents)
	}

	f.handle(t, f.event(KindRefunded, txn.GatewayTransactionID), OutcomeApplied)
	got := f.reload(t, txn.GatewayTransactionID)
	if got.Status != enums.PaymentTxRefunded {
		t.Fatalf("expected REFUNDED, got %s", got.Status)
	}
	var order models.Order
	if err := f.conn.First(&order, "id = ?", *got.OrderID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.Status != enums.OrderStatusRefunded || order.RefundedAt == nil {
		t.Fatalf("expected refunded order, got %s", order.Status)
	}

	f.handle(t, f.event(KindRefunded, txn.GatewayTransactionID), OutcomeDuplicate)
	if n := f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventPaymentRefunded); n != 1 {
		t.Fatalf("expected one payment.refunded, got %d", n)
	}
	if n := f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventOrderRefunded); n != 1 {
		t.Fatalf("expected one order.refunded, got %d", n)
	}
}

func (f *reconcileFixture) finalStates(t *testing.T, gatewayID string) (enums.PaymentTransactionStatus, enums.OrderStatus) {
	t.Helper()
	txn := f.reload(t, gatewayID)
	if txn.OrderID == nil {
		return txn.Status, ""
	}
	var order models.Order
	if err := f.conn.First(&order, "id = ?", *txn.OrderID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	return txn.Status, order.Status
}

func TestReconcileRefundConvergesRegardlessOfArrivalOrder(t *testing.T) {
	cases := []struct {
		name  string
		first Kind
		want  []Outcome
	}{
		{name: "settled then refunded", first: KindSucceeded, want: []Outcome{OutcomeRecovered, OutcomeApplied}},
		{name: "refunded then settled", first: KindRefunded, want: []Outcome{OutcomeDeferred, OutcomeRecovered}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newReconcileFixture(t)
			txn := f.seedTransaction(t, enums.PaymentTxPending, 22000)
			second := KindRefunded
			if tc.first == KindRefunded {
				second = KindSucceeded
			}

			f.handle(t, f.event(tc.first, txn.GatewayTransactionID), tc.want[0])
			f.handle(t, f.event(second, txn.GatewayTransactionID), tc.want[1])

			txStatus, orderStatus := f.finalStates(t, txn.GatewayTransactionID)
			if txStatus != enums.PaymentTxRefunded || orderStatus != enums.OrderStatusRefunded {
				t.Fatalf("expected REFUNDED/REFUNDED, got %s/%s", txStatus, orderStatus)
			}
			if n := f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventPaymentRefunded); n != 1 {
				t.Fatalf("expected one payment.refunded, got %d", n)
			}
		})
	}
}

func TestReconcileRefundOnFailedPaymentIsIgnored(t *testing.T) {
	f := newReconcileFixture(t)
	txn := f.seedTransaction(t, enums.PaymentTxFailed, 22000)
	f.handle(t, f.event(KindRefunded, txn.GatewayTransactionID), OutcomeIgnored)
	if got := f.reload(t, txn.GatewayTransactionID); got.Status != enums.PaymentTxFailed {
		t.Fatalf("expected FAILED, got %s", got.Status)
	}
}

func TestReconcilePartialRefundsAddUpToFullRefund(t *testing.T) {
	f := newReconcileFixture(t)
	txn := f.seedTransaction(t, enums.PaymentTxPending, 22000)
	f.handle(t, f.event(KindSucceeded, txn.GatewayTransactionID), OutcomeRecovered)

	refund := func(refundID string, cents int64) Event {
		ev := f.event(KindRefunded, txn.GatewayTransactionID)
		ev.RefundID = refundID
		ev.AmountCents = cents
		return ev
	}
	f.handle(t, refund("rf_a", 12000), OutcomeApplied)
	// refund.updated for the same refund arrives under a new event id.
	f.handle(t, refund("rf_a", 12000), OutcomeDuplicate)
	if got := f.reload(t, txn.GatewayTransactionID); got.Status != enums.PaymentTxCompleted || got.RefundedCents != 12000 {
		t.Fatalf("expected COMPLETED with 12000 refunded, got %s/%d", got.Status, got.RefundedCents)
	}

	f.handle(t, refund("rf_b", 10000), OutcomeApplied)
	txStatus, orderStatus := f.finalStates(t, txn.GatewayTransactionID)
	if txStatus != enums.PaymentTxRefunded || orderStatus != enums.OrderStatusRefunded {
		t.Fatalf("expected REFUNDED/REFUNDED, got %s/%s", txStatus, orderStatus)
	}
	if got := f.reload(t, txn.GatewayTransactionID); got.RefundedCents != 22000 {
		t.Fatalf("expected 22000 refunded, got %d", got.RefundedCents)
	}
}

func TestReconcileUnhandledAndInvalidEvents(t *testing.T) {
	f := newReconcileFixture(t)
	f.handle(t, Event{ID: "evt", Kind: KindUnhandled}, OutcomeIgnored)
	if _, err := f.reconciler.HandleEvent(context.Background(), Event{ID: "evt", Kind: KindSucceeded}); err == nil {
		t.Fatal("expected error for missing gateway transaction id")
	}
}
