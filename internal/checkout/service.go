package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcheckout/internal/cart"
	"github.com/angelmondragon/marketcheckout/internal/commission"
	"github.com/angelmondragon/marketcheckout/internal/dispatch"
	"github.com/angelmondragon/marketcheckout/internal/orders"
	"github.com/angelmondragon/marketcheckout/internal/payments"
	"github.com/angelmondragon/marketcheckout/pkg/db/models"
	"github.com/angelmondragon/marketcheckout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
	"github.com/angelmondragon/marketcheckout/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type userLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type cartValidator interface {
	ValidateForCheckout(ctx context.Context, tx *gorm.DB, buyerID uuid.UUID) (*cart.Snapshot, map[uuid.UUID]*models.Listing, error)
}

type paymentGateway interface {
	Name() enums.PaymentGateway
	ClassifyMethod(ref string) (enums.PaymentMethodKind, error)
	Authorize(ctx context.Context, req payments.AuthorizeRequest) (*payments.Result, error)
}

type customerEnsurer interface {
	EnsureCustomer(ctx context.Context, user *models.User) (string, error)
}

type orderMaterializer interface {
	Materialize(ctx context.Context, tx *gorm.DB, in orders.MaterializeInput) (*models.Order, error)
}

type confirmationDispatcher interface {
	Dispatch(ctx context.Context, msg dispatch.OrderConfirmation)
}

type outcomeRecorder interface {
	IncOutcome(outcome string)
}

// Request is one buyer-initiated checkout attempt. AttemptKey identifies the
// attempt across client retries; an empty key makes every call a new attempt.
type Request struct {
	BuyerID           uuid.UUID
	PaymentToken      string
	ShippingAddressID *uuid.UUID
	ShippingMethodID  *uuid.UUID
	ReturnURL         string
	AttemptKey        string
}

type ServiceParams struct {
	DB             txRunner
	Users          userLoader
	Validator      cartValidator
	Gateway        paymentGateway
	Customers      customerEnsurer
	Transactions   *payments.TransactionRepository
	Materializer   orderMaterializer
	Dispatcher     confirmationDispatcher
	Metrics        outcomeRecorder
	Logger         *logger.Logger
	CommissionRate decimal.Decimal
	Currency       enums.Currency
}

// Service turns a buyer's cart into a paid order in one database transaction.
type Service struct {
	db           txRunner
	users        userLoader
	validator    cartValidator
	gateway      paymentGateway
	customers    customerEnsurer
	transactions *payments.TransactionRepository
	materializer orderMaterializer
	dispatcher   confirmationDispatcher
	metrics      outcomeRecorder
	logg         *logger.Logger
	rate         decimal.Decimal
	currency     enums.Currency
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Users == nil:
		return nil, fmt.Errorf("user loader required")
	case params.Validator == nil:
		return nil, fmt.Errorf("cart validator required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case params.Customers == nil:
		return nil, fmt.Errorf("customer service required")
	case params.Transactions == nil:
		return nil, fmt.Errorf("payment transaction repository required")
	case params.Materializer == nil:
		return nil, fmt.Errorf("order materializer required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	if params.CommissionRate.IsNegative() || params.CommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("commission rate must be in [0, 1), got %s", params.CommissionRate.String())
	}
	if !params.Currency.IsValid() {
		return nil, fmt.Errorf("invalid currency %q", params.Currency)
	}
	return &Service{
		db:           params.DB,
		users:        params.Users,
		validator:    params.Validator,
		gateway:      params.Gateway,
		customers:    params.Customers,
		transactions: params.Transactions,
		materializer: params.Materializer,
		dispatcher:   params.Dispatcher,
		metrics:      params.Metrics,
		logg:         params.Logger,
		rate:         params.CommissionRate,
		currency:     params.Currency,
	}, nil
}

// Checkout validates the cart under row locks, charges the buyer once and
// materializes the order before committing. Any failure before commit leaves
// stock, cart and orders as they were.
//
// PAYMENT_ACTION_REQUIRED and PAYMENT_PENDING are returned after a commit
// that records only the payment transaction; the webhook reconciler finishes
// those orders.
func (s *Service) Checkout(ctx context.Context, req Request) (*models.Order, error) {
	order, err := s.checkout(ctx, req)
	if s.metrics != nil {
		if err != nil {
			s.metrics.IncOutcome(outcomeLabel(err))
		} else {
			s.metrics.IncOutcome("success")
		}
	}
	return order, err
}

func (s *Service) checkout(ctx context.Context, req Request) (*models.Order, error) {
	if req.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer required")
	}
	token := strings.TrimSpace(req.PaymentToken)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment token required")
	}
	kind, err := s.gateway.ClassifyMethod(token)
	if err != nil {
		return nil, err
	}
	attempt := strings.TrimSpace(req.AttemptKey)
	if attempt == "" {
		attempt = uuid.NewString()
	}
	ctx = s.logg.WithUserID(ctx, req.BuyerID.String())

	user, err := s.users.FindByID(ctx, req.BuyerID)
	if err != nil {
		return nil, err
	}
	var customerRef string
	if kind == enums.PaymentMethodReusable {
		customerRef, err = s.customers.EnsureCustomer(ctx, user)
		if err != nil {
			return nil, err
		}
	}

	var (
		order    *models.Order
		deferred error
	)
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		snap, locked, err := s.validator.ValidateForCheckout(ctx, tx, req.BuyerID)
		if err != nil {
			return err
		}
		cartID := snap.Cart.ID
		txCtx := s.logg.WithCartID(ctx, cartID.String())

		amount := s.amountFor(snap)
		result, err := s.gateway.Authorize(txCtx, payments.AuthorizeRequest{
			AmountCents:      amount,
			Currency:         s.currency.String(),
			CustomerRef:      customerRef,
			PaymentMethodRef: token,
			MethodKind:       kind,
			IdempotencyKey:   payments.AttemptKey(cartID, req.BuyerID, attempt),
			ReturnURL:        req.ReturnURL,
			Metadata:         payments.Metadata{CartID: cartID.String(), UserID: req.BuyerID.String()},
		})
		if err != nil {
			return err
		}
		txCtx = s.logg.WithField(txCtx, "gateway_transaction_id", result.ReferenceID)

		record := &models.PaymentTransaction{
			BuyerID:              req.BuyerID,
			CartID:               &cartID,
			Gateway:              s.gateway.Name(),
			GatewayTransactionID: result.ReferenceID,
			AmountCents:          amount,
			Currency:             s.currency.String(),
			MethodKind:           kind,
		}

		switch result.Outcome {
		case payments.OutcomeDeclined:
			details := map[string]any{"reason": "declined"}
			if result.DeclineReason != "" {
				details["decline_code"] = result.DeclineReason
			}
			return pkgerrors.New(pkgerrors.CodePaymentDeclined, "payment declined").WithDetails(details)
		case payments.OutcomeRequiresAction:
			record.Status = enums.PaymentTxPending
			if err := s.recordOpen(txCtx, tx, record); err != nil {
				return err
			}
			deferred = pkgerrors.New(pkgerrors.CodePaymentActionRequired, "payment requires buyer action").
				WithDetails(map[string]any{"redirect_url": result.RedirectURL})
			s.logg.Info(txCtx, "payment awaiting buyer action")
			return nil
		case payments.OutcomeProcessing:
			record.Status = enums.PaymentTxProcessing
			if err := s.recordOpen(txCtx, tx, record); err != nil {
				return err
			}
			deferred = pkgerrors.New(pkgerrors.CodePaymentPending, "payment is processing")
			s.logg.Info(txCtx, "payment processing asynchronously")
			return nil
		case payments.OutcomeSucceeded:
		default:
			return pkgerrors.New(pkgerrors.CodeIntegrity, "unknown payment outcome").
				WithDetails(map[string]any{"outcome": string(result.Outcome)})
		}

		order, err = s.materializer.Materialize(txCtx, tx, orders.MaterializeInput{
			BuyerID:           req.BuyerID,
			Snapshot:          snap,
			Locked:            locked,
			Payment:           orders.PaymentRef{Gateway: s.gateway.Name(), Reference: result.ReferenceID},
			Currency:          s.currency.String(),
			CommissionRate:    s.rate,
			ShippingAddressID: req.ShippingAddressID,
			ShippingMethodID:  req.ShippingMethodID,
		})
		if err != nil {
			s.logg.Error(txCtx, "payment captured but order not materialized", err)
			return err
		}
		if charged := commission.ToMinorUnits(order.Total, s.currency.MinorUnitExponent()); charged != amount {
			err := pkgerrors.New(pkgerrors.CodeIntegrity, "order total differs from charged amount").
				WithDetails(map[string]any{"charged": amount, "order_total": charged})
			s.logg.Error(txCtx, "payment captured but order not materialized", err)
			return err
		}

		record.Status = enums.PaymentTxCompleted
		record.OrderID = &order.ID
		return s.transactions.WithTx(tx).Create(txCtx, record)
	})
	if err != nil {
		return nil, err
	}
	if deferred != nil {
		return nil, deferred
	}

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, confirmationFor(order, user))
	}
	return order, nil
}

// recordOpen stores a payment that has not settled yet. A replayed attempt
// gets the same gateway reference back and finds its row already written.
func (s *Service) recordOpen(ctx context.Context, tx *gorm.DB, record *models.PaymentTransaction) error {
	repo := s.transactions.WithTx(tx)
	existing, err := repo.FindByGatewayID(ctx, record.GatewayTransactionID, false)
	if err == nil && existing != nil {
		return nil
	}
	if err != nil && !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		return err
	}
	return repo.Create(ctx, record)
}

// amountFor prices the snapshot from the locked rows, the same way the
// materializer will.
func (s *Service) amountFor(snap *cart.Snapshot) int64 {
	lines := make([]commission.LineItem, 0, len(snap.Lines))
	for _, line := range snap.Lines {
		lines = append(lines, commission.LineItem{UnitPrice: line.UnitPrice, Quantity: line.Quantity})
	}
	totals := commission.ComputeTotals(lines, s.rate)
	return commission.ToMinorUnits(totals.Total, s.currency.MinorUnitExponent())
}

func confirmationFor(order *models.Order, user *models.User) dispatch.OrderConfirmation {
	msg := dispatch.OrderConfirmation{
		OrderID:  order.ID,
		BuyerID:  order.BuyerID,
		Currency: order.Currency,
		Total:    order.Total,
		Lines:    make([]dispatch.LineSummary, 0, len(order.Items)),
	}
	if user != nil {
		msg.Recipient = user.Email
		msg.RecipientName = user.DisplayName
	}
	for _, item := range order.Items {
		msg.Lines = append(msg.Lines, dispatch.LineSummary{Title: item.Title, Quantity: item.Quantity, LineTotal: item.LineTotal})
	}
	return msg
}

func outcomeLabel(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return strings.ToLower(string(typed.Code()))
	}
	return "internal_error"
}
