package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketcheckout/pkg/db"
	"github.com/angelmondragon/marketcheckout/pkg/db/models"
	"github.com/angelmondragon/marketcheckout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
)

// The gateway id is the only unique key besides the primary key, so any
// unique violation on insert is a duplicate gateway reference.
const singleTargetConstraint = "chk_payment_transactions_single_target"

// TransactionRepository persists payment_transactions rows.
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *TransactionRepository) WithTx(tx *gorm.DB) *TransactionRepository {
	if tx == nil {
		return r
	}
	return &TransactionRepository{db: tx}
}

// Create inserts a transaction. A duplicate gateway id is a conflict and a
// row targeting both an order and a subscription is an integrity violation.
func (r *TransactionRepository) Create(ctx context.Context, txn *models.PaymentTransaction) error {
	err := r.db.WithContext(ctx).Create(txn).Error
	return mapWriteError(err, "create payment transaction")
}

// FindByGatewayID loads the row for a gateway reference. With forUpdate the
// row stays locked until the caller's transaction ends.
func (r *TransactionRepository) FindByGatewayID(ctx context.Context, gatewayTxID string, forUpdate bool) (*models.PaymentTransaction, error) {
	query := r.db.WithContext(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var txn models.PaymentTransaction
	err := query.Where("gateway_transaction_id = ?", gatewayTxID).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "payment transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
	}
	return &txn, nil
}

// Update saves every column of txn.
func (r *TransactionRepository) Update(ctx context.Context, txn *models.PaymentTransaction) error {
	err := r.db.WithContext(ctx).Save(txn).Error
	return mapWriteError(err, "update payment transaction")
}

// RecordRefund stores one gateway refund against txnID. It reports false when
// the refund id was already recorded.
func (r *TransactionRepository) RecordRefund(ctx context.Context, txnID uuid.UUID, refundID string, amountCents int64) (bool, error) {
	if refundID == "" || amountCents <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "refund id and positive amount required")
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "gateway_refund_id"}}, DoNothing: true}).
		Create(&models.PaymentRefund{
			PaymentTransactionID: txnID,
			GatewayRefundID:      refundID,
			AmountCents:          amountCents,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "record payment refund")
	}
	return res.RowsAffected == 1, nil
}

// ListOpenOlderThan returns PENDING and PROCESSING rows created before cutoff,
// oldest first.
func (r *TransactionRepository) ListOpenOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("status IN ?", []enums.PaymentTransactionStatus{enums.PaymentTxPending, enums.PaymentTxProcessing}).
		Where("created_at < ?", cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list open payment transactions")
	}
	return rows, nil
}

func mapWriteError(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, ""):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "gateway transaction already recorded")
	case db.IsCheckViolation(err, singleTargetConstraint):
		return pkgerrors.Wrap(pkgerrors.CodeIntegrity, err, "payment transaction targets both an order and a subscription")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
	}
}

// CustomerRepository persists the (user, gateway) -> customer mapping.
type CustomerRepository struct {
	db *gorm.DB
}

func NewCustomerRepository(db *gorm.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// Find returns nil when the buyer has no customer on gateway yet.
func (r *CustomerRepository) Find(ctx context.Context, userID uuid.UUID, gateway enums.PaymentGateway) (*models.PaymentCustomer, error) {
	var row models.PaymentCustomer
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND gateway = ?", userID, gateway).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment customer")
	}
	return &row, nil
}

// Upsert records customerID for the buyer, replacing a stale id.
func (r *CustomerRepository) Upsert(ctx context.Context, userID uuid.UUID, gateway enums.PaymentGateway, customerID string) error {
	row := models.PaymentCustomer{
		UserID:            userID,
		Gateway:           gateway,
		GatewayCustomerID: customerID,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "gateway"}},
			DoUpdates: clause.AssignmentColumns([]string{"gateway_customer_id", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert payment customer")
	}
	return nil
}
