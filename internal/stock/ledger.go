package stock

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketcheckout/pkg/db"
	"github.com/angelmondragon/marketcheckout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
)

// Ledger is the authoritative quantity-on-hand store. Every method runs on
// the caller's transaction; locks live until that transaction ends.
type Ledger struct{}

func NewLedger() *Ledger {
	return &Ledger{}
}

// LockForCheckout takes row locks on every distinct listing in one query,
// ordered by id ascending. Missing ids are simply absent from the result.
func (l *Ledger) LockForCheckout(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]*models.Listing, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	distinct := SortedDistinct(ids)
	locked := make(map[uuid.UUID]*models.Listing, len(distinct))
	if len(distinct) == 0 {
		return locked, nil
	}

	var rows []models.Listing
	err := lockListings(tx.WithContext(ctx), distinct).Find(&rows).Error
	if err != nil {
		if db.IsLockTimeout(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "timed out waiting for stock lock")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock listings")
	}
	for i := range rows {
		locked[rows[i].ID] = &rows[i]
	}
	return locked, nil
}

// lockListings expects ids already passed through SortedDistinct.
func lockListings(tx *gorm.DB, ids []uuid.UUID) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id ASC")
}

// Decrement removes qty units from a listing the caller already holds locked.
// Going negative is an integrity violation, never a user error.
func (l *Ledger) Decrement(ctx context.Context, tx *gorm.DB, listingID uuid.UUID, qty int) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "decrement quantity must be positive")
	}

	res := tx.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND quantity >= ?", listingID, qty).
		Update("quantity", gorm.Expr("quantity - ?", qty))
	if res.Error != nil {
		if db.IsCheckViolation(res.Error, "") {
			return pkgerrors.Wrap(pkgerrors.CodeIntegrity, res.Error, "stock would go negative").
				WithDetails(map[string]any{"listing_id": listingID.String()})
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeIntegrity, "stock would go negative").
			WithDetails(map[string]any{"listing_id": listingID.String(), "requested": qty})
	}
	return nil
}

// SortedDistinct returns ids without duplicates in ascending order, the one
// global order every locking call site uses.
func SortedDistinct(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}
