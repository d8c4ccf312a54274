package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcheckout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
)

// Line is one cart item priced from its locked listing row.
type Line struct {
	CartItemID uuid.UUID
	ListingID  uuid.UUID
	SellerID   uuid.UUID
	Title      string
	Quantity   int
	UnitPrice  decimal.Decimal
}

// Snapshot is the validated view of a cart. It is only meaningful while the
// transaction that produced it is still open.
type Snapshot struct {
	Cart  *models.Cart
	Lines []Line
}

// SellerIDs returns the distinct sellers in line order.
func (s *Snapshot) SellerIDs() []uuid.UUID {
	seen := map[uuid.UUID]struct{}{}
	out := make([]uuid.UUID, 0, len(s.Lines))
	for _, line := range s.Lines {
		if _, ok := seen[line.SellerID]; ok {
			continue
		}
		seen[line.SellerID] = struct{}{}
		out = append(out, line.SellerID)
	}
	return out
}

// Validator loads a cart and checks it against locked stock rows.
type Validator struct {
	carts  CartRepository
	locker StockLocker
}

func NewValidator(carts CartRepository, locker StockLocker) (*Validator, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if locker == nil {
		return nil, fmt.Errorf("stock locker required")
	}
	return &Validator{carts: carts, locker: locker}, nil
}

// ValidateForCheckout loads the buyer's cart inside tx, locks every listing it
// references and validates each line against the locked rows.
func (v *Validator) ValidateForCheckout(ctx context.Context, tx *gorm.DB, buyerID uuid.UUID) (*Snapshot, map[uuid.UUID]*models.Listing, error) {
	if buyerID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	record, err := v.carts.WithTx(tx).FindByUserID(ctx, buyerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return v.ValidateCart(ctx, tx, record, buyerID)
}

// ValidateCart runs the checks for an already loaded cart. Recovery uses it
// with the cart referenced by a confirmed payment.
func (v *Validator) ValidateCart(ctx context.Context, tx *gorm.DB, record *models.Cart, buyerID uuid.UUID) (*Snapshot, map[uuid.UUID]*models.Listing, error) {
	if record == nil || len(record.Items) == 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}

	ids := make([]uuid.UUID, 0, len(record.Items))
	for _, item := range record.Items {
		ids = append(ids, item.ListingID)
	}
	locked, err := v.locker.LockForCheckout(ctx, tx, ids)
	if err != nil {
		return nil, nil, err
	}

	lines := make([]Line, 0, len(record.Items))
	for _, item := range record.Items {
		listing, ok := locked[item.ListingID]
		if !ok || !listing.Status.Purchasable() {
			return nil, nil, pkgerrors.New(pkgerrors.CodeItemUnavailable, "item is no longer available").
				WithDetails(map[string]any{"listing_id": item.ListingID.String()})
		}
		if listing.Quantity < item.Quantity {
			return nil, nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "not enough stock").
				WithDetails(map[string]any{
					"listing_id": item.ListingID.String(),
					"requested":  item.Quantity,
					"available":  listing.Quantity,
				})
		}
		if listing.SellerID == buyerID {
			return nil, nil, pkgerrors.New(pkgerrors.CodeSelfPurchase, "cannot purchase your own listing").
				WithDetails(map[string]any{"listing_id": item.ListingID.String()})
		}
		lines = append(lines, Line{
			CartItemID: item.ID,
			ListingID:  listing.ID,
			SellerID:   listing.SellerID,
			Title:      listing.Title,
			Quantity:   item.Quantity,
			UnitPrice:  listing.Price,
		})
	}

	return &Snapshot{Cart: record, Lines: lines}, locked, nil
}
