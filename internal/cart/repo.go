package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketcheckout/pkg/db/models"
)

// Repository exposes persistence operations for carts.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByUserID locks the user's cart row and then loads its items, so the
// item set cannot change under a checkout holding the lock.
func (r *Repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	return r.lockedCart(ctx, "user_id = ?", userID)
}

// FindByID locks a cart row by id and then loads its items.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error) {
	return r.lockedCart(ctx, "id = ?", id)
}

// Lock order is the cart row, then its listings ascending by id.
func (r *Repository) lockedCart(ctx context.Context, query string, arg any) (*models.Cart, error) {
	var record models.Cart
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(query, arg).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	err = r.db.WithContext(ctx).
		Where("cart_id = ?", record.ID).
		Order("listing_id ASC").
		Find(&record.Items).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Clear deletes every item in the cart. The cart row itself is kept.
func (r *Repository) Clear(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error
}
