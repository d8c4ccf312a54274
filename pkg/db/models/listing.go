package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcheckout/pkg/enums"
)

// Listing is a sellable item and the stock ledger row for it.
type Listing struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SellerID  uuid.UUID           `gorm:"column:seller_id;type:uuid;not null;index"`
	Title     string              `gorm:"column:title;type:text;not null"`
	Price     decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	Quantity  int                 `gorm:"column:quantity;not null;check:chk_listings_quantity_nonnegative,quantity >= 0"`
	Status    enums.ListingStatus `gorm:"column:status;type:listing_status;not null;default:'pending'"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *Listing) BeforeCreate(*gorm.DB) error {
	assignID(&l.ID)
	return nil
}
