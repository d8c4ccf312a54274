package stock

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcheckout/pkg/db/models"
	"github.com/angelmondragon/marketcheckout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:stock_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.Listing{}); err != nil {
		t.Fatalf("migrate listings: %v", err)
	}
	return conn
}

func seedListing(t *testing.T, conn *gorm.DB, qty int) models.Listing {
	t.Helper()
	listing := models.Listing{
		SellerID: uuid.New(),
		Title:    "widget",
		Price:    decimal.RequireFromString("100.00"),
		Quantity: qty,
		Status:   enums.ListingStatusActive,
	}
	if err := conn.Create(&listing).Error; err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return listing
}

func TestLockForCheckoutReturnsExistingRows(t *testing.T) {
	conn := newTestDB(t)
	a := seedListing(t, conn, 5)
	b := seedListing(t, conn, 1)
	missing := uuid.New()

	ledger := NewLedger()
	err := conn.Transaction(func(tx *gorm.DB) error {
		locked, err := ledger.LockForCheckout(context.Background(), tx, []uuid.UUID{b.ID, a.ID, a.ID, missing})
		if err != nil {
			return err
		}
		if len(locked) != 2 {
			t.Fatalf("expected 2 locked rows, got %d", len(locked))
		}
		if locked[a.ID].Quantity != 5 || locked[b.ID].Quantity != 1 {
			t.Fatalf("unexpected quantities: %+v", locked)
		}
		if _, ok := locked[missing]; ok {
			t.Fatal("missing listing should not be present")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestDecrement(t *testing.T) {
	conn := newTestDB(t)
	listing := seedListing(t, conn, 5)
	ledger := NewLedger()
	ctx := context.Background()

	if err := ledger.Decrement(ctx, conn, listing.ID, 2); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	var reloaded models.Listing
	if err := conn.First(&reloaded, "id = ?", listing.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Quantity != 3 {
		t.Fatalf("expected 3 left, got %d", reloaded.Quantity)
	}

	err := ledger.Decrement(ctx, conn, listing.ID, 4)
	if !pkgerrors.HasCode(err, pkgerrors.CodeIntegrity) {
		t.Fatalf("expected integrity violation, got %v", err)
	}
	if err := conn.First(&reloaded, "id = ?", listing.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Quantity != 3 {
		t.Fatalf("quantity must not change on failed decrement, got %d", reloaded.Quantity)
	}

	if err := ledger.Decrement(ctx, conn, listing.ID, 0); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSortedDistinct(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	c := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")

	got := SortedDistinct([]uuid.UUID{c, a, uuid.Nil, b, a, c})
	want := []uuid.UUID{a, b, c}
	if len(got) != len(want) {
		t.Fatalf("expected %d ids, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestLockForCheckoutQueryOnPostgres(t *testing.T) {
	conn, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=checkout dbname=checkout sslmode=disable"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")

	sql := conn.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []models.Listing
		return lockListings(tx, SortedDistinct([]uuid.UUID{high, low, high})).Find(&rows)
	})
	if !strings.Contains(sql, "ORDER BY id ASC") {
		t.Fatalf("expected ascending id order, got %s", sql)
	}
	if !strings.HasSuffix(strings.TrimSpace(sql), "FOR UPDATE") {
		t.Fatalf("expected row locks, got %s", sql)
	}
	if strings.Index(sql, low.String()) > strings.Index(sql, high.String()) || strings.Count(sql, high.String()) != 1 {
		t.Fatalf("expected distinct ids in ascending order, got %s", sql)
	}
}
