package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketcheckout/pkg/db/models"
	"github.com/angelmondragon/marketcheckout/pkg/enums"
	"github.com/angelmondragon/marketcheckout/pkg/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:payments_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&models.PaymentTransaction{}, &models.PaymentCustomer{}, &models.PaymentRefund{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func TestEnsureCustomerLifecycle(t *testing.T) {
	conn := newTestDB(t)
	fake := NewFakeProvider()
	repo := NewCustomerRepository(conn)
	svc, err := NewCustomerService(fake, repo, logger.Nop())
	if err != nil {
		t.Fatalf("new customer service: %v", err)
	}
	user := &models.User{ID: uuid.New(), Email: "buyer@example.com", DisplayName: "Buyer"}
	ctx := context.Background()

	first, err := svc.EnsureCustomer(ctx, user)
	if err != nil {
		t.Fatalf("ensure customer: %v", err)
	}
	again, err := svc.EnsureCustomer(ctx, user)
	if err != nil {
		t.Fatalf("ensure customer again: %v", err)
	}
	if again != first {
		t.Fatalf("existing customer must be reused: %s vs %s", first, again)
	}

	fake.DeleteCustomer(first)
	recreated, err := svc.EnsureCustomer(ctx, user)
	if err != nil {
		t.Fatalf("ensure after delete: %v", err)
	}
	if recreated == first {
		t.Fatal("deleted customer must be recreated")
	}

	row, err := repo.Find(ctx, user.ID, enums.PaymentGatewayFake)
	if err != nil || row == nil {
		t.Fatalf("expected stored customer, got %v %v", row, err)
	}
	if row.GatewayCustomerID != recreated {
		t.Fatalf("stored id %s does not match %s", row.GatewayCustomerID, recreated)
	}
	var count int64
	conn.Model(&models.PaymentCustomer{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected one customer row, got %d", count)
	}
}
