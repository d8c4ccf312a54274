package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcheckout/pkg/db/models"
	"github.com/angelmondragon/marketcheckout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
	"github.com/angelmondragon/marketcheckout/pkg/logger"
	"github.com/angelmondragon/marketcheckout/pkg/retry"
)

type customerStore interface {
	Find(ctx context.Context, userID uuid.UUID, gateway enums.PaymentGateway) (*models.PaymentCustomer, error)
	Upsert(ctx context.Context, userID uuid.UUID, gateway enums.PaymentGateway, customerID string) error
}

// CustomerService keeps a live gateway customer for each buyer.
type CustomerService struct {
	provider Provider
	store    customerStore
	retry    retry.Config
	logg     *logger.Logger
}

func NewCustomerService(provider Provider, store customerStore, logg *logger.Logger) (*CustomerService, error) {
	if provider == nil {
		return nil, fmt.Errorf("payment provider required")
	}
	if store == nil {
		return nil, fmt.Errorf("customer store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &CustomerService{provider: provider, store: store, retry: retry.GatewayConfig(), logg: logg}, nil
}

// EnsureCustomer returns a gateway customer id that resolves right now. A
// remembered id that was deleted on the gateway side is replaced silently.
// Call it before opening the checkout transaction.
func (s *CustomerService) EnsureCustomer(ctx context.Context, user *models.User) (string, error) {
	if user == nil || user.ID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "buyer required")
	}
	gateway := s.provider.Name()
	ctx = s.logg.WithFields(ctx, map[string]any{"user_id": user.ID.String(), "gateway": string(gateway)})

	existing, err := s.store.Find(ctx, user.ID, gateway)
	if err != nil {
		return "", err
	}
	if existing != nil && existing.GatewayCustomerID != "" {
		ok, err := retry.DoWithResult(ctx, s.retry, isRetryable, func() (bool, error) {
			return s.provider.CustomerExists(ctx, existing.GatewayCustomerID)
		})
		if err != nil {
			return "", normalizeError(err)
		}
		if ok {
			return existing.GatewayCustomerID, nil
		}
		s.logg.Warn(ctx, "remembered gateway customer no longer resolves, recreating")
	}

	req := CustomerRequest{
		UserID:         user.ID.String(),
		Email:          user.Email,
		Name:           user.DisplayName,
		IdempotencyKey: customerKey(user.ID, existing),
	}
	customerID, err := retry.DoWithResult(ctx, s.retry, isRetryable, func() (string, error) {
		return s.provider.CreateCustomer(ctx, req)
	})
	if err != nil {
		return "", normalizeError(err)
	}
	if err := s.store.Upsert(ctx, user.ID, gateway, customerID); err != nil {
		return "", err
	}
	s.logg.Info(s.logg.WithField(ctx, "gateway_customer_id", customerID), "gateway customer created")
	return customerID, nil
}

// customerKey is stable for a (user, stale id) pair so retries reuse it, and
// changes once the stale id is replaced.
func customerKey(userID uuid.UUID, existing *models.PaymentCustomer) string {
	stale := ""
	if existing != nil {
		stale = existing.GatewayCustomerID
	}
	return AttemptKey(uuid.Nil, userID, "customer:"+stale)
}

// isRetryable retries only transient failures.
func isRetryable(err error) bool {
	return pkgerrors.ClassOf(err) == pkgerrors.ClassTransient
}
