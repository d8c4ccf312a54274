package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcheckout/api/middleware"
	"github.com/angelmondragon/marketcheckout/api/responses"
	"github.com/angelmondragon/marketcheckout/api/validators"
	checkoutsvc "github.com/angelmondragon/marketcheckout/internal/checkout"
	"github.com/angelmondragon/marketcheckout/internal/orders"
	"github.com/angelmondragon/marketcheckout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
	"github.com/angelmondragon/marketcheckout/pkg/logger"
)

const maxPaymentTokenLen = 512

// CheckoutService runs one checkout attempt for the authenticated buyer.
type CheckoutService interface {
	Checkout(ctx context.Context, req checkoutsvc.Request) (*models.Order, error)
}

type checkoutRequest struct {
	PaymentToken      string     `json:"payment_token" validate:"required"`
	ShippingAddressID *uuid.UUID `json:"shipping_address_id,omitempty"`
	ShippingMethodID  *uuid.UUID `json:"shipping_method_id,omitempty"`
	ReturnURL         string     `json:"return_url,omitempty" validate:"omitempty,url"`
}

// Checkout converts the buyer's cart into a paid order.
func Checkout(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		buyerID := middleware.UserIDFromContext(r.Context())
		if buyerID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer required"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Checkout(r.Context(), checkoutsvc.Request{
			BuyerID:           buyerID,
			PaymentToken:      validators.SanitizeString(payload.PaymentToken, maxPaymentTokenLen),
			ShippingAddressID: payload.ShippingAddressID,
			ShippingMethodID:  payload.ShippingMethodID,
			ReturnURL:         payload.ReturnURL,
			AttemptKey:        r.Header.Get(middleware.IdempotencyKeyHeader),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, orders.NewOrderDTO(order))
	}
}
