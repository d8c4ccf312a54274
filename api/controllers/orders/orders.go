package orders

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcheckout/api/middleware"
	"github.com/angelmondragon/marketcheckout/api/responses"
	"github.com/angelmondragon/marketcheckout/api/validators"
	internalorders "github.com/angelmondragon/marketcheckout/internal/orders"
	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
	"github.com/angelmondragon/marketcheckout/pkg/logger"
)

// Detail returns one of the caller's orders. Orders owned by other buyers
// are reported as missing.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		buyerID := middleware.UserIDFromContext(r.Context())
		if buyerID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer required"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetForBuyer(r.Context(), buyerID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
