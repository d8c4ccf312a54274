package stripe

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
)

// mapPaymentError maps charge/intent creation failures. Card errors are
// declines and a missing payment method is stale.
func mapPaymentError(err error, op string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Type == stripe.ErrorTypeCard {
			reason := string(stripeErr.DeclineCode)
			if reason == "" {
				reason = string(stripeErr.Code)
			}
			return pkgerrors.Wrap(pkgerrors.CodePaymentDeclined, err, "stripe declined payment").
				WithDetails(map[string]any{"decline_code": reason})
		}
		if stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return pkgerrors.Wrap(pkgerrors.CodePaymentMethodStale, err, "stripe payment method unusable")
		}
	}
	return mapStripeError(err, op)
}

func mapStripeError(err error, op string) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		code := pkgerrors.CodeGatewayError
		switch {
		case stripeErr.Type == stripe.ErrorTypeIdempotency:
			code = pkgerrors.CodeIdempotency
		case stripeErr.Code == stripe.ErrorCodeResourceMissing || stripeErr.HTTPStatusCode == http.StatusNotFound:
			code = pkgerrors.CodeNotFound
		case stripeErr.HTTPStatusCode == http.StatusBadRequest:
			code = pkgerrors.CodeValidation
		}
		return pkgerrors.Wrap(code, err, fmt.Sprintf("stripe %s failed", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeGatewayError, err, fmt.Sprintf("stripe %s failed", op))
}
