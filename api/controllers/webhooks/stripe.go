package webhooks

import (
	"io"
	"net/http"

	"github.com/angelmondragon/marketcheckout/api/responses"
	stripewebhook "github.com/angelmondragon/marketcheckout/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
	"github.com/angelmondragon/marketcheckout/pkg/logger"
)

// StripeSignatureHeader carries the timestamped v1 signature.
const StripeSignatureHeader = "Stripe-Signature"

type stripeSigningClient interface {
	SigningSecret() string
}

// StripeWebhook handles payment_intent and charge events.
func StripeWebhook(processor EventProcessor, client stripeSigningClient, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if processor == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook processor unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		header := r.Header.Get(StripeSignatureHeader)
		if header == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "stripe signature missing"))
			return
		}

		event, err := stripewebhook.Parse(payload, header, client.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := processor.Process(ctx, event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}
