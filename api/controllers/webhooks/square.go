package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/marketcheckout/api/responses"
	"github.com/angelmondragon/marketcheckout/internal/webhooks"
	squarewebhook "github.com/angelmondragon/marketcheckout/internal/webhooks/square"
	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
	"github.com/angelmondragon/marketcheckout/pkg/logger"
	pkgsquare "github.com/angelmondragon/marketcheckout/pkg/square"
)

// EventProcessor applies a verified gateway event.
type EventProcessor interface {
	Process(ctx context.Context, ev webhooks.Event) error
}

type squareVerifier interface {
	VerifyWebhook(body []byte, signature string) error
}

// maxWebhookBody caps what a provider may post.
const maxWebhookBody = 1 << 20

// SquareWebhook handles Square payment and refund notifications.
func SquareWebhook(processor EventProcessor, verifier squareVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if processor == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook processor unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "square client unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		signature := r.Header.Get(pkgsquare.SignatureHeader)
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "square signature missing"))
			return
		}
		if err := verifier.VerifyWebhook(payload, signature); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		event, err := squarewebhook.Parse(payload)
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
