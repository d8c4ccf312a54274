package webhooks

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/marketcheckout/internal/webhooks"
	"github.com/angelmondragon/marketcheckout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
	"github.com/angelmondragon/marketcheckout/pkg/logger"
	pkgsquare "github.com/angelmondragon/marketcheckout/pkg/square"
)

const (
	squareKey = "sq-signature-key"
	squareURL = "https://checkout.example.com/webhooks/square"
	stripeKey = "whsec_test"
)

type stubProcessor struct {
	events []webhooks.Event
	err    error
}

func (s *stubProcessor) Process(_ context.Context, ev webhooks.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

type keyVerifier struct{}

func (keyVerifier) VerifyWebhook(body []byte, signature string) error {
	return pkgsquare.VerifyWebhookSignature(squareKey, squareURL, body, signature)
}

type signingSecret string

func (s signingSecret) SigningSecret() string { return string(s) }

func squareRequest(body []byte, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/square", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(pkgsquare.SignatureHeader, signature)
	}
	return req
}

func squareSignature(body []byte) string {
	return base64.StdEncoding.EncodeToString(pkgsquare.SignWebhook(squareKey, squareURL, body))
}

func TestSquareWebhookProcessesVerifiedPayment(t *testing.T) {
	cartID := uuid.New()
	body := []byte(`{"merchant_id":"M1","event_id":"sq-evt-1","type":"payment.updated","data":{"type":"payment","id":"pay_1","object":{"payment":{"id":"pay_1","status":"COMPLETED","reference_id":"` +
		cartID.String() + `","amount_money":{"amount":22000,"currency":"USD"}}}}}`)
	processor := &stubProcessor{}
	handler := SquareWebhook(processor, keyVerifier{}, logger.Nop())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, squareRequest(body, squareSignature(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(processor.events) != 1 {
		t.Fatalf("expected one processed event, got %d", len(processor.events))
	}
	ev := processor.events[0]
	if ev.ID != "sq-evt-1" || ev.Gateway != enums.PaymentGatewaySquare || ev.Kind != webhooks.KindSucceeded {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.CartRef == nil || *ev.CartRef != cartID || ev.AmountCents != 22000 {
		t.Fatalf("unexpected payload mapping: %+v", ev)
	}
}

func TestSquareWebhookRejectsBadSignature(t *testing.T) {
	body := []byte(`{"event_id":"sq-evt-2","type":"payment.updated"}`)
	processor := &stubProcessor{}
	handler := SquareWebhook(processor, keyVerifier{}, logger.Nop())

	for name, sig := range map[string]string{
		"missing":  "",
		"mismatch": base64.StdEncoding.EncodeToString([]byte("forged")),
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, squareRequest(body, sig))
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
	if len(processor.events) != 0 {
		t.Fatalf("processor must not run for unverified payloads")
	}
}

func TestSquareWebhookRejectsMalformedPayload(t *testing.T) {
	body := []byte(`{"type":"payment.updated"}`)
	handler := SquareWebhook(&stubProcessor{}, keyVerifier{}, logger.Nop())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, squareRequest(body, squareSignature(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSquareWebhookSurfacesProcessingFailure(t *testing.T) {
	body := []byte(`{"event_id":"sq-evt-3","type":"customer.created","data":{}}`)
	processor := &stubProcessor{err: pkgerrors.New(pkgerrors.CodeDependency, "db down")}
	handler := SquareWebhook(processor, keyVerifier{}, logger.Nop())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, squareRequest(body, squareSignature(body)))
	if rec.Code < http.StatusInternalServerError {
		t.Fatalf("expected a 5xx so the provider retries, got %d", rec.Code)
	}
}

func stripeRequest(payload []byte, header string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	if header != "" {
		req.Header.Set(StripeSignatureHeader, header)
	}
	return req
}

func TestStripeWebhookProcessesVerifiedIntent(t *testing.T) {
	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent","amount":500,"currency":"usd","metadata":{}}}}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    stripeKey,
		Timestamp: time.Now(),
	})
	processor := &stubProcessor{}
	handler := StripeWebhook(processor, signingSecret(stripeKey), logger.Nop())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, stripeRequest(payload, signed.Header))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(processor.events) != 1 || processor.events[0].GatewayTransactionID != "pi_1" {
		t.Fatalf("unexpected processed events: %+v", processor.events)
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_2","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_2","object":"payment_intent"}}}`)
	processor := &stubProcessor{}
	handler := StripeWebhook(processor, signingSecret(stripeKey), logger.Nop())

	for name, header := range map[string]string{
		"missing": "",
		"forged":  "t=1,v1=deadbeef",
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, stripeRequest(payload, header))
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
	if len(processor.events) != 0 {
		t.Fatalf("processor must not run for unverified payloads")
	}
}
