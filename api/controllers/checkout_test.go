package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketcheckout/api/middleware"
	checkoutsvc "github.com/angelmondragon/marketcheckout/internal/checkout"
	"github.com/angelmondragon/marketcheckout/pkg/db/models"
	"github.com/angelmondragon/marketcheckout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
	"github.com/angelmondragon/marketcheckout/pkg/logger"
)

type stubCheckoutService struct {
	req   checkoutsvc.Request
	calls int
	order *models.Order
	err   error
}

func (s *stubCheckoutService) Checkout(_ context.Context, req checkoutsvc.Request) (*models.Order, error) {
	s.calls++
	s.req = req
	return s.order, s.err
}

func checkoutRequestFor(buyerID uuid.UUID, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.IdempotencyKeyHeader, "attempt-1")
	if buyerID != uuid.Nil {
		req = req.WithContext(middleware.WithUserID(req.Context(), buyerID))
	}
	return req
}

func TestCheckoutCreatesOrder(t *testing.T) {
	buyerID := uuid.New()
	orderID := uuid.New()
	svc := &stubCheckoutService{order: &models.Order{
		ID:         orderID,
		BuyerID:    buyerID,
		Status:     enums.OrderStatusPaid,
		Currency:   "USD",
		Subtotal:   decimal.RequireFromString("200"),
		Commission: decimal.RequireFromString("20"),
		Total:      decimal.RequireFromString("220"),
	}}
	rec := httptest.NewRecorder()
	Checkout(svc, logger.Nop()).ServeHTTP(rec, checkoutRequestFor(buyerID, `{"payment_token":"  cnon:card-ok  ","return_url":"https://shop.example.com/done"}`))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.req.BuyerID != buyerID || svc.req.AttemptKey != "attempt-1" || svc.req.PaymentToken != "cnon:card-ok" {
		t.Fatalf("unexpected request: %+v", svc.req)
	}

	var body struct {
		Data struct {
			ID         uuid.UUID `json:"id"`
			Total      string    `json:"total"`
			Commission string    `json:"commission"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Data.ID != orderID || body.Data.Total != "220.00" || body.Data.Commission != "20.00" {
		t.Fatalf("unexpected order body: %+v", body.Data)
	}
}

func TestCheckoutValidation(t *testing.T) {
	cases := map[string]string{
		"missing token": `{}`,
		"bad url":       `{"payment_token":"tok","return_url":"not a url"}`,
		"unknown field": `{"payment_token":"tok","coupon":"FREE"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubCheckoutService{}
			rec := httptest.NewRecorder()
			Checkout(svc, logger.Nop()).ServeHTTP(rec, checkoutRequestFor(uuid.New(), body))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
			}
			if svc.calls != 0 {
				t.Fatalf("service must not run on invalid input")
			}
		})
	}
}

func TestCheckoutRequiresBuyer(t *testing.T) {
	rec := httptest.NewRecorder()
	Checkout(&stubCheckoutService{}, logger.Nop()).ServeHTTP(rec, checkoutRequestFor(uuid.Nil, `{"payment_token":"tok"}`))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCheckoutMapsOutcomes(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "empty cart", err: pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty"), status: http.StatusUnprocessableEntity, code: "EMPTY_CART"},
		{name: "declined", err: pkgerrors.New(pkgerrors.CodePaymentDeclined, "declined"), status: http.StatusPaymentRequired, code: "PAYMENT_DECLINED"},
		{name: "pending", err: pkgerrors.New(pkgerrors.CodePaymentPending, "processing"), status: http.StatusAccepted, code: "PAYMENT_PENDING"},
		{name: "gateway timeout", err: pkgerrors.New(pkgerrors.CodeGatewayTimeout, "timeout"), status: http.StatusGatewayTimeout, code: "GATEWAY_TIMEOUT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Checkout(&stubCheckoutService{err: tc.err}, logger.Nop()).ServeHTTP(rec, checkoutRequestFor(uuid.New(), `{"payment_token":"tok"}`))
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if body.Error.Code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, body.Error.Code)
			}
		})
	}
}
