package payments

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcheckout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketcheckout/pkg/errors"
)

// FakeProvider is an in-process gateway for dev and tests. The payment token
// drives the outcome:
//
//	contains "decline"  -> declined
//	contains "action"   -> requires action
//	contains "pending"  -> processing
//	contains "stale"    -> PAYMENT_METHOD_STALE
//	contains "timeout"  -> blocks until the context ends
//	contains "error"    -> GATEWAY_ERROR
//
// Tokens starting with "pm_" are reusable, everything else is one-shot.
type FakeProvider struct {
	mu        sync.Mutex
	byKey     map[string]*Result
	payments  map[string]*PaymentSnapshot
	customers map[string]bool
	calls     int
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		byKey:     map[string]*Result{},
		payments:  map[string]*PaymentSnapshot{},
		customers: map[string]bool{},
	}
}

func (p *FakeProvider) Name() enums.PaymentGateway { return enums.PaymentGatewayFake }

func (p *FakeProvider) ClassifyMethod(ref string) (enums.PaymentMethodKind, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "payment token required")
	}
	if strings.HasPrefix(ref, "pm_") {
		return enums.PaymentMethodReusable, nil
	}
	return enums.PaymentMethodOneShot, nil
}

func (p *FakeProvider) Authorize(ctx context.Context, req AuthorizeRequest) (*Result, error) {
	token := strings.ToLower(req.PaymentMethodRef)
	if strings.Contains(token, "timeout") {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++

	if prior, ok := p.byKey[req.IdempotencyKey]; ok {
		copied := *prior
		return &copied, nil
	}

	switch {
	case strings.Contains(token, "error"):
		return nil, pkgerrors.New(pkgerrors.CodeGatewayError, "fake gateway failure")
	case strings.Contains(token, "stale"):
		return nil, pkgerrors.New(pkgerrors.CodePaymentMethodStale, "fake payment method unusable")
	case strings.Contains(token, "decline"):
		return nil, pkgerrors.New(pkgerrors.CodePaymentDeclined, "fake decline").
			WithDetails(map[string]any{"decline_code": "card_declined"})
	}

	res := &Result{ReferenceID: "fake_" + uuid.NewString(), Outcome: OutcomeSucceeded}
	status := enums.PaymentTxCompleted
	switch {
	case strings.Contains(token, "action"):
		res.Outcome = OutcomeRequiresAction
		res.RedirectURL = "https://fake.gateway.local/3ds/" + res.ReferenceID
		status = enums.PaymentTxPending
	case strings.Contains(token, "pending"):
		res.Outcome = OutcomeProcessing
		status = enums.PaymentTxProcessing
	}
	p.byKey[req.IdempotencyKey] = res
	p.payments[res.ReferenceID] = &PaymentSnapshot{
		ReferenceID: res.ReferenceID,
		Status:      status,
		CartRef:     req.Metadata.CartID,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
	}
	copied := *res
	return &copied, nil
}

func (p *FakeProvider) CustomerExists(_ context.Context, customerID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.customers[customerID], nil
}

func (p *FakeProvider) CreateCustomer(_ context.Context, _ CustomerRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := "fakecus_" + uuid.NewString()
	p.customers[id] = true
	return id, nil
}

// DeleteCustomer simulates a customer removed on the gateway side.
func (p *FakeProvider) DeleteCustomer(customerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.customers, customerID)
}

func (p *FakeProvider) LookupPayment(_ context.Context, referenceID string) (*PaymentSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap, ok := p.payments[referenceID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "fake payment not found")
	}
	copied := *snap
	return &copied, nil
}

// SetPaymentStatus moves a recorded payment, as a settling gateway would.
func (p *FakeProvider) SetPaymentStatus(referenceID string, status enums.PaymentTransactionStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if snap, ok := p.payments[referenceID]; ok {
		snap.Status = status
	}
}

// Calls reports how many authorizations reached the fake.
func (p *FakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
