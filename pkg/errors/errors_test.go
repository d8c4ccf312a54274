package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
		class     Class
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true, class: ClassUser},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required", class: ClassUser},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found", class: ClassUser},
		{code: CodeEmptyCart, status: http.StatusUnprocessableEntity, publicMsg: "empty-cart", class: ClassUser},
		{code: CodeInsufficientStock, status: http.StatusConflict, publicMsg: "out-of-stock", detailsOK: true, class: ClassUser},
		{code: CodePaymentDeclined, status: http.StatusPaymentRequired, publicMsg: "declined", detailsOK: true, class: ClassUser},
		{code: CodeGatewayError, status: http.StatusBadGateway, publicMsg: "payment could not be processed, try again", retryable: true, class: ClassTransient},
		{code: CodeGatewayTimeout, status: http.StatusGatewayTimeout, publicMsg: "payment outcome unknown, check order status before retrying", class: ClassTransient},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true, class: ClassTransient},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true, class: ClassTransient},
		{code: CodeIntegrity, status: http.StatusInternalServerError, publicMsg: "internal server error", class: ClassIntegrity},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
		if meta.Class != tt.class {
			t.Fatalf("code %s expected class %s got %s", tt.code, tt.class, meta.Class)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	base.WithDetails(map[string]any{"field": "foo"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestClassOfAndHasCode(t *testing.T) {
	stock := fmt.Errorf("checkout: %w", New(CodeInsufficientStock, "listing short"))
	if ClassOf(stock) != ClassUser {
		t.Fatalf("expected user class, got %s", ClassOf(stock))
	}
	if !HasCode(stock, CodeInsufficientStock) {
		t.Fatalf("expected wrapped code to be found")
	}
	if HasCode(stock, CodePaymentDeclined) {
		t.Fatalf("unexpected code match")
	}
	if ClassOf(New(CodeIntegrity, "negative stock")) != ClassIntegrity {
		t.Fatalf("expected integrity class")
	}
	if ClassOf(stdErrors.New("plain")) != ClassTransient {
		t.Fatalf("untyped errors should be transient")
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestLogFieldsIncludesPostgresDiagnostics(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_orders_payment_reference", TableName: "orders", Message: "duplicate key"}
	err := Wrap(CodeIntegrity, fmt.Errorf("insert order: %w", pgErr), "materialize").WithDetails(map[string]any{"step": "materialize"})

	fields := LogFields(err)
	if fields["error_code"] != CodeIntegrity || fields["alert"] != true {
		t.Fatalf("unexpected typed fields %v", fields)
	}
	if fields["step"] != "materialize" {
		t.Fatalf("missing step: %v", fields)
	}
	if fields["pg_code"] != "23505" || fields["pg_constraint"] != "ux_orders_payment_reference" {
		t.Fatalf("missing postgres diagnostics: %v", fields)
	}
	if chain, _ := fields["error_chain"].([]string); len(chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %v", fields["error_chain"])
	}
}

func TestLogFieldsUntypedError(t *testing.T) {
	fields := LogFields(stdErrors.New("boom"))
	if _, ok := fields["error_code"]; ok {
		t.Fatal("untyped errors carry no code")
	}
	if _, ok := fields["pg_code"]; ok {
		t.Fatal("no postgres fields expected")
	}
	if len(LogFields(nil)) != 0 {
		t.Fatal("nil error should produce no fields")
	}
}
