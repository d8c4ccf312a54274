package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// checkout: user-recoverable
	CodeEmptyCart             Code = "EMPTY_CART"
	CodeItemUnavailable       Code = "ITEM_UNAVAILABLE"
	CodeInsufficientStock     Code = "INSUFFICIENT_STOCK"
	CodeSelfPurchase          Code = "SELF_PURCHASE"
	CodePaymentDeclined       Code = "PAYMENT_DECLINED"
	CodePaymentMethodStale    Code = "PAYMENT_METHOD_STALE"
	CodePaymentActionRequired Code = "PAYMENT_ACTION_REQUIRED"
	CodePaymentPending        Code = "PAYMENT_PENDING"

	// checkout: transient
	CodeGatewayError   Code = "GATEWAY_ERROR"
	CodeGatewayTimeout Code = "GATEWAY_TIMEOUT"

	// checkout: integrity
	CodeIntegrity Code = "INTEGRITY_VIOLATION"
)

// Class groups codes by how a caller is expected to react.
type Class string

const (
	ClassUser      Class = "user"
	ClassTransient Class = "transient"
	ClassIntegrity Class = "integrity"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	Class          Class
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
		Class:          ClassUser,
	},
	CodeUnauthorized: {
		HTTPStatus:    http.StatusUnauthorized,
		PublicMessage: "authentication required",
		Class:         ClassUser,
	},
	CodeForbidden: {
		HTTPStatus:    http.StatusForbidden,
		PublicMessage: "access denied",
		Class:         ClassUser,
	},
	CodeNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "resource not found",
		Class:         ClassUser,
	},
	CodeConflict: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "conflict detected",
		Class:         ClassUser,
	},
	CodeStateConflict: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "state transition disallowed",
		DetailsAllowed: true,
		Class:          ClassUser,
	},
	CodeIdempotency: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "idempotency key reused",
		DetailsAllowed: true,
		Class:          ClassUser,
	},
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		Retryable:     true,
		PublicMessage: "internal server error",
		Class:         ClassTransient,
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
		Class:          ClassTransient,
	},
	CodeEmptyCart: {
		HTTPStatus:    http.StatusUnprocessableEntity,
		PublicMessage: "empty-cart",
		Class:         ClassUser,
	},
	CodeItemUnavailable: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "item-unavailable",
		DetailsAllowed: true,
		Class:          ClassUser,
	},
	CodeInsufficientStock: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "out-of-stock",
		DetailsAllowed: true,
		Class:          ClassUser,
	},
	CodeSelfPurchase: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "self-purchase",
		DetailsAllowed: true,
		Class:          ClassUser,
	},
	CodePaymentDeclined: {
		HTTPStatus:     http.StatusPaymentRequired,
		PublicMessage:  "declined",
		DetailsAllowed: true,
		Class:          ClassUser,
	},
	CodePaymentMethodStale: {
		HTTPStatus:    http.StatusPaymentRequired,
		PublicMessage: "payment-method-unusable",
		Class:         ClassUser,
	},
	CodePaymentActionRequired: {
		HTTPStatus:     http.StatusPaymentRequired,
		PublicMessage:  "action-required",
		DetailsAllowed: true,
		Class:          ClassUser,
	},
	CodePaymentPending: {
		HTTPStatus:     http.StatusAccepted,
		PublicMessage:  "payment-pending",
		DetailsAllowed: true,
		Class:          ClassUser,
	},
	CodeGatewayError: {
		HTTPStatus:    http.StatusBadGateway,
		Retryable:     true,
		PublicMessage: "payment could not be processed, try again",
		Class:         ClassTransient,
	},
	CodeGatewayTimeout: {
		HTTPStatus:    http.StatusGatewayTimeout,
		Retryable:     false,
		PublicMessage: "payment outcome unknown, check order status before retrying",
		Class:         ClassTransient,
	},
	CodeIntegrity: {
		HTTPStatus:    http.StatusInternalServerError,
		PublicMessage: "internal server error",
		Class:         ClassIntegrity,
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// ClassOf reports the class of err, defaulting to transient for untyped errors.
func ClassOf(err error) Class {
	if typed := As(err); typed != nil {
		return MetadataFor(typed.Code()).Class
	}
	return ClassTransient
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
