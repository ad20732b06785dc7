package order

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeValidation      = "validation"
	CodeNotFound        = "not_found"
	CodeAuthorization   = "authorization"
	CodeOrderIDMismatch = "order_id_mismatch"
	CodeSignature       = "signature"
	CodeGateway         = "gateway"
	CodeCritical        = "critical"
)

// Security-relevant rejections all surface the same message so callers learn
// nothing beyond the fact that verification failed.
const publicVerificationFailed = "payment verification failed"

// OrderError is the error type every service operation returns. PublicMessage
// is safe to hand to clients; Internal is for logs only.
type OrderError struct {
	Code          string
	StatusCode    int
	PublicMessage string
	Internal      string
	Err           error
}

func (e *OrderError) Error() string {
	if e.Internal != "" {
		return e.Internal
	}
	return e.PublicMessage
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// IsCode reports whether err is an OrderError carrying the given code.
func IsCode(err error, code string) bool {
	var oe *OrderError
	return errors.As(err, &oe) && oe.Code == code
}

func NewValidationError(msg string) *OrderError {
	return &OrderError{
		Code:          CodeValidation,
		StatusCode:    http.StatusBadRequest,
		PublicMessage: msg,
		Internal:      msg,
	}
}

func NewNotFoundError(orderID string) *OrderError {
	return &OrderError{
		Code:          CodeNotFound,
		StatusCode:    http.StatusNotFound,
		PublicMessage: "order not found",
		Internal:      fmt.Sprintf("order %s not found", orderID),
	}
}

func NewAuthorizationError(internal string) *OrderError {
	return &OrderError{
		Code:          CodeAuthorization,
		StatusCode:    http.StatusForbidden,
		PublicMessage: publicVerificationFailed,
		Internal:      internal,
	}
}

func NewOrderIDMismatchError(internal string) *OrderError {
	return &OrderError{
		Code:          CodeOrderIDMismatch,
		StatusCode:    http.StatusBadRequest,
		PublicMessage: publicVerificationFailed,
		Internal:      internal,
	}
}

func NewSignatureError(internal string) *OrderError {
	return &OrderError{
		Code:          CodeSignature,
		StatusCode:    http.StatusBadRequest,
		PublicMessage: publicVerificationFailed,
		Internal:      internal,
	}
}

func NewGatewayError(err error) *OrderError {
	return &OrderError{
		Code:          CodeGateway,
		StatusCode:    http.StatusBadGateway,
		PublicMessage: "payment gateway unavailable, please retry",
		Internal:      fmt.Sprintf("gateway order mint failed: %v", err),
		Err:           err,
	}
}

func NewCriticalError(err error) *OrderError {
	return &OrderError{
		Code:          CodeCritical,
		StatusCode:    http.StatusInternalServerError,
		PublicMessage: "internal error",
		Internal:      fmt.Sprintf("internal failure: %v", err),
		Err:           err,
	}
}
