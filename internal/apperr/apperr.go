// Package apperr holds the error taxonomy shared by every layer. Packages wrap
// these sentinels with fmt.Errorf("%w: ...") and the transport maps them to
// status codes.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrProvider            = errors.New("provider error")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrPaymentUnavailable  = errors.New("payment gateway unavailable")
	ErrPersistence         = errors.New("persistence error")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrUnauthorized        = errors.New("unauthorized")
)

// ErrorCode is the machine readable code returned to API clients.
type ErrorCode string

const (
	CodeValidation          ErrorCode = "VALIDATION_ERROR"
	CodeInsufficientCredits ErrorCode = "INSUFFICIENT_CREDITS"
	CodeProvider            ErrorCode = "PROVIDER_ERROR"
	CodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	CodePaymentUnavailable  ErrorCode = "PAYMENT_UNAVAILABLE"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeConflict            ErrorCode = "CONFLICT"
	CodeUnauthorized        ErrorCode = "UNAUTHORIZED"
	CodeInternal            ErrorCode = "INTERNAL_ERROR"
)

// Code classifies err. Unknown errors, including persistence failures, are internal.
func Code(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrInsufficientCredits):
		return CodeInsufficientCredits
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrProviderUnavailable):
		return CodeProviderUnavailable
	case errors.Is(err, ErrPaymentUnavailable):
		return CodePaymentUnavailable
	case errors.Is(err, ErrProvider):
		return CodeProvider
	default:
		return CodeInternal
	}
}

// HTTPStatus maps err to the response status code.
func HTTPStatus(err error) int {
	switch Code(err) {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeInsufficientCredits:
		return http.StatusPaymentRequired
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeProviderUnavailable, CodePaymentUnavailable, CodeProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
