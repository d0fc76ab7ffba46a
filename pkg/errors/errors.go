package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// Marketplace policy errors.
	ErrCourseNotPublished = New("COURSE_NOT_PUBLISHED", http.StatusUnprocessableEntity, "course is not published")
	ErrPaymentRequired    = New("PAYMENT_REQUIRED", http.StatusPaymentRequired, "course purchase required")
	ErrFreeCourse         = New("FREE_COURSE", http.StatusUnprocessableEntity, "free courses cannot be purchased")
	ErrDuplicatePurchase  = New("DUPLICATE_PURCHASE", http.StatusConflict, "course already purchased")
	ErrPaymentNotSettled  = New("PAYMENT_NOT_SETTLED", http.StatusUnprocessableEntity, "payment has not been settled")
	ErrRefundNotEligible  = New("REFUND_NOT_ELIGIBLE", http.StatusUnprocessableEntity, "transaction is not eligible for refund")
	ErrRetakeNotAllowed   = New("RETAKE_NOT_ALLOWED", http.StatusForbidden, "retakes are not allowed for this quiz")
	ErrPaymentProvider    = New("PAYMENT_PROVIDER_ERROR", http.StatusBadGateway, "payment provider unavailable, please try again")
	ErrInvalidSignature   = New("INVALID_SIGNATURE", http.StatusUnauthorized, "webhook signature verification failed")
	ErrNotEnrolled        = New("NOT_ENROLLED", http.StatusForbidden, "enrollment required")
)

// ErrCacheMiss signals a cache lookup found nothing. Never surfaced to
// clients.
var ErrCacheMiss = errors.New("cache miss")

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
