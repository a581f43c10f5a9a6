package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application
var (
	ErrNotFound              = new(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists         = new(ErrCodeAlreadyExists, "resource already exists")
	ErrVersionConflict       = new(ErrCodeVersionConflict, "version conflict")
	ErrValidation            = new(ErrCodeValidation, "validation error")
	ErrInvalidOperation      = new(ErrCodeInvalidOperation, "invalid operation")
	ErrPermissionDenied      = new(ErrCodePermissionDenied, "permission denied")
	ErrUnauthorized          = new(ErrCodeUnauthorized, "unauthorized")
	ErrTenantContextRequired = new(ErrCodeTenantContextRequired, "tenant context required")
	ErrTenantNotFound        = new(ErrCodeTenantNotFound, "tenant not found")
	ErrRateLimited           = new(ErrCodeRateLimited, "rate limit exceeded")
	ErrInvoiceClosed         = new(ErrCodeInvoiceClosed, "invoice closed")
	ErrRefundExceedsPayment  = new(ErrCodeRefundExceedsPayment, "refund exceeds payment")
	ErrDatabase              = new(ErrCodeDatabase, "database error")
	ErrSystem                = new(ErrCodeSystemError, "system error")
	// maps errors to http status codes
	statusCodeMap = map[error]int{
		ErrDatabase:              http.StatusInternalServerError,
		ErrNotFound:              http.StatusNotFound,
		ErrAlreadyExists:         http.StatusConflict,
		ErrVersionConflict:       http.StatusConflict,
		ErrValidation:            http.StatusBadRequest,
		ErrInvalidOperation:      http.StatusBadRequest,
		ErrPermissionDenied:      http.StatusForbidden,
		ErrUnauthorized:          http.StatusUnauthorized,
		ErrTenantContextRequired: http.StatusBadRequest,
		ErrTenantNotFound:        http.StatusNotFound,
		ErrRateLimited:           http.StatusTooManyRequests,
		ErrInvoiceClosed:         http.StatusConflict,
		ErrRefundExceedsPayment:  http.StatusBadRequest,
		ErrSystem:                http.StatusInternalServerError,
	}
)

const (
	ErrCodeSystemError           = "system_error"
	ErrCodeNotFound              = "not_found"
	ErrCodeAlreadyExists         = "already_exists"
	ErrCodeVersionConflict       = "version_conflict"
	ErrCodeValidation            = "validation_error"
	ErrCodeInvalidOperation      = "invalid_operation"
	ErrCodePermissionDenied      = "permission_denied"
	ErrCodeUnauthorized          = "unauthorized"
	ErrCodeTenantContextRequired = "tenant_context_required"
	ErrCodeTenantNotFound        = "tenant_not_found"
	ErrCodeRateLimited           = "rate_limited"
	ErrCodeInvoiceClosed         = "invoice_closed"
	ErrCodeRefundExceedsPayment  = "refund_exceeds_payment"
	ErrCodeDatabase              = "database_error"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsVersionConflict checks if an error is a version conflict error
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidOperation checks if an error is an invalid operation error
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

// IsPermissionDenied checks if an error is a permission denied error
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

func IsTenantNotFound(err error) bool {
	return errors.Is(err, ErrTenantNotFound)
}

func IsTenantContextRequired(err error) bool {
	return errors.Is(err, ErrTenantContextRequired)
}

func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

func IsInvoiceClosed(err error) bool {
	return errors.Is(err, ErrInvoiceClosed)
}

func IsRefundExceedsPayment(err error) bool {
	return errors.Is(err, ErrRefundExceedsPayment)
}

// IsInternal reports errors that must not leak details to the caller.
func IsInternal(err error) bool {
	return HTTPStatusFromErr(err) >= http.StatusInternalServerError
}

func HTTPStatusFromErr(err error) int {
	for e, status := range statusCodeMap {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}
