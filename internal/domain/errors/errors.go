// Package errors provides standardized error types for the domain layer.
// These errors enable consistent categorization across payment rails and
// map cleanly onto HTTP responses.
package errors

import (
	"errors"
	"fmt"
)

// Standard error categories
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid input was provided
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates the request is not authorized
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")

	// ErrConflict indicates a conflict with the current state
	ErrConflict = errors.New("conflict")

	// ErrServiceUnavailable indicates an upstream provider is temporarily down
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrNotSettled indicates payment could not be confirmed as settled.
	// Verification failures collapse into this: never settle on error.
	ErrNotSettled = errors.New("payment not settled")

	// ErrAlreadyDelivered indicates the order was fulfilled earlier
	ErrAlreadyDelivered = errors.New("order already delivered")

	// ErrDeliveryFailed indicates settlement succeeded but hand-off of the
	// goods did not; the order stays undelivered and is retried
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrInsufficientFunds indicates the requested amount exceeds balance
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrSelfReferral indicates a user tried to become their own inviter
	ErrSelfReferral = errors.New("self referral")
)

// DomainError represents a domain-specific error with additional context
type DomainError struct {
	Err       error
	Code      string
	Message   string
	Details   map[string]interface{}
	Retryable bool
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target
func (e *DomainError) Is(target error) bool {
	if e.Err != nil {
		return errors.Is(e.Err, target)
	}
	return false
}

// WithDetails adds details to the error
func (e *DomainError) WithDetails(details map[string]interface{}) *DomainError {
	e.Details = details
	return e
}

// IsRetryable returns true if the error is retryable
func (e *DomainError) IsRetryable() bool {
	return e.Retryable
}

// NotFoundError creates a not found error
func NotFoundError(resource string) *DomainError {
	return &DomainError{
		Err:     ErrNotFound,
		Code:    fmt.Sprintf("%s_NOT_FOUND", resource),
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// ValidationError creates a validation error
func ValidationError(field, message string) *DomainError {
	return &DomainError{
		Err:     ErrInvalidInput,
		Code:    "VALIDATION_ERROR",
		Message: message,
		Details: map[string]interface{}{
			"field": field,
		},
	}
}

// UnauthorizedError creates an unauthorized error
func UnauthorizedError(message string) *DomainError {
	return &DomainError{
		Err:     ErrUnauthorized,
		Code:    "UNAUTHORIZED",
		Message: message,
	}
}

// InternalError creates an internal error
func InternalError(message string, err error) *DomainError {
	de := &DomainError{
		Err:     ErrInternal,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if err != nil {
		de.Details = map[string]interface{}{
			"cause": err.Error(),
		}
	}
	return de
}

// ConflictError creates a conflict error
func ConflictError(resource, reason string) *DomainError {
	return &DomainError{
		Err:     ErrConflict,
		Code:    "CONFLICT",
		Message: fmt.Sprintf("conflict with %s: %s", resource, reason),
	}
}

// ProviderError creates a retryable upstream-gateway error
func ProviderError(provider string, err error) *DomainError {
	de := &DomainError{
		Err:       ErrServiceUnavailable,
		Code:      "PROVIDER_UNAVAILABLE",
		Message:   fmt.Sprintf("%s gateway is temporarily unavailable", provider),
		Retryable: true,
	}
	if err != nil {
		de.Details = map[string]interface{}{
			"cause": err.Error(),
		}
	}
	return de
}

// NotSettledError creates the fail-closed verification verdict
func NotSettledError(provider, orderID string) *DomainError {
	return &DomainError{
		Err:     ErrNotSettled,
		Code:    "NOT_SETTLED",
		Message: "payment not settled",
		Details: map[string]interface{}{
			"provider": provider,
			"order_id": orderID,
		},
	}
}

// DeliveryError creates a retryable fulfillment error
func DeliveryError(kind string, err error) *DomainError {
	de := &DomainError{
		Err:       ErrDeliveryFailed,
		Code:      "DELIVERY_FAILED",
		Message:   fmt.Sprintf("%s delivery failed", kind),
		Retryable: true,
	}
	if err != nil {
		de.Details = map[string]interface{}{
			"cause": err.Error(),
		}
	}
	return de
}

// SelfReferralError rejects a user attaching to themselves
func SelfReferralError() *DomainError {
	return &DomainError{
		Err:     ErrSelfReferral,
		Code:    "SELF_REFERRAL",
		Message: "cannot use your own referral link",
	}
}

// InsufficientFundsError creates a balance rejection
func InsufficientFundsError(message string) *DomainError {
	return &DomainError{
		Err:     ErrInsufficientFunds,
		Code:    "INSUFFICIENT_FUNDS",
		Message: message,
	}
}

// Error helpers for common patterns

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput checks if an error is an invalid input error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsUnauthorized checks if an error is an unauthorized error
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsNotSettled checks if an error is the not-settled verdict
func IsNotSettled(err error) bool {
	return errors.Is(err, ErrNotSettled)
}

// IsRetryable reports whether a retry decorator should re-attempt
func IsRetryable(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from a domain error
func GetErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return "UNKNOWN_ERROR"
}

// GetErrorDetails extracts details from a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
