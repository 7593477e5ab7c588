// Package errors provides the error taxonomy for the chain explorer.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/chain-explorer/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryTransient represents transient upstream errors (timeouts,
	// disconnects) that resolve on retry
	CategoryTransient ErrorCategory = "transient"
	// CategoryMissingData represents data not yet visible on the queried node
	CategoryMissingData ErrorCategory = "missing_data"
	// CategoryDecode represents malformed upstream responses or fields
	CategoryDecode ErrorCategory = "decode"
	// CategoryDatabase represents store errors other than the accepted
	// duplicate-insert no-op
	CategoryDatabase ErrorCategory = "database"
	// CategoryValidation represents invalid caller input
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents missing resources on the query surface
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents state-machine violations (e.g. an illegal
	// logo transition or a double verification)
	CategoryConflict ErrorCategory = "conflict"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewInvalidAddressError creates an invalid address error
func NewInvalidAddressError(address string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_ADDRESS",
		Message:    fmt.Sprintf("invalid address format: %s", address),
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "CONFLICT",
		Message:    message,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewUpstreamError creates a transient upstream error
func NewUpstreamError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransient,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("upstream error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// GetCategory extracts the category from an error, walking the wrap chain.
// Unrecognized errors default to CategoryTransient: adapter failures are
// retried, never fatal.
func GetCategory(err error) ErrorCategory {
	var categorized *CategorizedError
	if errors.As(err, &categorized) {
		return categorized.Category
	}
	return CategoryTransient
}

// HTTPStatus extracts a status code from an error for API responses
func HTTPStatus(err error) int {
	var categorized *CategorizedError
	if errors.As(err, &categorized) {
		return categorized.StatusCode
	}
	return http.StatusInternalServerError
}
