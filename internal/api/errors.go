package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/chain-explorer/internal/errors"
	"github.com/chain-explorer/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// Common error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// respondWithError maps a domain error onto an HTTP response.
func respondWithError(w http.ResponseWriter, err error) {
	if serviceErr, ok := err.(*types.ServiceError); ok {
		switch serviceErr.Code {
		case "INVALID_ADDRESS", "INVALID_ADDRESS_FORMAT", "INVALID_PARAMETER":
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, serviceErr.Message, serviceErr.Details)
		default:
			respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred", nil)
		}
		return
	}

	status := apperrors.HTTPStatus(err)
	switch apperrors.GetCategory(err) {
	case apperrors.CategoryValidation:
		respondError(w, status, ErrCodeInvalidInput, err.Error(), nil)
	case apperrors.CategoryNotFound:
		respondError(w, status, ErrCodeNotFound, err.Error(), nil)
	case apperrors.CategoryConflict:
		respondError(w, status, ErrCodeConflict, err.Error(), nil)
	case apperrors.CategoryMissingData:
		respondError(w, status, ErrCodeServiceUnavailable, "Upstream temporarily unavailable", nil)
	default:
		respondError(w, status, ErrCodeInternalError, "An internal error occurred", nil)
	}
}
