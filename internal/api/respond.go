package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/opensource-finance/pensionrules/internal/repository"
)

// Error codes beyond the domain's validation and configuration codes.
const (
	CodeMissingTenant = "MISSING_TENANT"
	CodeInvalidTenant = "INVALID_TENANT"
	CodeNotFound      = "NOT_FOUND"
	CodeUnavailable   = "UNAVAILABLE"
	CodeInternal      = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps an error to its HTTP status. Validation errors are 400,
// configuration errors 422, missing records 404.
func writeError(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	var configuration *domain.ConfigurationError

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  domain.CodeValidation,
			Field: validation.Field,
		})
	case errors.As(err, &configuration):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: err.Error(),
			Code:  domain.CodeConfiguration,
			Field: configuration.Field,
		})
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error: "not found",
			Code:  CodeNotFound,
		})
	case errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  domain.CodeValidation,
		})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  CodeInternal,
		})
	}
}

func writeUnavailable(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
		Error: what + " not available",
		Code:  CodeUnavailable,
	})
}

func writeNotFound(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{
		Error: what + " not found",
		Code:  CodeNotFound,
	})
}

// decodeJSON reads a request body into v.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewValidationError("", "request body is required")
		}
		return domain.NewValidationError("", "invalid JSON request body")
	}
	return nil
}

// parseDate parses a YYYY-MM-DD field.
func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, domain.NewValidationError(field, fmt.Sprintf("expected YYYY-MM-DD, got %q", value))
	}
	return t, nil
}

// parseAsOf parses an optional as-of date, defaulting to today in UTC.
func parseAsOf(value string) (time.Time, error) {
	if value == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return parseDate("asOf", value)
}
