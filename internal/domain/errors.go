package domain

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is against the typed errors below.
var (
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
)

// Machine-readable error codes surfaced by the API and CLI.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeConfiguration = "CONFIGURATION_ERROR"
)

// ValidationError reports malformed or out-of-domain input.
// It is never silently corrected.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ConfigurationError reports an unknown state or a malformed rule set.
// It is fatal where detected and never retried.
type ConfigurationError struct {
	State   StateCode
	Field   string
	Message string
}

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(state StateCode, field, message string) *ConfigurationError {
	return &ConfigurationError{State: state, Field: field, Message: message}
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.State != "" && e.Field != "":
		return fmt.Sprintf("configuration error: state %s: %s: %s", e.State, e.Field, e.Message)
	case e.State != "":
		return fmt.Sprintf("configuration error: state %s: %s", e.State, e.Message)
	default:
		return "configuration error: " + e.Message
	}
}

// Is lets errors.Is(err, ErrConfiguration) match.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// ErrorCode maps an error to its machine-readable code, or "" for other errors.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrConfiguration):
		return CodeConfiguration
	default:
		return ""
	}
}
