// Package apierr defines the error taxonomy exposed on the wire and the
// single mapping from Go errors to the OpenAI-compatible error envelope.
package apierr

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
)

const (
	TypeInvalidRequest = "invalid_request_error"
	TypeRateLimit      = "rate_limit_error"
	TypeAPI            = "api_error"
	TypeInternal       = "internal_error"
)

// Error is a request-terminating error with an OpenAI-compatible shape.
type Error struct {
	Status     int
	Message    string
	Type       string
	Param      string
	Code       string
	RetryAfter int // seconds, only set on rate limit errors
}

func (e *Error) Error() string {
	return e.Message
}

func Validation(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: message, Type: TypeInvalidRequest}
}

// ValidationWithCode is used where the upstream shape carries a machine
// readable code alongside the message, e.g. "model_not_supported".
func ValidationWithCode(message, code string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: message, Type: TypeInvalidRequest, Code: code}
}

func Authentication(message string) *Error {
	if message == "" {
		message = "Invalid or missing API key"
	}

	return &Error{
		Status:  http.StatusUnauthorized,
		Message: message,
		Type:    TypeInvalidRequest,
		Param:   "authorization",
		Code:    "invalid_api_key",
	}
}

func RateLimit(message string, retryAfter int) *Error {
	return &Error{
		Status:     http.StatusTooManyRequests,
		Message:    message,
		Type:       TypeRateLimit,
		Code:       "rate_limit_exceeded",
		RetryAfter: retryAfter,
	}
}

func ModelNotFound(model string) *Error {
	return &Error{
		Status:  http.StatusNotFound,
		Message: "The model '" + model + "' does not exist",
		Type:    TypeInvalidRequest,
		Param:   "model",
		Code:    "model_not_found",
	}
}

func API(message string, status int) *Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}

	return &Error{Status: status, Message: message, Type: TypeAPI, Code: "api_error"}
}

type wireError struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Param   *string `json:"param"`
	Code    *string `json:"code"`
}

type wireEnvelope struct {
	Error wireError `json:"error"`
}

// Write maps err to the uniform error envelope and writes it. Unknown errors
// become opaque 500s; internal details never reach the response body.
func Write(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = &Error{
			Status:  http.StatusInternalServerError,
			Message: "Internal Server Error",
			Type:    TypeInternal,
			Code:    TypeInternal,
		}
	}

	if logger != nil {
		logger.Error("Request error",
			"method", r.Method,
			"url", r.URL.String(),
			"status", apiErr.Status,
			"error", err.Error(),
		)
	}

	envelope := wireEnvelope{Error: wireError{
		Message: apiErr.Message,
		Type:    apiErr.Type,
		Param:   nullable(apiErr.Param),
		Code:    nullable(apiErr.Code),
	}}

	w.Header().Set("Content-Type", "application/json")
	if apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfter))
		w.Header().Set("X-RateLimit-Remaining", "0")
	}

	w.WriteHeader(apiErr.Status)

	if encodeErr := json.NewEncoder(w).Encode(envelope); encodeErr != nil && logger != nil {
		logger.Error("Failed to write error response", "error", encodeErr)
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
