// Package errors maps agent errors to HTTP error responses for the admin API.
package errors

import (
	"context"
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/devrev/hvac-voice-agent/internal/resilience"
	"github.com/devrev/hvac-voice-agent/internal/session"
	"github.com/devrev/hvac-voice-agent/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrorCode represents application-specific error codes.
type ErrorCode string

const (
	// General errors
	ErrorCodeUnknown        ErrorCode = "UNKNOWN"
	ErrorCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrorCodeInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrorCodeServiceDown    ErrorCode = "SERVICE_UNAVAILABLE"
	ErrorCodeTimeout        ErrorCode = "TIMEOUT"
	ErrorCodeRateLimited    ErrorCode = "RATE_LIMITED"

	// Call errors
	ErrorCodeCallNotFound        ErrorCode = "CALL_NOT_FOUND"
	ErrorCodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	ErrorCodeSessionBusy         ErrorCode = "SESSION_BUSY"
	ErrorCodeAppointmentNotFound ErrorCode = "APPOINTMENT_NOT_FOUND"

	// Auth errors
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrorCodeForbidden    ErrorCode = "FORBIDDEN"
)

// ErrorResponse represents the standard error response format.
type ErrorResponse struct {
	Status    string    `json:"status"`
	ErrorCode ErrorCode `json:"error_code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
}

// ValidationError is a client mistake in a request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Invalid returns a ValidationError.
func Invalid(message string) error {
	return &ValidationError{Message: message}
}

// Handler provides error handling functionality.
type Handler struct {
	logger *zap.Logger
}

// NewHandler creates a new error handler.
func NewHandler(logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		logger: logger,
	}
}

// HandleError processes an error and writes an appropriate HTTP response.
// resource names what was being looked up, for not found errors.
func (h *Handler) HandleError(w http.ResponseWriter, r *http.Request, resource string, err error) {
	statusCode, errorCode := Classify(resource, err)
	message := err.Error()
	if statusCode == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
		message = "internal server error"
	}
	h.WriteErrorResponse(w, statusCode, errorCode, message, r.Header.Get("X-Request-ID"))
}

// Classify maps an error to an HTTP status code and error code.
func Classify(resource string, err error) (int, ErrorCode) {
	var validation *ValidationError
	switch {
	case err == nil:
		return http.StatusOK, ErrorCodeUnknown
	case errors.As(err, &validation):
		return http.StatusBadRequest, ErrorCodeInvalidRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, notFoundCode(resource)
	case errors.Is(err, session.ErrLockTimeout):
		return http.StatusConflict, ErrorCodeSessionBusy
	case errors.Is(err, resilience.ErrUnavailable):
		return http.StatusServiceUnavailable, ErrorCodeServiceDown
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorCodeTimeout
	default:
		return http.StatusInternalServerError, ErrorCodeInternalError
	}
}

func notFoundCode(resource string) ErrorCode {
	switch resource {
	case "call":
		return ErrorCodeCallNotFound
	case "session":
		return ErrorCodeSessionNotFound
	case "appointment":
		return ErrorCodeAppointmentNotFound
	default:
		return ErrorCodeInvalidRequest
	}
}

// WriteErrorResponse writes a formatted error response to the HTTP response writer.
func (h *Handler) WriteErrorResponse(w http.ResponseWriter, statusCode int, errorCode ErrorCode, message string, requestID string) {
	h.logger.Warn("HTTP error response",
		zap.Int("status_code", statusCode),
		zap.String("error_code", string(errorCode)),
		zap.String("message", message),
		zap.String("request_id", requestID),
	)

	resp := ErrorResponse{
		Status:    "error",
		ErrorCode: errorCode,
		Message:   message,
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode error response", zap.Error(err))
	}
}

// WriteValidationError writes a validation error response.
func (h *Handler) WriteValidationError(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusBadRequest, ErrorCodeInvalidRequest, message, requestID)
}

// WriteUnauthorized writes an authentication failure response.
func (h *Handler) WriteUnauthorized(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusUnauthorized, ErrorCodeUnauthorized, message, requestID)
}

// WriteForbidden writes an authorization failure response.
func (h *Handler) WriteForbidden(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusForbidden, ErrorCodeForbidden, message, requestID)
}

// WriteServiceUnavailable writes a service unavailable response.
func (h *Handler) WriteServiceUnavailable(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusServiceUnavailable, ErrorCodeServiceDown, message, requestID)
}

// WriteRateLimitedError writes a rate limit exceeded response.
func (h *Handler) WriteRateLimitedError(w http.ResponseWriter, requestID string) {
	h.WriteErrorResponse(w, http.StatusTooManyRequests, ErrorCodeRateLimited, "rate limit exceeded", requestID)
}
