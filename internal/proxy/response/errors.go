package response

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/body-consumer/internal/body"
)

// Error codes that are not consumption outcomes
const (
	CodeBodyTooLarge = "body_too_large"
	CodeUnknownKind  = body.CodeUnknownKind
	CodeBadRequest   = "bad_request"
	CodeUnauthorized = "unauthorized"
	CodeCanceled     = "canceled"
	CodeStorage      = "storage_error"
)

// RequestIDHeader carries the request id on requests and responses
const RequestIDHeader = "X-Request-ID"

// ErrorBody is the JSON error document
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorWriter handles JSON error responses
type ErrorWriter struct {
	logger *logrus.Entry
}

// NewErrorWriter creates a new error response writer
func NewErrorWriter(logger *logrus.Entry) *ErrorWriter {
	return &ErrorWriter{
		logger: logger,
	}
}

// StatusFor maps a consumption or transfer error to an HTTP status and code
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, body.ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge, CodeBodyTooLarge
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, CodeCanceled
	}

	code := body.ErrorCode(err)
	switch code {
	case body.CodeDisturbed:
		return http.StatusConflict, code
	case body.CodeInappropriateMIME:
		return http.StatusUnsupportedMediaType, code
	case body.CodeRuntimeFailure:
		return http.StatusRequestEntityTooLarge, code
	case body.CodeForeignException:
		return http.StatusUnprocessableEntity, code
	case body.CodeUnknownKind:
		return http.StatusBadRequest, code
	default:
		return http.StatusInternalServerError, code
	}
}

// WriteConsumeError writes the response for a failed consumption
func (e *ErrorWriter) WriteConsumeError(w http.ResponseWriter, err error, kind body.Kind) {
	statusCode, code := StatusFor(err)

	logEntry := e.logger.WithError(err).WithFields(logrus.Fields{
		"kind":        kind.String(),
		"error_code":  code,
		"status_code": statusCode,
	})
	if statusCode >= 500 {
		logEntry.Error("Body consumption failed")
	} else {
		logEntry.Warn("Body consumption rejected")
	}

	e.WriteError(w, statusCode, code, err.Error())
}

// WriteError writes a JSON error document with a custom code and message
func (e *ErrorWriter) WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	doc := ErrorBody{Error: ErrorDetail{
		Code:      code,
		Message:   message,
		RequestID: w.Header().Get(RequestIDHeader),
	}}
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		e.logger.WithError(err).Error("Failed to write error response")
	}
}
