// Package http exposes the budget service as a JSON API.
//
// This file implements the builder used by every handler to write JSON
// bodies and the mapping from service errors to status codes.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"several/internal/core"
	"several/internal/log"
	"several/internal/ocr"
	"several/internal/services"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	payload    any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Data sets the value encoded as the response body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.payload = v
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Write sends the built response. A nil payload writes no body.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.payload == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	body, err := json.Marshal(b.payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"internal","message":"failed to encode response"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(body, '\n'))
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code             string        `json:"code"`
	Message          string        `json:"message"`
	Field            string        `json:"field,omitempty"`
	FallbackStrategy core.Strategy `json:"fallbackStrategy,omitempty"`
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorResponse creates an error response with the given code and message.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Data(errorEnvelope{Error: ErrorBody{Code: code, Message: message}})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, "bad_request", message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, "not_found", message)
}

// InternalServerError creates a 500 response. Details stay in the logs.
func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal", "internal server error")
}

// errorResponseFor classifies err into a status code and error body.
func errorResponseFor(err error) (int, ErrorBody) {
	var (
		validation *services.ValidationError
		resolution *services.ResolutionError
		importErr  *services.ImportError
		reqErr     *requestError
	)

	switch {
	case errors.As(err, &reqErr):
		return reqErr.status, ErrorBody{Code: "bad_request", Message: reqErr.Error(), Field: reqErr.field}
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity, ErrorBody{Code: "validation", Message: validation.Err.Error(), Field: validation.Field}
	case errors.As(err, &resolution):
		return http.StatusConflict, ErrorBody{
			Code:             "no_eligible_budget",
			Message:          resolution.Error(),
			FallbackStrategy: resolution.FallbackStrategy(),
		}
	case errors.As(err, &importErr):
		return http.StatusBadRequest, ErrorBody{Code: "invalid_backup", Message: importErr.Err.Error()}
	case errors.Is(err, core.ErrBudgetNotFound), errors.Is(err, core.ErrExpenseNotFound):
		return http.StatusNotFound, ErrorBody{Code: "not_found", Message: err.Error()}
	case errors.Is(err, services.ErrNothingToUndo):
		return http.StatusConflict, ErrorBody{Code: "nothing_to_undo", Message: err.Error()}
	case errors.Is(err, services.ErrServiceClosed), errors.Is(err, ocr.ErrDisabled):
		return http.StatusServiceUnavailable, ErrorBody{Code: "unavailable", Message: err.Error()}
	case errors.Is(err, ocr.ErrEmptyImage):
		return http.StatusBadRequest, ErrorBody{Code: "bad_request", Message: err.Error(), Field: "image"}
	case errors.Is(err, ocr.ErrUnsupportedImage):
		return http.StatusUnsupportedMediaType, ErrorBody{Code: "unsupported_image", Message: err.Error(), Field: "image"}
	case errors.Is(err, ocr.ErrExtraction):
		return http.StatusBadGateway, ErrorBody{Code: "extraction_failed", Message: err.Error()}
	}
	return http.StatusInternalServerError, ErrorBody{Code: "internal", Message: "internal server error"}
}

// writeError logs err at a level matching its class and writes the response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponseFor(err)
	logger := log.FromContext(r.Context())

	switch {
	case status >= 500:
		logger.ErrorContext(r.Context(), "Request failed", log.NewFields().
			WithError(err, errorTypeFor(status)).
			WithHTTPResponse(status, 0, false).ToSlice()...)
	default:
		logger.DebugContext(r.Context(), "Request rejected", log.FieldError, err.Error(), log.FieldStatusCode, status)
	}

	NewJSONResponse().Status(status).Data(errorEnvelope{Error: body}).Write(w)
}

func errorTypeFor(status int) string {
	switch status {
	case http.StatusBadGateway:
		return log.ErrorTypeNetwork
	case http.StatusServiceUnavailable:
		return log.ErrorTypeConfiguration
	}
	return log.ErrorTypeInternal
}

// writeJSON is shorthand for a 200 response carrying v.
func writeJSON(w http.ResponseWriter, v any) {
	NewJSONResponse().Data(v).Write(w)
}
