package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"cassa/internal/core"
	"cassa/internal/store"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
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

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	data, err := json.Marshal(b.body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"response encoding failed"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n"))
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message, Code: code})
}

// FromError maps a domain error to its status code and error code.
func FromError(err error) *JSONResponseBuilder {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	return ErrorResponse(status, code, msg)
}

func classify(err error) (int, string) {
	var short *core.ShortfallError
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &short):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, core.ErrEntryNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrSettledAdvance), errors.Is(err, core.ErrNotAdvance):
		return http.StatusConflict, "conflict"
	case errors.Is(err, core.ErrMalformedSnapshot), errors.Is(err, core.ErrInconsistentLog):
		return http.StatusBadRequest, "malformed_snapshot"
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrEmptyExpense),
		errors.Is(err, core.ErrUnknownUser),
		errors.Is(err, core.ErrUnknownAssetClass),
		errors.Is(err, core.ErrUnknownCategory),
		errors.Is(err, core.ErrUnknownDestination),
		errors.Is(err, core.ErrBalanceOverflow),
		errors.Is(err, core.ErrInvalidRate):
		return http.StatusBadRequest, "invalid_input"
	}
	return http.StatusInternalServerError, "internal"
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, "invalid_input", message)
}
