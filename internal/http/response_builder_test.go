package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"cassa/internal/core"
	"cassa/internal/store"
)

func TestJSONResponseBuilder(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("X-Test", "1").
		Body(map[string]int{"revision": 3}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d", w.Code)
	}
	if w.Header().Get("Content-Type") != "application/json" || w.Header().Get("X-Test") != "1" {
		t.Errorf("headers = %v", w.Header())
	}
	var body map[string]int
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["revision"] != 3 {
		t.Errorf("body = %s, %v", w.Body.String(), err)
	}
}

func TestJSONResponseBuilder_NoBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"shortfall", fmt.Errorf("sell: %w", &core.ShortfallError{Account: "jointCash", Available: 1, Required: 2}), http.StatusUnprocessableEntity, "insufficient_balance"},
		{"missing entry", core.ErrEntryNotFound, http.StatusNotFound, "not_found"},
		{"missing snapshot", store.ErrNotFound, http.StatusNotFound, "not_found"},
		{"settled", core.ErrSettledAdvance, http.StatusConflict, "conflict"},
		{"not advance", core.ErrNotAdvance, http.StatusConflict, "conflict"},
		{"malformed", core.ErrMalformedSnapshot, http.StatusBadRequest, "malformed_snapshot"},
		{"too large", &http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge, "too_large"},
		{"amount", fmt.Errorf("amount: %w", core.ErrInvalidAmount), http.StatusBadRequest, "invalid_input"},
		{"category", core.ErrUnknownCategory, http.StatusBadRequest, "invalid_input"},
		{"destination", fmt.Errorf("transfer: %w", core.ErrUnknownDestination), http.StatusBadRequest, "invalid_input"},
		{"overflow", fmt.Errorf("income E001: %w", core.ErrBalanceOverflow), http.StatusBadRequest, "invalid_input"},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			FromError(tt.err).Write(w)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			var body errorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Code != tt.code {
				t.Errorf("code = %q, want %q", body.Code, tt.code)
			}
			if tt.status == http.StatusInternalServerError && body.Error != "internal error" {
				t.Errorf("internal error leaked: %q", body.Error)
			}
		})
	}
}
