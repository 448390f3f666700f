// Package http exposes the household ledger as a JSON API.
//
// This file implements utilities for parsing and validating request bodies.
// Every write endpoint accepts either a JSON object or a form-encoded body
// with the same field names.
package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"cassa/internal/core"
	"cassa/internal/ledger"
)

// maxBody bounds request bodies; snapshot imports are the largest.
const maxBody = 8 << 20

// OperatorHeader names the person entering a record when the body does not.
const OperatorHeader = "X-Operator"

// RequestBodyParser handles different content types for request body parsing.
type RequestBodyParser struct {
	body        []byte
	contentType string
	operator    string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the body once and keeps it for later parsing.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
		operator:    r.Header.Get(OperatorHeader),
	}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}
	if len(strings.TrimSpace(string(p.body))) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if trimmed := strings.TrimSpace(string(p.body)); trimmed[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a trimmed, sanitised string value from the parsed data.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// GetRaw returns the raw body bytes.
func (p *RequestBodyParser) GetRaw() []byte {
	return p.body
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// Amount parses a required positive amount.
func (p *RequestBodyParser) Amount(key string) (core.Amount, error) {
	a, err := core.ParseAmount(p.Get(key))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return a, nil
}

// OptionalAmount parses an amount that may be absent or zero.
func (p *RequestBodyParser) OptionalAmount(key string) (core.Amount, error) {
	v := p.Get(key)
	if v == "" || v == "0" {
		return 0, nil
	}
	return p.Amount(key)
}

// User parses a household member ID.
func (p *RequestBodyParser) User(key string) (core.UserID, error) {
	u := core.UserID(p.Get(key))
	if err := u.Validate(); err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	return u, nil
}

// Meta collects the fields every record carries. The date defaults to today
// and the operator to the X-Operator header.
func (p *RequestBodyParser) Meta() (ledger.Meta, error) {
	m := ledger.Meta{
		Date:     core.Today(),
		Operator: p.Operator(),
		Note:     p.Get("note"),
	}
	if v := p.Get("date"); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return ledger.Meta{}, err
		}
		m.Date = d
	}
	return m, nil
}

// Operator is the "operator" field, or the X-Operator header without one.
func (p *RequestBodyParser) Operator() string {
	if op := p.Get("operator"); op != "" {
		return op
	}
	return sanitizeInput(p.operator)
}

// stringValue converts a decoded JSON value to string.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
