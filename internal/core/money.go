// Package core provides money parsing and handling utilities.
//
// All balances are whole currency units: there is no sub-unit. Inputs that
// carry a fraction are truncated toward zero before they reach a balance.
package core

import (
	"strings"
	"sync"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Amount is a signed number of whole currency units.
type Amount int64

var (
	fmtMu     sync.RWMutex
	formatter = money.NewFormatter(0, ".", ",", "$", "$1")
)

// SetCurrencyGlyph changes the symbol used by Format. An empty glyph restores "$".
func SetCurrencyGlyph(glyph string) {
	glyph = strings.TrimSpace(glyph)
	if glyph == "" {
		glyph = "$"
	}
	fmtMu.Lock()
	defer fmtMu.Unlock()
	formatter = money.NewFormatter(0, ".", ",", glyph, "$1")
}

// Format renders an amount with thousands separators and the currency glyph.
//
// Examples:
//
//	Format(1234567) -> "$1,234,567"
//	Format(-500)    -> "-$500"
func Format(a Amount) string {
	fmtMu.RLock()
	defer fmtMu.RUnlock()
	return formatter.Format(int64(a))
}

// String implements fmt.Stringer.
func (a Amount) String() string { return Format(a) }

// Validate reports ErrInvalidAmount unless 0 < a <= MaxAmount.
func (a Amount) Validate() error {
	if a <= 0 || a > MaxAmount {
		return ErrInvalidAmount
	}
	return nil
}

// MaxAmount is the largest amount a single entry may carry.
const MaxAmount Amount = 1_000_000_000_000_000

// Add returns a+b, or ErrBalanceOverflow when the sum does not fit an int64.
func (a Amount) Add(b Amount) (Amount, error) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return a, ErrBalanceOverflow
	}
	return s, nil
}

// Decimal returns the amount as a decimal for rate arithmetic.
func (a Amount) Decimal() decimal.Decimal { return decimal.NewFromInt(int64(a)) }

// AmountFromDecimal truncates d toward zero.
func AmountFromDecimal(d decimal.Decimal) Amount {
	return Amount(d.Truncate(0).IntPart())
}

// ParseAmount converts user input into a positive Amount.
//
// It accepts both dot (12.7) and comma (12,7) decimal separators as well as
// thousands separators written as "1,234" when they group exactly three
// digits. Fractions are truncated toward zero, so "12.9" is 12.
// Returns ErrInvalidAmount for empty, malformed, signed or non-positive input.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	s = normalizeSeparators(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if d.GreaterThan(MaxAmount.Decimal()) {
		return 0, ErrInvalidAmount
	}
	a := AmountFromDecimal(d)
	if err := a.Validate(); err != nil {
		return 0, err
	}
	return a, nil
}

// normalizeSeparators turns "1,234,567" into "1234567" and "12,5" into "12.5".
func normalizeSeparators(s string) string {
	if !strings.Contains(s, ",") {
		return s
	}
	parts := strings.Split(s, ",")
	grouped := len(parts) > 1 && !strings.Contains(s, ".")
	for _, p := range parts[1:] {
		if len(p) != 3 {
			grouped = false
			break
		}
	}
	if grouped || strings.Contains(s, ".") {
		return strings.ReplaceAll(s, ",", "")
	}
	return strings.ReplaceAll(s, ",", ".")
}
