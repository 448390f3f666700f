package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Rate is an assumed return percentage for a joint investment bucket.
// A Rate of 20 means the bucket is estimated to be worth 120% of its principal.
type Rate struct {
	decimal.Decimal
}

// NewRate builds a rate from a float percentage, for tests and defaults.
func NewRate(percent float64) Rate { return Rate{decimal.NewFromFloat(percent)} }

// ParseRate parses a percentage such as "20", "3.5" or "-12,5".
func ParseRate(s string) (Rate, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return Rate{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Rate{}, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}
	r := Rate{d}
	if err := r.Validate(); err != nil {
		return Rate{}, err
	}
	return r, nil
}

// Validate rejects rates that would make the value factor zero or negative.
func (r Rate) Validate() error {
	if !r.Factor().IsPositive() {
		return fmt.Errorf("%w: %s%% leaves nothing of the principal", ErrInvalidRate, r.String())
	}
	return nil
}

// Factor returns 1 + r/100.
func (r Rate) Factor() decimal.Decimal {
	return decimal.NewFromInt(1).Add(r.Decimal.Div(hundred))
}

// Equal compares rates by value, so 20 and 20.0 are the same rate.
func (r Rate) Equal(o Rate) bool { return r.Decimal.Equal(o.Decimal) }

// String renders the percentage without trailing zeros.
func (r Rate) String() string { return r.Decimal.String() }

// EstimatedValue returns principal * (1 + r/100), truncated toward zero.
func EstimatedValue(principal Amount, r Rate) Amount {
	return AmountFromDecimal(principal.Decimal().Mul(r.Factor()))
}

// PrincipalFor returns the part of a cash amount realised from a bucket
// that counts as principal: cash / (1 + r/100), truncated toward zero.
// The remainder is the realised gain.
func PrincipalFor(cash Amount, r Rate) (Amount, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	return AmountFromDecimal(cash.Decimal().Div(r.Factor())), nil
}
