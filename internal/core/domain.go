package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	UserA UserID = "userA"
	UserB UserID = "userB"
)

const (
	Stock   AssetClass = "stock"
	Fund    AssetClass = "fund"
	Deposit AssetClass = "deposit"
	Other   AssetClass = "other"
)

const (
	Food     Category = "food"
	Shopping Category = "shopping"
	Fixed    Category = "fixed"
	Misc     Category = "other"
)

// DateFormat is the calendar layout used on the wire and in the log.
const DateFormat = "2006-01-02"

type (
	// UserID identifies one of the two household members.
	UserID string

	// AssetClass names a joint investment bucket.
	AssetClass string

	// Category classifies spending.
	Category string

	Date struct {
		time.Time
	}

	// Breakdown is the per-category split of a personal expense.
	Breakdown struct {
		Food     Amount
		Shopping Amount
		Fixed    Amount
		Other    Amount
	}
)

// Users lists the household members in display order.
func Users() []UserID { return []UserID{UserA, UserB} }

// AssetClasses lists the joint investment buckets in display order.
func AssetClasses() []AssetClass { return []AssetClass{Stock, Fund, Deposit, Other} }

// Categories lists the spending categories in display order.
func Categories() []Category { return []Category{Food, Shopping, Fixed, Misc} }

func (u UserID) Validate() error {
	switch u {
	case UserA, UserB:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownUser, string(u))
}

// Other returns the other household member.
func (u UserID) Other() UserID {
	if u == UserA {
		return UserB
	}
	return UserA
}

func (c AssetClass) Validate() error {
	switch c {
	case Stock, Fund, Deposit, Other:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownAssetClass, string(c))
}

func (c Category) Validate() error {
	switch c {
	case Food, Shopping, Fixed, Misc:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownCategory, string(c))
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateFormat, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current UTC calendar day.
func Today() Date {
	y, m, d := time.Now().UTC().Date()
	return NewDate(y, int(m), d)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateFormat)
}

// MonthKey returns the YYYY-MM bucket the date falls in.
func (d Date) MonthKey() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01")
}

// Equal compares calendar days.
func (d Date) Equal(o Date) bool { return d.String() == o.String() }

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	p, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = p
	return nil
}

// MarshalJSON writes the date as a "YYYY-MM-DD" string. Without it the
// embedded time.Time would emit a full timestamp.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(b))
	}
	return d.UnmarshalText([]byte(s))
}

// Total sums the four sub-amounts.
func (b Breakdown) Total() Amount { return b.Food + b.Shopping + b.Fixed + b.Other }

// Validate rejects negative sub-amounts and an all-zero breakdown.
func (b Breakdown) Validate() error {
	for _, v := range []Amount{b.Food, b.Shopping, b.Fixed, b.Other} {
		if v < 0 {
			return errors.Join(ErrInvalidAmount, errors.New("category amounts cannot be negative"))
		}
		if v > MaxAmount {
			return ErrInvalidAmount
		}
	}
	if b.Total() == 0 {
		return ErrEmptyExpense
	}
	return nil
}
