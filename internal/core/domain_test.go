package core

import (
	"errors"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2024-03-05 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != "2024-03-05" || d.MonthKey() != "2024-03" {
		t.Fatalf("unexpected date %s (%s)", d, d.MonthKey())
	}
	for _, bad := range []string{"", "2024-13-01", "05/03/2024", "2024-3-5"} {
		if _, err := ParseDate(bad); !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("%q expected ErrInvalidDate, got %v", bad, err)
		}
	}
}

func TestDateText(t *testing.T) {
	var d Date
	if err := d.UnmarshalText([]byte("2024-01-31")); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !d.Equal(NewDate(2024, 1, 31)) {
		t.Fatalf("got %s", d)
	}
	b, _ := d.MarshalText()
	if string(b) != "2024-01-31" {
		t.Fatalf("marshal got %q", b)
	}
}

func TestEnumsValidate(t *testing.T) {
	for _, u := range Users() {
		if err := u.Validate(); err != nil {
			t.Fatalf("%s: %v", u, err)
		}
	}
	if err := UserID("userC").Validate(); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
	if UserA.Other() != UserB || UserB.Other() != UserA {
		t.Fatalf("Other() mismatch")
	}
	for _, c := range AssetClasses() {
		if err := c.Validate(); err != nil {
			t.Fatalf("%s: %v", c, err)
		}
	}
	if err := AssetClass("crypto").Validate(); !errors.Is(err, ErrUnknownAssetClass) {
		t.Fatalf("expected ErrUnknownAssetClass, got %v", err)
	}
	for _, c := range Categories() {
		if err := c.Validate(); err != nil {
			t.Fatalf("%s: %v", c, err)
		}
	}
	if err := Category("travel").Validate(); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestBreakdownValidate(t *testing.T) {
	good := Breakdown{Food: 300, Shopping: 200}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if good.Total() != 500 {
		t.Fatalf("total got %d", good.Total())
	}
	if err := (Breakdown{}).Validate(); !errors.Is(err, ErrEmptyExpense) {
		t.Fatalf("expected ErrEmptyExpense, got %v", err)
	}
	if err := (Breakdown{Food: 10, Other: -1}).Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
