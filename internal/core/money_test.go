package core

import (
	"errors"
	"math"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out Amount
		ok  bool
	}{
		{"1", 1, true},
		{"1.0", 1, true},
		{"12.9", 12, true}, // truncated, never rounded
		{"12,7", 12, true},
		{"1,234", 1234, true},
		{"1,234,567", 1234567, true},
		{"1,234.99", 1234, true},
		{" 250 ", 250, true},
		{"0.5", 0, false},
		{"-1", 0, false},
		{"+1", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"99999999999999999999999", 0, false},
		{"1000000000000000", MaxAmount, true},
		{"1000000000000001", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
			}
		}
	}
}

func TestAmountAdd(t *testing.T) {
	cases := []struct {
		a, b Amount
		out  Amount
		ok   bool
	}{
		{5, 7, 12, true},
		{5, -7, -2, true},
		{math.MaxInt64 - 1, 1, math.MaxInt64, true},
		{math.MaxInt64, 1, 0, false},
		{math.MinInt64 + 1, -1, math.MinInt64, true},
		{math.MinInt64, -1, 0, false},
	}
	for _, tc := range cases {
		got, err := tc.a.Add(tc.b)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%d + %d expected %d, got %d (err=%v)", tc.a, tc.b, tc.out, got, err)
			}
			continue
		}
		if !errors.Is(err, ErrBalanceOverflow) {
			t.Fatalf("%d + %d expected ErrBalanceOverflow, got %v", tc.a, tc.b, err)
		}
		if got != tc.a {
			t.Fatalf("%d + %d changed the balance to %d", tc.a, tc.b, got)
		}
	}
}

func TestFormat(t *testing.T) {
	cases := []struct {
		in  Amount
		out string
	}{
		{0, "$0"},
		{7, "$7"},
		{1000, "$1,000"},
		{1234567, "$1,234,567"},
		{-500, "-$500"},
		{-12000, "-$12,000"},
	}
	for _, tc := range cases {
		if got := Format(tc.in); got != tc.out {
			t.Fatalf("Format(%d) = %q, want %q", tc.in, got, tc.out)
		}
	}
}

func TestSetCurrencyGlyph(t *testing.T) {
	t.Cleanup(func() { SetCurrencyGlyph("") })

	SetCurrencyGlyph("NT$")
	if got := Format(2500); got != "NT$2,500" {
		t.Fatalf("got %q", got)
	}
	SetCurrencyGlyph("")
	if got := Format(2500); got != "$2,500" {
		t.Fatalf("glyph not restored: %q", got)
	}
}

func TestShortfallErrorIs(t *testing.T) {
	var err error = &ShortfallError{Account: "userA", Available: 100, Required: 150}
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ShortfallError to match ErrInsufficientBalance")
	}
	if got := err.Error(); got != "insufficient balance in userA: have $100, need $150" {
		t.Fatalf("unexpected message %q", got)
	}
}
