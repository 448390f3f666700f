// Package ledger holds the household balance sheet, its transaction log and
// the engine that moves money between them.
//
// Every function in this package is pure: operations take a Book by value
// and hand back a new one. The caller owns the single live Book and decides
// when to persist it.
package ledger

import (
	"maps"

	"cassa/internal/core"
)

// Accounts is the balance sheet: personal cash per user, joint cash, joint
// investment principal per asset class and the assumed return rates used to
// value that principal.
type Accounts struct {
	Personal  map[core.UserID]core.Amount
	JointCash core.Amount
	Principal map[core.AssetClass]core.Amount
	Rates     map[core.AssetClass]core.Rate
}

// NewAccounts returns the all-zero balance sheet with every user and asset
// class present.
func NewAccounts() Accounts {
	a := Accounts{
		Personal:  make(map[core.UserID]core.Amount, 2),
		Principal: make(map[core.AssetClass]core.Amount, 4),
		Rates:     make(map[core.AssetClass]core.Rate, 4),
	}
	for _, u := range core.Users() {
		a.Personal[u] = 0
	}
	for _, c := range core.AssetClasses() {
		a.Principal[c] = 0
		a.Rates[c] = core.Rate{}
	}
	return a
}

// Clone returns a deep copy.
func (a Accounts) Clone() Accounts {
	c := NewAccounts()
	maps.Copy(c.Personal, a.Personal)
	maps.Copy(c.Principal, a.Principal)
	maps.Copy(c.Rates, a.Rates)
	c.JointCash = a.JointCash
	return c
}

// SameBalances compares every balance but ignores return rates.
func (a Accounts) SameBalances(o Accounts) bool {
	if a.JointCash != o.JointCash {
		return false
	}
	for _, u := range core.Users() {
		if a.Personal[u] != o.Personal[u] {
			return false
		}
	}
	for _, c := range core.AssetClasses() {
		if a.Principal[c] != o.Principal[c] {
			return false
		}
	}
	return true
}

// Equal compares balances and rates.
func (a Accounts) Equal(o Accounts) bool {
	if !a.SameBalances(o) {
		return false
	}
	for _, c := range core.AssetClasses() {
		if !a.Rates[c].Equal(o.Rates[c]) {
			return false
		}
	}
	return true
}

// Rate returns the return rate assumed for class.
func (a Accounts) Rate(class core.AssetClass) core.Rate { return a.Rates[class] }

// EstimatedValue values the principal of class at its current rate.
func (a Accounts) EstimatedValue(class core.AssetClass) core.Amount {
	return core.EstimatedValue(a.Principal[class], a.Rates[class])
}

// PersonalTotal sums both users' personal cash.
func (a Accounts) PersonalTotal() core.Amount {
	var t core.Amount
	for _, u := range core.Users() {
		t += a.Personal[u]
	}
	return t
}

// Overview is the headline view of the balance sheet.
type Overview struct {
	Principal  core.Amount
	Estimated  core.Amount
	Unrealized core.Amount
	JointTotal core.Amount
	NetWorth   core.Amount
}

// Totals computes the overview figures. Investments count at estimated value.
func Totals(a Accounts) Overview {
	var o Overview
	for _, c := range core.AssetClasses() {
		o.Principal += a.Principal[c]
		o.Estimated += a.EstimatedValue(c)
	}
	o.Unrealized = o.Estimated - o.Principal
	o.JointTotal = a.JointCash + o.Estimated
	o.NetWorth = a.PersonalTotal() + o.JointTotal
	return o
}
