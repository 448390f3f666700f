package ledger

import (
	"fmt"
	"strings"

	"cassa/internal/core"
	"cassa/internal/id"
)

// Policy decides what happens when an operation would overdraw a balance.
type Policy int

const (
	// Advisory performs the mutation and reports the shortfall as a warning.
	Advisory Policy = iota
	// Strict refuses the mutation with a *core.ShortfallError.
	Strict
)

// ParsePolicy reads "advisory" or "strict". Empty means Advisory.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "advisory":
		return Advisory, nil
	case "strict":
		return Strict, nil
	}
	return Advisory, fmt.Errorf("unknown ledger policy %q", s)
}

func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "advisory"
}

// Book is the unit the engine works on: the balance sheet plus the log it was
// derived from.
type Book struct {
	Accounts Accounts
	Log      Log
}

// NewBook returns an empty book.
func NewBook() Book { return Book{Accounts: NewAccounts()} }

// Equal compares balances, rates and every log entry.
func (b Book) Equal(o Book) bool {
	return b.Accounts.Equal(o.Accounts) && b.Log.Equal(o.Log)
}

// Outcome is the result of a successful operation. Entry is nil for
// operations that did not append anything.
type Outcome struct {
	Book     Book
	Entry    Entry
	Warnings []*core.ShortfallError
}

// Engine validates intents and turns them into log entries.
type Engine struct {
	policy Policy
	newID  func() string
}

type Option func(*Engine)

// WithIDs replaces the entry ID generator.
func WithIDs(f func() string) Option {
	return func(e *Engine) { e.newID = f }
}

func NewEngine(policy Policy, opts ...Option) *Engine {
	e := &Engine{policy: policy, newID: id.New}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Policy() Policy { return e.policy }

// Income credits amount to user.
func (e *Engine) Income(b Book, user core.UserID, amount core.Amount, m Meta) (Outcome, error) {
	if err := validate(m, amount, user.Validate); err != nil {
		return Outcome{}, err
	}
	return e.commit(b, Income{Meta: e.stamp(m), User: user, Amount: amount}, nil)
}

// Gain records a personal investment gain.
func (e *Engine) Gain(b Book, user core.UserID, amount core.Amount, m Meta) (Outcome, error) {
	if err := validate(m, amount, user.Validate); err != nil {
		return Outcome{}, err
	}
	return e.commit(b, Result{Meta: e.stamp(m), User: user, Amount: amount}, nil)
}

// Loss records a personal investment loss.
func (e *Engine) Loss(b Book, user core.UserID, amount core.Amount, m Meta) (Outcome, error) {
	if err := validate(m, amount, user.Validate); err != nil {
		return Outcome{}, err
	}
	short := shortfall(string(user), b.Accounts.Personal[user], amount)
	return e.commit(b, Result{Meta: e.stamp(m), User: user, Amount: amount, Loss: true}, short)
}

// Expense debits the breakdown total from user.
func (e *Engine) Expense(b Book, user core.UserID, bd core.Breakdown, m Meta) (Outcome, error) {
	if err := bd.Validate(); err != nil {
		return Outcome{}, err
	}
	if err := validate(m, bd.Total(), user.Validate); err != nil {
		return Outcome{}, err
	}
	short := shortfall(string(user), b.Accounts.Personal[user], bd.Total())
	return e.commit(b, Expense{Meta: e.stamp(m), User: user, Breakdown: bd}, short)
}

// Transfer moves amount from a user's personal cash into a joint bucket.
func (e *Engine) Transfer(b Book, from core.UserID, to Destination, amount core.Amount, m Meta) (Outcome, error) {
	if err := validate(m, amount, from.Validate, to.Validate); err != nil {
		return Outcome{}, err
	}
	short := shortfall(string(from), b.Accounts.Personal[from], amount)
	return e.commit(b, Transfer{Meta: e.stamp(m), From: from, To: to, Amount: amount}, short)
}

// JointSpend records a joint expense. An empty advancedBy pays it from joint
// cash; otherwise the user advanced it and joint cash is left alone.
func (e *Engine) JointSpend(b Book, amount core.Amount, cat core.Category, advancedBy core.UserID, m Meta) (Outcome, error) {
	checks := []func() error{cat.Validate}
	if advancedBy != "" {
		checks = append(checks, advancedBy.Validate)
	}
	if err := validate(m, amount, checks...); err != nil {
		return Outcome{}, err
	}
	var short *core.ShortfallError
	if advancedBy == "" {
		short = shortfall(string(BucketCash), b.Accounts.JointCash, amount)
	}
	return e.commit(b, JointSpend{Meta: e.stamp(m), Amount: amount, Category: cat, AdvancedBy: advancedBy}, short)
}

// Buy moves joint cash into the principal of class.
func (e *Engine) Buy(b Book, class core.AssetClass, amount core.Amount, m Meta) (Outcome, error) {
	if err := validate(m, amount, class.Validate); err != nil {
		return Outcome{}, err
	}
	short := shortfall(string(BucketCash), b.Accounts.JointCash, amount)
	return e.commit(b, Buy{Meta: e.stamp(m), Class: class, Amount: amount}, short)
}

// Sell realises amount of cash from class. Only the principal equivalent
// amount/(1+rate/100) leaves the principal bucket; the rest is gain. The
// deduction and the rate are stored on the entry.
func (e *Engine) Sell(b Book, class core.AssetClass, amount core.Amount, m Meta) (Outcome, error) {
	if err := validate(m, amount, class.Validate); err != nil {
		return Outcome{}, err
	}
	rate := b.Accounts.Rate(class)
	deducted, err := core.PrincipalFor(amount, rate)
	if err != nil {
		return Outcome{}, err
	}
	short := shortfall(string(BucketPrincipal)+"."+string(class), b.Accounts.EstimatedValue(class), amount)
	return e.commit(b, Sell{
		Meta:              e.stamp(m),
		Class:             class,
		Amount:            amount,
		PrincipalDeducted: deducted,
		Rate:              rate,
	}, short)
}

// SetReturnRate changes the rate assumed for class. Entries already in the
// log keep the figures they were recorded with.
func (e *Engine) SetReturnRate(b Book, class core.AssetClass, rate core.Rate) (Outcome, error) {
	if err := class.Validate(); err != nil {
		return Outcome{}, err
	}
	if err := rate.Validate(); err != nil {
		return Outcome{}, err
	}
	acc := b.Accounts.Clone()
	acc.Rates[class] = rate
	return Outcome{Book: Book{Accounts: acc, Log: b.Log}}, nil
}

func (e *Engine) stamp(m Meta) Meta {
	if m.ID == "" {
		m.ID = e.newID()
	}
	m.Operator = strings.TrimSpace(m.Operator)
	m.Note = strings.TrimSpace(m.Note)
	return m
}

// commit applies entry, enforcing the policy on short.
func (e *Engine) commit(b Book, entry Entry, short *core.ShortfallError) (Outcome, error) {
	var warnings []*core.ShortfallError
	if short != nil {
		if e.policy == Strict {
			return Outcome{}, short
		}
		warnings = append(warnings, short)
	}
	acc, err := Apply(b.Accounts, entry)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Book:     Book{Accounts: acc, Log: b.Log.Append(entry)},
		Entry:    entry,
		Warnings: warnings,
	}, nil
}

func validate(m Meta, amount core.Amount, checks ...func() error) error {
	if err := amount.Validate(); err != nil {
		return err
	}
	if err := m.Date.Validate(); err != nil {
		return err
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func shortfall(account string, available, required core.Amount) *core.ShortfallError {
	if available >= required {
		return nil
	}
	return &core.ShortfallError{Account: account, Available: available, Required: required}
}
