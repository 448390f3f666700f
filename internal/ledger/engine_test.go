package ledger

import (
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cassa/internal/core"
)

func day(d int) Meta { return Meta{Date: core.NewDate(2025, 1, d), Operator: "alice"} }

func seqIDs() Option {
	n := 0
	return WithIDs(func() string {
		n++
		return fmt.Sprintf("E%03d", n)
	})
}

func newTestEngine(p Policy) *Engine { return NewEngine(p, seqIDs()) }

// seeded builds a book with money in every bucket.
func seeded(t *testing.T, e *Engine) Book {
	t.Helper()
	b := NewBook()
	steps := []func(Book) (Outcome, error){
		func(b Book) (Outcome, error) { return e.Income(b, core.UserA, 50000, day(1)) },
		func(b Book) (Outcome, error) { return e.Income(b, core.UserB, 30000, day(1)) },
		func(b Book) (Outcome, error) { return e.Transfer(b, core.UserA, ToCash(), 20000, day(2)) },
		func(b Book) (Outcome, error) { return e.Transfer(b, core.UserB, ToPrincipal(core.Stock), 10000, day(2)) },
	}
	for _, step := range steps {
		out, err := step(b)
		require.NoError(t, err)
		b = out.Book
	}
	out, err := e.SetReturnRate(b, core.Stock, core.NewRate(20))
	require.NoError(t, err)
	return out.Book
}

func TestIncomeScenario(t *testing.T) {
	e := newTestEngine(Advisory)
	b := NewBook()

	out, err := e.Income(b, core.UserA, 50000, Meta{Date: core.NewDate(2025, 1, 10)})
	require.NoError(t, err)
	assert.Equal(t, core.Amount(50000), out.Book.Accounts.Personal[core.UserA])
	assert.Equal(t, KindIncome, out.Entry.Kind())
	assert.Equal(t, 1, out.Book.Log.Len())

	back, err := e.Delete(out.Book, 0)
	require.NoError(t, err)
	assert.Equal(t, core.Amount(0), back.Book.Accounts.Personal[core.UserA])
	assert.Equal(t, 0, back.Book.Log.Len())
	assert.True(t, back.Book.Equal(b))
	// the input book is untouched
	assert.Equal(t, core.Amount(0), b.Accounts.Personal[core.UserA])
}

func TestExpenseScenario(t *testing.T) {
	e := newTestEngine(Advisory)
	b := NewBook()
	b.Accounts.Personal[core.UserA] = 1000

	out, err := e.Expense(b, core.UserA, core.Breakdown{Food: 300, Shopping: 200}, day(3))
	require.NoError(t, err)
	assert.Equal(t, core.Amount(500), out.Entry.Total())
	assert.Equal(t, core.Amount(500), out.Book.Accounts.Personal[core.UserA])
	assert.Empty(t, out.Warnings)

	_, err = e.Expense(b, core.UserA, core.Breakdown{}, day(3))
	assert.ErrorIs(t, err, core.ErrEmptyExpense)
}

func TestTransferScenario(t *testing.T) {
	e := newTestEngine(Advisory)
	b := NewBook()
	b.Accounts.Personal[core.UserA] = 2000

	out, err := e.Transfer(b, core.UserA, ToCash(), 1000, day(4))
	require.NoError(t, err)
	assert.Equal(t, core.Amount(1000), out.Book.Accounts.Personal[core.UserA])
	assert.Equal(t, core.Amount(1000), out.Book.Accounts.JointCash)

	back, err := e.Delete(out.Book, 0)
	require.NoError(t, err)
	assert.Equal(t, core.Amount(2000), back.Book.Accounts.Personal[core.UserA])
	assert.Equal(t, core.Amount(0), back.Book.Accounts.JointCash)

	// a transfer into principal is undone from principal, not joint cash
	out, err = e.Transfer(b, core.UserA, ToPrincipal(core.Fund), 700, day(4))
	require.NoError(t, err)
	assert.Equal(t, core.Amount(700), out.Book.Accounts.Principal[core.Fund])
	back, err = e.Delete(out.Book, 0)
	require.NoError(t, err)
	assert.True(t, back.Book.Accounts.Equal(b.Accounts))

	_, err = e.Transfer(b, core.UserA, Destination{Bucket: BucketPrincipal, Class: "gold"}, 10, day(4))
	assert.ErrorIs(t, err, core.ErrUnknownAssetClass)
}

func TestSellScenario(t *testing.T) {
	e := newTestEngine(Advisory)
	b := NewBook()
	b.Accounts.Principal[core.Stock] = 10000
	b.Accounts.Rates[core.Stock] = core.NewRate(20)

	out, err := e.Sell(b, core.Stock, 6000, day(5))
	require.NoError(t, err)
	sell := out.Entry.(Sell)
	assert.Equal(t, core.Amount(5000), sell.PrincipalDeducted)
	assert.Equal(t, core.Amount(1000), sell.Gain())
	assert.Equal(t, core.Amount(5000), out.Book.Accounts.Principal[core.Stock])
	assert.Equal(t, core.Amount(6000), out.Book.Accounts.JointCash)

	// the rate moves before the sale is deleted
	changed, err := e.SetReturnRate(out.Book, core.Stock, core.NewRate(-35))
	require.NoError(t, err)
	back, err := e.Delete(changed.Book, 0)
	require.NoError(t, err)
	assert.Equal(t, core.Amount(10000), back.Book.Accounts.Principal[core.Stock])
	assert.Equal(t, core.Amount(0), back.Book.Accounts.JointCash)
	assert.True(t, back.Book.Accounts.Rates[core.Stock].Equal(core.NewRate(-35)))
}

func TestSellThenBuyIsNotAnInverse(t *testing.T) {
	e := newTestEngine(Advisory)
	b := NewBook()
	b.Accounts.Principal[core.Stock] = 10000
	b.Accounts.Rates[core.Stock] = core.NewRate(20)

	out, err := e.Sell(b, core.Stock, 6000, day(5))
	require.NoError(t, err)
	out, err = e.Buy(out.Book, core.Stock, 6000, day(6))
	require.NoError(t, err)
	assert.Equal(t, core.Amount(11000), out.Book.Accounts.Principal[core.Stock])
	assert.Equal(t, core.Amount(0), out.Book.Accounts.JointCash)
}

func TestAdvanceScenario(t *testing.T) {
	e := newTestEngine(Advisory)
	b := NewBook()
	b.Accounts.JointCash = 1000

	out, err := e.JointSpend(b, 300, core.Food, core.UserA, day(7))
	require.NoError(t, err)
	assert.Equal(t, core.Amount(300), Outstanding(out.Book.Log, core.UserA))
	assert.Equal(t, core.Amount(0), Outstanding(out.Book.Log, core.UserB))
	assert.Equal(t, core.Amount(1000), out.Book.Accounts.JointCash)
	assert.Empty(t, out.Warnings)

	settled, err := e.Settle(out.Book, core.UserA, day(8))
	require.NoError(t, err)
	require.NotNil(t, settled.Entry)
	assert.Equal(t, KindSettlement, settled.Entry.Kind())
	assert.Equal(t, core.Amount(0), Outstanding(settled.Book.Log, core.UserA))
	assert.Equal(t, core.Amount(1000), settled.Book.Accounts.JointCash)

	first, _ := settled.Book.Log.At(0)
	js := first.(JointSpend)
	assert.True(t, js.Settled)
	assert.Equal(t, settled.Entry.Base().ID, js.SettledBy)
}

func TestSettleIdempotent(t *testing.T) {
	e := newTestEngine(Advisory)
	b := NewBook()

	none, err := e.Settle(b, core.UserB, day(1))
	require.NoError(t, err)
	assert.Nil(t, none.Entry)
	assert.True(t, none.Book.Equal(b))

	out, err := e.JointSpend(b, 120, core.Fixed, core.UserB, day(2))
	require.NoError(t, err)
	out, err = e.JointSpend(out.Book, 80, core.Shopping, core.UserB, day(3))
	require.NoError(t, err)

	once, err := e.Settle(out.Book, core.UserB, day(4))
	require.NoError(t, err)
	assert.Equal(t, core.Amount(200), once.Entry.Total())
	twice, err := e.Settle(once.Book, core.UserB, day(5))
	require.NoError(t, err)
	assert.Nil(t, twice.Entry)
	assert.True(t, twice.Book.Equal(once.Book))
}

func TestDeleteAdvances(t *testing.T) {
	e := newTestEngine(Advisory)
	b := NewBook()

	out, err := e.JointSpend(b, 300, core.Food, core.UserA, day(1))
	require.NoError(t, err)
	out, err = e.JointSpend(out.Book, 50, core.Misc, core.UserA, day(2))
	require.NoError(t, err)

	// unsettled advance: removed with no balance change
	del, err := e.Delete(out.Book, 1)
	require.NoError(t, err)
	assert.Equal(t, core.Amount(300), Outstanding(del.Book.Log, core.UserA))
	assert.True(t, del.Book.Accounts.Equal(b.Accounts))

	settled, err := e.Settle(del.Book, core.UserA, day(3))
	require.NoError(t, err)
	_, err = e.Delete(settled.Book, 0)
	assert.ErrorIs(t, err, core.ErrSettledAdvance)

	un, err := e.Unsettle(settled.Book, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, un.Book.Log.Len(), "empty settlement entry is dropped")
	assert.Equal(t, core.Amount(300), Outstanding(un.Book.Log, core.UserA))
	assert.NoError(t, Verify(un.Book))

	gone, err := e.Delete(un.Book, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, gone.Book.Log.Len())
}

func TestUnsettleKeepsOtherCovers(t *testing.T) {
	e := newTestEngine(Advisory)
	out, err := e.JointSpend(NewBook(), 100, core.Food, core.UserA, day(1))
	require.NoError(t, err)
	out, err = e.JointSpend(out.Book, 40, core.Food, core.UserA, day(2))
	require.NoError(t, err)
	out, err = e.Settle(out.Book, core.UserA, day(3))
	require.NoError(t, err)

	un, err := e.Unsettle(out.Book, 1)
	require.NoError(t, err)
	assert.Equal(t, core.Amount(40), Outstanding(un.Book.Log, core.UserA))
	last, _ := un.Book.Log.At(2)
	s := last.(Settlement)
	assert.Equal(t, core.Amount(100), s.Amount)
	assert.Len(t, s.Covers, 1)
	assert.NoError(t, Verify(un.Book))

	again, err := e.Unsettle(un.Book, 1)
	require.NoError(t, err)
	assert.True(t, again.Book.Equal(un.Book))

	_, err = e.Unsettle(un.Book, 2)
	assert.ErrorIs(t, err, core.ErrNotAdvance)
}

func TestDeleteSettlementReopensAdvances(t *testing.T) {
	e := newTestEngine(Advisory)
	out, err := e.JointSpend(NewBook(), 100, core.Food, core.UserB, day(1))
	require.NoError(t, err)
	out, err = e.JointSpend(out.Book, 60, core.Fixed, core.UserB, day(2))
	require.NoError(t, err)
	settled, err := e.Settle(out.Book, core.UserB, day(3))
	require.NoError(t, err)

	back, err := e.Delete(settled.Book, 2)
	require.NoError(t, err)
	assert.True(t, back.Book.Equal(out.Book))
}

func TestDirectJointSpend(t *testing.T) {
	e := newTestEngine(Advisory)
	b := NewBook()
	b.Accounts.JointCash = 100

	out, err := e.JointSpend(b, 250, core.Shopping, "", day(1))
	require.NoError(t, err)
	assert.Equal(t, core.Amount(-150), out.Book.Accounts.JointCash)
	require.Len(t, out.Warnings, 1)
	assert.Equal(t, core.Amount(100), out.Warnings[0].Available)
	assert.Equal(t, JointOwner, out.Entry.Owner())

	back, err := e.Delete(out.Book, 0)
	require.NoError(t, err)
	assert.Equal(t, core.Amount(100), back.Book.Accounts.JointCash)
}

func TestStrictPolicy(t *testing.T) {
	e := newTestEngine(Strict)
	b := NewBook()
	b.Accounts.Personal[core.UserA] = 100
	b.Accounts.Principal[core.Fund] = 1000
	b.Accounts.Rates[core.Fund] = core.NewRate(10)

	cases := []struct {
		name string
		op   func() (Outcome, error)
	}{
		{"loss", func() (Outcome, error) { return e.Loss(b, core.UserA, 101, day(1)) }},
		{"expense", func() (Outcome, error) { return e.Expense(b, core.UserA, core.Breakdown{Fixed: 101}, day(1)) }},
		{"transfer", func() (Outcome, error) { return e.Transfer(b, core.UserA, ToCash(), 101, day(1)) }},
		{"joint spend", func() (Outcome, error) { return e.JointSpend(b, 1, core.Food, "", day(1)) }},
		{"buy", func() (Outcome, error) { return e.Buy(b, core.Stock, 1, day(1)) }},
		{"sell", func() (Outcome, error) { return e.Sell(b, core.Fund, 1101, day(1)) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.op()
			var short *core.ShortfallError
			require.ErrorAs(t, err, &short)
			assert.ErrorIs(t, err, core.ErrInsufficientBalance)
		})
	}

	// advances never check joint cash, and a sale up to the estimate passes
	_, err := e.JointSpend(b, 1, core.Food, core.UserB, day(1))
	assert.NoError(t, err)
	out, err := e.Sell(b, core.Fund, 1100, day(1))
	require.NoError(t, err)
	assert.Equal(t, core.Amount(0), out.Book.Accounts.Principal[core.Fund])
}

func TestInvalidInput(t *testing.T) {
	e := newTestEngine(Advisory)
	b := NewBook()

	_, err := e.Income(b, core.UserA, 0, day(1))
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
	_, err = e.Income(b, core.UserA, -5, day(1))
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
	_, err = e.Income(b, core.UserA, 5, Meta{})
	assert.ErrorIs(t, err, core.ErrInvalidDate)
	_, err = e.Income(b, "carol", 5, day(1))
	assert.ErrorIs(t, err, core.ErrUnknownUser)
	_, err = e.JointSpend(b, 5, "travel", "", day(1))
	assert.ErrorIs(t, err, core.ErrUnknownCategory)
	_, err = e.Buy(b, "gold", 5, day(1))
	assert.ErrorIs(t, err, core.ErrUnknownAssetClass)
	_, err = e.SetReturnRate(b, core.Stock, core.NewRate(-100))
	assert.ErrorIs(t, err, core.ErrInvalidRate)
	_, err = e.Delete(b, 0)
	assert.ErrorIs(t, err, core.ErrEntryNotFound)
	_, err = e.Unsettle(b, -1)
	assert.ErrorIs(t, err, core.ErrEntryNotFound)
	_, err = e.Transfer(b, core.UserA, Destination{Bucket: "nowhere"}, 10, day(1))
	assert.ErrorIs(t, err, core.ErrUnknownDestination)
	_, err = e.Transfer(b, core.UserA, Destination{Bucket: BucketCash, Class: core.Stock}, 10, day(1))
	assert.ErrorIs(t, err, core.ErrUnknownDestination)
	_, err = e.Income(b, core.UserA, core.MaxAmount+1, day(1))
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
	_, err = e.Expense(b, core.UserA, core.Breakdown{Food: core.MaxAmount, Other: core.MaxAmount}, day(1))
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
}

func TestBalanceOverflow(t *testing.T) {
	e := newTestEngine(Advisory)
	b := NewBook()
	b.Accounts.Personal[core.UserA] = math.MaxInt64 - 10

	_, err := e.Income(b, core.UserA, 11, day(1))
	require.ErrorIs(t, err, core.ErrBalanceOverflow)
	assert.Equal(t, core.Amount(math.MaxInt64-10), b.Accounts.Personal[core.UserA])
	assert.Equal(t, 0, b.Log.Len())

	out, err := e.Income(b, core.UserA, 10, day(1))
	require.NoError(t, err)
	assert.Equal(t, core.Amount(math.MaxInt64), out.Book.Accounts.Personal[core.UserA])

	// a buy that would push principal past the range leaves joint cash alone too
	b = NewBook()
	b.Accounts.JointCash = 100
	b.Accounts.Principal[core.Fund] = math.MaxInt64
	_, err = e.Buy(b, core.Fund, 50, day(2))
	require.ErrorIs(t, err, core.ErrBalanceOverflow)
	assert.Equal(t, core.Amount(100), b.Accounts.JointCash)

	b = NewBook()
	b.Accounts.Personal[core.UserB] = math.MinInt64 + 5
	_, err = Reverse(b.Accounts, Income{Meta: day(3), User: core.UserB, Amount: 6})
	assert.ErrorIs(t, err, core.ErrBalanceOverflow)
}

func TestVerifyRejectsDuplicateCovers(t *testing.T) {
	e := newTestEngine(Advisory)
	out, err := e.JointSpend(NewBook(), 300, core.Food, core.UserA, day(7))
	require.NoError(t, err)
	settled, err := e.Settle(out.Book, core.UserA, day(8))
	require.NoError(t, err)
	require.NoError(t, Verify(settled.Book))

	st := settled.Entry.(Settlement)
	st.Covers = append(slices.Clone(st.Covers), st.Covers[0])
	st.Amount = 600
	crafted := Book{Accounts: settled.Book.Accounts, Log: settled.Book.Log.replace(1, st)}
	assert.ErrorIs(t, Verify(crafted), core.ErrInconsistentLog)
}

func TestRoundTripEveryKind(t *testing.T) {
	e := newTestEngine(Advisory)
	b := seeded(t, e)

	cases := []struct {
		name string
		op   func(Book) (Outcome, error)
	}{
		{"income", func(b Book) (Outcome, error) { return e.Income(b, core.UserB, 999, day(9)) }},
		{"gain", func(b Book) (Outcome, error) { return e.Gain(b, core.UserA, 321, day(9)) }},
		{"loss", func(b Book) (Outcome, error) { return e.Loss(b, core.UserA, 99999, day(9)) }},
		{"expense", func(b Book) (Outcome, error) {
			return e.Expense(b, core.UserB, core.Breakdown{Food: 1, Shopping: 2, Fixed: 3, Other: 4}, day(9))
		}},
		{"transfer", func(b Book) (Outcome, error) { return e.Transfer(b, core.UserA, ToPrincipal(core.Deposit), 77, day(9)) }},
		{"joint spend", func(b Book) (Outcome, error) { return e.JointSpend(b, 450, core.Fixed, "", day(9)) }},
		{"advance", func(b Book) (Outcome, error) { return e.JointSpend(b, 450, core.Fixed, core.UserB, day(9)) }},
		{"buy", func(b Book) (Outcome, error) { return e.Buy(b, core.Other, 1234, day(9)) }},
		{"sell", func(b Book) (Outcome, error) { return e.Sell(b, core.Stock, 7777, day(9)) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := tc.op(b)
			require.NoError(t, err)

			reversed, err := Reverse(out.Book.Accounts, out.Entry)
			require.NoError(t, err)
			assert.True(t, reversed.Equal(b.Accounts), "reverse(apply(s)) != s")

			back, err := e.Delete(out.Book, out.Book.Log.Len()-1)
			require.NoError(t, err)
			assert.True(t, back.Book.Equal(b))
			assert.NoError(t, Verify(out.Book))
		})
	}
}

func TestReplayConsistency(t *testing.T) {
	e := newTestEngine(Advisory)
	b := seeded(t, e)

	ops := []func(Book) (Outcome, error){
		func(b Book) (Outcome, error) { return e.Sell(b, core.Stock, 3001, day(10)) },
		func(b Book) (Outcome, error) { return e.JointSpend(b, 500, core.Food, core.UserA, day(11)) },
		func(b Book) (Outcome, error) { return e.Buy(b, core.Fund, 4000, day(12)) },
		func(b Book) (Outcome, error) { return e.Settle(b, core.UserA, day(13)) },
		func(b Book) (Outcome, error) { return e.SetReturnRate(b, core.Fund, core.NewRate(7.5)) },
		func(b Book) (Outcome, error) { return e.Sell(b, core.Fund, 1000, day(14)) },
		func(b Book) (Outcome, error) { return e.Expense(b, core.UserA, core.Breakdown{Other: 12}, day(15)) },
	}
	for _, op := range ops {
		out, err := op(b)
		require.NoError(t, err)
		b = out.Book
		replayed, err := Replay(b.Accounts.Rates, b.Log.Entries())
		require.NoError(t, err)
		require.True(t, replayed.Equal(b.Accounts))
	}

	// delete from the middle and check the O(1) reversal agrees with a replay
	out, err := e.Delete(b, 2)
	require.NoError(t, err)
	assert.NoError(t, Verify(out.Book))

	broken := out.Book
	broken.Accounts = broken.Accounts.Clone()
	broken.Accounts.JointCash++
	assert.ErrorIs(t, Verify(broken), core.ErrInconsistentLog)
}

func TestSearch(t *testing.T) {
	e := newTestEngine(Advisory)
	b := NewBook()
	out, err := e.Income(b, core.UserA, 10, Meta{Date: core.NewDate(2025, 2, 1), Operator: "Alice", Note: "salary"})
	require.NoError(t, err)
	out, err = e.JointSpend(out.Book, 10, core.Food, core.UserB, Meta{Date: core.NewDate(2025, 3, 4), Operator: "Bob"})
	require.NoError(t, err)
	b = out.Book

	assert.Len(t, Search(b.Log, ""), 2)
	hits := Search(b.Log, "SALARY")
	require.Len(t, hits, 1)
	assert.Equal(t, 0, hits[0].Index)
	assert.Len(t, Search(b.Log, "2025-03"), 1)
	assert.Len(t, Search(b.Log, "food"), 1)
	assert.Len(t, Search(b.Log, "userB"), 1)
	assert.Len(t, Search(b.Log, "bob"), 1)
	assert.Equal(t, 1, Search(b.Log, "2025")[0].Index, "newest first")
	assert.Empty(t, Search(b.Log, "nothing"))
}

func TestTotals(t *testing.T) {
	a := NewAccounts()
	a.Personal[core.UserA] = 1000
	a.Personal[core.UserB] = 500
	a.JointCash = 200
	a.Principal[core.Stock] = 10000
	a.Rates[core.Stock] = core.NewRate(20)
	a.Principal[core.Deposit] = 999
	a.Rates[core.Deposit] = core.NewRate(2.5)

	o := Totals(a)
	assert.Equal(t, core.Amount(10999), o.Principal)
	assert.Equal(t, core.Amount(13023), o.Estimated)
	assert.Equal(t, core.Amount(2024), o.Unrealized)
	assert.Equal(t, core.Amount(13223), o.JointTotal)
	assert.Equal(t, core.Amount(14723), o.NetWorth)
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": Advisory, "advisory": Advisory, " STRICT ": Strict} {
		got, err := ParsePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParsePolicy("lenient")
	assert.Error(t, err)
}
