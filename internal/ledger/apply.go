package ledger

import (
	"errors"
	"fmt"

	"cassa/internal/core"
)

// Apply returns the balances after e. It only reads what is stored on the
// entry, so applying an entry always has the same effect no matter what the
// rates are now. The input is not modified.
func Apply(a Accounts, e Entry) (Accounts, error) {
	return move(a, e, 1)
}

// Reverse undoes the balance effect of e. For every entry,
// Reverse(Apply(a, e), e) equals a.
func Reverse(a Accounts, e Entry) (Accounts, error) {
	return move(a, e, -1)
}

func move(a Accounts, e Entry, sign core.Amount) (Accounts, error) {
	out := a.Clone()
	var err error
	// shift adds d to bal; after the first overflow every later leg is skipped.
	shift := func(bal, d core.Amount) core.Amount {
		if err != nil {
			return bal
		}
		sum, addErr := bal.Add(d)
		if addErr != nil {
			err = addErr
			return bal
		}
		return sum
	}

	switch t := e.(type) {
	case Income:
		out.Personal[t.User] = shift(out.Personal[t.User], sign*t.Amount)
	case Result:
		out.Personal[t.User] = shift(out.Personal[t.User], sign*t.delta())
	case Expense:
		out.Personal[t.User] = shift(out.Personal[t.User], -sign*t.Total())
	case Transfer:
		out.Personal[t.From] = shift(out.Personal[t.From], -sign*t.Amount)
		switch t.To.Bucket {
		case BucketCash:
			out.JointCash = shift(out.JointCash, sign*t.Amount)
		case BucketPrincipal:
			out.Principal[t.To.Class] = shift(out.Principal[t.To.Class], sign*t.Amount)
		default:
			return a, fmt.Errorf("transfer %s: %w %q", t.ID, core.ErrUnknownDestination, t.To.Bucket)
		}
	case JointSpend:
		// Advances are paid out of pocket; joint cash never moves for them.
		if !t.IsAdvance() {
			out.JointCash = shift(out.JointCash, -sign*t.Amount)
		}
	case Buy:
		out.JointCash = shift(out.JointCash, -sign*t.Amount)
		out.Principal[t.Class] = shift(out.Principal[t.Class], sign*t.Amount)
	case Sell:
		out.JointCash = shift(out.JointCash, sign*t.Amount)
		out.Principal[t.Class] = shift(out.Principal[t.Class], -sign*t.PrincipalDeducted)
	case Settlement:
		// bookkeeping only
	default:
		return a, fmt.Errorf("unsupported entry type %T", e)
	}
	if err != nil {
		return a, fmt.Errorf("%s %s: %w", e.Kind(), e.Base().ID, err)
	}
	return out, nil
}

// Replay folds Apply over entries starting from the all-zero balance sheet
// carrying the given rates.
func Replay(rates map[core.AssetClass]core.Rate, entries []Entry) (Accounts, error) {
	acc := NewAccounts()
	for c, r := range rates {
		acc.Rates[c] = r
	}
	for i, e := range entries {
		var err error
		if acc, err = Apply(acc, e); err != nil {
			return Accounts{}, fmt.Errorf("replay entry %d: %w", i, err)
		}
	}
	return acc, nil
}

// Verify checks that the cached balances of b equal a replay of its log and
// that settlement links point both ways.
func Verify(b Book) error {
	replayed, err := Replay(b.Accounts.Rates, b.Log.entries)
	if err != nil {
		return errors.Join(core.ErrInconsistentLog, err)
	}
	if !replayed.SameBalances(b.Accounts) {
		return fmt.Errorf("%w: replay gives %s", core.ErrInconsistentLog, describe(replayed))
	}
	return verifyLinks(b.Log)
}

func verifyLinks(l Log) error {
	for i, e := range l.entries {
		switch t := e.(type) {
		case JointSpend:
			if t.SettledBy == "" {
				continue
			}
			if !t.Settled {
				return fmt.Errorf("%w: entry %d names settlement %s but is not settled", core.ErrInconsistentLog, i, t.SettledBy)
			}
			j := l.IndexOf(t.SettledBy)
			if j < 0 {
				return fmt.Errorf("%w: entry %d names missing settlement %s", core.ErrInconsistentLog, i, t.SettledBy)
			}
		case Settlement:
			var sum core.Amount
			seen := make(map[string]bool, len(t.Covers))
			for _, id := range t.Covers {
				if seen[id] {
					return fmt.Errorf("%w: settlement %d covers %s twice", core.ErrInconsistentLog, i, id)
				}
				seen[id] = true
				j := l.IndexOf(id)
				if j < 0 {
					return fmt.Errorf("%w: settlement %d covers missing entry %s", core.ErrInconsistentLog, i, id)
				}
				js, ok := l.entries[j].(JointSpend)
				if !ok || js.SettledBy != t.ID {
					return fmt.Errorf("%w: settlement %d covers %s which does not point back", core.ErrInconsistentLog, i, id)
				}
				sum += js.Amount
			}
			if sum != t.Amount {
				return fmt.Errorf("%w: settlement %d amount %s differs from covered %s", core.ErrInconsistentLog, i, t.Amount, sum)
			}
		}
	}
	return nil
}

func describe(a Accounts) string {
	return fmt.Sprintf("personal=%v jointCash=%s principal=%v", a.Personal, a.JointCash, a.Principal)
}
