package ledger

import (
	"fmt"
	"slices"

	"cassa/internal/core"
)

// Delete removes the entry at index i and undoes its balance effect using the
// data stored on the entry. A settled advance must be unsettled first.
// Deleting a settlement entry unsettles every advance it covers.
func (e *Engine) Delete(b Book, i int) (Outcome, error) {
	entry, err := b.Log.At(i)
	if err != nil {
		return Outcome{}, err
	}
	switch t := entry.(type) {
	case JointSpend:
		if t.IsAdvance() && t.Settled {
			return Outcome{}, fmt.Errorf("%w: entry %d must be unsettled before it can be deleted", core.ErrSettledAdvance, i)
		}
	case Settlement:
		log := b.Log
		for _, id := range t.Covers {
			j := log.IndexOf(id)
			if j < 0 {
				continue
			}
			if js, ok := log.entries[j].(JointSpend); ok {
				log = log.replace(j, reopen(js))
			}
		}
		return Outcome{
			Book:  Book{Accounts: b.Accounts.Clone(), Log: log.without(i)},
			Entry: entry,
		}, nil
	}
	acc, err := Reverse(b.Accounts, entry)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Book: Book{Accounts: acc, Log: b.Log.without(i)}, Entry: entry}, nil
}

// Settle marks every outstanding advance of user as repaid and appends one
// settlement entry listing them. No balance moves. With nothing outstanding
// it returns the book unchanged and a nil Entry.
func (e *Engine) Settle(b Book, user core.UserID, m Meta) (Outcome, error) {
	if err := user.Validate(); err != nil {
		return Outcome{}, err
	}
	if err := m.Date.Validate(); err != nil {
		return Outcome{}, err
	}
	open := Detail(b.Log, user)
	if len(open) == 0 {
		return Outcome{Book: b}, nil
	}

	s := Settlement{Meta: e.stamp(m), User: user}
	log := b.Log
	for _, adv := range open {
		js := adv.Entry
		js.Settled = true
		js.SettledBy = s.ID
		log = log.replace(adv.Index, js)
		s.Covers = append(s.Covers, js.ID)
		s.Amount += js.Amount
	}
	return Outcome{
		Book:  Book{Accounts: b.Accounts.Clone(), Log: log.Append(s)},
		Entry: s,
	}, nil
}

// Unsettle flips the advance at index i back to outstanding and takes it off
// its settlement entry. A settlement left covering nothing is removed.
// Unsettling an advance that is still outstanding changes nothing.
func (e *Engine) Unsettle(b Book, i int) (Outcome, error) {
	entry, err := b.Log.At(i)
	if err != nil {
		return Outcome{}, err
	}
	js, ok := entry.(JointSpend)
	if !ok || !js.IsAdvance() {
		return Outcome{}, fmt.Errorf("%w: entry %d is %s", core.ErrNotAdvance, i, entry.Kind())
	}
	if !js.Settled {
		return Outcome{Book: b}, nil
	}

	log := b.Log.replace(i, reopen(js))
	if j := log.IndexOf(js.SettledBy); j >= 0 {
		if s, ok := log.entries[j].(Settlement); ok {
			s.Covers = slices.DeleteFunc(slices.Clone(s.Covers), func(id string) bool { return id == js.ID })
			s.Amount -= js.Amount
			if len(s.Covers) == 0 {
				log = log.without(j)
			} else {
				log = log.replace(j, s)
			}
		}
	}
	reopened, _ := log.At(log.IndexOf(js.ID))
	return Outcome{Book: Book{Accounts: b.Accounts.Clone(), Log: log}, Entry: reopened}, nil
}

func reopen(js JointSpend) JointSpend {
	js.Settled = false
	js.SettledBy = ""
	return js
}
