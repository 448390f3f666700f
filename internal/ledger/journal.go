package ledger

import (
	"fmt"
	"iter"
	"slices"

	"cassa/internal/core"
)

// Log is the ordered transaction log. Order is insertion order; entries are
// never re-sorted by date. A Log value is immutable: every change returns a
// new Log that shares nothing with the old one.
type Log struct {
	entries []Entry
}

// NewLog builds a log from entries in order.
func NewLog(entries ...Entry) Log {
	return Log{entries: slices.Clone(entries)}
}

func (l Log) Len() int { return len(l.entries) }

// At returns the entry at index i.
func (l Log) At(i int) (Entry, error) {
	if i < 0 || i >= len(l.entries) {
		return nil, fmt.Errorf("%w: index %d of %d", core.ErrEntryNotFound, i, len(l.entries))
	}
	return l.entries[i], nil
}

// Entries returns a copy of the entries in order.
func (l Log) Entries() []Entry { return slices.Clone(l.entries) }

// All iterates over index and entry in order.
func (l Log) All() iter.Seq2[int, Entry] {
	return func(yield func(int, Entry) bool) {
		for i, e := range l.entries {
			if !yield(i, e) {
				return
			}
		}
	}
}

// IndexOf returns the index of the entry with the given ID, or -1.
func (l Log) IndexOf(id string) int {
	return slices.IndexFunc(l.entries, func(e Entry) bool { return e.Base().ID == id })
}

// Append returns a log with e added at the end.
func (l Log) Append(e Entry) Log {
	out := make([]Entry, len(l.entries), len(l.entries)+1)
	copy(out, l.entries)
	return Log{entries: append(out, e)}
}

// Equal compares two logs entry by entry.
func (l Log) Equal(o Log) bool {
	return slices.EqualFunc(l.entries, o.entries, func(a, b Entry) bool { return a.Equal(b) })
}

func (l Log) without(i int) Log {
	return Log{entries: slices.Delete(slices.Clone(l.entries), i, i+1)}
}

func (l Log) replace(i int, e Entry) Log {
	out := slices.Clone(l.entries)
	out[i] = e
	return Log{entries: out}
}
