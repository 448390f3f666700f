package ledger

import (
	"slices"
	"strings"

	"cassa/internal/core"
)

// Advance is an outstanding joint spend together with its log index.
type Advance struct {
	Index int
	Entry JointSpend
}

// Outstanding is what the joint account owes user for unsettled advances.
// It is recomputed from the log on every call.
func Outstanding(l Log, user core.UserID) core.Amount {
	var total core.Amount
	for _, e := range l.entries {
		if js, ok := e.(JointSpend); ok && js.AdvancedBy == user && !js.Settled {
			total += js.Amount
		}
	}
	return total
}

// Detail lists the unsettled advances of user in log order.
func Detail(l Log, user core.UserID) []Advance {
	var out []Advance
	for i, e := range l.entries {
		if js, ok := e.(JointSpend); ok && js.AdvancedBy == user && !js.Settled {
			out = append(out, Advance{Index: i, Entry: js})
		}
	}
	return out
}

// Debts returns the outstanding total of every user.
func Debts(l Log) map[core.UserID]core.Amount {
	out := make(map[core.UserID]core.Amount, 2)
	for _, u := range core.Users() {
		out[u] = Outstanding(l, u)
	}
	return out
}

// Hit is a log entry matched by Search.
type Hit struct {
	Index int
	Entry Entry
}

// Search returns the entries whose date, month, owner, operator, kind,
// category or note contain term, ignoring case, newest first. An empty term
// matches everything.
func Search(l Log, term string) []Hit {
	term = strings.ToLower(strings.TrimSpace(term))
	var out []Hit
	for i, e := range l.entries {
		if term == "" || matches(e, term) {
			out = append(out, Hit{Index: i, Entry: e})
		}
	}
	slices.Reverse(out)
	return out
}

func matches(e Entry, term string) bool {
	m := e.Base()
	fields := []string{
		m.Date.String(),
		m.Date.MonthKey(),
		e.Owner(),
		m.Operator,
		string(e.Kind()),
		e.Kind().Label(),
		m.Note,
	}
	if c, ok := Category(e); ok {
		fields = append(fields, string(c))
	}
	for _, f := range fields {
		if f != "" && strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}
