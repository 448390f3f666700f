package services

import (
	"fmt"
	"strings"
	"time"

	"cassa/internal/amqp"
	"cassa/internal/config"
	"cassa/internal/core"
	"cassa/internal/ledger"
	"cassa/internal/log"
)

// NotificationFor builds the push payload announcing entry e. op is one of
// the log operation names; deletions and un-settlements are titled as such.
func NotificationFor(p *config.Profile, household, op string, e ledger.Entry) *amqp.Notification {
	m := e.Base()
	title := e.Kind().Label()
	switch op {
	case log.OpDelete:
		title = "Deleted: " + title
	case log.OpUnsettle:
		title = "Reopened: " + title
	}
	if owner := ownerName(p, e.Owner()); owner != "" {
		title = fmt.Sprintf("%s (%s)", title, owner)
	}
	return &amqp.Notification{
		Title:     title,
		Amount:    int64(e.Total()),
		Category:  categoryOf(e),
		Note:      m.Note,
		Date:      m.Date.String(),
		Color:     p.Color(e.Kind()),
		Operator:  m.Operator,
		Household: household,
		EntryID:   m.ID,
		Kind:      string(e.Kind()),
		Timestamp: time.Now().UTC(),
	}
}

func ownerName(p *config.Profile, owner string) string {
	switch owner {
	case "":
		return ""
	case ledger.JointOwner:
		return "joint"
	}
	return p.Name(core.UserID(owner))
}

// categoryOf names what the entry is about: the spending category, the
// non-zero parts of an expense, the asset class or the transfer target.
func categoryOf(e ledger.Entry) string {
	if c, ok := ledger.Category(e); ok {
		return string(c)
	}
	switch t := e.(type) {
	case ledger.Expense:
		var parts []string
		for _, c := range []struct {
			cat    core.Category
			amount core.Amount
		}{
			{core.Food, t.Breakdown.Food},
			{core.Shopping, t.Breakdown.Shopping},
			{core.Fixed, t.Breakdown.Fixed},
			{core.Misc, t.Breakdown.Other},
		} {
			if c.amount > 0 {
				parts = append(parts, string(c.cat))
			}
		}
		return strings.Join(parts, "+")
	case ledger.Transfer:
		return t.To.String()
	case ledger.Buy:
		return string(t.Class)
	case ledger.Sell:
		return string(t.Class)
	}
	return ""
}
