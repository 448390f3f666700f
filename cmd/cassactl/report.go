package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"cassa/internal/config"
	"cassa/internal/core"
	"cassa/internal/ledger"
)

// markdownReport lays out the balance sheet, and optionally the log, as
// markdown tables.
func markdownReport(p *config.Profile, b ledger.Book, withLog bool) string {
	a := b.Accounts
	o := ledger.Totals(a)

	var sb strings.Builder
	sb.WriteString("# Balances\n\n| account | balance |\n|---|---:|\n")
	for _, u := range core.Users() {
		fmt.Fprintf(&sb, "| %s | %s |\n", p.Name(u), a.Personal[u])
	}
	fmt.Fprintf(&sb, "| joint cash | %s |\n", a.JointCash)

	sb.WriteString("\n# Investments\n\n| class | principal | rate | estimated |\n|---|---:|---:|---:|\n")
	for _, c := range core.AssetClasses() {
		fmt.Fprintf(&sb, "| %s | %s | %s%% | %s |\n", c, a.Principal[c], a.Rate(c), a.EstimatedValue(c))
	}

	sb.WriteString("\n# Overview\n\n")
	fmt.Fprintf(&sb, "- unrealized: **%s**\n- joint total: **%s**\n- net worth: **%s**\n", o.Unrealized, o.JointTotal, o.NetWorth)

	if withLog && b.Log.Len() > 0 {
		sb.WriteString("\n# Log\n\n| # | date | kind | owner | amount | note |\n|---:|---|---|---|---:|---|\n")
		for i, e := range b.Log.All() {
			m := e.Base()
			fmt.Fprintf(&sb, "| %d | %s | %s | %s | %s | %s |\n",
				i, m.Date, e.Kind().Label(), p.Name(core.UserID(e.Owner())), e.Total(), escapeCell(m.Note))
		}
	}
	return sb.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// renderMarkdown styles md for the terminal. "notty" keeps plain text.
func renderMarkdown(md, style string) (string, error) {
	return glamour.Render(md, style)
}
