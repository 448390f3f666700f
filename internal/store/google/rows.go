package google

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"cassa/internal/core"
	"cassa/internal/ledger"
)

var (
	balanceHeader = []any{"Account", "Class", "Amount", "Rate %", "Estimated"}
	logHeader     = []any{"#", "ID", "Date", "Kind", "Owner", "Amount", "Category", "Operator", "Note", "Settled by"}
)

// balanceRows renders the account model as a table.
func balanceRows(a ledger.Accounts) [][]any {
	rows := [][]any{balanceHeader}
	for _, u := range core.Users() {
		rows = append(rows, []any{"personal", string(u), int64(a.Personal[u]), "", ""})
	}
	rows = append(rows, []any{"jointCash", "", int64(a.JointCash), "", ""})
	for _, c := range core.AssetClasses() {
		rows = append(rows, []any{
			"jointPrincipal", string(c), int64(a.Principal[c]),
			a.Rate(c).String(), int64(a.EstimatedValue(c)),
		})
	}
	o := ledger.Totals(a)
	rows = append(rows, []any{"netWorth", "", int64(o.NetWorth), "", int64(o.Estimated)})
	return rows
}

// logRows renders the log, one row per entry, in log order.
func logRows(l ledger.Log) [][]any {
	rows := make([][]any, 0, l.Len()+1)
	rows = append(rows, logHeader)
	for i, e := range l.All() {
		m := e.Base()
		cat := ""
		if c, ok := ledger.Category(e); ok {
			cat = string(c)
		}
		settled := ""
		if js, ok := e.(ledger.JointSpend); ok && js.Settled {
			settled = js.SettledBy
		}
		rows = append(rows, []any{
			i, m.ID, m.Date.String(), e.Kind().Label(), e.Owner(),
			int64(e.Total()), cat, m.Operator, m.Note, settled,
		})
	}
	return rows
}

// snapshotRow lays out one household on the snapshot tab: household,
// revision, update time, then the document split into cell sized chunks.
func snapshotRow(household string, rev int64, updated string, doc []byte) []any {
	row := []any{household, rev, updated}
	s := string(doc)
	for len(s) > cellLimit {
		cut := cellLimit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		row = append(row, s[:cut])
		s = s[cut:]
	}
	return append(row, s)
}

// parseSnapshotRow is the inverse of snapshotRow.
func parseSnapshotRow(row []any) (household string, rev int64, updated string, doc []byte, err error) {
	if len(row) < 4 {
		return "", 0, "", nil, fmt.Errorf("snapshot row has %d cells", len(row))
	}
	household = fmt.Sprint(row[0])
	rev, err = strconv.ParseInt(fmt.Sprint(row[1]), 10, 64)
	if err != nil {
		return "", 0, "", nil, fmt.Errorf("snapshot revision: %w", err)
	}
	updated = fmt.Sprint(row[2])
	var b []byte
	for _, cell := range row[3:] {
		b = append(b, fmt.Sprint(cell)...)
	}
	return household, rev, updated, b, nil
}
