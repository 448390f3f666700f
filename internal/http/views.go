package http

import (
	"github.com/shopspring/decimal"

	"cassa/internal/core"
	"cassa/internal/ledger"
	"cassa/internal/services"
	"cassa/internal/snapshot"
)

type entryView struct {
	Index int `json:"index"`
	Entry any `json:"entry"`
}

type classView struct {
	Principal         core.Amount     `json:"principal"`
	ReturnRatePercent decimal.Decimal `json:"returnRatePercent"`
	Estimated         core.Amount     `json:"estimated"`
}

type overviewView struct {
	Principal  core.Amount `json:"principal"`
	Estimated  core.Amount `json:"estimated"`
	Unrealized core.Amount `json:"unrealized"`
	JointTotal core.Amount `json:"jointTotal"`
	NetWorth   core.Amount `json:"netWorth"`
}

type stateView struct {
	Household string                        `json:"household"`
	Policy    string                        `json:"policy"`
	Revision  int64                         `json:"revision"`
	Personal  map[core.UserID]core.Amount   `json:"personal"`
	JointCash core.Amount                   `json:"jointCash"`
	Classes   map[core.AssetClass]classView `json:"jointPrincipal"`
	Overview  overviewView                  `json:"overview"`
	Debts     map[core.UserID]core.Amount   `json:"debts"`
	Log       []entryView                   `json:"log,omitempty"`
}

type warningView struct {
	Account   string      `json:"account"`
	Available core.Amount `json:"available"`
	Required  core.Amount `json:"required"`
}

type resultView struct {
	Revision int64         `json:"revision"`
	Entry    any           `json:"entry"`
	Warnings []warningView `json:"warnings,omitempty"`
}

type debtsView struct {
	Totals map[core.UserID]core.Amount `json:"totals"`
	Detail map[core.UserID][]entryView `json:"detail"`
}

func newStateView(svc *services.LedgerService, withLog bool) stateView {
	book := svc.Book()
	a := book.Accounts
	o := ledger.Totals(a)
	v := stateView{
		Household: svc.Household(),
		Policy:    svc.Policy().String(),
		Revision:  svc.Status().Revision,
		Personal:  map[core.UserID]core.Amount{},
		JointCash: a.JointCash,
		Classes:   map[core.AssetClass]classView{},
		Overview: overviewView{
			Principal:  o.Principal,
			Estimated:  o.Estimated,
			Unrealized: o.Unrealized,
			JointTotal: o.JointTotal,
			NetWorth:   o.NetWorth,
		},
		Debts: ledger.Debts(book.Log),
	}
	for _, u := range core.Users() {
		v.Personal[u] = a.Personal[u]
	}
	for _, c := range core.AssetClasses() {
		v.Classes[c] = classView{
			Principal:         a.Principal[c],
			ReturnRatePercent: a.Rate(c).Decimal,
			Estimated:         a.EstimatedValue(c),
		}
	}
	if withLog {
		v.Log = make([]entryView, 0, book.Log.Len())
		for i, e := range book.Log.All() {
			v.Log = append(v.Log, entryView{Index: i, Entry: snapshot.Item(e)})
		}
	}
	return v
}

func newResultView(res services.Result) resultView {
	v := resultView{Revision: res.Revision}
	if res.Entry != nil {
		v.Entry = snapshot.Item(res.Entry)
	}
	for _, w := range res.Warnings {
		v.Warnings = append(v.Warnings, warningView{Account: w.Account, Available: w.Available, Required: w.Required})
	}
	return v
}

func newDebtsView(d services.DebtView) debtsView {
	v := debtsView{Totals: d.Totals, Detail: map[core.UserID][]entryView{}}
	for u, advances := range d.Detail {
		list := make([]entryView, 0, len(advances))
		for _, a := range advances {
			list = append(list, entryView{Index: a.Index, Entry: snapshot.Item(a.Entry)})
		}
		v.Detail[u] = list
	}
	return v
}

func newHitsView(hits []ledger.Hit) []entryView {
	out := make([]entryView, 0, len(hits))
	for _, h := range hits {
		out = append(out, entryView{Index: h.Index, Entry: snapshot.Item(h.Entry)})
	}
	return out
}
