// Package snapshot converts a ledger.Book to and from the self-describing
// JSON document that is persisted and exported.
package snapshot

import (
	"github.com/shopspring/decimal"

	"cassa/internal/core"
	"cassa/internal/ledger"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// Version is the document version written by Encode.
const Version = 1

// Document is the persisted shape of a Book.
type Document struct {
	Version           int                                 `json:"version"`
	Personal          map[core.UserID]core.Amount         `json:"personal"`
	JointCash         core.Amount                         `json:"jointCash"`
	JointPrincipal    map[core.AssetClass]core.Amount     `json:"jointPrincipal"`
	ReturnRatePercent map[core.AssetClass]decimal.Decimal `json:"returnRatePercent"`
	Log               []any                               `json:"log"`
}

type head struct {
	Kind     ledger.Kind `json:"kind"`
	ID       string      `json:"id"`
	Date     core.Date   `json:"date"`
	Operator string      `json:"operator,omitempty"`
	Note     string      `json:"note,omitempty"`
}

func (h head) meta() ledger.Meta {
	return ledger.Meta{ID: h.ID, Date: h.Date, Operator: h.Operator, Note: h.Note}
}

func headOf(e ledger.Entry) head {
	m := e.Base()
	return head{Kind: e.Kind(), ID: m.ID, Date: m.Date, Operator: m.Operator, Note: m.Note}
}

// userItem serves income, personal_gain and personal_loss.
type userItem struct {
	head
	User   core.UserID `json:"user"`
	Amount core.Amount `json:"amount"`
}

type breakdown struct {
	Food     core.Amount `json:"food"`
	Shopping core.Amount `json:"shopping"`
	Fixed    core.Amount `json:"fixed"`
	Other    core.Amount `json:"other"`
}

type expenseItem struct {
	head
	User      core.UserID `json:"user"`
	Amount    core.Amount `json:"amount"`
	Breakdown breakdown   `json:"breakdown"`
}

type transferItem struct {
	head
	From       core.UserID     `json:"from"`
	To         ledger.Bucket   `json:"to"`
	AssetClass core.AssetClass `json:"assetClass,omitempty"`
	Amount     core.Amount     `json:"amount"`
}

type jointSpendItem struct {
	head
	Amount     core.Amount   `json:"amount"`
	Category   core.Category `json:"category"`
	AdvancedBy core.UserID   `json:"advancedBy,omitempty"`
	IsSettled  bool          `json:"isSettled,omitempty"`
	SettledBy  string        `json:"settledBy,omitempty"`
}

type buyItem struct {
	head
	AssetClass core.AssetClass `json:"assetClass"`
	Amount     core.Amount     `json:"amount"`
}

type sellItem struct {
	head
	AssetClass        core.AssetClass `json:"assetClass"`
	Amount            core.Amount     `json:"amount"`
	PrincipalDeducted core.Amount     `json:"principalDeducted"`
	ReturnRatePercent decimal.Decimal `json:"returnRatePercent"`
}

type settlementItem struct {
	head
	User   core.UserID `json:"user"`
	Amount core.Amount `json:"amount"`
	Covers []string    `json:"covers"`
}

func itemOf(e ledger.Entry) any {
	h := headOf(e)
	switch t := e.(type) {
	case ledger.Income:
		return userItem{head: h, User: t.User, Amount: t.Amount}
	case ledger.Result:
		return userItem{head: h, User: t.User, Amount: t.Amount}
	case ledger.Expense:
		b := t.Breakdown
		return expenseItem{head: h, User: t.User, Amount: b.Total(),
			Breakdown: breakdown{Food: b.Food, Shopping: b.Shopping, Fixed: b.Fixed, Other: b.Other}}
	case ledger.Transfer:
		return transferItem{head: h, From: t.From, To: t.To.Bucket, AssetClass: t.To.Class, Amount: t.Amount}
	case ledger.JointSpend:
		return jointSpendItem{head: h, Amount: t.Amount, Category: t.Category,
			AdvancedBy: t.AdvancedBy, IsSettled: t.Settled, SettledBy: t.SettledBy}
	case ledger.Buy:
		return buyItem{head: h, AssetClass: t.Class, Amount: t.Amount}
	case ledger.Sell:
		return sellItem{head: h, AssetClass: t.Class, Amount: t.Amount,
			PrincipalDeducted: t.PrincipalDeducted, ReturnRatePercent: t.Rate.Decimal}
	case ledger.Settlement:
		return settlementItem{head: h, User: t.User, Amount: t.Amount, Covers: t.Covers}
	}
	return h
}

// Item returns the wire form of a single entry, as it appears in the log.
func Item(e ledger.Entry) any { return itemOf(e) }

// ToDocument converts a book to its persisted shape.
func ToDocument(b ledger.Book) Document {
	a := b.Accounts
	doc := Document{
		Version:           Version,
		Personal:          make(map[core.UserID]core.Amount, 2),
		JointCash:         a.JointCash,
		JointPrincipal:    make(map[core.AssetClass]core.Amount, 4),
		ReturnRatePercent: make(map[core.AssetClass]decimal.Decimal, 4),
		Log:               make([]any, 0, b.Log.Len()),
	}
	for _, u := range core.Users() {
		doc.Personal[u] = a.Personal[u]
	}
	for _, c := range core.AssetClasses() {
		doc.JointPrincipal[c] = a.Principal[c]
		doc.ReturnRatePercent[c] = a.Rates[c].Decimal
	}
	for _, e := range b.Log.All() {
		doc.Log = append(doc.Log, itemOf(e))
	}
	return doc
}
