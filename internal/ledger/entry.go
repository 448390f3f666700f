package ledger

import (
	"fmt"
	"slices"

	"cassa/internal/core"
)

// Kind is the discriminator of a log entry.
type Kind string

const (
	KindIncome     Kind = "income"
	KindGain       Kind = "personal_gain"
	KindLoss       Kind = "personal_loss"
	KindExpense    Kind = "expense"
	KindTransfer   Kind = "transfer"
	KindJointSpend Kind = "joint_spend"
	KindBuy        Kind = "invest_buy"
	KindSell       Kind = "invest_sell"
	KindSettlement Kind = "advance_settlement"
)

var kindLabels = map[Kind]string{
	KindIncome:     "Income",
	KindGain:       "Investment gain",
	KindLoss:       "Investment loss",
	KindExpense:    "Expense",
	KindTransfer:   "Transfer",
	KindJointSpend: "Joint spend",
	KindBuy:        "Invest",
	KindSell:       "Liquidate",
	KindSettlement: "Settlement",
}

// Label is the human readable name of the kind.
func (k Kind) Label() string {
	if l, ok := kindLabels[k]; ok {
		return l
	}
	return string(k)
}

// JointOwner is the owner reported by entries that move joint money.
const JointOwner = "joint"

// Entry is one record of the transaction log. Implementations are value
// types; changing an entry means replacing it in the log.
type Entry interface {
	Kind() Kind
	Base() Meta
	// Total is the positive amount the entry is about.
	Total() core.Amount
	// Owner names the balance bucket that carries the effect.
	Owner() string
	Equal(Entry) bool
}

// Meta is the part shared by every entry.
type Meta struct {
	ID       string
	Date     core.Date
	Operator string
	Note     string
}

func (m Meta) Base() Meta { return m }

func (m Meta) equal(o Meta) bool {
	return m.ID == o.ID && m.Date.Equal(o.Date) && m.Operator == o.Operator && m.Note == o.Note
}

// Income credits a user's personal cash.
type Income struct {
	Meta
	User   core.UserID
	Amount core.Amount
}

func (Income) Kind() Kind           { return KindIncome }
func (t Income) Total() core.Amount { return t.Amount }
func (t Income) Owner() string      { return string(t.User) }
func (t Income) Equal(other Entry) bool {
	o, ok := other.(Income)
	return ok && t.Meta.equal(o.Meta) && t.User == o.User && t.Amount == o.Amount
}

// Result is a personal investment gain, or a loss when Loss is set.
type Result struct {
	Meta
	User   core.UserID
	Amount core.Amount
	Loss   bool
}

func (t Result) Kind() Kind {
	if t.Loss {
		return KindLoss
	}
	return KindGain
}
func (t Result) Total() core.Amount { return t.Amount }
func (t Result) Owner() string      { return string(t.User) }
func (t Result) Equal(other Entry) bool {
	o, ok := other.(Result)
	return ok && t.Meta.equal(o.Meta) && t.User == o.User && t.Amount == o.Amount && t.Loss == o.Loss
}

// delta is the signed change to personal cash.
func (t Result) delta() core.Amount {
	if t.Loss {
		return -t.Amount
	}
	return t.Amount
}

// Expense debits a user's personal cash, split by category.
type Expense struct {
	Meta
	User      core.UserID
	Breakdown core.Breakdown
}

func (Expense) Kind() Kind           { return KindExpense }
func (t Expense) Total() core.Amount { return t.Breakdown.Total() }
func (t Expense) Owner() string      { return string(t.User) }
func (t Expense) Equal(other Entry) bool {
	o, ok := other.(Expense)
	return ok && t.Meta.equal(o.Meta) && t.User == o.User && t.Breakdown == o.Breakdown
}

// Bucket names a joint destination of a transfer.
type Bucket string

const (
	BucketCash      Bucket = "jointCash"
	BucketPrincipal Bucket = "jointPrincipal"
)

// Destination is where transferred money lands.
type Destination struct {
	Bucket Bucket
	Class  core.AssetClass // only for BucketPrincipal
}

// ToCash is the joint cash destination.
func ToCash() Destination { return Destination{Bucket: BucketCash} }

// ToPrincipal is the principal bucket of class.
func ToPrincipal(class core.AssetClass) Destination {
	return Destination{Bucket: BucketPrincipal, Class: class}
}

func (d Destination) Validate() error {
	switch d.Bucket {
	case BucketCash:
		if d.Class != "" {
			return fmt.Errorf("%w: joint cash cannot carry asset class %q", core.ErrUnknownDestination, d.Class)
		}
		return nil
	case BucketPrincipal:
		return d.Class.Validate()
	}
	return fmt.Errorf("%w: bucket %q", core.ErrUnknownDestination, d.Bucket)
}

func (d Destination) String() string {
	if d.Bucket == BucketPrincipal {
		return string(d.Bucket) + "." + string(d.Class)
	}
	return string(d.Bucket)
}

// Transfer moves personal cash into a joint bucket.
type Transfer struct {
	Meta
	From   core.UserID
	To     Destination
	Amount core.Amount
}

func (Transfer) Kind() Kind           { return KindTransfer }
func (t Transfer) Total() core.Amount { return t.Amount }
func (t Transfer) Owner() string      { return string(t.From) }
func (t Transfer) Equal(other Entry) bool {
	o, ok := other.(Transfer)
	return ok && t.Meta.equal(o.Meta) && t.From == o.From && t.To == o.To && t.Amount == o.Amount
}

// JointSpend is a joint expense. With AdvancedBy empty it was paid from joint
// cash; otherwise the named user paid it and is owed the amount until
// settled. SettledBy holds the ID of the settlement entry that covers it.
type JointSpend struct {
	Meta
	Amount     core.Amount
	Category   core.Category
	AdvancedBy core.UserID
	Settled    bool
	SettledBy  string
}

func (JointSpend) Kind() Kind           { return KindJointSpend }
func (t JointSpend) Total() core.Amount { return t.Amount }
func (t JointSpend) Owner() string {
	if t.IsAdvance() {
		return string(t.AdvancedBy)
	}
	return JointOwner
}
func (t JointSpend) Equal(other Entry) bool {
	o, ok := other.(JointSpend)
	return ok && t.Meta.equal(o.Meta) && t.Amount == o.Amount && t.Category == o.Category &&
		t.AdvancedBy == o.AdvancedBy && t.Settled == o.Settled && t.SettledBy == o.SettledBy
}

// IsAdvance reports whether a user paid the spend out of pocket.
func (t JointSpend) IsAdvance() bool { return t.AdvancedBy != "" }

// Outstanding reports whether the spend is an advance still owed to its payer.
func (t JointSpend) Outstanding() bool { return t.IsAdvance() && !t.Settled }

// Buy moves joint cash into the principal of an asset class.
type Buy struct {
	Meta
	Class  core.AssetClass
	Amount core.Amount
}

func (Buy) Kind() Kind           { return KindBuy }
func (t Buy) Total() core.Amount { return t.Amount }
func (Buy) Owner() string        { return JointOwner }
func (t Buy) Equal(other Entry) bool {
	o, ok := other.(Buy)
	return ok && t.Meta.equal(o.Meta) && t.Class == o.Class && t.Amount == o.Amount
}

// Sell realises Amount of cash from an asset class. PrincipalDeducted is the
// part of the principal it consumed, fixed at the rate in force when the sale
// was recorded.
type Sell struct {
	Meta
	Class             core.AssetClass
	Amount            core.Amount
	PrincipalDeducted core.Amount
	Rate              core.Rate
}

func (Sell) Kind() Kind           { return KindSell }
func (t Sell) Total() core.Amount { return t.Amount }
func (Sell) Owner() string        { return JointOwner }
func (t Sell) Equal(other Entry) bool {
	o, ok := other.(Sell)
	return ok && t.Meta.equal(o.Meta) && t.Class == o.Class && t.Amount == o.Amount &&
		t.PrincipalDeducted == o.PrincipalDeducted && t.Rate.Equal(o.Rate)
}

// Gain is the part of the sale that was not principal.
func (t Sell) Gain() core.Amount { return t.Amount - t.PrincipalDeducted }

// Settlement acknowledges that a user was repaid the advances listed in Covers.
type Settlement struct {
	Meta
	User   core.UserID
	Amount core.Amount
	Covers []string
}

func (Settlement) Kind() Kind           { return KindSettlement }
func (t Settlement) Total() core.Amount { return t.Amount }
func (t Settlement) Owner() string      { return string(t.User) }
func (t Settlement) Equal(other Entry) bool {
	o, ok := other.(Settlement)
	return ok && t.Meta.equal(o.Meta) && t.User == o.User && t.Amount == o.Amount && slices.Equal(t.Covers, o.Covers)
}

// Category returns the spending category of an entry, if it has exactly one.
func Category(e Entry) (core.Category, bool) {
	if js, ok := e.(JointSpend); ok {
		return js.Category, true
	}
	return "", false
}
