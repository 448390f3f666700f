package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/PaesslerAG/jsonpath"

	"cassa/internal/core"
	"cassa/internal/ledger"
)

// required lists the paths an import must carry before it may overwrite the
// current state.
var required = []string{"$.personal", "$.log"}

// Encode renders b as an indented JSON document.
func Encode(b ledger.Book) ([]byte, error) {
	return json.MarshalIndent(ToDocument(b), "", "  ")
}

// Decode parses a document, rebuilds the book and checks that the balances
// it carries are the ones its log produces.
func Decode(data []byte) (ledger.Book, error) {
	doc, err := Parse(data)
	if err != nil {
		return ledger.Book{}, err
	}
	b, err := FromDocument(doc)
	if err != nil {
		return ledger.Book{}, err
	}
	if err := ledger.Verify(b); err != nil {
		return ledger.Book{}, err
	}
	return b, nil
}

// Parse validates the structure of a document and decodes every log item
// into its typed form.
func Parse(data []byte) (Document, error) {
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return Document{}, fmt.Errorf("%w: %v", core.ErrMalformedSnapshot, err)
	}
	if _, ok := generic.(map[string]any); !ok {
		return Document{}, fmt.Errorf("%w: top level is not an object", core.ErrMalformedSnapshot)
	}
	for _, path := range required {
		v, err := jsonpath.Get(path, generic)
		if err != nil || v == nil {
			return Document{}, fmt.Errorf("%w: missing %s", core.ErrMalformedSnapshot, path)
		}
	}
	if v, _ := jsonpath.Get("$.log", generic); v != nil {
		if _, ok := v.([]any); !ok {
			return Document{}, fmt.Errorf("%w: log is not a list", core.ErrMalformedSnapshot)
		}
	}

	var raw struct {
		Document
		Log []json.RawMessage `json:"log"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("%w: %v", core.ErrMalformedSnapshot, err)
	}
	if raw.Version > Version {
		return Document{}, fmt.Errorf("%w: version %d is newer than %d", core.ErrMalformedSnapshot, raw.Version, Version)
	}
	doc := raw.Document
	doc.Log = make([]any, 0, len(raw.Log))
	for i, item := range raw.Log {
		v, err := decodeItem(item)
		if err != nil {
			return Document{}, fmt.Errorf("%w: log item %d: %v", core.ErrMalformedSnapshot, i, err)
		}
		doc.Log = append(doc.Log, v)
	}
	return doc, nil
}

func decodeItem(data []byte) (any, error) {
	var h head
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	var v any
	switch h.Kind {
	case ledger.KindIncome, ledger.KindGain, ledger.KindLoss:
		v = &userItem{}
	case ledger.KindExpense:
		v = &expenseItem{}
	case ledger.KindTransfer:
		v = &transferItem{}
	case ledger.KindJointSpend:
		v = &jointSpendItem{}
	case ledger.KindBuy:
		v = &buyItem{}
	case ledger.KindSell:
		v = &sellItem{}
	case ledger.KindSettlement:
		v = &settlementItem{}
	default:
		return nil, fmt.Errorf("unknown kind %q", h.Kind)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	return v, nil
}

// FromDocument rebuilds a book from a parsed document. Balances are taken
// as stored; Decode additionally verifies them against the log.
func FromDocument(doc Document) (ledger.Book, error) {
	acc := ledger.NewAccounts()
	for u, v := range doc.Personal {
		if err := u.Validate(); err != nil {
			return ledger.Book{}, errors.Join(core.ErrMalformedSnapshot, err)
		}
		acc.Personal[u] = v
	}
	acc.JointCash = doc.JointCash
	for c, v := range doc.JointPrincipal {
		if err := c.Validate(); err != nil {
			return ledger.Book{}, errors.Join(core.ErrMalformedSnapshot, err)
		}
		acc.Principal[c] = v
	}
	for c, d := range doc.ReturnRatePercent {
		if err := c.Validate(); err != nil {
			return ledger.Book{}, errors.Join(core.ErrMalformedSnapshot, err)
		}
		r := core.Rate{Decimal: d}
		if err := r.Validate(); err != nil {
			return ledger.Book{}, errors.Join(core.ErrMalformedSnapshot, err)
		}
		acc.Rates[c] = r
	}

	entries := make([]ledger.Entry, 0, len(doc.Log))
	seen := make(map[string]bool, len(doc.Log))
	for i, item := range doc.Log {
		e, err := entryOf(item)
		if err == nil {
			err = checkEntry(e)
		}
		if err != nil {
			return ledger.Book{}, fmt.Errorf("%w: log item %d: %w", core.ErrMalformedSnapshot, i, err)
		}
		id := e.Base().ID
		if id == "" || seen[id] {
			return ledger.Book{}, fmt.Errorf("%w: log item %d: missing or duplicate id %q", core.ErrMalformedSnapshot, i, id)
		}
		seen[id] = true
		entries = append(entries, e)
	}
	return ledger.Book{Accounts: acc, Log: ledger.NewLog(entries...)}, nil
}

func entryOf(item any) (ledger.Entry, error) {
	switch t := deref(item).(type) {
	case userItem:
		switch t.Kind {
		case ledger.KindIncome:
			return ledger.Income{Meta: t.meta(), User: t.User, Amount: t.Amount}, nil
		case ledger.KindGain, ledger.KindLoss:
			return ledger.Result{Meta: t.meta(), User: t.User, Amount: t.Amount, Loss: t.Kind == ledger.KindLoss}, nil
		}
		return nil, fmt.Errorf("kind %q does not carry a user amount", t.Kind)
	case expenseItem:
		b := core.Breakdown{Food: t.Breakdown.Food, Shopping: t.Breakdown.Shopping, Fixed: t.Breakdown.Fixed, Other: t.Breakdown.Other}
		if t.Amount != 0 && t.Amount != b.Total() {
			return nil, fmt.Errorf("expense amount %s does not match breakdown %s", t.Amount, b.Total())
		}
		return ledger.Expense{Meta: t.meta(), User: t.User, Breakdown: b}, nil
	case transferItem:
		return ledger.Transfer{Meta: t.meta(), From: t.From, To: ledger.Destination{Bucket: t.To, Class: t.AssetClass}, Amount: t.Amount}, nil
	case jointSpendItem:
		return ledger.JointSpend{Meta: t.meta(), Amount: t.Amount, Category: t.Category,
			AdvancedBy: t.AdvancedBy, Settled: t.IsSettled, SettledBy: t.SettledBy}, nil
	case buyItem:
		return ledger.Buy{Meta: t.meta(), Class: t.AssetClass, Amount: t.Amount}, nil
	case sellItem:
		return ledger.Sell{Meta: t.meta(), Class: t.AssetClass, Amount: t.Amount,
			PrincipalDeducted: t.PrincipalDeducted, Rate: core.Rate{Decimal: t.ReturnRatePercent}}, nil
	case settlementItem:
		return ledger.Settlement{Meta: t.meta(), User: t.User, Amount: t.Amount, Covers: t.Covers}, nil
	}
	return nil, fmt.Errorf("unsupported log item %T", item)
}

func deref(item any) any {
	switch t := item.(type) {
	case *userItem:
		return *t
	case *expenseItem:
		return *t
	case *transferItem:
		return *t
	case *jointSpendItem:
		return *t
	case *buyItem:
		return *t
	case *sellItem:
		return *t
	case *settlementItem:
		return *t
	}
	return item
}

// checkEntry applies the same field rules the engine enforces on new entries.
func checkEntry(e ledger.Entry) error {
	if err := e.Base().Date.Validate(); err != nil {
		return err
	}
	if err := e.Total().Validate(); err != nil {
		return err
	}
	switch t := e.(type) {
	case ledger.Income:
		return t.User.Validate()
	case ledger.Result:
		return t.User.Validate()
	case ledger.Expense:
		if err := t.Breakdown.Validate(); err != nil {
			return err
		}
		return t.User.Validate()
	case ledger.Transfer:
		if err := t.From.Validate(); err != nil {
			return err
		}
		return t.To.Validate()
	case ledger.JointSpend:
		if err := t.Category.Validate(); err != nil {
			return err
		}
		if t.AdvancedBy == "" {
			if t.Settled {
				return errors.New("direct joint spend cannot be settled")
			}
			return nil
		}
		return t.AdvancedBy.Validate()
	case ledger.Buy:
		return t.Class.Validate()
	case ledger.Sell:
		if err := t.Class.Validate(); err != nil {
			return err
		}
		return t.Rate.Validate()
	case ledger.Settlement:
		if len(t.Covers) == 0 {
			return errors.New("settlement covers nothing")
		}
		return t.User.Validate()
	}
	return nil
}
