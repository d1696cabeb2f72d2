package finance

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Side marks a journal line as a debit or a credit.
type Side string

const (
	Debit  Side = "DEBIT"
	Credit Side = "CREDIT"
)

var (
	ErrUnbalanced  = errors.New("finance: journal entry does not balance")
	ErrTooFewLines = errors.New("finance: journal entry needs at least two lines")
	ErrInvalidSide = errors.New("finance: invalid journal side")
)

// Line is one debit or credit against an account.
type Line struct {
	Account Account         `json:"account"`
	Side    Side            `json:"side"`
	Amount  decimal.Decimal `json:"amount"`
}

// JournalEntry is the balanced set of lines attached 1:1 to a ledger
// entry. Sum of debits must equal sum of credits exactly at the ledger
// scale.
type JournalEntry struct {
	Lines []Line `json:"lines"`
	Memo  string `json:"memo,omitempty"`
}

// Debits returns the sum of all debit lines.
func (j JournalEntry) Debits() decimal.Decimal {
	total := decimal.Zero
	for _, l := range j.Lines {
		if l.Side == Debit {
			total = total.Add(l.Amount)
		}
	}
	return total
}

// Credits returns the sum of all credit lines.
func (j JournalEntry) Credits() decimal.Decimal {
	total := decimal.Zero
	for _, l := range j.Lines {
		if l.Side == Credit {
			total = total.Add(l.Amount)
		}
	}
	return total
}

// Balanced reports whether debits equal credits exactly.
func (j JournalEntry) Balanced() bool {
	return j.Debits().Equal(j.Credits())
}

// Validate enforces the journal invariants: at least two lines, known
// sides, no negative amounts, and exact balance.
func (j JournalEntry) Validate() error {
	if len(j.Lines) < 2 {
		return ErrTooFewLines
	}
	for i, l := range j.Lines {
		if l.Side != Debit && l.Side != Credit {
			return fmt.Errorf("%w: line %d side %q", ErrInvalidSide, i, l.Side)
		}
		if err := ValidateAmount(l.Amount); err != nil {
			return fmt.Errorf("line %d: %w", i, err)
		}
	}
	if !j.Balanced() {
		return fmt.Errorf("%w: debits %s, credits %s", ErrUnbalanced, j.Debits(), j.Credits())
	}
	return nil
}

// Mirror returns the compensating entry: every debit becomes a credit and
// vice versa. Used for corrections; the original remains untouched.
func (j JournalEntry) Mirror(memo string) JournalEntry {
	lines := make([]Line, len(j.Lines))
	for i, l := range j.Lines {
		side := Debit
		if l.Side == Debit {
			side = Credit
		}
		lines[i] = Line{Account: l.Account, Side: side, Amount: l.Amount}
	}
	return JournalEntry{Lines: lines, Memo: memo}
}
