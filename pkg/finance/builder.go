package finance

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Builder derives balanced journal entries from capital events against a
// chart of accounts. All amounts are quantized here, once, before commit.
type Builder struct {
	chart Chart
}

// NewBuilder validates the chart and returns a builder over it.
func NewBuilder(chart Chart) (*Builder, error) {
	if chart == nil {
		chart = DefaultChart()
	}
	if err := chart.Validate(); err != nil {
		return nil, err
	}
	return &Builder{chart: chart}, nil
}

func (b *Builder) pair(debitType, creditType AccountType, amount decimal.Decimal, memo string) (JournalEntry, error) {
	if err := ValidateAmount(amount); err != nil {
		return JournalEntry{}, err
	}
	debit, err := b.chart.Account(debitType)
	if err != nil {
		return JournalEntry{}, err
	}
	credit, err := b.chart.Account(creditType)
	if err != nil {
		return JournalEntry{}, err
	}
	amount = Quantize(amount)
	return JournalEntry{
		Lines: []Line{
			{Account: debit, Side: Debit, Amount: amount},
			{Account: credit, Side: Credit, Amount: amount},
		},
		Memo: memo,
	}, nil
}

// Capitalize books the asset at its acquisition value against the capital
// reserve.
func (b *Builder) Capitalize(assetID string, value decimal.Decimal) (JournalEntry, error) {
	return b.pair(AccountAsset, AccountCapitalReserve, value,
		fmt.Sprintf("capitalize %s", assetID))
}

// Allocate records an ownership transfer. Reassignment has no monetary
// effect, so the memo pair carries a zero amount.
func (b *Builder) Allocate(assetID, previousOwner, newOwner string) (JournalEntry, error) {
	return b.pair(AccountAllocationMemo, AccountAllocationOffset, decimal.Zero,
		fmt.Sprintf("allocate %s: %s -> %s", assetID, previousOwner, newOwner))
}

// Utilize records usage in the memo accounts; book value is untouched.
func (b *Builder) Utilize(assetID string, amount decimal.Decimal) (JournalEntry, error) {
	return b.pair(AccountUtilizationMemo, AccountUtilizationOffset, amount,
		fmt.Sprintf("utilize %s", assetID))
}

// Depreciate expenses the period decrement against accumulated
// depreciation.
func (b *Builder) Depreciate(assetID string, amount decimal.Decimal) (JournalEntry, error) {
	return b.pair(AccountDepreciationExpense, AccountAccumulatedDepreciation, amount,
		fmt.Sprintf("depreciate %s", assetID))
}

// Retire writes the asset off: accumulated depreciation and the remaining
// book value together extinguish the full acquisition value. Zero-amount
// positions are omitted; the entry always keeps at least two lines.
func (b *Builder) Retire(assetID string, accumulated, remaining, acquisition decimal.Decimal) (JournalEntry, error) {
	for _, d := range []decimal.Decimal{accumulated, remaining, acquisition} {
		if err := ValidateAmount(d); err != nil {
			return JournalEntry{}, err
		}
	}
	accumulated = Quantize(accumulated)
	remaining = Quantize(remaining)
	acquisition = Quantize(acquisition)
	if !accumulated.Add(remaining).Equal(acquisition) {
		return JournalEntry{}, fmt.Errorf("%w: write-off parts %s + %s != acquisition %s",
			ErrUnbalanced, accumulated, remaining, acquisition)
	}

	asset, err := b.chart.Account(AccountAsset)
	if err != nil {
		return JournalEntry{}, err
	}
	accDep, err := b.chart.Account(AccountAccumulatedDepreciation)
	if err != nil {
		return JournalEntry{}, err
	}
	loss, err := b.chart.Account(AccountImpairmentLoss)
	if err != nil {
		return JournalEntry{}, err
	}

	lines := make([]Line, 0, 3)
	if accumulated.IsPositive() {
		lines = append(lines, Line{Account: accDep, Side: Debit, Amount: accumulated})
	}
	if remaining.IsPositive() {
		lines = append(lines, Line{Account: loss, Side: Debit, Amount: remaining})
	}
	lines = append(lines, Line{Account: asset, Side: Credit, Amount: acquisition})
	if len(lines) < 2 {
		// Fully worthless asset with no history: keep the pair explicit.
		lines = append([]Line{{Account: loss, Side: Debit, Amount: decimal.Zero}}, lines...)
	}
	return JournalEntry{Lines: lines, Memo: fmt.Sprintf("retire %s", assetID)}, nil
}

// Correction mirrors the original entry's lines so the net effect of the
// pair is zero. The original is never modified.
func (b *Builder) Correction(original JournalEntry, reason string) (JournalEntry, error) {
	if err := original.Validate(); err != nil {
		return JournalEntry{}, fmt.Errorf("finance: cannot correct invalid entry: %w", err)
	}
	memo := "correction"
	if reason != "" {
		memo = "correction: " + reason
	}
	return original.Mirror(memo), nil
}
