package icl

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/icl/core/pkg/capital"
	"github.com/Mindburn-Labs/icl/core/pkg/finance"
	"github.com/Mindburn-Labs/icl/core/pkg/ledger"
)

// StatementRequest selects the journal lines to aggregate. A zero
// AssetID spans the whole ledger; From is inclusive, To exclusive.
type StatementRequest struct {
	AssetID string
	From    time.Time
	To      time.Time
}

// StatementRow is one account's activity in one calendar month.
// Balance follows the account's normal side, so contra accounts read
// positive when they grow.
type StatementRow struct {
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	Period      string          `json:"period"`
	Currency    string          `json:"currency"`
	Debits      decimal.Decimal `json:"debits"`
	Credits     decimal.Decimal `json:"credits"`
	Balance     decimal.Decimal `json:"balance"`
	Display     string          `json:"display"`
}

// Statement aggregates committed journal lines by account and calendar
// month over the requested window.
func (l *Ledger) Statement(ctx context.Context, req StatementRequest) ([]StatementRow, error) {
	ctx, finish := l.track(ctx, "icl.statement")
	rows, err := l.statement(ctx, req)
	finish(err)
	return rows, err
}

func (l *Ledger) statement(ctx context.Context, req StatementRequest) ([]StatementRow, error) {
	entries, err := l.store.ReadRange(ctx, ledger.Filter{
		AssetID: req.AssetID,
		From:    req.From,
		To:      req.To,
	})
	if err != nil {
		return nil, fmt.Errorf("icl: statement: %w", err)
	}

	type key struct {
		code     string
		period   string
		currency string
	}
	acc := make(map[key]*StatementRow)
	sides := make(map[key]finance.Side)
	for _, e := range entries {
		period := e.EffectiveAt.UTC().Format("2006-01")
		for _, line := range e.Journal.Lines {
			k := key{code: line.Account.Code, period: period, currency: e.Currency}
			row, ok := acc[k]
			if !ok {
				row = &StatementRow{
					AccountCode: line.Account.Code,
					AccountName: line.Account.Name,
					Period:      period,
					Currency:    e.Currency,
				}
				acc[k] = row
				sides[k] = line.Account.Type.NormalSide()
			}
			if line.Side == finance.Debit {
				row.Debits = row.Debits.Add(line.Amount)
			} else {
				row.Credits = row.Credits.Add(line.Amount)
			}
		}
	}

	rows := make([]StatementRow, 0, len(acc))
	for k, row := range acc {
		if sides[k] == finance.Debit {
			row.Balance = row.Debits.Sub(row.Credits)
		} else {
			row.Balance = row.Credits.Sub(row.Debits)
		}
		row.Display = finance.Format(row.Balance, row.Currency)
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Period != rows[j].Period {
			return rows[i].Period < rows[j].Period
		}
		return rows[i].AccountCode < rows[j].AccountCode
	})
	return rows, nil
}

// Summary is a point-in-time view of one asset and its ledger footprint.
type Summary struct {
	Asset        *capital.Asset `json:"asset"`
	EntryCount   int            `json:"entry_count"`
	LastSequence uint64         `json:"last_sequence"`
	LastEntryAt  time.Time      `json:"last_entry_at"`
	BookValue    string         `json:"book_value"`
}

// AssetSummary snapshots an asset together with its entry count and the
// position of its latest entry in the global chain.
func (l *Ledger) AssetSummary(ctx context.Context, assetID string) (Summary, error) {
	asset, err := l.manager.Asset(assetID)
	if err != nil {
		return Summary{}, err
	}
	entries, err := l.store.ReadRange(ctx, ledger.Filter{AssetID: assetID})
	if err != nil {
		return Summary{}, fmt.Errorf("icl: summary %s: %w", assetID, err)
	}
	s := Summary{
		Asset:      asset,
		EntryCount: len(entries),
		BookValue:  finance.Format(asset.BookValue, asset.Currency),
	}
	if n := len(entries); n > 0 {
		s.LastSequence = entries[n-1].Sequence
		s.LastEntryAt = entries[n-1].EffectiveAt
	}
	return s, nil
}
