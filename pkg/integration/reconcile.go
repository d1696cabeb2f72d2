package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/icl/core/pkg/integrity"
	"github.com/Mindburn-Labs/icl/core/pkg/ledger"
	"github.com/Mindburn-Labs/icl/core/pkg/proof"
)

// Reconciliation statuses.
const (
	StatusReconciled = "reconciled"
	StatusMismatched = "mismatched"
)

// ExportedTotals is a downstream system's view of one asset.
type ExportedTotals struct {
	AssetID   string          `json:"asset_id"`
	BookValue decimal.Decimal `json:"book_value"`
}

// Mismatch reports one asset whose exported figure the ledger does not
// support.
type Mismatch struct {
	AssetID  string          `json:"asset_id"`
	Reason   string          `json:"reason"`
	Exported decimal.Decimal `json:"exported"`
	Computed decimal.Decimal `json:"computed"`
	ProofID  string          `json:"proof_id"`
}

// Report summarizes a reconciliation run. Mismatches are data, never
// errors; errors mean the ledger itself could not be read.
type Report struct {
	Status      string     `json:"status"`
	Checked     int        `json:"checked"`
	Mismatches  []Mismatch `json:"mismatches,omitempty"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// Reconciler checks exported totals against the ledger by proving each
// figure.
type Reconciler struct {
	generator *proof.Generator
	clock     func() time.Time
}

// NewReconciler creates a Reconciler over the given store.
func NewReconciler(store ledger.Store, checker *integrity.Checker) *Reconciler {
	return &Reconciler{
		generator: proof.NewGenerator(store, checker),
		clock:     time.Now,
	}
}

// WithClock overrides the report timestamp source for testing.
func (r *Reconciler) WithClock(clock func() time.Time) *Reconciler {
	r.clock = clock
	return r
}

// Reconcile proves every exported figure. An invalid proof becomes a
// mismatch carrying the ledger-computed value and the proof's reason.
func (r *Reconciler) Reconcile(ctx context.Context, exported []ExportedTotals) (Report, error) {
	report := Report{
		Status:      StatusReconciled,
		Checked:     len(exported),
		GeneratedAt: r.clock().UTC(),
	}

	for _, totals := range exported {
		p, err := r.generator.GenerateForFigure(ctx, totals.AssetID, totals.BookValue)
		if err != nil {
			return Report{}, fmt.Errorf("integration: reconcile %s: %w", totals.AssetID, err)
		}
		if p.Valid {
			continue
		}
		report.Mismatches = append(report.Mismatches, Mismatch{
			AssetID:  totals.AssetID,
			Reason:   p.Reason,
			Exported: totals.BookValue,
			Computed: p.ComputedBookValue,
			ProofID:  p.ID,
		})
	}

	if len(report.Mismatches) > 0 {
		report.Status = StatusMismatched
	}
	return report, nil
}
