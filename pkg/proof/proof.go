// Package proof reconstructs the causal chain behind a capital figure and
// re-verifies it. A proof is evidence, not an assertion: when the ledger
// does not support the figure, the proof comes back invalid with the first
// divergence identified; it is never an error and never silently repaired.
package proof

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/icl/core/pkg/canonicalize"
	"github.com/Mindburn-Labs/icl/core/pkg/integrity"
	"github.com/Mindburn-Labs/icl/core/pkg/ledger"
)

// CapitalProof is the verification result for one asset's book value. It is
// derived on demand and not stored; identical ledger state yields an
// identical proof (GeneratedAt excluded).
type CapitalProof struct {
	ID                string           `json:"id"`
	AssetID           string           `json:"asset_id"`
	EntryIDs          []string         `json:"entry_ids"`
	ComputedBookValue decimal.Decimal  `json:"computed_book_value"`
	ClaimedFigure     *decimal.Decimal `json:"claimed_figure,omitempty"`
	Valid             bool             `json:"valid"`
	Reason            string           `json:"reason,omitempty"`
	DivergentEntryID  string           `json:"divergent_entry_id,omitempty"`
	ProofHash         string           `json:"proof_hash"`
	GeneratedAt       time.Time        `json:"generated_at"`
}

// proofHashFields excludes GeneratedAt so regenerating an unchanged ledger
// reproduces the same hash.
type proofHashFields struct {
	AssetID           string           `json:"asset_id"`
	EntryIDs          []string         `json:"entry_ids"`
	ComputedBookValue decimal.Decimal  `json:"computed_book_value"`
	ClaimedFigure     *decimal.Decimal `json:"claimed_figure,omitempty"`
	Valid             bool             `json:"valid"`
	Reason            string           `json:"reason,omitempty"`
	DivergentEntryID  string           `json:"divergent_entry_id,omitempty"`
}

// Generator builds capital proofs from a ledger store.
type Generator struct {
	store   ledger.Store
	checker *integrity.Checker
	clock   func() time.Time
}

// NewGenerator creates a proof generator. A nil checker gets the default
// (no signature verification).
func NewGenerator(store ledger.Store, checker *integrity.Checker) *Generator {
	if checker == nil {
		checker = integrity.NewChecker()
	}
	return &Generator{store: store, checker: checker, clock: time.Now}
}

// WithClock overrides the proof timestamp source for testing.
func (g *Generator) WithClock(clock func() time.Time) *Generator {
	g.clock = clock
	return g
}

// Generate proves the asset's current book value from its ledger history.
// Errors are infrastructure failures only; a ledger that fails verification
// produces an invalid proof, not an error.
func (g *Generator) Generate(ctx context.Context, assetID string) (CapitalProof, error) {
	return g.generate(ctx, assetID, nil)
}

// GenerateForFigure proves whether the claimed figure matches the book
// value recomputed from the ledger.
func (g *Generator) GenerateForFigure(ctx context.Context, assetID string, figure decimal.Decimal) (CapitalProof, error) {
	return g.generate(ctx, assetID, &figure)
}

func (g *Generator) generate(ctx context.Context, assetID string, claimed *decimal.Decimal) (CapitalProof, error) {
	entries, err := g.store.ReadRange(ctx, ledger.Filter{})
	if err != nil {
		return CapitalProof{}, fmt.Errorf("read chain: %w", err)
	}
	head, err := g.store.Head(ctx)
	if err != nil {
		return CapitalProof{}, fmt.Errorf("read head: %w", err)
	}

	proof := CapitalProof{
		AssetID:       assetID,
		EntryIDs:      make([]string, 0),
		ClaimedFigure: claimed,
		GeneratedAt:   g.clock().UTC(),
	}

	assetEntries := make([]ledger.Entry, 0)
	for _, e := range entries {
		if e.AssetID == assetID {
			assetEntries = append(assetEntries, e)
			proof.EntryIDs = append(proof.EntryIDs, e.ID)
		}
	}

	switch {
	case len(assetEntries) == 0:
		proof.Reason = fmt.Sprintf("no ledger entries for asset %s", assetID)
	default:
		report, err := g.checker.VerifyEntries(ctx, entries, head)
		if err != nil {
			return CapitalProof{}, fmt.Errorf("verify chain: %w", err)
		}
		if !report.Valid {
			first, _ := report.First()
			proof.Reason = fmt.Sprintf("ledger verification failed: %s (%s)", first.Code, first.Detail)
			proof.DivergentEntryID = first.EntryID
			break
		}

		book, divergent, reason := recomputeBookValue(assetEntries)
		proof.ComputedBookValue = book
		if reason != "" {
			proof.Reason = reason
			proof.DivergentEntryID = divergent
			break
		}

		if claimed != nil && !claimed.Equal(book) {
			proof.Reason = fmt.Sprintf("claimed %s, ledger supports %s", claimed, book)
			break
		}
		proof.Valid = true
	}

	hash, err := canonicalize.CanonicalHash(proofHashFields{
		AssetID:           proof.AssetID,
		EntryIDs:          proof.EntryIDs,
		ComputedBookValue: proof.ComputedBookValue,
		ClaimedFigure:     proof.ClaimedFigure,
		Valid:             proof.Valid,
		Reason:            proof.Reason,
		DivergentEntryID:  proof.DivergentEntryID,
	})
	if err != nil {
		return CapitalProof{}, fmt.Errorf("hash proof: %w", err)
	}
	proof.ProofHash = hash
	proof.ID = "proof-" + strings.TrimPrefix(hash, canonicalize.HashPrefix)[:12]

	return proof, nil
}

// recomputeBookValue replays the asset's entries. Corrections reverse the
// effect of the entry they reference.
func recomputeBookValue(entries []ledger.Entry) (book decimal.Decimal, divergentID, reason string) {
	byID := make(map[string]ledger.Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	for _, e := range entries {
		switch e.Classification {
		case ledger.ClassCapitalization:
			book = e.Amount
		case ledger.ClassDepreciation:
			book = book.Sub(e.Amount)
		case ledger.ClassRetirement:
			book = decimal.Zero
		case ledger.ClassCorrection:
			original, ok := byID[e.CorrectsEntryID]
			if !ok {
				return book, e.ID, fmt.Sprintf("correction %s references unknown entry %s", e.ID, e.CorrectsEntryID)
			}
			switch original.Classification {
			case ledger.ClassCapitalization:
				book = book.Sub(original.Amount)
			case ledger.ClassDepreciation:
				book = book.Add(original.Amount)
			}
			// Utilization and allocation corrections do not move book value.
		case ledger.ClassUtilization, ledger.ClassAllocation:
			// Usage and ownership records, not valuation changes.
		}
		if book.IsNegative() {
			return book, e.ID, fmt.Sprintf("book value %s negative after entry %s", book, e.ID)
		}
	}
	return book, "", ""
}

// VerifyProofHash recomputes the proof's hash from its content. A false
// result means the proof document was altered after generation.
func VerifyProofHash(p CapitalProof) (bool, error) {
	hash, err := canonicalize.CanonicalHash(proofHashFields{
		AssetID:           p.AssetID,
		EntryIDs:          p.EntryIDs,
		ComputedBookValue: p.ComputedBookValue,
		ClaimedFigure:     p.ClaimedFigure,
		Valid:             p.Valid,
		Reason:            p.Reason,
		DivergentEntryID:  p.DivergentEntryID,
	})
	if err != nil {
		return false, err
	}
	return hash == p.ProofHash, nil
}
