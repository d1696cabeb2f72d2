package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/icl/core/pkg/icl"
	"github.com/Mindburn-Labs/icl/core/pkg/lifecycle"
)

// runDemo walks one asset through its whole lifecycle against an
// in-memory ledger and prints what an auditor would see. Useful as a
// smoke test and as living documentation of the flow.
func runDemo(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	jan1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	jun1 := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	l, err := icl.New(ctx, icl.WithClock(func() time.Time { return now }))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	fmt.Fprintln(stdout, "== Intelligence capital ledger demo ==")
	fmt.Fprintln(stdout, "")

	entry, err := l.Capitalize(ctx, lifecycle.CapitalizeRequest{
		AssetID:          "asset-reco-v3",
		Name:             "Recommendation Model v3",
		Type:             "MODEL",
		Owner:            "ML Platform",
		Value:            decimal.RequireFromString("100000"),
		Currency:         "USD",
		Method:           "LINEAR",
		UsefulLifeMonths: 24,
		Actor:            "cfo",
		EffectiveAt:      jan1,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: capitalize: %v\n", err)
		return 2
	}
	fmt.Fprintf(stdout, "CAPITALIZATION  seq=%d  %s %s  %s\n",
		entry.Sequence, entry.Amount.StringFixed(2), entry.Currency, entry.ContentHash)

	entry, err = l.Allocate(ctx, lifecycle.AllocateRequest{
		AssetID:     "asset-reco-v3",
		NewOwner:    "Product Engineering",
		Actor:       "cto",
		EffectiveAt: jan1.Add(30 * time.Minute),
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: allocate: %v\n", err)
		return 2
	}
	fmt.Fprintf(stdout, "ALLOCATION      seq=%d  owner=Product Engineering  %s\n",
		entry.Sequence, entry.ContentHash)

	entry, err = l.Utilize(ctx, lifecycle.UtilizeRequest{
		AssetID:     "asset-reco-v3",
		Amount:      decimal.RequireFromString("5000"),
		Actor:       "inference-gateway",
		EffectiveAt: jan1.Add(time.Hour),
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: utilize: %v\n", err)
		return 2
	}
	fmt.Fprintf(stdout, "UTILIZATION     seq=%d  %s %s  %s\n",
		entry.Sequence, entry.Amount.StringFixed(2), entry.Currency, entry.ContentHash)

	entry, err = l.Depreciate(ctx, lifecycle.DepreciateRequest{
		AssetID:     "asset-reco-v3",
		PeriodStart: jan1,
		PeriodEnd:   jun1,
		Actor:       "close-bot",
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: depreciate: %v\n", err)
		return 2
	}
	fmt.Fprintf(stdout, "DEPRECIATION    seq=%d  %s %s  %s\n",
		entry.Sequence, entry.Amount.StringFixed(2), entry.Currency, entry.ContentHash)

	summary, err := l.AssetSummary(ctx, "asset-reco-v3")
	if err != nil {
		fmt.Fprintf(stderr, "Error: summary: %v\n", err)
		return 2
	}
	fmt.Fprintln(stdout, "")
	fmt.Fprintf(stdout, "Book value after five months: %s across %d entries\n",
		summary.BookValue, summary.EntryCount)

	capProof, err := l.GenerateProof(ctx, "asset-reco-v3")
	if err != nil {
		fmt.Fprintf(stderr, "Error: proof: %v\n", err)
		return 2
	}
	fmt.Fprintf(stdout, "Capital proof:  valid=%t  entries=%d  book_value=%s  %s\n",
		capProof.Valid, len(capProof.EntryIDs), capProof.ComputedBookValue.StringFixed(2), capProof.ProofHash)

	report, err := l.VerifyIntegrity(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: verify: %v\n", err)
		return 2
	}
	fmt.Fprintf(stdout, "Chain check:    valid=%t  checked=%d  head=%s\n",
		report.Valid, report.Checked, report.HeadHash)
	return 0
}
