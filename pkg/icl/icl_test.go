package icl_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/icl/core/pkg/audit"
	"github.com/Mindburn-Labs/icl/core/pkg/capital"
	"github.com/Mindburn-Labs/icl/core/pkg/icl"
	"github.com/Mindburn-Labs/icl/core/pkg/ledger"
	"github.com/Mindburn-Labs/icl/core/pkg/lifecycle"
	"github.com/Mindburn-Labs/icl/core/pkg/limiter"
	"github.com/Mindburn-Labs/icl/core/pkg/policy"
	"github.com/Mindburn-Labs/icl/core/pkg/profile"
	"github.com/Mindburn-Labs/icl/core/pkg/signing"
)

var (
	jan1 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	jun1 = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	now  = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newLedger(t *testing.T, opts ...icl.Option) *icl.Ledger {
	t.Helper()
	opts = append([]icl.Option{icl.WithClock(func() time.Time { return now })}, opts...)
	l, err := icl.New(context.Background(), opts...)
	require.NoError(t, err)
	return l
}

// seed walks one asset from capitalization through its first
// depreciation window.
func seed(t *testing.T, l *icl.Ledger, assetID string) {
	t.Helper()
	ctx := context.Background()

	_, err := l.Capitalize(ctx, lifecycle.CapitalizeRequest{
		AssetID:          assetID,
		Name:             "Recommendation Model v3",
		Type:             capital.AssetTypeModel,
		Owner:            "ML Platform",
		Value:            d("100000"),
		Currency:         "USD",
		Method:           capital.MethodLinear,
		UsefulLifeMonths: 24,
		Actor:            "cfo",
		EffectiveAt:      jan1,
	})
	require.NoError(t, err)

	_, err = l.Allocate(ctx, lifecycle.AllocateRequest{
		AssetID:     assetID,
		NewOwner:    "Product Engineering",
		Actor:       "cto",
		EffectiveAt: jan1.Add(30 * time.Minute),
	})
	require.NoError(t, err)

	_, err = l.Utilize(ctx, lifecycle.UtilizeRequest{
		AssetID:     assetID,
		Amount:      d("5000"),
		Actor:       "inference-gateway",
		EffectiveAt: jan1.Add(time.Hour),
	})
	require.NoError(t, err)

	entry, err := l.Depreciate(ctx, lifecycle.DepreciateRequest{
		AssetID:     assetID,
		PeriodStart: jan1,
		PeriodEnd:   jun1,
		Actor:       "close-bot",
	})
	require.NoError(t, err)
	assert.Equal(t, "20833.33", entry.Amount.StringFixed(2))
}

func TestLedgerLifecycleEndToEnd(t *testing.T) {
	keyring, err := signing.NewKeyring([]byte("facade-test-master-secret"), "primary")
	require.NoError(t, err)
	l := newLedger(t, icl.WithSigner(keyring))
	ctx := context.Background()

	seed(t, l, "asset-reco-v3")

	asset, err := l.Asset("asset-reco-v3")
	require.NoError(t, err)
	assert.Equal(t, "Product Engineering", asset.Owner)
	assert.Equal(t, "79166.67", asset.BookValue.StringFixed(2))
	assert.Equal(t, "5000.00", asset.AccumulatedUtilization.StringFixed(2))

	p, err := l.GenerateProof(ctx, "asset-reco-v3")
	require.NoError(t, err)
	assert.True(t, p.Valid, "proof invalid: %s", p.Reason)
	assert.Len(t, p.EntryIDs, 4)
	assert.Equal(t, "79166.67", p.ComputedBookValue.StringFixed(2))
	assert.NotEmpty(t, p.ProofHash)

	report, err := l.VerifyIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, uint64(4), report.Checked)

	_, err = l.Retire(ctx, lifecycle.RetireRequest{
		AssetID: "asset-reco-v3",
		Reason:  "superseded by v4",
		Actor:   "cfo",
	})
	require.NoError(t, err)

	entries, err := l.ReadRange(ctx, ledger.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 5)

	// A second retirement must change nothing.
	_, err = l.Retire(ctx, lifecycle.RetireRequest{AssetID: "asset-reco-v3", Actor: "cfo"})
	var notActive *capital.AssetNotActiveError
	require.ErrorAs(t, err, &notActive)
	assert.Equal(t, capital.StatusRetired, notActive.Status)

	entries, err = l.ReadRange(ctx, ledger.Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestLedgerRehydratesFromSharedStore(t *testing.T) {
	store := ledger.NewMemoryStore().WithClock(func() time.Time { return now })
	first := newLedger(t, icl.WithStore(store))
	seed(t, first, "asset-shared")

	second := newLedger(t, icl.WithStore(store))
	asset, err := second.Asset("asset-shared")
	require.NoError(t, err)
	assert.Equal(t, "79166.67", asset.BookValue.StringFixed(2))

	// The rebuilt registry still rejects overlapping windows.
	_, err = second.Depreciate(context.Background(), lifecycle.DepreciateRequest{
		AssetID:     "asset-shared",
		PeriodStart: jan1.AddDate(0, 2, 0),
		PeriodEnd:   jan1.AddDate(0, 3, 0),
		Actor:       "close-bot",
	})
	var overlap *capital.OverlappingPeriodError
	require.ErrorAs(t, err, &overlap)
}

func TestLedgerAuditTrail(t *testing.T) {
	var buf bytes.Buffer
	l := newLedger(t, icl.WithAudit(audit.NewLoggerWithWriter(&buf)))
	ctx := context.Background()

	_, err := l.Capitalize(ctx, lifecycle.CapitalizeRequest{
		AssetID:          "asset-audited",
		Name:             "Scoring Model",
		Type:             capital.AssetTypeModel,
		Owner:            "Risk",
		Value:            d("1000"),
		Currency:         "USD",
		Method:           capital.MethodLinear,
		UsefulLifeMonths: 12,
		Actor:            "cfo",
		EffectiveAt:      jan1,
	})
	require.NoError(t, err)

	// Rejected operations appear only in the audit trail.
	_, err = l.Utilize(ctx, lifecycle.UtilizeRequest{
		AssetID: "asset-ghost",
		Amount:  d("10"),
		Actor:   "inference-gateway",
	})
	require.ErrorIs(t, err, capital.ErrAssetNotActive)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var ok, rejected audit.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[0], "AUDIT: ")), &ok))
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "AUDIT: ")), &rejected))

	assert.Equal(t, "capitalize", ok.Action)
	assert.Equal(t, audit.OutcomeOK, ok.Outcome)
	assert.Equal(t, "cfo", ok.Actor)

	assert.Equal(t, "utilize", rejected.Action)
	assert.Equal(t, audit.OutcomeRejected, rejected.Outcome)
	assert.Contains(t, rejected.Error, "not active")
}

func TestLedgerRateLimitsPerActor(t *testing.T) {
	bucket := limiter.NewMemoryStore().WithClock(func() time.Time { return now })
	l := newLedger(t, icl.WithLimiter(bucket, limiter.Policy{PerMinute: 60, Burst: 1}))
	ctx := context.Background()

	_, err := l.Capitalize(ctx, lifecycle.CapitalizeRequest{
		AssetID:          "asset-limited",
		Name:             "Embedding Index",
		Type:             capital.AssetTypeDataset,
		Owner:            "Search",
		Value:            d("500"),
		Currency:         "USD",
		Method:           capital.MethodLinear,
		UsefulLifeMonths: 12,
		Actor:            "batch-loader",
		EffectiveAt:      jan1,
	})
	require.NoError(t, err)

	_, err = l.Utilize(ctx, lifecycle.UtilizeRequest{
		AssetID:     "asset-limited",
		Amount:      d("1"),
		Actor:       "batch-loader",
		EffectiveAt: jan1.Add(time.Hour),
	})
	require.ErrorIs(t, err, limiter.ErrLimited)

	// Other actors keep their own budget.
	_, err = l.Utilize(ctx, lifecycle.UtilizeRequest{
		AssetID:     "asset-limited",
		Amount:      d("1"),
		Actor:       "interactive",
		EffectiveAt: jan1.Add(time.Hour),
	})
	require.NoError(t, err)
}

func TestLedgerProfileGuardrails(t *testing.T) {
	p := profile.Default()
	p.Rules = []policy.Rule{{
		Name: "capitalization-cap",
		Expr: `input.operation != "capitalize" || input.amount <= 1000000.0`,
	}}
	l := newLedger(t, icl.WithProfile(p))
	ctx := context.Background()

	_, err := l.Capitalize(ctx, lifecycle.CapitalizeRequest{
		AssetID:          "asset-too-big",
		Name:             "Foundation Model",
		Type:             capital.AssetTypeModel,
		Owner:            "Research",
		Value:            d("2000000"),
		Currency:         "USD",
		Method:           capital.MethodLinear,
		UsefulLifeMonths: 48,
		Actor:            "cfo",
		EffectiveAt:      jan1,
	})
	require.ErrorIs(t, err, policy.ErrDenied)

	entries, err := l.ReadRange(ctx, ledger.Filter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLedgerProfileDefaultsFillCapitalize(t *testing.T) {
	l := newLedger(t, icl.WithProfile(profile.Default()))

	_, err := l.Capitalize(context.Background(), lifecycle.CapitalizeRequest{
		AssetID:     "asset-defaulted",
		Name:        "Feature Store",
		Type:        capital.AssetTypeDataset,
		Owner:       "Data",
		Value:       d("1200"),
		Actor:       "cfo",
		EffectiveAt: jan1,
	})
	require.NoError(t, err)

	asset, err := l.Asset("asset-defaulted")
	require.NoError(t, err)
	assert.Equal(t, "USD", asset.Currency)
	assert.Equal(t, capital.MethodLinear, asset.Method)
	assert.Equal(t, 36, asset.UsefulLifeMonths)
}

func TestStatementAggregatesByAccountAndPeriod(t *testing.T) {
	l := newLedger(t)
	seed(t, l, "asset-stmt")

	rows, err := l.Statement(context.Background(), icl.StatementRequest{AssetID: "asset-stmt"})
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	find := func(code, period string) icl.StatementRow {
		t.Helper()
		for _, r := range rows {
			if r.AccountCode == code && r.Period == period {
				return r
			}
		}
		t.Fatalf("no row for account %s period %s in %+v", code, period, rows)
		return icl.StatementRow{}
	}

	capitalized := find("1500", "2026-01")
	assert.Equal(t, "100000.00", capitalized.Debits.StringFixed(2))
	assert.Equal(t, "100000.00", capitalized.Balance.StringFixed(2))
	assert.Equal(t, "$100,000.00", capitalized.Display)

	reserve := find("3200", "2026-01")
	assert.Equal(t, "100000.00", reserve.Credits.StringFixed(2))
	assert.Equal(t, "100000.00", reserve.Balance.StringFixed(2))

	// Depreciation lands in June, the period's closing instant.
	expense := find("6800", "2026-06")
	assert.Equal(t, "20833.33", expense.Debits.StringFixed(2))
	assert.Equal(t, "20833.33", expense.Balance.StringFixed(2))

	accumulated := find("1590", "2026-06")
	assert.Equal(t, "20833.33", accumulated.Credits.StringFixed(2))
	// Contra-asset: credit-normal, grows positive.
	assert.Equal(t, "20833.33", accumulated.Balance.StringFixed(2))

	// Rows sort by period, then account code.
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		if prev.Period == cur.Period {
			assert.Less(t, prev.AccountCode, cur.AccountCode)
		} else {
			assert.Less(t, prev.Period, cur.Period)
		}
	}
}

func TestStatementWindowFilters(t *testing.T) {
	l := newLedger(t)
	seed(t, l, "asset-window")

	rows, err := l.Statement(context.Background(), icl.StatementRequest{
		AssetID: "asset-window",
		From:    time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	for _, r := range rows {
		assert.Equal(t, "2026-06", r.Period)
	}
}

func TestAssetSummary(t *testing.T) {
	l := newLedger(t)
	seed(t, l, "asset-sum")

	s, err := l.AssetSummary(context.Background(), "asset-sum")
	require.NoError(t, err)
	assert.Equal(t, "asset-sum", s.Asset.ID)
	assert.Equal(t, 4, s.EntryCount)
	assert.Equal(t, uint64(4), s.LastSequence)
	assert.Equal(t, jun1, s.LastEntryAt)
	assert.Equal(t, "$79,166.67", s.BookValue)

	_, err = l.AssetSummary(context.Background(), "asset-none")
	require.ErrorIs(t, err, capital.ErrAssetNotFound)
}

func TestCorrectThroughFacade(t *testing.T) {
	l := newLedger(t)
	seed(t, l, "asset-corr")
	ctx := context.Background()

	entries, err := l.ReadRange(ctx, ledger.Filter{
		AssetID:        "asset-corr",
		Classification: ledger.ClassDepreciation,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	correction, err := l.Correct(ctx, lifecycle.CorrectRequest{
		EntryID: entries[0].ID,
		Reason:  "misconfigured period",
		Actor:   "controller",
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.ClassCorrection, correction.Classification)
	assert.Equal(t, entries[0].ID, correction.CorrectsEntryID)

	asset, err := l.Asset("asset-corr")
	require.NoError(t, err)
	assert.Equal(t, "100000.00", asset.BookValue.StringFixed(2))

	// The corrected pair nets to zero in the statement.
	rows, err := l.Statement(ctx, icl.StatementRequest{AssetID: "asset-corr"})
	require.NoError(t, err)
	for _, r := range rows {
		if r.AccountCode == "6800" && r.Period == "2026-07" {
			assert.Equal(t, "20833.33", r.Credits.StringFixed(2))
		}
	}
}

func TestReadRangeUnknownEntry(t *testing.T) {
	l := newLedger(t)
	_, err := l.Entry(context.Background(), "missing")
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestFacadeRejectionsLeaveNoTrace(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	cases := []struct {
		name string
		op   func() error
	}{
		{"negative value", func() error {
			_, err := l.Capitalize(ctx, lifecycle.CapitalizeRequest{
				AssetID: "a", Name: "n", Type: capital.AssetTypeModel, Owner: "o",
				Value: d("-1"), Currency: "USD", Method: capital.MethodLinear,
				UsefulLifeMonths: 12, Actor: "x",
			})
			return err
		}},
		{"unknown asset utilize", func() error {
			_, err := l.Utilize(ctx, lifecycle.UtilizeRequest{AssetID: "a", Amount: d("1"), Actor: "x"})
			return err
		}},
		{"unknown asset retire", func() error {
			_, err := l.Retire(ctx, lifecycle.RetireRequest{AssetID: "a", Actor: "x"})
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Error(t, tc.op())
			entries, err := l.ReadRange(ctx, ledger.Filter{})
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

var errBoom = errors.New("boom")

type failingGate struct{}

func (failingGate) Admit(context.Context, map[string]any) error { return errBoom }

func TestWithPolicyOverridesProfileGuardrails(t *testing.T) {
	p := profile.Default()
	p.Rules = []policy.Rule{{Name: "allow-all", Expr: "true"}}
	l := newLedger(t, icl.WithProfile(p), icl.WithPolicy(failingGate{}))

	_, err := l.Capitalize(context.Background(), lifecycle.CapitalizeRequest{
		AssetID: "asset-gated", Name: "n", Type: capital.AssetTypeModel, Owner: "o",
		Value: d("1"), Currency: "USD", Method: capital.MethodLinear,
		UsefulLifeMonths: 12, Actor: "x",
	})
	require.ErrorIs(t, err, errBoom)
}
