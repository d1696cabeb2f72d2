package finance

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := NewBuilder(nil)
	require.NoError(t, err)
	return b
}

func TestBuilderCapitalize(t *testing.T) {
	b := newTestBuilder(t)
	j, err := b.Capitalize("model-1", d("100000"))
	require.NoError(t, err)
	require.NoError(t, j.Validate())
	require.Len(t, j.Lines, 2)
	assert.Equal(t, AccountAsset, j.Lines[0].Account.Type)
	assert.Equal(t, Debit, j.Lines[0].Side)
	assert.Equal(t, AccountCapitalReserve, j.Lines[1].Account.Type)
	assert.Equal(t, Credit, j.Lines[1].Side)
	assert.Equal(t, "100000", j.Lines[0].Amount.String())
}

func TestBuilderAllocateZeroAmount(t *testing.T) {
	b := newTestBuilder(t)
	j, err := b.Allocate("model-1", "Research", "Product Engineering")
	require.NoError(t, err)
	require.NoError(t, j.Validate())
	assert.True(t, j.Lines[0].Amount.IsZero())
	assert.Contains(t, j.Memo, "Research -> Product Engineering")
}

func TestBuilderUtilize(t *testing.T) {
	b := newTestBuilder(t)
	j, err := b.Utilize("model-1", d("5000"))
	require.NoError(t, err)
	require.NoError(t, j.Validate())
	assert.Equal(t, AccountUtilizationMemo, j.Lines[0].Account.Type)
	assert.Equal(t, AccountUtilizationOffset, j.Lines[1].Account.Type)
}

func TestBuilderDepreciate(t *testing.T) {
	b := newTestBuilder(t)
	j, err := b.Depreciate("model-1", d("20833.33"))
	require.NoError(t, err)
	require.NoError(t, j.Validate())
	assert.Equal(t, AccountDepreciationExpense, j.Lines[0].Account.Type)
	assert.Equal(t, AccountAccumulatedDepreciation, j.Lines[1].Account.Type)
}

func TestBuilderRetireSplitsWriteOff(t *testing.T) {
	b := newTestBuilder(t)
	j, err := b.Retire("model-1", d("20833.33"), d("79166.67"), d("100000"))
	require.NoError(t, err)
	require.NoError(t, j.Validate())
	require.Len(t, j.Lines, 3)
	assert.Equal(t, AccountAccumulatedDepreciation, j.Lines[0].Account.Type)
	assert.Equal(t, AccountImpairmentLoss, j.Lines[1].Account.Type)
	assert.Equal(t, AccountAsset, j.Lines[2].Account.Type)
	assert.Equal(t, Credit, j.Lines[2].Side)
	assert.True(t, j.Debits().Equal(j.Credits()))
}

func TestBuilderRetireNoDepreciationYet(t *testing.T) {
	b := newTestBuilder(t)
	j, err := b.Retire("model-1", decimal.Zero, d("100000"), d("100000"))
	require.NoError(t, err)
	require.NoError(t, j.Validate())
	require.Len(t, j.Lines, 2)
	assert.Equal(t, AccountImpairmentLoss, j.Lines[0].Account.Type)
}

func TestBuilderRetireMismatchedParts(t *testing.T) {
	b := newTestBuilder(t)
	_, err := b.Retire("model-1", d("10"), d("10"), d("100"))
	assert.ErrorIs(t, err, ErrUnbalanced)
}

func TestBuilderCorrectionMirrors(t *testing.T) {
	b := newTestBuilder(t)
	orig, err := b.Depreciate("model-1", d("500"))
	require.NoError(t, err)
	corr, err := b.Correction(orig, "posted against wrong window")
	require.NoError(t, err)
	require.NoError(t, corr.Validate())
	assert.Equal(t, Credit, corr.Lines[0].Side)
	assert.Equal(t, "correction: posted against wrong window", corr.Memo)
}

func TestBuilderRejectsNegative(t *testing.T) {
	b := newTestBuilder(t)
	_, err := b.Utilize("model-1", d("-1"))
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestChartValidateMissingAccount(t *testing.T) {
	chart := DefaultChart()
	delete(chart, AccountImpairmentLoss)
	_, err := NewBuilder(chart)
	require.Error(t, err)
}
