package capital

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNewEventCarriesPayload(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ev, err := NewEvent("ev-1", 1, "model-1", EventCapitalize, CapitalizePayload{
		Owner:            "Research",
		AssetType:        AssetTypeModel,
		Value:            decimal.NewFromInt(100000),
		Currency:         "USD",
		Method:           MethodLinear,
		UsefulLifeMonths: 24,
		SalvageValue:     decimal.Zero,
	}, "tester", ts, "")
	require.NoError(t, err)
	require.Equal(t, EventCapitalize, ev.Kind)
	require.Equal(t, uint64(1), ev.Sequence)

	var p CapitalizePayload
	require.NoError(t, ev.DecodePayload(&p))
	require.Equal(t, "Research", p.Owner)
	require.True(t, p.Value.Equal(decimal.NewFromInt(100000)))
	require.Equal(t, 24, p.UsefulLifeMonths)
}

func TestDecodePayloadWrongShape(t *testing.T) {
	ev, err := NewEvent("ev-2", 2, "model-1", EventUtilize, UtilizePayload{
		Amount: decimal.NewFromInt(5000),
	}, "tester", time.Now(), "ev-1")
	require.NoError(t, err)

	var p UtilizePayload
	require.NoError(t, ev.DecodePayload(&p))
	require.True(t, p.Amount.Equal(decimal.NewFromInt(5000)))
}

func TestAssetClone(t *testing.T) {
	a := &Asset{
		ID:        "model-1",
		Owner:     "Research",
		BookValue: decimal.NewFromInt(100),
		Status:    StatusActive,
	}
	cp := a.Clone()
	cp.Owner = "Elsewhere"
	cp.BookValue = decimal.Zero
	require.Equal(t, "Research", a.Owner)
	require.True(t, a.BookValue.Equal(decimal.NewFromInt(100)))
	require.True(t, a.Active())
	require.False(t, (*Asset)(nil).Active())
}

func TestValidMethod(t *testing.T) {
	require.True(t, ValidMethod(MethodLinear))
	require.True(t, ValidMethod(MethodDecliningBalance))
	require.False(t, ValidMethod(DepreciationMethod("SUM_OF_YEARS")))
}
