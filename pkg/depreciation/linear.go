package depreciation

import (
	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/icl/core/pkg/capital"
	"github.com/Mindburn-Labs/icl/core/pkg/finance"
)

// Linear is straight-line depreciation: the depreciable base spread evenly
// over the useful life, prorated by whole calendar months in the period.
type Linear struct{}

func (Linear) Method() capital.DepreciationMethod { return capital.MethodLinear }

// Compute returns base/usefulLife*months, capped so accumulated
// depreciation never exceeds the depreciable base. The result is rounded
// exactly once.
func (Linear) Compute(in Input) (decimal.Decimal, error) {
	months := MonthsBetween(in.PeriodStart, in.PeriodEnd)
	if months <= 0 {
		return decimal.Zero, nil
	}

	base := in.AcquisitionValue.Sub(in.SalvageValue)
	life := decimal.NewFromInt(int64(in.UsefulLifeMonths))
	amount := base.Mul(decimal.NewFromInt(int64(months))).Div(life)

	remaining := base.Sub(in.AccumulatedDepreciation)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	if amount.GreaterThan(remaining) {
		amount = remaining
	}
	return finance.Quantize(amount), nil
}
