package depreciation

import (
	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/icl/core/pkg/capital"
	"github.com/Mindburn-Labs/icl/core/pkg/finance"
)

// DecliningBalance applies a constant rate to the declining book value,
// compounding monthly, and switches to a straight write-down of the
// remainder once another full rate step would breach the salvage floor.
type DecliningBalance struct{}

func (DecliningBalance) Method() capital.DepreciationMethod {
	return capital.MethodDecliningBalance
}

// Compute compounds rateMultiplier/usefulLife per month over the period's
// calendar months. The total for the period is rounded exactly once.
func (DecliningBalance) Compute(in Input) (decimal.Decimal, error) {
	months := MonthsBetween(in.PeriodStart, in.PeriodEnd)
	if months <= 0 {
		return decimal.Zero, nil
	}

	multiplier := in.RateMultiplier
	if multiplier.IsZero() {
		multiplier = DefaultRateMultiplier
	}
	rate := multiplier.Div(decimal.NewFromInt(int64(in.UsefulLifeMonths)))

	book := in.BookValue
	total := decimal.Zero
	for i := 0; i < months; i++ {
		step := book.Mul(rate)
		if book.Sub(step).LessThan(in.SalvageValue) {
			total = total.Add(book.Sub(in.SalvageValue))
			break
		}
		total = total.Add(step)
		book = book.Sub(step)
	}
	if total.IsNegative() {
		total = decimal.Zero
	}
	return finance.Quantize(total), nil
}
