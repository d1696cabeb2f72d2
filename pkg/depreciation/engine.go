// Package depreciation computes value decay for capitalized assets. Every
// strategy is a pure function: identical inputs always produce the
// identical amount, quantized once per period with round-half-even. The
// engine holds no clock and no locks.
package depreciation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/icl/core/pkg/capital"
	"github.com/Mindburn-Labs/icl/core/pkg/finance"
)

// DefaultRateMultiplier is double-declining balance.
var DefaultRateMultiplier = decimal.NewFromInt(2)

// Input carries everything a strategy may consult. Strategies must not
// read anything else.
type Input struct {
	AcquisitionValue        decimal.Decimal
	SalvageValue            decimal.Decimal
	BookValue               decimal.Decimal
	AccumulatedDepreciation decimal.Decimal
	UsefulLifeMonths        int
	RateMultiplier          decimal.Decimal
	PeriodStart             time.Time
	PeriodEnd               time.Time
}

func (in Input) validate() error {
	if in.UsefulLifeMonths <= 0 {
		return fmt.Errorf("depreciation: useful life %d months must be positive", in.UsefulLifeMonths)
	}
	if !in.PeriodEnd.After(in.PeriodStart) {
		return fmt.Errorf("%w: %s..%s", capital.ErrInvalidPeriod,
			in.PeriodStart.Format("2006-01-02"), in.PeriodEnd.Format("2006-01-02"))
	}
	for _, d := range []decimal.Decimal{in.AcquisitionValue, in.SalvageValue, in.BookValue, in.AccumulatedDepreciation} {
		if err := finance.ValidateAmount(d); err != nil {
			return err
		}
	}
	if in.SalvageValue.GreaterThan(in.AcquisitionValue) {
		return fmt.Errorf("depreciation: salvage %s exceeds acquisition %s", in.SalvageValue, in.AcquisitionValue)
	}
	return nil
}

// Strategy computes the depreciation amount for one period.
type Strategy interface {
	Method() capital.DepreciationMethod
	Compute(in Input) (decimal.Decimal, error)
}

// Engine dispatches to a fixed strategy set. Unknown methods are rejected
// when the engine is built, not at call time.
type Engine struct {
	strategies map[capital.DepreciationMethod]Strategy
}

// NewEngine builds an engine over the given strategies.
func NewEngine(strategies ...Strategy) (*Engine, error) {
	m := make(map[capital.DepreciationMethod]Strategy, len(strategies))
	for _, s := range strategies {
		method := s.Method()
		if !capital.ValidMethod(method) {
			return nil, fmt.Errorf("%w: %s", capital.ErrUnknownMethod, method)
		}
		if _, dup := m[method]; dup {
			return nil, fmt.Errorf("depreciation: duplicate strategy for %s", method)
		}
		m[method] = s
	}
	return &Engine{strategies: m}, nil
}

// DefaultEngine supports LINEAR and DECLINING_BALANCE.
func DefaultEngine() *Engine {
	e, err := NewEngine(Linear{}, DecliningBalance{})
	if err != nil {
		panic(err) // built-in strategies are always valid
	}
	return e
}

// Supports reports whether the engine can compute the given method.
func (e *Engine) Supports(method capital.DepreciationMethod) bool {
	_, ok := e.strategies[method]
	return ok
}

// Compute runs the strategy for method over in.
func (e *Engine) Compute(method capital.DepreciationMethod, in Input) (decimal.Decimal, error) {
	s, ok := e.strategies[method]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", capital.ErrUnknownMethod, method)
	}
	if err := in.validate(); err != nil {
		return decimal.Zero, err
	}
	return s.Compute(in)
}

// MonthsBetween counts calendar months from start to end: Jan 1 to Jun 1
// is five months. Days within the month do not contribute.
func MonthsBetween(start, end time.Time) int {
	return (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
}
