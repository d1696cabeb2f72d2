// Package finance provides exact decimal money handling, the account
// taxonomy, and the double-entry journal model for the capital ledger.
package finance

import (
	"errors"
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Scale is the fixed decimal precision of the ledger. Every committed
// amount is quantized to this scale exactly once, with banker's rounding.
const Scale = 2

var (
	ErrCurrencyMismatch = errors.New("finance: currency mismatch")
	ErrUnknownCurrency  = errors.New("finance: unknown currency")
	ErrNegativeAmount   = errors.New("finance: negative amount")
)

// Quantize rounds d to the ledger scale using round-half-even.
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(Scale)
}

// ValidateCurrency checks code against the ISO 4217 table.
func ValidateCurrency(code string) error {
	if money.GetCurrency(code) == nil {
		return fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return nil
}

// ValidateAmount rejects negative monetary values. Zero is allowed; memo
// entries carry zero amounts.
func ValidateAmount(d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("%w: %s", ErrNegativeAmount, d)
	}
	return nil
}

// Format renders d for display in the given currency, falling back to a
// plain fixed-scale string when the currency is unknown.
func Format(d decimal.Decimal, code string) string {
	c := money.GetCurrency(code)
	if c == nil {
		return d.StringFixed(Scale) + " " + code
	}
	minor := d.Shift(int32(c.Fraction)).Round(0).IntPart()
	return money.New(minor, code).Display()
}
