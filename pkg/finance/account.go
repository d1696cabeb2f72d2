package finance

import "fmt"

// AccountType classifies journal accounts. The memo pair exists so usage
// and allocation records can satisfy the balance invariant without
// touching valuation accounts.
type AccountType string

const (
	AccountAsset                   AccountType = "ASSET"
	AccountCapitalReserve          AccountType = "CAPITAL_RESERVE"
	AccountAccumulatedDepreciation AccountType = "ACCUMULATED_DEPRECIATION"
	AccountDepreciationExpense     AccountType = "DEPRECIATION_EXPENSE"
	AccountImpairmentLoss          AccountType = "IMPAIRMENT_LOSS"
	AccountUtilizationMemo         AccountType = "UTILIZATION_MEMO"
	AccountUtilizationOffset       AccountType = "UTILIZATION_OFFSET"
	AccountAllocationMemo          AccountType = "ALLOCATION_MEMO"
	AccountAllocationOffset        AccountType = "ALLOCATION_OFFSET"
)

// NormalSide returns the side that increases an account of this type.
// Reserves, contra-assets and offsets are credit-normal; everything else
// carries a debit balance.
func (t AccountType) NormalSide() Side {
	switch t {
	case AccountCapitalReserve, AccountAccumulatedDepreciation,
		AccountUtilizationOffset, AccountAllocationOffset:
		return Credit
	}
	return Debit
}

// Account is one chart-of-accounts position.
type Account struct {
	Code string      `json:"code"`
	Name string      `json:"name"`
	Type AccountType `json:"type"`
}

// Chart maps account types to concrete accounts. Profiles may override the
// defaults; every type used by the journal builder must be present.
type Chart map[AccountType]Account

// DefaultChart returns the built-in chart of accounts.
func DefaultChart() Chart {
	return Chart{
		AccountAsset:                   {Code: "1500", Name: "Intelligence Capital Assets", Type: AccountAsset},
		AccountCapitalReserve:          {Code: "3200", Name: "Capital Reserve", Type: AccountCapitalReserve},
		AccountAccumulatedDepreciation: {Code: "1590", Name: "Accumulated Depreciation, Intelligence Assets", Type: AccountAccumulatedDepreciation},
		AccountDepreciationExpense:     {Code: "6800", Name: "Depreciation Expense", Type: AccountDepreciationExpense},
		AccountImpairmentLoss:          {Code: "6900", Name: "Impairment Loss", Type: AccountImpairmentLoss},
		AccountUtilizationMemo:         {Code: "9100", Name: "Utilization Memo", Type: AccountUtilizationMemo},
		AccountUtilizationOffset:       {Code: "9101", Name: "Utilization Offset", Type: AccountUtilizationOffset},
		AccountAllocationMemo:          {Code: "9200", Name: "Allocation Memo", Type: AccountAllocationMemo},
		AccountAllocationOffset:        {Code: "9201", Name: "Allocation Offset", Type: AccountAllocationOffset},
	}
}

// Account resolves the account for a type.
func (c Chart) Account(t AccountType) (Account, error) {
	a, ok := c[t]
	if !ok {
		return Account{}, fmt.Errorf("finance: chart has no account for type %s", t)
	}
	return a, nil
}

// Validate checks that every type the builder emits is mapped.
func (c Chart) Validate() error {
	required := []AccountType{
		AccountAsset,
		AccountCapitalReserve,
		AccountAccumulatedDepreciation,
		AccountDepreciationExpense,
		AccountImpairmentLoss,
		AccountUtilizationMemo,
		AccountUtilizationOffset,
		AccountAllocationMemo,
		AccountAllocationOffset,
	}
	for _, t := range required {
		if _, ok := c[t]; !ok {
			return fmt.Errorf("finance: chart missing account type %s", t)
		}
	}
	return nil
}
