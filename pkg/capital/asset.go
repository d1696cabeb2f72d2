// Package capital defines the domain model of the intelligence capital
// ledger: assets, the events that mutate them, and the error taxonomy
// shared by the lifecycle and ledger layers.
package capital

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetType classifies the unit of inference capability being capitalized.
type AssetType string

const (
	AssetTypeModel         AssetType = "MODEL"
	AssetTypeDataset       AssetType = "DATASET"
	AssetTypeAgentWorkflow AssetType = "AGENT_WORKFLOW"
	AssetTypeInfra         AssetType = "INFRA"
)

// AssetStatus is the lifecycle state of an asset. An uncapitalized asset
// has no status; it simply does not exist in the registry.
type AssetStatus string

const (
	StatusActive  AssetStatus = "ACTIVE"
	StatusRetired AssetStatus = "RETIRED"
)

// DepreciationMethod selects the value-decay strategy for an asset.
type DepreciationMethod string

const (
	MethodLinear           DepreciationMethod = "LINEAR"
	MethodDecliningBalance DepreciationMethod = "DECLINING_BALANCE"
)

// Asset is an intelligence asset under ledger ownership. Once capitalized
// it is mutated only through lifecycle-issued events, never directly.
type Asset struct {
	ID                      string             `json:"id"`
	Name                    string             `json:"name,omitempty"`
	Type                    AssetType          `json:"type"`
	Owner                   string             `json:"owner"`
	Currency                string             `json:"currency"`
	AcquisitionValue        decimal.Decimal    `json:"acquisition_value"`
	BookValue               decimal.Decimal    `json:"book_value"`
	SalvageValue            decimal.Decimal    `json:"salvage_value"`
	AccumulatedDepreciation decimal.Decimal    `json:"accumulated_depreciation"`
	AccumulatedUtilization  decimal.Decimal    `json:"accumulated_utilization"`
	Method                  DepreciationMethod `json:"depreciation_method"`
	UsefulLifeMonths        int                `json:"useful_life_months"`
	Status                  AssetStatus        `json:"status"`
	CreatedAt               time.Time          `json:"created_at"`
	UpdatedAt               time.Time          `json:"updated_at"`
}

// Active reports whether the asset accepts mutating events.
func (a *Asset) Active() bool {
	return a != nil && a.Status == StatusActive
}

// Clone returns a copy safe to hand to readers while the registry keeps
// mutating the original.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

// ValidMethod reports whether m names a known depreciation method.
func ValidMethod(m DepreciationMethod) bool {
	switch m {
	case MethodLinear, MethodDecliningBalance:
		return true
	}
	return false
}

// ValidType reports whether t names a known asset type.
func ValidType(t AssetType) bool {
	switch t {
	case AssetTypeModel, AssetTypeDataset, AssetTypeAgentWorkflow, AssetTypeInfra:
		return true
	}
	return false
}
