package capital

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Sentinel errors for errors.Is checks. The typed errors below carry the
// per-occurrence context and unwrap to these.
var (
	ErrDuplicateAsset      = errors.New("capital: asset already capitalized")
	ErrInvalidValue        = errors.New("capital: invalid value")
	ErrAssetNotActive      = errors.New("capital: asset not active")
	ErrInvalidAmount       = errors.New("capital: invalid amount")
	ErrOverlappingPeriod   = errors.New("capital: overlapping depreciation period")
	ErrInvalidPeriod       = errors.New("capital: invalid depreciation period")
	ErrAssetNotFound       = errors.New("capital: asset not found")
	ErrUnknownMethod       = errors.New("capital: unknown depreciation method")
	ErrNothingToDepreciate = errors.New("capital: nothing left to depreciate")
)

// DuplicateAssetError rejects capitalizing an id that already exists.
type DuplicateAssetError struct {
	AssetID string
}

func (e *DuplicateAssetError) Error() string {
	return fmt.Sprintf("asset %s already capitalized", e.AssetID)
}

func (e *DuplicateAssetError) Is(target error) bool { return target == ErrDuplicateAsset }

// InvalidValueError rejects a non-positive capitalization value.
type InvalidValueError struct {
	AssetID string
	Value   decimal.Decimal
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("asset %s: initial value %s must be positive", e.AssetID, e.Value)
}

func (e *InvalidValueError) Is(target error) bool { return target == ErrInvalidValue }

// AssetNotActiveError rejects mutating events on retired or absent assets.
// Status is empty when the asset is unknown.
type AssetNotActiveError struct {
	AssetID string
	Status  AssetStatus
}

func (e *AssetNotActiveError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("asset %s not active: unknown asset", e.AssetID)
	}
	return fmt.Sprintf("asset %s not active: status %s", e.AssetID, e.Status)
}

func (e *AssetNotActiveError) Is(target error) bool { return target == ErrAssetNotActive }

// InvalidAmountError rejects non-positive utilization amounts.
type InvalidAmountError struct {
	AssetID string
	Amount  decimal.Decimal
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("asset %s: amount %s must be positive", e.AssetID, e.Amount)
}

func (e *InvalidAmountError) Is(target error) bool { return target == ErrInvalidAmount }

// OverlappingPeriodError rejects a depreciation window that intersects an
// already-depreciated one for the same asset.
type OverlappingPeriodError struct {
	AssetID       string
	Start, End    time.Time
	ExistingStart time.Time
	ExistingEnd   time.Time
}

func (e *OverlappingPeriodError) Error() string {
	return fmt.Sprintf("asset %s: period %s..%s overlaps %s..%s",
		e.AssetID,
		e.Start.Format("2006-01-02"), e.End.Format("2006-01-02"),
		e.ExistingStart.Format("2006-01-02"), e.ExistingEnd.Format("2006-01-02"))
}

func (e *OverlappingPeriodError) Is(target error) bool { return target == ErrOverlappingPeriod }
