package capital

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EventKind is the kind of capital event.
type EventKind string

const (
	EventCapitalize EventKind = "CAPITALIZE"
	EventAllocate   EventKind = "ALLOCATE"
	EventUtilize    EventKind = "UTILIZE"
	EventDepreciate EventKind = "DEPRECIATE"
	EventRetire     EventKind = "RETIRE"
	EventCorrect    EventKind = "CORRECT"
)

// Event is a discrete economic event about one asset. Events are immutable
// once created; each yields exactly one ledger entry when accepted.
// Sequence is per-asset and strictly increasing; PrevEventID forms the
// causal chain within an asset's history.
type Event struct {
	ID          string          `json:"id"`
	Sequence    uint64          `json:"sequence"`
	AssetID     string          `json:"asset_id"`
	Kind        EventKind       `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Actor       string          `json:"actor,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	PrevEventID string          `json:"prev_event_id,omitempty"`
}

// NewEvent builds an event with the payload marshaled in place.
func NewEvent(id string, seq uint64, assetID string, kind EventKind, payload any, actor string, ts time.Time, prevEventID string) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("capital: marshal %s payload: %w", kind, err)
	}
	return Event{
		ID:          id,
		Sequence:    seq,
		AssetID:     assetID,
		Kind:        kind,
		Payload:     raw,
		Actor:       actor,
		Timestamp:   ts,
		PrevEventID: prevEventID,
	}, nil
}

// DecodePayload unmarshals the kind-specific payload into v.
func (e Event) DecodePayload(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("capital: decode %s payload: %w", e.Kind, err)
	}
	return nil
}

// CapitalizePayload records the terms an asset was capitalized under.
type CapitalizePayload struct {
	Owner            string             `json:"owner"`
	Name             string             `json:"name,omitempty"`
	AssetType        AssetType          `json:"asset_type"`
	Value            decimal.Decimal    `json:"value"`
	Currency         string             `json:"currency"`
	Method           DepreciationMethod `json:"method"`
	UsefulLifeMonths int                `json:"useful_life_months"`
	SalvageValue     decimal.Decimal    `json:"salvage_value"`
}

// AllocatePayload records an ownership transfer.
type AllocatePayload struct {
	PreviousOwner string `json:"previous_owner"`
	NewOwner      string `json:"new_owner"`
}

// UtilizePayload records usage against the asset. Utilization is a usage
// record, not a valuation change.
type UtilizePayload struct {
	Amount decimal.Decimal `json:"amount"`
}

// DepreciatePayload records one depreciation window and the computed
// decrement for it.
type DepreciatePayload struct {
	PeriodStart time.Time          `json:"period_start"`
	PeriodEnd   time.Time          `json:"period_end"`
	Amount      decimal.Decimal    `json:"amount"`
	Method      DepreciationMethod `json:"method"`
}

// RetirePayload records terminal retirement and the write-off taken.
type RetirePayload struct {
	Reason         string          `json:"reason,omitempty"`
	WriteOff       decimal.Decimal `json:"write_off"`
	FinalBookValue decimal.Decimal `json:"final_book_value"`
}

// CorrectPayload references the ledger entry being compensated.
type CorrectPayload struct {
	CorrectsEntryID string `json:"corrects_entry_id"`
	Reason          string `json:"reason,omitempty"`
}
