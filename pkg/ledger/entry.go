// Package ledger holds the immutable, append-only capital ledger.
//
// Every committed entry is hash-chained to its predecessor and carries a
// balanced journal. Entries are never mutated or deleted; corrections are
// new entries referencing the originals.
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/icl/core/pkg/canonicalize"
	"github.com/Mindburn-Labs/icl/core/pkg/capital"
	"github.com/Mindburn-Labs/icl/core/pkg/finance"
)

// GenesisHash is the PrevHash of the first entry in any chain.
const GenesisHash = "genesis"

// Classification categorizes a ledger entry by the capital event it records.
type Classification string

const (
	ClassCapitalization Classification = "CAPITALIZATION"
	ClassAllocation     Classification = "ALLOCATION"
	ClassUtilization    Classification = "UTILIZATION"
	ClassDepreciation   Classification = "DEPRECIATION"
	ClassRetirement     Classification = "RETIREMENT"
	ClassCorrection     Classification = "CORRECTION"
)

// ValidClassification reports whether c is a known entry classification.
func ValidClassification(c Classification) bool {
	switch c {
	case ClassCapitalization, ClassAllocation, ClassUtilization,
		ClassDepreciation, ClassRetirement, ClassCorrection:
		return true
	}
	return false
}

// Entry is an immutable, hash-chained ledger record. Sequence and the two
// hashes are assigned by the store at commit time; everything else comes
// from the Draft.
type Entry struct {
	ID              string               `json:"id"`
	Sequence        uint64               `json:"sequence"`
	AssetID         string               `json:"asset_id"`
	EventID         string               `json:"event_id"`
	Classification  Classification       `json:"classification"`
	Amount          decimal.Decimal      `json:"amount"`
	Currency        string               `json:"currency"`
	Narrative       string               `json:"narrative,omitempty"`
	Journal         finance.JournalEntry `json:"journal"`
	Event           capital.Event        `json:"event"`
	CorrectsEntryID string               `json:"corrects_entry_id,omitempty"`
	EffectiveAt     time.Time            `json:"effective_at"`
	RecordedAt      time.Time            `json:"recorded_at"`
	ContentHash     string               `json:"content_hash"`
	PrevHash        string               `json:"prev_hash"`
	SignatureKeyID  string               `json:"signature_key_id,omitempty"`
	Signature       string               `json:"signature,omitempty"`
}

// Draft is the caller-supplied portion of an entry, validated before the
// store assigns sequence, hashes and signature.
type Draft struct {
	ID              string
	AssetID         string
	EventID         string
	Classification  Classification
	Amount          decimal.Decimal
	Currency        string
	Narrative       string
	Journal         finance.JournalEntry
	Event           capital.Event
	CorrectsEntryID string
	EffectiveAt     time.Time
}

// Validate checks the draft for structural defects. Stores call this before
// entering the commit critical section.
func (d Draft) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: missing entry id", ErrInvalidDraft)
	}
	if d.AssetID == "" {
		return fmt.Errorf("%w: missing asset id", ErrInvalidDraft)
	}
	if d.EventID == "" {
		return fmt.Errorf("%w: missing event id", ErrInvalidDraft)
	}
	if !ValidClassification(d.Classification) {
		return fmt.Errorf("%w: unknown classification %q", ErrInvalidDraft, d.Classification)
	}
	if d.Amount.IsNegative() {
		return fmt.Errorf("%w: negative amount %s", ErrInvalidDraft, d.Amount)
	}
	if err := finance.ValidateCurrency(d.Currency); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	if err := d.Journal.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	if d.Classification == ClassCorrection && d.CorrectsEntryID == "" {
		return fmt.Errorf("%w: correction without original entry id", ErrInvalidDraft)
	}
	if d.EffectiveAt.IsZero() {
		return fmt.Errorf("%w: missing effective time", ErrInvalidDraft)
	}
	return nil
}

// hashFields is the canonical hash input: every entry field except the
// content hash and the signature pair, which depend on it.
type hashFields struct {
	ID              string               `json:"id"`
	Sequence        uint64               `json:"sequence"`
	AssetID         string               `json:"asset_id"`
	EventID         string               `json:"event_id"`
	Classification  Classification       `json:"classification"`
	Amount          decimal.Decimal      `json:"amount"`
	Currency        string               `json:"currency"`
	Narrative       string               `json:"narrative,omitempty"`
	Journal         finance.JournalEntry `json:"journal"`
	Event           capital.Event        `json:"event"`
	CorrectsEntryID string               `json:"corrects_entry_id,omitempty"`
	EffectiveAt     time.Time            `json:"effective_at"`
	RecordedAt      time.Time            `json:"recorded_at"`
	PrevHash        string               `json:"prev_hash"`
}

// ComputeHash returns the canonical content hash for the entry. The result
// is deterministic for identical field values regardless of field order or
// text encoding quirks in Narrative.
func ComputeHash(e Entry) (string, error) {
	return canonicalize.CanonicalHash(hashFields{
		ID:              e.ID,
		Sequence:        e.Sequence,
		AssetID:         e.AssetID,
		EventID:         e.EventID,
		Classification:  e.Classification,
		Amount:          e.Amount,
		Currency:        e.Currency,
		Narrative:       e.Narrative,
		Journal:         e.Journal,
		Event:           e.Event,
		CorrectsEntryID: e.CorrectsEntryID,
		EffectiveAt:     e.EffectiveAt,
		RecordedAt:      e.RecordedAt,
		PrevHash:        e.PrevHash,
	})
}

// SigningMessage is the byte string a Signer signs for an entry. It binds
// the signature to the entry's position and both hashes, so neither the
// content nor the chain link can be swapped without detection.
func SigningMessage(e Entry) []byte {
	return []byte(fmt.Sprintf("%d|%s|%s", e.Sequence, e.ContentHash, e.PrevHash))
}

// Signer produces and checks keyed entry signatures. *signing.Keyring
// satisfies it.
type Signer interface {
	ActiveKeyID() string
	Sign(keyID string, msg []byte) (string, error)
	Verify(keyID string, msg []byte, sig string) error
}
