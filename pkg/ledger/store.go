package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no entry matches the lookup.
	ErrNotFound = errors.New("ledger: entry not found")

	// ErrInvalidDraft is returned when a draft fails structural validation.
	ErrInvalidDraft = errors.New("ledger: invalid draft")

	// ErrOutOfOrder is returned when a draft's effective time precedes the
	// asset's latest committed entry.
	ErrOutOfOrder = errors.New("ledger: effective time precedes asset head")

	// ErrDuplicateID is returned when a draft reuses a committed entry id.
	ErrDuplicateID = errors.New("ledger: duplicate entry id")
)

// Filter selects a contiguous slice of the ledger. Zero values mean "no
// constraint". From is inclusive, To exclusive, both on EffectiveAt.
type Filter struct {
	AssetID        string
	Classification Classification
	From           time.Time
	To             time.Time
	AfterSequence  uint64
	Limit          int
}

// matches reports whether e passes every set constraint except Limit.
func (f Filter) matches(e Entry) bool {
	if f.AssetID != "" && e.AssetID != f.AssetID {
		return false
	}
	if f.Classification != "" && e.Classification != f.Classification {
		return false
	}
	if !f.From.IsZero() && e.EffectiveAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.EffectiveAt.Before(f.To) {
		return false
	}
	if f.AfterSequence != 0 && e.Sequence <= f.AfterSequence {
		return false
	}
	return true
}

// Store is the durable interface for the append-only entry log. Append is
// the single global serialization point: it assigns the next sequence
// number, links the hash chain and signs the result atomically. Reads
// operate on committed, immutable data only.
type Store interface {
	// Append validates the draft, commits it as the next entry in the
	// chain and returns the committed entry. The draft either becomes a
	// fully linked entry or nothing is written.
	Append(ctx context.Context, d Draft) (Entry, error)

	// ReadRange returns committed entries matching the filter in global
	// sequence order.
	ReadRange(ctx context.Context, f Filter) ([]Entry, error)

	// Get retrieves a committed entry by id.
	Get(ctx context.Context, id string) (Entry, error)

	// Latest returns the most recent committed entry for an asset, or
	// ErrNotFound when the asset has none.
	Latest(ctx context.Context, assetID string) (Entry, error)

	// Head returns the current head content hash, GenesisHash when empty.
	Head(ctx context.Context) (string, error)

	// Len returns the number of committed entries.
	Len(ctx context.Context) (uint64, error)
}
