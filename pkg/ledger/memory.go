package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Mindburn-Labs/icl/core/pkg/canonicalize"
	"github.com/Mindburn-Labs/icl/core/pkg/finance"
)

// MemoryStore is the in-process Store. Committed entries live in an
// append-only arena: once written, an element is never rewritten, so reads
// can take a length-bounded view under a brief RLock and keep using it
// after the lock is released.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	byID    map[string]int
	byAsset map[string][]int
	head    string
	clock   func() time.Time
	signer  Signer
}

// NewMemoryStore creates an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make([]Entry, 0),
		byID:    make(map[string]int),
		byAsset: make(map[string][]int),
		head:    GenesisHash,
		clock:   time.Now,
	}
}

// WithClock overrides the commit timestamp source for testing.
func (s *MemoryStore) WithClock(clock func() time.Time) *MemoryStore {
	s.clock = clock
	return s
}

// WithSigner attaches a signer; subsequent appends carry a signature.
func (s *MemoryStore) WithSigner(signer Signer) *MemoryStore {
	s.signer = signer
	return s
}

// Append commits the draft as the next entry in the chain. Validation runs
// before the critical section; sequence assignment, hashing and signing run
// inside it so the chain head never moves between them.
func (s *MemoryStore) Append(ctx context.Context, d Draft) (Entry, error) {
	if err := d.Validate(); err != nil {
		return Entry{}, err
	}
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[d.ID]; ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrDuplicateID, d.ID)
	}
	if idxs := s.byAsset[d.AssetID]; len(idxs) > 0 {
		last := s.entries[idxs[len(idxs)-1]]
		if d.EffectiveAt.Before(last.EffectiveAt) {
			return Entry{}, fmt.Errorf("%w: asset %s head %s, draft %s",
				ErrOutOfOrder, d.AssetID,
				last.EffectiveAt.Format(time.RFC3339), d.EffectiveAt.Format(time.RFC3339))
		}
	}

	entry := Entry{
		ID:              d.ID,
		Sequence:        uint64(len(s.entries)) + 1,
		AssetID:         d.AssetID,
		EventID:         d.EventID,
		Classification:  d.Classification,
		Amount:          d.Amount,
		Currency:        d.Currency,
		Narrative:       canonicalize.NormalizeText(d.Narrative),
		Journal:         d.Journal,
		Event:           d.Event,
		CorrectsEntryID: d.CorrectsEntryID,
		EffectiveAt:     d.EffectiveAt.UTC(),
		RecordedAt:      s.clock().UTC(),
		PrevHash:        s.head,
	}

	hash, err := ComputeHash(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("hash entry %s: %w", entry.ID, err)
	}
	entry.ContentHash = hash

	if s.signer != nil {
		keyID := s.signer.ActiveKeyID()
		sig, err := s.signer.Sign(keyID, SigningMessage(entry))
		if err != nil {
			return Entry{}, fmt.Errorf("sign entry %s: %w", entry.ID, err)
		}
		entry.SignatureKeyID = keyID
		entry.Signature = sig
	}

	// Committed state must not alias caller-held slices.
	s.entries = append(s.entries, cloneEntry(entry))
	s.byID[entry.ID] = len(s.entries) - 1
	s.byAsset[entry.AssetID] = append(s.byAsset[entry.AssetID], len(s.entries)-1)
	s.head = entry.ContentHash

	return entry, nil
}

// cloneEntry detaches the entry's journal lines and event payload from
// their backing arrays so committed entries cannot be mutated through
// values held by callers.
func cloneEntry(e Entry) Entry {
	if e.Journal.Lines != nil {
		e.Journal.Lines = append([]finance.Line(nil), e.Journal.Lines...)
	}
	if e.Event.Payload != nil {
		e.Event.Payload = append([]byte(nil), e.Event.Payload...)
	}
	return e
}

// ReadRange returns committed entries matching the filter in sequence order.
func (s *MemoryStore) ReadRange(ctx context.Context, f Filter) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	snap := s.entries[:len(s.entries):len(s.entries)]
	s.mu.RUnlock()

	out := make([]Entry, 0)
	for _, e := range snap {
		if !f.matches(e) {
			continue
		}
		out = append(out, cloneEntry(e))
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// Get retrieves a committed entry by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneEntry(s.entries[idx]), nil
}

// Latest returns the most recent committed entry for the asset.
func (s *MemoryStore) Latest(ctx context.Context, assetID string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	idxs := s.byAsset[assetID]
	if len(idxs) == 0 {
		return Entry{}, fmt.Errorf("%w: asset %s", ErrNotFound, assetID)
	}
	return cloneEntry(s.entries[idxs[len(idxs)-1]]), nil
}

// Head returns the current head content hash.
func (s *MemoryStore) Head(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head, nil
}

// Len returns the number of committed entries.
func (s *MemoryStore) Len(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.entries)), nil
}

var _ Store = (*MemoryStore)(nil)
