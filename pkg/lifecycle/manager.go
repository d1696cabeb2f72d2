// Package lifecycle drives the per-asset state machine: absent ->
// Active -> Retired. Every accepted operation emits exactly one capital
// event and commits exactly one ledger entry; a rejected operation
// leaves no trace. The manager owns the asset registry, but the registry
// is derived state: Rehydrate rebuilds it from the committed ledger
// alone.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/icl/core/pkg/capital"
	"github.com/Mindburn-Labs/icl/core/pkg/depreciation"
	"github.com/Mindburn-Labs/icl/core/pkg/finance"
	"github.com/Mindburn-Labs/icl/core/pkg/integrity"
	"github.com/Mindburn-Labs/icl/core/pkg/ledger"
)

var (
	// ErrIntegrity marks a draft that failed pre-commit integrity checks.
	ErrIntegrity = errors.New("lifecycle: integrity violation")

	// ErrUncorrectable rejects corrections of classifications whose
	// registry effect cannot be compensated.
	ErrUncorrectable = errors.New("lifecycle: entry cannot be corrected")

	// ErrAlreadyCorrected rejects a second compensation of the same entry.
	ErrAlreadyCorrected = errors.New("lifecycle: entry already corrected")
)

// IntegrityError aborts an operation whose draft failed the pre-commit
// integrity checks. The operation has no effect; nothing was written.
type IntegrityError struct {
	EntryID    string
	Violations []integrity.Violation
}

func (e *IntegrityError) Error() string {
	if len(e.Violations) == 0 {
		return fmt.Sprintf("entry %s: integrity check failed", e.EntryID)
	}
	v := e.Violations[0]
	return fmt.Sprintf("entry %s: %s: %s", e.EntryID, v.Code, v.Detail)
}

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

// Gate admits or rejects an operation before any validation or state
// change. Implementations receive the operation name and the raw request
// fields; a denial aborts the operation with no event emitted.
type Gate interface {
	Admit(ctx context.Context, input map[string]any) error
}

// eventCursor tracks the tail of one asset's event chain.
type eventCursor struct {
	seq    uint64
	lastID string
}

// period is one committed depreciation window, half-open [Start, End).
type period struct {
	Start   time.Time
	End     time.Time
	EntryID string
}

// Manager coordinates lifecycle operations. Mutations follow one
// protocol: admit via policy, acquire the asset's keyed lock, validate
// against registry state, build the event/journal pair, commit through
// the store's critical section, then fold the committed entry back into
// the registry. Reads hand out clones and never block writers.
type Manager struct {
	store      ledger.Store
	engine     *depreciation.Engine
	builder    *finance.Builder
	checker    *integrity.Checker
	policy     Gate
	multiplier decimal.Decimal
	clock      func() time.Time
	idgen      func() string
	locks      *keyedLocks

	mu        sync.RWMutex
	assets    map[string]*capital.Asset
	periods   map[string][]period
	cursors   map[string]eventCursor
	corrected map[string]string
}

// New builds a manager over the given store with the default engine,
// chart of accounts and integrity checker.
func New(store ledger.Store) (*Manager, error) {
	if store == nil {
		return nil, errors.New("lifecycle: nil store")
	}
	builder, err := finance.NewBuilder(finance.DefaultChart())
	if err != nil {
		return nil, err
	}
	return &Manager{
		store:     store,
		engine:    depreciation.DefaultEngine(),
		builder:   builder,
		checker:   integrity.NewChecker(),
		clock:     time.Now,
		idgen:     func() string { return uuid.New().String() },
		locks:     newKeyedLocks(),
		assets:    make(map[string]*capital.Asset),
		periods:   make(map[string][]period),
		cursors:   make(map[string]eventCursor),
		corrected: make(map[string]string),
	}, nil
}

// WithClock replaces the wall clock. Tests pin it.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	if clock != nil {
		m.clock = clock
	}
	return m
}

// WithIDGenerator replaces the event and entry id source.
func (m *Manager) WithIDGenerator(gen func() string) *Manager {
	if gen != nil {
		m.idgen = gen
	}
	return m
}

// WithEngine replaces the depreciation engine.
func (m *Manager) WithEngine(engine *depreciation.Engine) *Manager {
	if engine != nil {
		m.engine = engine
	}
	return m
}

// WithBuilder replaces the journal builder, usually to install a
// profile's chart of accounts.
func (m *Manager) WithBuilder(builder *finance.Builder) *Manager {
	if builder != nil {
		m.builder = builder
	}
	return m
}

// WithRateMultiplier sets the declining-balance multiplier passed to the
// engine. Zero keeps the engine default.
func (m *Manager) WithRateMultiplier(multiplier decimal.Decimal) *Manager {
	m.multiplier = multiplier
	return m
}

// WithChecker replaces the pre-commit integrity checker.
func (m *Manager) WithChecker(checker *integrity.Checker) *Manager {
	if checker != nil {
		m.checker = checker
	}
	return m
}

// WithPolicy installs an admission gate evaluated before validation.
func (m *Manager) WithPolicy(gate Gate) *Manager {
	m.policy = gate
	return m
}

// Asset returns a copy of the registered asset.
func (m *Manager) Asset(assetID string) (*capital.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[assetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", capital.ErrAssetNotFound, assetID)
	}
	return a.Clone(), nil
}

// Assets returns copies of every registered asset ordered by id.
func (m *Manager) Assets() []*capital.Asset {
	m.mu.RLock()
	out := make([]*capital.Asset, 0, len(m.assets))
	for _, a := range m.assets {
		out = append(out, a.Clone())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Rehydrate rebuilds the registry from the committed ledger. Meant for
// startup, before the manager is shared with callers.
func (m *Manager) Rehydrate(ctx context.Context) error {
	entries, err := m.store.ReadRange(ctx, ledger.Filter{})
	if err != nil {
		return fmt.Errorf("lifecycle: rehydrate: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets = make(map[string]*capital.Asset)
	m.periods = make(map[string][]period)
	m.cursors = make(map[string]eventCursor)
	m.corrected = make(map[string]string)

	byID := make(map[string]*ledger.Entry, len(entries))
	for i := range entries {
		e := entries[i]
		var original *ledger.Entry
		if e.Classification == ledger.ClassCorrection {
			original = byID[e.CorrectsEntryID]
			if original == nil {
				return fmt.Errorf("lifecycle: rehydrate: correction %s references unknown entry %s", e.ID, e.CorrectsEntryID)
			}
		}
		if err := m.applyEntry(e, original); err != nil {
			return fmt.Errorf("lifecycle: rehydrate: %w", err)
		}
		byID[e.ID] = &entries[i]
	}
	return nil
}

// applyEntry folds one committed entry into the registry. The caller
// holds m.mu. For corrections, original is the entry being compensated;
// it is nil for every other classification.
func (m *Manager) applyEntry(e ledger.Entry, original *ledger.Entry) error {
	if e.Classification == ledger.ClassCapitalization {
		if _, exists := m.assets[e.AssetID]; exists {
			return fmt.Errorf("lifecycle: asset %s capitalized twice", e.AssetID)
		}
		var p capital.CapitalizePayload
		if err := e.Event.DecodePayload(&p); err != nil {
			return err
		}
		m.assets[e.AssetID] = &capital.Asset{
			ID:               e.AssetID,
			Name:             p.Name,
			Type:             p.AssetType,
			Owner:            p.Owner,
			Currency:         p.Currency,
			AcquisitionValue: p.Value,
			BookValue:        p.Value,
			SalvageValue:     p.SalvageValue,
			Method:           p.Method,
			UsefulLifeMonths: p.UsefulLifeMonths,
			Status:           capital.StatusActive,
			CreatedAt:        e.EffectiveAt,
			UpdatedAt:        e.EffectiveAt,
		}
		m.cursors[e.AssetID] = eventCursor{seq: e.Event.Sequence, lastID: e.Event.ID}
		return nil
	}

	a, ok := m.assets[e.AssetID]
	if !ok {
		return fmt.Errorf("lifecycle: entry %s for unknown asset %s", e.ID, e.AssetID)
	}

	switch e.Classification {
	case ledger.ClassAllocation:
		var p capital.AllocatePayload
		if err := e.Event.DecodePayload(&p); err != nil {
			return err
		}
		a.Owner = p.NewOwner

	case ledger.ClassUtilization:
		var p capital.UtilizePayload
		if err := e.Event.DecodePayload(&p); err != nil {
			return err
		}
		a.AccumulatedUtilization = a.AccumulatedUtilization.Add(p.Amount)

	case ledger.ClassDepreciation:
		var p capital.DepreciatePayload
		if err := e.Event.DecodePayload(&p); err != nil {
			return err
		}
		a.AccumulatedDepreciation = a.AccumulatedDepreciation.Add(p.Amount)
		a.BookValue = a.BookValue.Sub(p.Amount)
		m.periods[e.AssetID] = append(m.periods[e.AssetID], period{
			Start:   p.PeriodStart,
			End:     p.PeriodEnd,
			EntryID: e.ID,
		})

	case ledger.ClassRetirement:
		a.Status = capital.StatusRetired
		a.BookValue = decimal.Zero

	case ledger.ClassCorrection:
		if original == nil {
			return fmt.Errorf("lifecycle: correction %s missing its original entry", e.ID)
		}
		switch original.Classification {
		case ledger.ClassDepreciation:
			var p capital.DepreciatePayload
			if err := original.Event.DecodePayload(&p); err != nil {
				return err
			}
			a.AccumulatedDepreciation = a.AccumulatedDepreciation.Sub(p.Amount)
			a.BookValue = a.BookValue.Add(p.Amount)
			m.periods[e.AssetID] = removePeriod(m.periods[e.AssetID], original.ID)
		case ledger.ClassUtilization:
			a.AccumulatedUtilization = a.AccumulatedUtilization.Sub(original.Amount)
		default:
			return fmt.Errorf("%w: %s is %s", ErrUncorrectable, original.ID, original.Classification)
		}
		m.corrected[original.ID] = e.ID

	default:
		return fmt.Errorf("lifecycle: entry %s has unknown classification %q", e.ID, e.Classification)
	}

	a.UpdatedAt = e.EffectiveAt
	m.cursors[e.AssetID] = eventCursor{seq: e.Event.Sequence, lastID: e.Event.ID}
	return nil
}

// removePeriod reopens a depreciation window by dropping the period the
// given entry booked.
func removePeriod(ps []period, entryID string) []period {
	out := ps[:0]
	for _, p := range ps {
		if p.EntryID != entryID {
			out = append(out, p)
		}
	}
	return out
}
