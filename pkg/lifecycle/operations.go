package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/icl/core/pkg/capital"
	"github.com/Mindburn-Labs/icl/core/pkg/depreciation"
	"github.com/Mindburn-Labs/icl/core/pkg/finance"
	"github.com/Mindburn-Labs/icl/core/pkg/ledger"
)

// CapitalizeRequest brings a new asset under ledger ownership. A zero
// EffectiveAt means now; the same convention holds for every request in
// this package.
type CapitalizeRequest struct {
	AssetID          string
	Name             string
	Type             capital.AssetType
	Owner            string
	Value            decimal.Decimal
	Currency         string
	Method           capital.DepreciationMethod
	UsefulLifeMonths int
	SalvageValue     decimal.Decimal
	Actor            string
	EffectiveAt      time.Time
}

// AllocateRequest transfers ownership of an active asset.
type AllocateRequest struct {
	AssetID     string
	NewOwner    string
	Actor       string
	EffectiveAt time.Time
}

// UtilizeRequest records usage against an active asset.
type UtilizeRequest struct {
	AssetID     string
	Amount      decimal.Decimal
	Actor       string
	EffectiveAt time.Time
}

// DepreciateRequest books value decay for one period. When EffectiveAt
// is zero the entry takes effect at PeriodEnd, the instant the window
// closes.
type DepreciateRequest struct {
	AssetID     string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Actor       string
	EffectiveAt time.Time
}

// RetireRequest writes an active asset off. Terminal.
type RetireRequest struct {
	AssetID     string
	Reason      string
	Actor       string
	EffectiveAt time.Time
}

// CorrectRequest compensates a committed entry with a mirror-image one.
// Only depreciation and utilization entries can be corrected, and only
// while the asset is still active.
type CorrectRequest struct {
	EntryID     string
	Reason      string
	Actor       string
	EffectiveAt time.Time
}

// Capitalize registers asset_id in the Active state and books its
// acquisition value.
func (m *Manager) Capitalize(ctx context.Context, req CapitalizeRequest) (ledger.Entry, error) {
	if err := m.admit(ctx, map[string]any{
		"operation":          "capitalize",
		"asset_id":           req.AssetID,
		"asset_type":         string(req.Type),
		"owner":              req.Owner,
		"actor":              req.Actor,
		"amount":             req.Value.InexactFloat64(),
		"currency":           req.Currency,
		"method":             string(req.Method),
		"useful_life_months": req.UsefulLifeMonths,
	}); err != nil {
		return ledger.Entry{}, err
	}
	if req.AssetID == "" {
		return ledger.Entry{}, errors.New("lifecycle: capitalize: missing asset id")
	}
	value := finance.Quantize(req.Value)
	salvage := finance.Quantize(req.SalvageValue)
	if !value.IsPositive() {
		return ledger.Entry{}, &capital.InvalidValueError{AssetID: req.AssetID, Value: req.Value}
	}
	if salvage.IsNegative() {
		return ledger.Entry{}, fmt.Errorf("%w: asset %s: negative salvage %s",
			capital.ErrInvalidValue, req.AssetID, req.SalvageValue)
	}
	if salvage.GreaterThan(value) {
		return ledger.Entry{}, fmt.Errorf("%w: asset %s: salvage %s exceeds value %s",
			capital.ErrInvalidValue, req.AssetID, salvage, value)
	}
	if req.UsefulLifeMonths <= 0 {
		return ledger.Entry{}, fmt.Errorf("%w: asset %s: useful life %d months must be positive",
			capital.ErrInvalidValue, req.AssetID, req.UsefulLifeMonths)
	}
	if !capital.ValidType(req.Type) {
		return ledger.Entry{}, fmt.Errorf("lifecycle: capitalize %s: unknown asset type %q", req.AssetID, req.Type)
	}
	if !capital.ValidMethod(req.Method) || !m.engine.Supports(req.Method) {
		return ledger.Entry{}, fmt.Errorf("%w: %q", capital.ErrUnknownMethod, req.Method)
	}
	if err := finance.ValidateCurrency(req.Currency); err != nil {
		return ledger.Entry{}, err
	}

	release, err := m.locks.acquire(ctx, req.AssetID)
	if err != nil {
		return ledger.Entry{}, err
	}
	defer release()

	m.mu.RLock()
	_, exists := m.assets[req.AssetID]
	m.mu.RUnlock()
	if exists {
		return ledger.Entry{}, &capital.DuplicateAssetError{AssetID: req.AssetID}
	}

	effective := m.effectiveAt(req.EffectiveAt)
	event, err := capital.NewEvent(m.idgen(), 1, req.AssetID, capital.EventCapitalize,
		capital.CapitalizePayload{
			Owner:            req.Owner,
			Name:             req.Name,
			AssetType:        req.Type,
			Value:            value,
			Currency:         req.Currency,
			Method:           req.Method,
			UsefulLifeMonths: req.UsefulLifeMonths,
			SalvageValue:     salvage,
		}, req.Actor, effective, "")
	if err != nil {
		return ledger.Entry{}, err
	}
	journal, err := m.builder.Capitalize(req.AssetID, value)
	if err != nil {
		return ledger.Entry{}, err
	}
	return m.commit(ctx, ledger.Draft{
		ID:             m.idgen(),
		AssetID:        req.AssetID,
		EventID:        event.ID,
		Classification: ledger.ClassCapitalization,
		Amount:         value,
		Currency:       req.Currency,
		Narrative: fmt.Sprintf("capitalize %s: %s %s, %s over %d months",
			req.AssetID, value, req.Currency, req.Method, req.UsefulLifeMonths),
		Journal:     journal,
		Event:       event,
		EffectiveAt: effective,
	}, nil)
}

// Allocate transfers ownership. Reassignment has no monetary effect.
func (m *Manager) Allocate(ctx context.Context, req AllocateRequest) (ledger.Entry, error) {
	if err := m.admit(ctx, map[string]any{
		"operation": "allocate",
		"asset_id":  req.AssetID,
		"owner":     req.NewOwner,
		"actor":     req.Actor,
	}); err != nil {
		return ledger.Entry{}, err
	}
	if req.AssetID == "" {
		return ledger.Entry{}, errors.New("lifecycle: allocate: missing asset id")
	}
	if req.NewOwner == "" {
		return ledger.Entry{}, fmt.Errorf("lifecycle: allocate %s: missing new owner", req.AssetID)
	}

	release, err := m.locks.acquire(ctx, req.AssetID)
	if err != nil {
		return ledger.Entry{}, err
	}
	defer release()

	asset, cursor, err := m.activeAsset(req.AssetID)
	if err != nil {
		return ledger.Entry{}, err
	}

	effective := m.effectiveAt(req.EffectiveAt)
	event, err := capital.NewEvent(m.idgen(), cursor.seq+1, req.AssetID, capital.EventAllocate,
		capital.AllocatePayload{
			PreviousOwner: asset.Owner,
			NewOwner:      req.NewOwner,
		}, req.Actor, effective, cursor.lastID)
	if err != nil {
		return ledger.Entry{}, err
	}
	journal, err := m.builder.Allocate(req.AssetID, asset.Owner, req.NewOwner)
	if err != nil {
		return ledger.Entry{}, err
	}
	return m.commit(ctx, ledger.Draft{
		ID:             m.idgen(),
		AssetID:        req.AssetID,
		EventID:        event.ID,
		Classification: ledger.ClassAllocation,
		Amount:         decimal.Zero,
		Currency:       asset.Currency,
		Narrative:      fmt.Sprintf("allocate %s: %s -> %s", req.AssetID, asset.Owner, req.NewOwner),
		Journal:        journal,
		Event:          event,
		EffectiveAt:    effective,
	}, nil)
}

// Utilize records usage. Book value is untouched; only the accumulated
// utilization attribute moves.
func (m *Manager) Utilize(ctx context.Context, req UtilizeRequest) (ledger.Entry, error) {
	if err := m.admit(ctx, map[string]any{
		"operation": "utilize",
		"asset_id":  req.AssetID,
		"actor":     req.Actor,
		"amount":    req.Amount.InexactFloat64(),
	}); err != nil {
		return ledger.Entry{}, err
	}
	if req.AssetID == "" {
		return ledger.Entry{}, errors.New("lifecycle: utilize: missing asset id")
	}
	amount := finance.Quantize(req.Amount)
	if !amount.IsPositive() {
		return ledger.Entry{}, &capital.InvalidAmountError{AssetID: req.AssetID, Amount: req.Amount}
	}

	release, err := m.locks.acquire(ctx, req.AssetID)
	if err != nil {
		return ledger.Entry{}, err
	}
	defer release()

	asset, cursor, err := m.activeAsset(req.AssetID)
	if err != nil {
		return ledger.Entry{}, err
	}

	effective := m.effectiveAt(req.EffectiveAt)
	event, err := capital.NewEvent(m.idgen(), cursor.seq+1, req.AssetID, capital.EventUtilize,
		capital.UtilizePayload{Amount: amount}, req.Actor, effective, cursor.lastID)
	if err != nil {
		return ledger.Entry{}, err
	}
	journal, err := m.builder.Utilize(req.AssetID, amount)
	if err != nil {
		return ledger.Entry{}, err
	}
	return m.commit(ctx, ledger.Draft{
		ID:             m.idgen(),
		AssetID:        req.AssetID,
		EventID:        event.ID,
		Classification: ledger.ClassUtilization,
		Amount:         amount,
		Currency:       asset.Currency,
		Narrative:      fmt.Sprintf("utilize %s: %s %s", req.AssetID, amount, asset.Currency),
		Journal:        journal,
		Event:          event,
		EffectiveAt:    effective,
	}, nil)
}

// Depreciate books value decay for [PeriodStart, PeriodEnd). The window
// must not intersect any previously depreciated window for this asset;
// adjacent windows sharing a boundary instant are legal.
func (m *Manager) Depreciate(ctx context.Context, req DepreciateRequest) (ledger.Entry, error) {
	if err := m.admit(ctx, map[string]any{
		"operation":     "depreciate",
		"asset_id":      req.AssetID,
		"actor":         req.Actor,
		"period_months": depreciation.MonthsBetween(req.PeriodStart, req.PeriodEnd),
	}); err != nil {
		return ledger.Entry{}, err
	}
	if req.AssetID == "" {
		return ledger.Entry{}, errors.New("lifecycle: depreciate: missing asset id")
	}
	if req.PeriodStart.IsZero() || !req.PeriodEnd.After(req.PeriodStart) {
		return ledger.Entry{}, fmt.Errorf("%w: %s..%s", capital.ErrInvalidPeriod,
			req.PeriodStart.Format("2006-01-02"), req.PeriodEnd.Format("2006-01-02"))
	}
	start, end := req.PeriodStart.UTC(), req.PeriodEnd.UTC()

	release, err := m.locks.acquire(ctx, req.AssetID)
	if err != nil {
		return ledger.Entry{}, err
	}
	defer release()

	asset, cursor, err := m.activeAsset(req.AssetID)
	if err != nil {
		return ledger.Entry{}, err
	}
	if p, ok := m.overlapping(req.AssetID, start, end); ok {
		return ledger.Entry{}, &capital.OverlappingPeriodError{
			AssetID:       req.AssetID,
			Start:         start,
			End:           end,
			ExistingStart: p.Start,
			ExistingEnd:   p.End,
		}
	}

	amount, err := m.engine.Compute(asset.Method, depreciation.Input{
		AcquisitionValue:        asset.AcquisitionValue,
		SalvageValue:            asset.SalvageValue,
		BookValue:               asset.BookValue,
		AccumulatedDepreciation: asset.AccumulatedDepreciation,
		UsefulLifeMonths:        asset.UsefulLifeMonths,
		RateMultiplier:          m.multiplier,
		PeriodStart:             start,
		PeriodEnd:               end,
	})
	if err != nil {
		return ledger.Entry{}, err
	}
	if !amount.IsPositive() {
		return ledger.Entry{}, fmt.Errorf("%w: asset %s period %s..%s",
			capital.ErrNothingToDepreciate, req.AssetID,
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	effective := req.EffectiveAt.UTC()
	if req.EffectiveAt.IsZero() {
		effective = end
	}
	event, err := capital.NewEvent(m.idgen(), cursor.seq+1, req.AssetID, capital.EventDepreciate,
		capital.DepreciatePayload{
			PeriodStart: start,
			PeriodEnd:   end,
			Amount:      amount,
			Method:      asset.Method,
		}, req.Actor, effective, cursor.lastID)
	if err != nil {
		return ledger.Entry{}, err
	}
	journal, err := m.builder.Depreciate(req.AssetID, amount)
	if err != nil {
		return ledger.Entry{}, err
	}
	return m.commit(ctx, ledger.Draft{
		ID:             m.idgen(),
		AssetID:        req.AssetID,
		EventID:        event.ID,
		Classification: ledger.ClassDepreciation,
		Amount:         amount,
		Currency:       asset.Currency,
		Narrative: fmt.Sprintf("depreciate %s: %s %s for %s..%s",
			req.AssetID, amount, asset.Currency,
			start.Format("2006-01-02"), end.Format("2006-01-02")),
		Journal:     journal,
		Event:       event,
		EffectiveAt: effective,
	}, nil)
}

// Retire writes the asset off and transitions it to Retired. No further
// events are accepted for the asset; proofs and reads remain available.
func (m *Manager) Retire(ctx context.Context, req RetireRequest) (ledger.Entry, error) {
	if err := m.admit(ctx, map[string]any{
		"operation": "retire",
		"asset_id":  req.AssetID,
		"actor":     req.Actor,
		"reason":    req.Reason,
	}); err != nil {
		return ledger.Entry{}, err
	}
	if req.AssetID == "" {
		return ledger.Entry{}, errors.New("lifecycle: retire: missing asset id")
	}

	release, err := m.locks.acquire(ctx, req.AssetID)
	if err != nil {
		return ledger.Entry{}, err
	}
	defer release()

	asset, cursor, err := m.activeAsset(req.AssetID)
	if err != nil {
		return ledger.Entry{}, err
	}

	// Write-off takes the remaining book value; together with the
	// accumulated depreciation it extinguishes the full acquisition cost.
	remaining := asset.BookValue
	journal, err := m.builder.Retire(req.AssetID, asset.AccumulatedDepreciation, remaining, asset.AcquisitionValue)
	if err != nil {
		return ledger.Entry{}, err
	}

	effective := m.effectiveAt(req.EffectiveAt)
	event, err := capital.NewEvent(m.idgen(), cursor.seq+1, req.AssetID, capital.EventRetire,
		capital.RetirePayload{
			Reason:         req.Reason,
			WriteOff:       remaining,
			FinalBookValue: remaining,
		}, req.Actor, effective, cursor.lastID)
	if err != nil {
		return ledger.Entry{}, err
	}
	narrative := fmt.Sprintf("retire %s: write off %s %s", req.AssetID, remaining, asset.Currency)
	if req.Reason != "" {
		narrative += ": " + req.Reason
	}
	return m.commit(ctx, ledger.Draft{
		ID:             m.idgen(),
		AssetID:        req.AssetID,
		EventID:        event.ID,
		Classification: ledger.ClassRetirement,
		Amount:         remaining,
		Currency:       asset.Currency,
		Narrative:      narrative,
		Journal:        journal,
		Event:          event,
		EffectiveAt:    effective,
	}, nil)
}

// Correct compensates a committed entry with its mirror image. The
// original stays visible; the pair nets to zero and the registry effect
// of the original is reversed.
func (m *Manager) Correct(ctx context.Context, req CorrectRequest) (ledger.Entry, error) {
	if err := m.admit(ctx, map[string]any{
		"operation": "correct",
		"entry_id":  req.EntryID,
		"actor":     req.Actor,
		"reason":    req.Reason,
	}); err != nil {
		return ledger.Entry{}, err
	}
	if req.EntryID == "" {
		return ledger.Entry{}, errors.New("lifecycle: correct: missing entry id")
	}

	original, err := m.store.Get(ctx, req.EntryID)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("lifecycle: correct %s: %w", req.EntryID, err)
	}
	switch original.Classification {
	case ledger.ClassDepreciation, ledger.ClassUtilization:
	default:
		return ledger.Entry{}, fmt.Errorf("%w: %s is %s", ErrUncorrectable, original.ID, original.Classification)
	}

	release, err := m.locks.acquire(ctx, original.AssetID)
	if err != nil {
		return ledger.Entry{}, err
	}
	defer release()

	asset, cursor, err := m.activeAsset(original.AssetID)
	if err != nil {
		return ledger.Entry{}, err
	}
	m.mu.RLock()
	byWhom, done := m.corrected[original.ID]
	m.mu.RUnlock()
	if done {
		return ledger.Entry{}, fmt.Errorf("%w: %s already corrected by %s", ErrAlreadyCorrected, original.ID, byWhom)
	}

	effective := m.effectiveAt(req.EffectiveAt)
	event, err := capital.NewEvent(m.idgen(), cursor.seq+1, original.AssetID, capital.EventCorrect,
		capital.CorrectPayload{
			CorrectsEntryID: original.ID,
			Reason:          req.Reason,
		}, req.Actor, effective, cursor.lastID)
	if err != nil {
		return ledger.Entry{}, err
	}
	journal, err := m.builder.Correction(original.Journal, req.Reason)
	if err != nil {
		return ledger.Entry{}, err
	}
	narrative := fmt.Sprintf("correct %s", original.ID)
	if req.Reason != "" {
		narrative += ": " + req.Reason
	}
	return m.commit(ctx, ledger.Draft{
		ID:              m.idgen(),
		AssetID:         original.AssetID,
		EventID:         event.ID,
		Classification:  ledger.ClassCorrection,
		Amount:          original.Amount,
		Currency:        asset.Currency,
		Narrative:       narrative,
		Journal:         journal,
		Event:           event,
		CorrectsEntryID: original.ID,
		EffectiveAt:     effective,
	}, &original)
}

// admit runs the policy gate, if any.
func (m *Manager) admit(ctx context.Context, input map[string]any) error {
	if m.policy == nil {
		return nil
	}
	return m.policy.Admit(ctx, input)
}

func (m *Manager) effectiveAt(t time.Time) time.Time {
	if t.IsZero() {
		return m.clock().UTC()
	}
	return t.UTC()
}

// activeAsset snapshots a mutable asset and its event cursor. The caller
// must hold the asset's keyed lock so the snapshot stays authoritative
// until commit.
func (m *Manager) activeAsset(assetID string) (*capital.Asset, eventCursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assets[assetID]
	if !ok {
		return nil, eventCursor{}, &capital.AssetNotActiveError{AssetID: assetID}
	}
	if !a.Active() {
		return nil, eventCursor{}, &capital.AssetNotActiveError{AssetID: assetID, Status: a.Status}
	}
	return a.Clone(), m.cursors[assetID], nil
}

// overlapping reports the first committed window intersecting the
// half-open [start, end).
func (m *Manager) overlapping(assetID string, start, end time.Time) (period, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.periods[assetID] {
		if start.Before(p.End) && end.After(p.Start) {
			return p, true
		}
	}
	return period{}, false
}

// commit runs the pre-commit integrity checks, appends the draft through
// the store's critical section and folds the committed entry into the
// registry. Rejections leave the ledger and registry untouched.
func (m *Manager) commit(ctx context.Context, d ledger.Draft, original *ledger.Entry) (ledger.Entry, error) {
	var prev *ledger.Entry
	latest, err := m.store.Latest(ctx, d.AssetID)
	switch {
	case err == nil:
		prev = &latest
	case errors.Is(err, ledger.ErrNotFound):
	default:
		return ledger.Entry{}, err
	}
	if vs := m.checker.CheckDraft(d, prev); len(vs) > 0 {
		return ledger.Entry{}, &IntegrityError{EntryID: d.ID, Violations: vs}
	}

	entry, err := m.store.Append(ctx, d)
	if err != nil {
		return ledger.Entry{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.applyEntry(entry, original); err != nil {
		// The entry is committed; a failure here means the registry can
		// no longer be derived from the ledger and must be rebuilt.
		return entry, fmt.Errorf("lifecycle: registry apply %s: %w", entry.ID, err)
	}
	return entry, nil
}
