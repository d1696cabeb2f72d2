// Package icl is the public face of the intelligence capital ledger.
// External collaborators construct one Ledger and drive everything
// through it: lifecycle operations, range reads, proofs, statements and
// integrity verification. The façade adds the operational envelope the
// inner packages stay free of: admission policy, per-actor rate limits,
// audit records and telemetry.
package icl

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/icl/core/pkg/audit"
	"github.com/Mindburn-Labs/icl/core/pkg/capital"
	"github.com/Mindburn-Labs/icl/core/pkg/finance"
	"github.com/Mindburn-Labs/icl/core/pkg/integrity"
	"github.com/Mindburn-Labs/icl/core/pkg/ledger"
	"github.com/Mindburn-Labs/icl/core/pkg/lifecycle"
	"github.com/Mindburn-Labs/icl/core/pkg/limiter"
	"github.com/Mindburn-Labs/icl/core/pkg/observability"
	"github.com/Mindburn-Labs/icl/core/pkg/policy"
	"github.com/Mindburn-Labs/icl/core/pkg/profile"
	"github.com/Mindburn-Labs/icl/core/pkg/proof"
)

// Ledger is the façade over the capital ledger. Construct with New;
// the zero value is not usable.
type Ledger struct {
	store   ledger.Store
	manager *lifecycle.Manager
	checker *integrity.Checker
	prover  *proof.Generator

	signer  ledger.Signer
	gate    lifecycle.Gate
	profile *profile.Profile

	limits     limiter.Store
	ratePolicy limiter.Policy

	auditor audit.Logger
	metrics *observability.Provider
	logger  *slog.Logger
	clock   func() time.Time
}

// Option configures the façade.
type Option func(*Ledger)

// WithClock pins the wall clock. Tests use it.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithStore installs a caller-built entry store. Without it the façade
// runs on an in-memory store.
func WithStore(store ledger.Store) Option {
	return func(l *Ledger) { l.store = store }
}

// WithLogger replaces the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithPolicy installs an admission gate evaluated before every
// operation. Overrides the profile's guardrails.
func WithPolicy(gate lifecycle.Gate) Option {
	return func(l *Ledger) { l.gate = gate }
}

// WithSigner equips the default store and the verifier with a keyring.
// A caller-supplied store must already carry its own signer.
func WithSigner(signer ledger.Signer) Option {
	return func(l *Ledger) { l.signer = signer }
}

// WithLimiter rate-limits operations per actor.
func WithLimiter(store limiter.Store, p limiter.Policy) Option {
	return func(l *Ledger) {
		l.limits = store
		l.ratePolicy = p
	}
}

// WithAudit records command outcomes, including rejections that never
// reach the ledger.
func WithAudit(log audit.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.auditor = log
		}
	}
}

// WithMetrics attaches the telemetry provider.
func WithMetrics(p *observability.Provider) Option {
	return func(l *Ledger) { l.metrics = p }
}

// WithProfile installs an accounting profile: its chart of accounts,
// capitalization defaults, declining-balance multiplier and guardrails.
func WithProfile(p *profile.Profile) Option {
	return func(l *Ledger) { l.profile = p }
}

// New assembles the façade and rehydrates the asset registry from the
// store, so a durable ledger resumes where it left off.
func New(ctx context.Context, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		clock:   time.Now,
		logger:  slog.Default(),
		auditor: audit.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.store == nil {
		ms := ledger.NewMemoryStore().WithClock(l.clock)
		if l.signer != nil {
			ms.WithSigner(l.signer)
		}
		l.store = ms
	}

	l.checker = integrity.NewChecker()
	if l.signer != nil {
		l.checker.WithSigner(l.signer)
	}

	manager, err := lifecycle.New(l.store)
	if err != nil {
		return nil, err
	}
	manager.WithClock(l.clock).WithChecker(l.checker)

	if l.profile != nil {
		builder, err := finance.NewBuilder(l.profile.Chart())
		if err != nil {
			return nil, err
		}
		manager.WithBuilder(builder)
		if l.profile.Defaults.RateMultiplier > 0 {
			manager.WithRateMultiplier(decimal.NewFromFloat(l.profile.Defaults.RateMultiplier))
		}
		if l.gate == nil {
			gate, err := l.profile.Guardrails()
			if err != nil {
				return nil, err
			}
			l.gate = gate
		}
	}
	if l.gate != nil {
		manager.WithPolicy(l.gate)
	}

	if err := manager.Rehydrate(ctx); err != nil {
		return nil, err
	}

	l.manager = manager
	l.prover = proof.NewGenerator(l.store, l.checker).WithClock(l.clock)
	return l, nil
}

// Store exposes the underlying entry store for wiring exporters and
// reconcilers. Callers must not assume a concrete type.
func (l *Ledger) Store() ledger.Store { return l.store }

// Capitalize brings a new asset under ledger ownership. Empty currency,
// method and useful life fall back to the profile defaults.
func (l *Ledger) Capitalize(ctx context.Context, req lifecycle.CapitalizeRequest) (ledger.Entry, error) {
	if l.profile != nil {
		if req.Currency == "" {
			req.Currency = l.profile.Defaults.Currency
		}
		if req.Method == "" {
			req.Method = l.profile.Defaults.Method
		}
		if req.UsefulLifeMonths == 0 {
			req.UsefulLifeMonths = l.profile.Defaults.UsefulLifeMonths
		}
	}
	ctx, finish := l.track(ctx, "icl.capitalize",
		observability.AssetOperation("capitalize", req.AssetID, req.Actor)...)
	entry, err := l.run(ctx, req.Actor, func(ctx context.Context) (ledger.Entry, error) {
		return l.manager.Capitalize(ctx, req)
	})
	finish(err)
	l.recordMutation(ctx, "capitalize", req.Actor, req.AssetID, entry, err)
	return entry, err
}

// Allocate transfers ownership of an active asset.
func (l *Ledger) Allocate(ctx context.Context, req lifecycle.AllocateRequest) (ledger.Entry, error) {
	ctx, finish := l.track(ctx, "icl.allocate",
		observability.AssetOperation("allocate", req.AssetID, req.Actor)...)
	entry, err := l.run(ctx, req.Actor, func(ctx context.Context) (ledger.Entry, error) {
		return l.manager.Allocate(ctx, req)
	})
	finish(err)
	l.recordMutation(ctx, "allocate", req.Actor, req.AssetID, entry, err)
	return entry, err
}

// Utilize records usage against an active asset.
func (l *Ledger) Utilize(ctx context.Context, req lifecycle.UtilizeRequest) (ledger.Entry, error) {
	ctx, finish := l.track(ctx, "icl.utilize",
		observability.AssetOperation("utilize", req.AssetID, req.Actor)...)
	entry, err := l.run(ctx, req.Actor, func(ctx context.Context) (ledger.Entry, error) {
		return l.manager.Utilize(ctx, req)
	})
	finish(err)
	l.recordMutation(ctx, "utilize", req.Actor, req.AssetID, entry, err)
	return entry, err
}

// Depreciate books value decay for one period.
func (l *Ledger) Depreciate(ctx context.Context, req lifecycle.DepreciateRequest) (ledger.Entry, error) {
	ctx, finish := l.track(ctx, "icl.depreciate",
		observability.AssetOperation("depreciate", req.AssetID, req.Actor)...)
	entry, err := l.run(ctx, req.Actor, func(ctx context.Context) (ledger.Entry, error) {
		return l.manager.Depreciate(ctx, req)
	})
	finish(err)
	l.recordMutation(ctx, "depreciate", req.Actor, req.AssetID, entry, err)
	return entry, err
}

// Retire writes an active asset off. Terminal.
func (l *Ledger) Retire(ctx context.Context, req lifecycle.RetireRequest) (ledger.Entry, error) {
	ctx, finish := l.track(ctx, "icl.retire",
		observability.AssetOperation("retire", req.AssetID, req.Actor)...)
	entry, err := l.run(ctx, req.Actor, func(ctx context.Context) (ledger.Entry, error) {
		return l.manager.Retire(ctx, req)
	})
	finish(err)
	l.recordMutation(ctx, "retire", req.Actor, req.AssetID, entry, err)
	return entry, err
}

// Correct compensates a committed entry with its mirror image.
func (l *Ledger) Correct(ctx context.Context, req lifecycle.CorrectRequest) (ledger.Entry, error) {
	ctx, finish := l.track(ctx, "icl.correct",
		observability.AssetOperation("correct", req.EntryID, req.Actor)...)
	entry, err := l.run(ctx, req.Actor, func(ctx context.Context) (ledger.Entry, error) {
		return l.manager.Correct(ctx, req)
	})
	finish(err)
	l.recordMutation(ctx, "correct", req.Actor, req.EntryID, entry, err)
	return entry, err
}

// ReadRange returns committed entries matching the filter in global
// sequence order.
func (l *Ledger) ReadRange(ctx context.Context, f ledger.Filter) ([]ledger.Entry, error) {
	ctx, finish := l.track(ctx, "icl.read_range")
	entries, err := l.store.ReadRange(ctx, f)
	finish(err)
	return entries, err
}

// Entry retrieves one committed entry by id.
func (l *Ledger) Entry(ctx context.Context, id string) (ledger.Entry, error) {
	return l.store.Get(ctx, id)
}

// Asset returns a copy of the registered asset.
func (l *Ledger) Asset(assetID string) (*capital.Asset, error) {
	return l.manager.Asset(assetID)
}

// Assets returns copies of every registered asset ordered by id.
func (l *Ledger) Assets() []*capital.Asset {
	return l.manager.Assets()
}

// GenerateProof proves the asset's current book value from its ledger
// history. An unverifiable ledger yields an invalid proof, not an error.
func (l *Ledger) GenerateProof(ctx context.Context, assetID string) (proof.CapitalProof, error) {
	ctx, finish := l.track(ctx, "icl.prove", observability.AttrAssetID.String(assetID))
	p, err := l.prover.Generate(ctx, assetID)
	finish(err)
	if err == nil && l.metrics != nil {
		l.metrics.RecordOperation(ctx, observability.ProofOperation(assetID, p.Valid)...)
	}
	return p, err
}

// VerifyIntegrity re-verifies the entire chain and reports the result.
func (l *Ledger) VerifyIntegrity(ctx context.Context) (integrity.Report, error) {
	ctx, finish := l.track(ctx, "icl.verify")
	report, err := l.checker.VerifyStore(ctx, l.store)
	finish(err)
	return report, err
}

// run applies the per-actor rate limit, then the operation.
func (l *Ledger) run(ctx context.Context, actor string, op func(context.Context) (ledger.Entry, error)) (ledger.Entry, error) {
	if l.limits != nil {
		if err := limiter.Check(ctx, l.limits, actor, l.ratePolicy); err != nil {
			return ledger.Entry{}, err
		}
	}
	return op(ctx)
}

// recordMutation writes the audit record and success metrics for one
// lifecycle operation. Audit failures are logged, never propagated.
func (l *Ledger) recordMutation(ctx context.Context, action, actor, resource string, entry ledger.Entry, err error) {
	var ev audit.Event
	switch {
	case err == nil:
		ev = audit.Success(audit.EventMutation, actor, action, resource, map[string]any{
			"entry_id": entry.ID,
			"sequence": entry.Sequence,
		})
	case errors.Is(err, policy.ErrDenied), errors.Is(err, limiter.ErrLimited):
		ev = audit.Rejection(audit.EventPolicy, actor, action, resource, err, nil)
	default:
		ev = audit.Rejection(audit.EventMutation, actor, action, resource, err, nil)
	}
	if recErr := l.auditor.Record(ctx, ev); recErr != nil {
		l.logger.WarnContext(ctx, "audit record failed", "action", action, "error", recErr)
	}

	if err != nil {
		l.logger.WarnContext(ctx, "operation rejected",
			"action", action, "resource", resource, "error", err)
		return
	}
	l.logger.InfoContext(ctx, "ledger entry committed",
		"action", action,
		"asset_id", entry.AssetID,
		"entry_id", entry.ID,
		"sequence", entry.Sequence)
	if l.metrics != nil {
		l.metrics.RecordEntryAppended(ctx,
			observability.EntryAppended(string(entry.Classification), entry.Sequence)...)
	}
}

// track opens telemetry for one operation when metrics are attached.
func (l *Ledger) track(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if l.metrics == nil {
		return ctx, func(error) {}
	}
	return l.metrics.TrackOperation(ctx, name, attrs...)
}
