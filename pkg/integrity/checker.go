// Package integrity holds the stateless validators for the capital ledger:
// journal balance, sequence density, hash-chain continuity, per-asset
// ordering and signature validity. Violations are data, not errors; the
// caller decides whether a violation aborts an operation or fails an audit.
package integrity

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Mindburn-Labs/icl/core/pkg/ledger"
)

// Code classifies a failed invariant.
type Code string

const (
	CodeSequenceGap       Code = "SEQUENCE_GAP"
	CodeChainBroken       Code = "CHAIN_BROKEN"
	CodeHashMismatch      Code = "HASH_MISMATCH"
	CodeUnbalancedJournal Code = "UNBALANCED_JOURNAL"
	CodeNegativeAmount    Code = "NEGATIVE_AMOUNT"
	CodeOutOfOrder        Code = "OUT_OF_ORDER"
	CodeBadSignature      Code = "BAD_SIGNATURE"
	CodeHeadMismatch      Code = "HEAD_MISMATCH"
)

// Violation pinpoints one failed invariant on one entry.
type Violation struct {
	Code     Code   `json:"code"`
	Sequence uint64 `json:"sequence"`
	EntryID  string `json:"entry_id"`
	Detail   string `json:"detail"`
}

// Report summarizes a chain verification.
type Report struct {
	Checked    uint64      `json:"checked"`
	Valid      bool        `json:"valid"`
	HeadHash   string      `json:"head_hash"`
	Violations []Violation `json:"violations,omitempty"`
}

// First returns the lowest-sequence violation, if any.
func (r Report) First() (Violation, bool) {
	if len(r.Violations) == 0 {
		return Violation{}, false
	}
	return r.Violations[0], true
}

// Checker runs the validators. The zero value is not usable; construct with
// NewChecker.
type Checker struct {
	signer  ledger.Signer
	workers int
}

// NewChecker creates a checker without signature verification.
func NewChecker() *Checker {
	return &Checker{workers: runtime.GOMAXPROCS(0)}
}

// WithSigner enables signature verification. Once set, every entry must
// carry a signature that verifies; unsigned entries are violations.
func (c *Checker) WithSigner(signer ledger.Signer) *Checker {
	c.signer = signer
	return c
}

// CheckDraft runs the pre-commit validators against a draft and the asset's
// latest committed entry (nil when the asset has none). An empty result
// means the draft may enter the commit critical section.
func (c *Checker) CheckDraft(d ledger.Draft, prev *ledger.Entry) []Violation {
	var out []Violation

	if d.Amount.IsNegative() {
		out = append(out, Violation{
			Code:    CodeNegativeAmount,
			EntryID: d.ID,
			Detail:  fmt.Sprintf("draft amount %s", d.Amount),
		})
	}
	for _, line := range d.Journal.Lines {
		if line.Amount.IsNegative() {
			out = append(out, Violation{
				Code:    CodeNegativeAmount,
				EntryID: d.ID,
				Detail:  fmt.Sprintf("journal line %s amount %s", line.Account.Code, line.Amount),
			})
		}
	}
	if err := d.Journal.Validate(); err != nil {
		out = append(out, Violation{
			Code:    CodeUnbalancedJournal,
			EntryID: d.ID,
			Detail:  err.Error(),
		})
	}
	if prev != nil && d.EffectiveAt.Before(prev.EffectiveAt) {
		out = append(out, Violation{
			Code:    CodeOutOfOrder,
			EntryID: d.ID,
			Detail: fmt.Sprintf("effective %s precedes asset head %s (entry %s)",
				d.EffectiveAt.Format(time.RFC3339), prev.EffectiveAt.Format(time.RFC3339), prev.ID),
		})
	}
	return out
}

// CheckEntry runs the per-entry validators on a committed entry: journal
// balance, non-negative amounts, content hash recomputation and, when a
// signer is configured, signature verification.
func (c *Checker) CheckEntry(e ledger.Entry) []Violation {
	var out []Violation

	if e.Amount.IsNegative() {
		out = append(out, Violation{
			Code:     CodeNegativeAmount,
			Sequence: e.Sequence,
			EntryID:  e.ID,
			Detail:   fmt.Sprintf("entry amount %s", e.Amount),
		})
	}
	if err := e.Journal.Validate(); err != nil {
		out = append(out, Violation{
			Code:     CodeUnbalancedJournal,
			Sequence: e.Sequence,
			EntryID:  e.ID,
			Detail:   err.Error(),
		})
	}

	computed, err := ledger.ComputeHash(e)
	if err != nil {
		out = append(out, Violation{
			Code:     CodeHashMismatch,
			Sequence: e.Sequence,
			EntryID:  e.ID,
			Detail:   fmt.Sprintf("hash recomputation failed: %v", err),
		})
	} else if computed != e.ContentHash {
		out = append(out, Violation{
			Code:     CodeHashMismatch,
			Sequence: e.Sequence,
			EntryID:  e.ID,
			Detail:   fmt.Sprintf("stored %s, recomputed %s", e.ContentHash, computed),
		})
	}

	if c.signer != nil {
		switch {
		case e.Signature == "":
			out = append(out, Violation{
				Code:     CodeBadSignature,
				Sequence: e.Sequence,
				EntryID:  e.ID,
				Detail:   "entry unsigned",
			})
		default:
			if err := c.signer.Verify(e.SignatureKeyID, ledger.SigningMessage(e), e.Signature); err != nil {
				out = append(out, Violation{
					Code:     CodeBadSignature,
					Sequence: e.Sequence,
					EntryID:  e.ID,
					Detail:   err.Error(),
				})
			}
		}
	}
	return out
}

// VerifyEntries checks a full chain snapshot against head. The sequential
// pass covers ordering and linkage; hash and signature recomputation fans
// out across workers.
func (c *Checker) VerifyEntries(ctx context.Context, entries []ledger.Entry, head string) (Report, error) {
	report := Report{Checked: uint64(len(entries))}

	var violations []Violation
	prevHash := ledger.GenesisHash
	assetHeads := make(map[string]time.Time)
	for i, e := range entries {
		want := uint64(i) + 1
		if e.Sequence != want {
			violations = append(violations, Violation{
				Code:     CodeSequenceGap,
				Sequence: e.Sequence,
				EntryID:  e.ID,
				Detail:   fmt.Sprintf("expected sequence %d", want),
			})
		}
		if e.PrevHash != prevHash {
			violations = append(violations, Violation{
				Code:     CodeChainBroken,
				Sequence: e.Sequence,
				EntryID:  e.ID,
				Detail:   fmt.Sprintf("expected prev %s, got %s", prevHash, e.PrevHash),
			})
		}
		prevHash = e.ContentHash

		if last, ok := assetHeads[e.AssetID]; ok && e.EffectiveAt.Before(last) {
			violations = append(violations, Violation{
				Code:     CodeOutOfOrder,
				Sequence: e.Sequence,
				EntryID:  e.ID,
				Detail: fmt.Sprintf("effective %s precedes asset head %s",
					e.EffectiveAt.Format(time.RFC3339), last.Format(time.RFC3339)),
			})
		} else {
			assetHeads[e.AssetID] = e.EffectiveAt
		}
	}
	report.HeadHash = prevHash

	if head != prevHash {
		violations = append(violations, Violation{
			Code:   CodeHeadMismatch,
			Detail: fmt.Sprintf("store head %s, chain head %s", head, prevHash),
		})
	}

	perEntry := make([][]Violation, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perEntry[i] = c.CheckEntry(entries[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	for _, vs := range perEntry {
		violations = append(violations, vs...)
	}

	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].Sequence < violations[j].Sequence
	})
	report.Violations = violations
	report.Valid = len(violations) == 0
	return report, nil
}

// VerifyStore reads the full committed chain from the store and verifies it.
func (c *Checker) VerifyStore(ctx context.Context, store ledger.Store) (Report, error) {
	entries, err := store.ReadRange(ctx, ledger.Filter{})
	if err != nil {
		return Report{}, fmt.Errorf("read chain: %w", err)
	}
	head, err := store.Head(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("read head: %w", err)
	}
	return c.VerifyEntries(ctx, entries, head)
}
