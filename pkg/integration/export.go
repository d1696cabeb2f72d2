package integration

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/icl/core/pkg/archive"
	"github.com/Mindburn-Labs/icl/core/pkg/integrity"
	"github.com/Mindburn-Labs/icl/core/pkg/ledger"
	"github.com/Mindburn-Labs/icl/core/pkg/proof"
)

var (
	// ErrEmptyAssetID is returned when the asset id is empty.
	ErrEmptyAssetID = errors.New("integration: asset_id must not be empty")
	// ErrInvalidTimeRange is returned when start time is after end time.
	ErrInvalidTimeRange = errors.New("integration: start_time must be before end_time")
	// ErrStoreNotConfigured is returned when export is invoked without a ledger store.
	ErrStoreNotConfigured = errors.New("integration: ledger store not configured (fail-closed)")
	// ErrArchiveNotConfigured is returned when archiving is requested without a sink.
	ErrArchiveNotConfigured = errors.New("integration: archive store not configured (fail-closed)")
)

// EntryRecord is the flat export shape for financial platforms. Amounts are
// fixed-scale strings so no consumer re-rounds them.
type EntryRecord struct {
	ID             string    `json:"id"`
	Sequence       uint64    `json:"sequence"`
	AssetID        string    `json:"asset_id"`
	Classification string    `json:"classification"`
	Amount         string    `json:"amount"`
	Currency       string    `json:"currency"`
	Narrative      string    `json:"narrative,omitempty"`
	EffectiveAt    time.Time `json:"effective_at"`
	RecordedAt     time.Time `json:"recorded_at"`
	ContentHash    string    `json:"content_hash"`
}

func toRecord(e ledger.Entry) EntryRecord {
	return EntryRecord{
		ID:             e.ID,
		Sequence:       e.Sequence,
		AssetID:        e.AssetID,
		Classification: string(e.Classification),
		Amount:         e.Amount.StringFixed(2),
		Currency:       e.Currency,
		Narrative:      e.Narrative,
		EffectiveAt:    e.EffectiveAt,
		RecordedAt:     e.RecordedAt,
		ContentHash:    e.ContentHash,
	}
}

// ExportEntries reads entries matching the filter as a plain record set.
func ExportEntries(ctx context.Context, store ledger.Store, filter ledger.Filter) ([]EntryRecord, error) {
	if store == nil {
		return nil, ErrStoreNotConfigured
	}
	entries, err := store.ReadRange(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("integration: read entries: %w", err)
	}
	records := make([]EntryRecord, len(entries))
	for i, e := range entries {
		records[i] = toRecord(e)
	}
	return records, nil
}

// EvidenceRequest defines what to pack.
type EvidenceRequest struct {
	AssetID   string    `json:"asset_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Exporter builds evidence packs: a zip of the asset's entries, its capital
// proof, and a full-chain verification report.
type Exporter struct {
	store     ledger.Store
	checker   *integrity.Checker
	generator *proof.Generator
	archive   archive.Store
	clock     func() time.Time
}

// NewExporter creates an Exporter. A nil checker gets the default.
func NewExporter(store ledger.Store, checker *integrity.Checker) *Exporter {
	if checker == nil {
		checker = integrity.NewChecker()
	}
	return &Exporter{
		store:     store,
		checker:   checker,
		generator: proof.NewGenerator(store, checker),
		clock:     time.Now,
	}
}

// WithArchive sets the content-addressed sink used by ArchivePack.
func (e *Exporter) WithArchive(s archive.Store) *Exporter {
	e.archive = s
	return e
}

// WithClock overrides the manifest timestamp source for testing.
func (e *Exporter) WithClock(clock func() time.Time) *Exporter {
	e.clock = clock
	return e
}

// GeneratePack creates a zip holding the asset's entry records, its capital
// proof, the chain verification report, and a manifest. Returns the zip
// bytes and their SHA-256 checksum.
func (e *Exporter) GeneratePack(ctx context.Context, req EvidenceRequest) ([]byte, string, error) {
	if req.AssetID == "" {
		return nil, "", ErrEmptyAssetID
	}
	if !req.StartTime.IsZero() && !req.EndTime.IsZero() && req.StartTime.After(req.EndTime) {
		return nil, "", ErrInvalidTimeRange
	}
	if e.store == nil {
		return nil, "", ErrStoreNotConfigured
	}

	records, err := ExportEntries(ctx, e.store, ledger.Filter{
		AssetID: req.AssetID,
		From:    req.StartTime,
		To:      req.EndTime,
	})
	if err != nil {
		return nil, "", err
	}

	// The proof covers the asset's whole history; the pack's record set may
	// be narrower, the manifest records both.
	capitalProof, err := e.generator.Generate(ctx, req.AssetID)
	if err != nil {
		return nil, "", fmt.Errorf("integration: generate proof: %w", err)
	}

	report, err := e.checker.VerifyStore(ctx, e.store)
	if err != nil {
		return nil, "", fmt.Errorf("integration: verify chain: %w", err)
	}

	entriesJSON, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, "", err
	}
	proofJSON, err := json.MarshalIndent(capitalProof, "", "  ")
	if err != nil {
		return nil, "", err
	}
	reportJSON, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, "", err
	}

	generatedAt := e.clock().UTC()
	manifest := map[string]any{
		"asset_id":     req.AssetID,
		"generated_at": generatedAt,
		"entry_count":  len(records),
		"chain_head":   report.HeadHash,
		"ledger_valid": report.Valid,
		"proof_hash":   capitalProof.ProofHash,
		"proof_valid":  capitalProof.Valid,
		"period": map[string]any{
			"start": req.StartTime,
			"end":   req.EndTime,
		},
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("integration: marshal manifest: %w", err)
	}

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	files := []struct {
		name string
		data []byte
	}{
		{"entries.json", entriesJSON},
		{"proof.json", proofJSON},
		{"verification.json", reportJSON},
		{"manifest.json", manifestJSON},
	}
	for _, file := range files {
		f, err := w.Create(file.name)
		if err != nil {
			return nil, "", err
		}
		_, _ = f.Write(file.data)
	}

	f, err := w.Create("README.txt")
	if err != nil {
		return nil, "", err
	}
	_, _ = fmt.Fprintf(f, "Evidence pack for asset %s\nGenerated at %s\n", req.AssetID, generatedAt.Format(time.RFC3339))

	if err := w.Close(); err != nil {
		return nil, "", err
	}

	zipBytes := buf.Bytes()
	sum := sha256.Sum256(zipBytes)
	return zipBytes, hex.EncodeToString(sum[:]), nil
}

// ArchivePack generates a pack and stores it content-addressed. The
// returned hash is "sha256:" + the pack checksum.
func (e *Exporter) ArchivePack(ctx context.Context, req EvidenceRequest) (string, error) {
	if e.archive == nil {
		return "", ErrArchiveNotConfigured
	}
	zipBytes, _, err := e.GeneratePack(ctx, req)
	if err != nil {
		return "", err
	}
	hash, err := e.archive.Store(ctx, zipBytes)
	if err != nil {
		return "", fmt.Errorf("integration: archive pack: %w", err)
	}
	return hash, nil
}
