// Package sqlite persists the capital ledger in SQLite, for single-node
// and embedded deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/Mindburn-Labs/icl/core/pkg/canonicalize"
	"github.com/Mindburn-Labs/icl/core/pkg/capital"
	"github.com/Mindburn-Labs/icl/core/pkg/finance"
	"github.com/Mindburn-Labs/icl/core/pkg/ledger"
)

// Store is a durable ledger.Store backed by SQLite. SQLite is a
// single-writer database, so Append additionally serializes in-process on a
// mutex rather than relying on busy retries.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	clock  func() time.Time
	signer ledger.Signer
}

// NewStore wraps an open database handle. Call Init before first use.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, clock: time.Now}
}

// WithClock overrides the commit timestamp source for testing.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// WithSigner attaches a signer; subsequent appends carry a signature.
func (s *Store) WithSigner(signer ledger.Signer) *Store {
	s.signer = signer
	return s
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		sequence INTEGER PRIMARY KEY,
		id TEXT UNIQUE NOT NULL,
		asset_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		classification TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		narrative TEXT,
		journal TEXT NOT NULL,
		event TEXT NOT NULL,
		corrects_entry_id TEXT,
		effective_at TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		prev_hash TEXT NOT NULL,
		signature_key_id TEXT,
		signature TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_asset ON ledger_entries (asset_id, sequence)`,
	`CREATE TABLE IF NOT EXISTS ledger_head (
		singleton INTEGER PRIMARY KEY CHECK (singleton = 1),
		head_hash TEXT NOT NULL,
		last_sequence INTEGER NOT NULL
	)`,
	`INSERT OR IGNORE INTO ledger_head (singleton, head_hash, last_sequence) VALUES (1, 'genesis', 0)`,
}

// Init creates the schema and the genesis head row.
func (s *Store) Init(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init ledger schema: %w", err)
		}
	}
	return nil
}

const entryColumns = `sequence, id, asset_id, event_id, classification, amount, currency, narrative, journal, event, corrects_entry_id, effective_at, recorded_at, content_hash, prev_hash, signature_key_id, signature`

// timeFormat is fixed-width so stored timestamps compare correctly as
// strings: RFC3339Nano drops trailing zeros, which makes "12:00:00Z" sort
// after "12:00:00.5Z".
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Append commits the draft as the next chained entry, or writes nothing.
func (s *Store) Append(ctx context.Context, d ledger.Draft) (ledger.Entry, error) {
	if err := d.Validate(); err != nil {
		return ledger.Entry{}, err
	}
	if err := ctx.Err(); err != nil {
		return ledger.Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		head    string
		lastSeq uint64
	)
	err = tx.QueryRowContext(ctx,
		"SELECT head_hash, last_sequence FROM ledger_head WHERE singleton = 1").
		Scan(&head, &lastSeq)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("read ledger head: %w", err)
	}

	var exists bool
	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE id = ?)", d.ID).
		Scan(&exists)
	if err != nil {
		return ledger.Entry{}, err
	}
	if exists {
		return ledger.Entry{}, fmt.Errorf("%w: %s", ledger.ErrDuplicateID, d.ID)
	}

	var lastEffectiveRaw string
	err = tx.QueryRowContext(ctx,
		"SELECT effective_at FROM ledger_entries WHERE asset_id = ? ORDER BY sequence DESC LIMIT 1",
		d.AssetID).Scan(&lastEffectiveRaw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First entry for this asset.
	case err != nil:
		return ledger.Entry{}, err
	default:
		lastEffective := parseTime(lastEffectiveRaw)
		if d.EffectiveAt.Before(lastEffective) {
			return ledger.Entry{}, fmt.Errorf("%w: asset %s head %s, draft %s",
				ledger.ErrOutOfOrder, d.AssetID,
				lastEffective.Format(time.RFC3339), d.EffectiveAt.Format(time.RFC3339))
		}
	}

	entry := ledger.Entry{
		ID:              d.ID,
		Sequence:        lastSeq + 1,
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
		PrevHash:        head,
	}

	entry.ContentHash, err = ledger.ComputeHash(entry)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("hash entry %s: %w", entry.ID, err)
	}

	if s.signer != nil {
		keyID := s.signer.ActiveKeyID()
		sig, err := s.signer.Sign(keyID, ledger.SigningMessage(entry))
		if err != nil {
			return ledger.Entry{}, fmt.Errorf("sign entry %s: %w", entry.ID, err)
		}
		entry.SignatureKeyID = keyID
		entry.Signature = sig
	}

	journalJSON, err := json.Marshal(entry.Journal)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("marshal journal: %w", err)
	}
	eventJSON, err := json.Marshal(entry.Event)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("marshal event: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Sequence, entry.ID, entry.AssetID, entry.EventID, string(entry.Classification),
		entry.Amount.String(), entry.Currency, entry.Narrative,
		string(journalJSON), string(eventJSON), nullable(entry.CorrectsEntryID),
		entry.EffectiveAt.Format(timeFormat), entry.RecordedAt.Format(timeFormat),
		entry.ContentHash, entry.PrevHash,
		nullable(entry.SignatureKeyID), nullable(entry.Signature),
	)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("insert entry %s: %w", entry.ID, err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE ledger_head SET head_hash = ?, last_sequence = ? WHERE singleton = 1",
		entry.ContentHash, entry.Sequence)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("advance ledger head: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ledger.Entry{}, fmt.Errorf("commit entry %s: %w", entry.ID, err)
	}
	return entry, nil
}

// ReadRange returns committed entries matching the filter in sequence order.
func (s *Store) ReadRange(ctx context.Context, f ledger.Filter) ([]ledger.Entry, error) {
	query := "SELECT " + entryColumns + " FROM ledger_entries"
	var (
		conds []string
		args  []any
	)
	if f.AssetID != "" {
		conds = append(conds, "asset_id = ?")
		args = append(args, f.AssetID)
	}
	if f.Classification != "" {
		conds = append(conds, "classification = ?")
		args = append(args, string(f.Classification))
	}
	if !f.From.IsZero() {
		conds = append(conds, "effective_at >= ?")
		args = append(args, f.From.UTC().Format(timeFormat))
	}
	if !f.To.IsZero() {
		conds = append(conds, "effective_at < ?")
		args = append(args, f.To.UTC().Format(timeFormat))
	}
	if f.AfterSequence != 0 {
		conds = append(conds, "sequence > ?")
		args = append(args, f.AfterSequence)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY sequence ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]ledger.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Get retrieves a committed entry by id.
func (s *Store) Get(ctx context.Context, id string) (ledger.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM ledger_entries WHERE id = ?", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	return e, err
}

// Latest returns the most recent committed entry for the asset.
func (s *Store) Latest(ctx context.Context, assetID string) (ledger.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM ledger_entries WHERE asset_id = ? ORDER BY sequence DESC LIMIT 1",
		assetID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, fmt.Errorf("%w: asset %s", ledger.ErrNotFound, assetID)
	}
	return e, err
}

// Head returns the current head content hash.
func (s *Store) Head(ctx context.Context) (string, error) {
	var head string
	err := s.db.QueryRowContext(ctx,
		"SELECT head_hash FROM ledger_head WHERE singleton = 1").Scan(&head)
	if err != nil {
		return "", fmt.Errorf("read ledger head: %w", err)
	}
	return head, nil
}

// Len returns the number of committed entries.
func (s *Store) Len(ctx context.Context) (uint64, error) {
	var n uint64
	err := s.db.QueryRowContext(ctx,
		"SELECT last_sequence FROM ledger_head WHERE singleton = 1").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("read ledger head: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (ledger.Entry, error) {
	var (
		e              ledger.Entry
		classification string
		amount         string
		narrative      sql.NullString
		journalJSON    string
		eventJSON      string
		corrects       sql.NullString
		effectiveAt    string
		recordedAt     string
		sigKeyID       sql.NullString
		signature      sql.NullString
	)
	err := row.Scan(&e.Sequence, &e.ID, &e.AssetID, &e.EventID, &classification,
		&amount, &e.Currency, &narrative, &journalJSON, &eventJSON,
		&corrects, &effectiveAt, &recordedAt, &e.ContentHash, &e.PrevHash,
		&sigKeyID, &signature)
	if err != nil {
		return ledger.Entry{}, err
	}
	e.Classification = ledger.Classification(classification)
	e.Narrative = narrative.String
	e.CorrectsEntryID = corrects.String
	e.SignatureKeyID = sigKeyID.String
	e.Signature = signature.String
	e.EffectiveAt = parseTime(effectiveAt)
	e.RecordedAt = parseTime(recordedAt)

	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return ledger.Entry{}, fmt.Errorf("corrupt amount on entry %s: %w", e.ID, err)
	}

	var journal finance.JournalEntry
	if err := json.Unmarshal([]byte(journalJSON), &journal); err != nil {
		return ledger.Entry{}, fmt.Errorf("corrupt journal on entry %s: %w", e.ID, err)
	}
	e.Journal = journal

	var event capital.Event
	if err := json.Unmarshal([]byte(eventJSON), &event); err != nil {
		return ledger.Entry{}, fmt.Errorf("corrupt event on entry %s: %w", e.ID, err)
	}
	e.Event = event

	return e, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}

var _ ledger.Store = (*Store)(nil)
