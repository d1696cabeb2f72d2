package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/Mindburn-Labs/icl/core/pkg/capital"
	"github.com/Mindburn-Labs/icl/core/pkg/finance"
	"github.com/Mindburn-Labs/icl/core/pkg/ledger"
)

var testEpoch = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func testDraft(t *testing.T, id, assetID string) ledger.Draft {
	t.Helper()
	builder, err := finance.NewBuilder(nil)
	if err != nil {
		t.Fatal(err)
	}
	value := decimal.RequireFromString("100000.00")
	journal, err := builder.Capitalize(assetID, value)
	if err != nil {
		t.Fatal(err)
	}
	event, err := capital.NewEvent("evt-"+id, 1, assetID, capital.EventCapitalize, capital.CapitalizePayload{
		Name:             "model",
		AssetType:        capital.AssetTypeModel,
		Owner:            "R&D",
		Value:            value,
		Currency:         "USD",
		Method:           capital.MethodLinear,
		UsefulLifeMonths: 24,
	}, "tester", testEpoch, "")
	if err != nil {
		t.Fatal(err)
	}
	return ledger.Draft{
		ID:             id,
		AssetID:        assetID,
		EventID:        event.ID,
		Classification: ledger.ClassCapitalization,
		Amount:         value,
		Currency:       "USD",
		Narrative:      "capitalize model",
		Journal:        journal,
		Event:          event,
		EffectiveAt:    testEpoch,
	}
}

func TestStoreInit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ledger_entries").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := NewStore(db).Init(context.Background()); err != nil {
		t.Errorf("error was not expected while initializing schema: %s", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %s", err)
	}
}

func TestStoreAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = db.Close() }()

	store := NewStore(db).WithClock(func() time.Time { return testEpoch })
	d := testDraft(t, "e1", "asset-1")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT head_hash, last_sequence FROM ledger_head").
		WillReturnRows(sqlmock.NewRows([]string{"head_hash", "last_sequence"}).
			AddRow(ledger.GenesisHash, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT effective_at FROM ledger_entries").
		WithArgs("asset-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs(1, "e1", "asset-1", "evt-e1", "CAPITALIZATION",
			sqlmock.AnyArg(), "USD", "capitalize model",
			sqlmock.AnyArg(), sqlmock.AnyArg(), nil,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), ledger.GenesisHash,
			nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE ledger_head SET head_hash").
		WithArgs(sqlmock.AnyArg(), 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	entry, err := store.Append(context.Background(), d)
	if err != nil {
		t.Fatalf("error was not expected while appending: %s", err)
	}
	if entry.Sequence != 1 {
		t.Errorf("expected seq 1, got %d", entry.Sequence)
	}
	if entry.PrevHash != ledger.GenesisHash {
		t.Errorf("expected genesis prev hash, got %s", entry.PrevHash)
	}
	if entry.ContentHash == "" {
		t.Error("expected content hash")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %s", err)
	}
}

// Appended entries must hash the timestamps the timestamptz columns will
// actually return, so a read-back recomputation matches the stored hash
// even when the caller supplied nanosecond-precision times.
func TestStoreAppendHashSurvivesColumnPrecision(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = db.Close() }()

	nanoNow := testEpoch.Add(123456789 * time.Nanosecond)
	store := NewStore(db).WithClock(func() time.Time { return nanoNow })
	d := testDraft(t, "e1", "asset-1")
	d.EffectiveAt = testEpoch.Add(987654321 * time.Nanosecond)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT head_hash, last_sequence FROM ledger_head").
		WillReturnRows(sqlmock.NewRows([]string{"head_hash", "last_sequence"}).
			AddRow(ledger.GenesisHash, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT effective_at FROM ledger_entries").
		WithArgs("asset-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO ledger_entries").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE ledger_head SET head_hash").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	entry, err := store.Append(context.Background(), d)
	if err != nil {
		t.Fatalf("error was not expected while appending: %s", err)
	}

	if ns := entry.EffectiveAt.Nanosecond() % int(time.Microsecond); ns != 0 {
		t.Errorf("effective_at carries sub-microsecond precision: %dns", ns)
	}
	if ns := entry.RecordedAt.Nanosecond() % int(time.Microsecond); ns != 0 {
		t.Errorf("recorded_at carries sub-microsecond precision: %dns", ns)
	}

	// Simulate the column round trip and recompute.
	readBack := entry
	readBack.EffectiveAt = readBack.EffectiveAt.Truncate(time.Microsecond)
	readBack.RecordedAt = readBack.RecordedAt.Truncate(time.Microsecond)
	recomputed, err := ledger.ComputeHash(readBack)
	if err != nil {
		t.Fatal(err)
	}
	if recomputed != entry.ContentHash {
		t.Errorf("hash does not survive column precision: stored %s recomputed %s",
			entry.ContentHash, recomputed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %s", err)
	}
}

func TestStoreAppendDuplicateID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = db.Close() }()

	store := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT head_hash, last_sequence FROM ledger_head").
		WillReturnRows(sqlmock.NewRows([]string{"head_hash", "last_sequence"}).
			AddRow(ledger.GenesisHash, 1))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err = store.Append(context.Background(), testDraft(t, "e1", "asset-1"))
	if !errors.Is(err, ledger.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %s", err)
	}
}

func TestStoreAppendOutOfOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = db.Close() }()

	store := NewStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT head_hash, last_sequence FROM ledger_head").
		WillReturnRows(sqlmock.NewRows([]string{"head_hash", "last_sequence"}).
			AddRow("sha256:aa", 3))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("e9").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT effective_at FROM ledger_entries").
		WithArgs("asset-1").
		WillReturnRows(sqlmock.NewRows([]string{"effective_at"}).
			AddRow(testEpoch.Add(time.Hour)))
	mock.ExpectRollback()

	_, err = store.Append(context.Background(), testDraft(t, "e9", "asset-1"))
	if !errors.Is(err, ledger.ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %s", err)
	}
}

func TestStoreHead(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT head_hash FROM ledger_head").
		WillReturnRows(sqlmock.NewRows([]string{"head_hash"}).AddRow("sha256:abc"))

	head, err := NewStore(db).Head(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if head != "sha256:abc" {
		t.Fatalf("expected sha256:abc, got %s", head)
	}
}

func TestStoreGetDecodesRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = db.Close() }()

	d := testDraft(t, "e1", "asset-1")
	journalJSON, err := json.Marshal(d.Journal)
	if err != nil {
		t.Fatal(err)
	}
	eventJSON, err := json.Marshal(d.Event)
	if err != nil {
		t.Fatal(err)
	}

	cols := []string{"sequence", "id", "asset_id", "event_id", "classification",
		"amount", "currency", "narrative", "journal", "event", "corrects_entry_id",
		"effective_at", "recorded_at", "content_hash", "prev_hash",
		"signature_key_id", "signature"}
	mock.ExpectQuery("SELECT (.+) FROM ledger_entries WHERE id").
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			1, "e1", "asset-1", "evt-e1", "CAPITALIZATION",
			"100000.00", "USD", "capitalize model", journalJSON, eventJSON, nil,
			testEpoch, testEpoch, "sha256:abc", ledger.GenesisHash, nil, nil))

	entry, err := NewStore(db).Get(context.Background(), "e1")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Classification != ledger.ClassCapitalization {
		t.Errorf("expected CAPITALIZATION, got %s", entry.Classification)
	}
	if !entry.Amount.Equal(decimal.RequireFromString("100000.00")) {
		t.Errorf("expected amount 100000.00, got %s", entry.Amount)
	}
	if len(entry.Journal.Lines) != 2 {
		t.Errorf("expected 2 journal lines, got %d", len(entry.Journal.Lines))
	}
	if entry.Event.Kind != capital.EventCapitalize {
		t.Errorf("expected CAPITALIZE event, got %s", entry.Event.Kind)
	}
}

func TestStoreGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT (.+) FROM ledger_entries WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = NewStore(db).Get(context.Background(), "missing")
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
