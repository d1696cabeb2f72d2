package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Mindburn-Labs/icl/core/pkg/archive"
	"github.com/Mindburn-Labs/icl/core/pkg/config"
	"github.com/Mindburn-Labs/icl/core/pkg/ledger"
	pgledger "github.com/Mindburn-Labs/icl/core/pkg/ledger/postgres"
	sqliteledger "github.com/Mindburn-Labs/icl/core/pkg/ledger/sqlite"
	"github.com/Mindburn-Labs/icl/core/pkg/signing"
)

// newLogger builds the service-wide JSON logger.
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// keyringFrom derives the signing keyring, or nil when signing is off.
func keyringFrom(cfg *config.Config) (*signing.Keyring, error) {
	if cfg.SigningSecret == "" {
		return nil, nil
	}
	return signing.NewKeyring([]byte(cfg.SigningSecret), cfg.SigningKeyID)
}

// openStore builds the configured entry store. The returned close func is
// safe to call once, always.
func openStore(ctx context.Context, cfg *config.Config, keyring *signing.Keyring) (ledger.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		ms := ledger.NewMemoryStore()
		if keyring != nil {
			ms.WithSigner(keyring)
		}
		return ms, func() {}, nil

	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		st := pgledger.NewStore(db)
		if keyring != nil {
			st.WithSigner(keyring)
		}
		if err := st.Init(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("init postgres store: %w", err)
		}
		return st, func() { _ = db.Close() }, nil

	case config.StoreSQLite:
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1)
		st := sqliteledger.NewStore(db)
		if keyring != nil {
			st.WithSigner(keyring)
		}
		if err := st.Init(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("init sqlite store: %w", err)
		}
		return st, func() { _ = db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// openArchive builds the configured evidence sink.
func openArchive(ctx context.Context, cfg *config.Config) (archive.Store, error) {
	return archive.New(ctx, archive.Config{
		Backend: archive.Backend(cfg.ArchiveBackend),
		Dir:     cfg.ArchiveDir,
		Bucket:  cfg.ArchiveBucket,
	})
}
