package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/icl/core/pkg/api"
	"github.com/Mindburn-Labs/icl/core/pkg/audit"
	"github.com/Mindburn-Labs/icl/core/pkg/config"
	"github.com/Mindburn-Labs/icl/core/pkg/icl"
	"github.com/Mindburn-Labs/icl/core/pkg/integration"
	"github.com/Mindburn-Labs/icl/core/pkg/limiter"
	"github.com/Mindburn-Labs/icl/core/pkg/observability"
)

// Per-IP HTTP limits; the per-actor limit is the façade's concern.
const (
	httpRPS   = 50
	httpBurst = 100
)

func runServe(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	logger := newLogger(stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	keyring, err := keyringFrom(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: signing keyring: %v\n", err)
		return 2
	}

	store, closeStore, err := openStore(ctx, cfg, keyring)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer closeStore()

	prof, err := cfg.LoadProfile()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	opts := []icl.Option{
		icl.WithStore(store),
		icl.WithLogger(logger),
		icl.WithProfile(prof),
		icl.WithAudit(audit.NewLogger()),
	}
	if keyring != nil {
		opts = append(opts, icl.WithSigner(keyring))
	}

	var limits limiter.Store
	if cfg.RedisAddr != "" {
		rs := limiter.NewRedisStore(cfg.RedisAddr, "", 0)
		if err := rs.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, falling back to in-memory rate limits",
				"addr", cfg.RedisAddr, "error", err)
			limits = limiter.NewMemoryStore()
		} else {
			defer func() { _ = rs.Close() }()
			limits = rs
		}
	} else {
		limits = limiter.NewMemoryStore()
	}
	opts = append(opts, icl.WithLimiter(limits, cfg.LimiterPolicy()))

	if cfg.OTLPEndpoint != "" {
		obsCfg := observability.DefaultConfig()
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
		obsCfg.Insecure = true
		provider, err := observability.New(ctx, obsCfg)
		if err != nil {
			fmt.Fprintf(stderr, "Error: telemetry: %v\n", err)
			return 2
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown", "error", err)
			}
		}()
		opts = append(opts, icl.WithMetrics(provider))
	}

	l, err := icl.New(ctx, opts...)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	adapter, err := integration.NewAdapter(l, prof)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	validator := api.NewTokenValidator([]byte(cfg.AuthSecret))
	handler := api.NewServer(l, logger).
		WithInbound(adapter).
		Handler(validator, cfg.AuthSecret != "", httpRPS, httpBurst)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ledger service listening",
			"addr", cfg.HTTPAddr,
			"store", cfg.StoreBackend,
			"signing", keyring != nil,
			"auth", cfg.AuthSecret != "")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	case <-ctx.Done():
		logger.Info("shutting down", "grace", cfg.ShutdownGrace)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(stderr, "Error: shutdown: %v\n", err)
			return 1
		}
	}
	return 0
}
