package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Mindburn-Labs/icl/core/pkg/config"
	"github.com/Mindburn-Labs/icl/core/pkg/integration"
	"github.com/Mindburn-Labs/icl/core/pkg/integrity"
)

func runExport(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	assetID := fs.String("asset", "", "asset to export (required)")
	out := fs.String("out", "", "write the pack to this file instead of the archive")
	fromStr := fs.String("from", "", "start of the effective window, RFC 3339")
	toStr := fs.String("to", "", "end of the effective window, RFC 3339")
	asJSON := fs.Bool("json", false, "emit the result as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *assetID == "" {
		fmt.Fprintln(stderr, "Error: --asset is required")
		fs.Usage()
		return 2
	}

	req := integration.EvidenceRequest{AssetID: *assetID}
	if *fromStr != "" {
		t, err := time.Parse(time.RFC3339, *fromStr)
		if err != nil {
			fmt.Fprintf(stderr, "Error: --from: %v\n", err)
			return 2
		}
		req.StartTime = t
	}
	if *toStr != "" {
		t, err := time.Parse(time.RFC3339, *toStr)
		if err != nil {
			fmt.Fprintf(stderr, "Error: --to: %v\n", err)
			return 2
		}
		req.EndTime = t
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	keyring, err := keyringFrom(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: signing keyring: %v\n", err)
		return 2
	}

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg, keyring)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer closeStore()

	checker := integrity.NewChecker()
	if keyring != nil {
		checker = checker.WithSigner(keyring)
	}
	exporter := integration.NewExporter(store, checker)

	if *out != "" {
		pack, digest, err := exporter.GeneratePack(ctx, req)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		if err := os.WriteFile(*out, pack, 0o644); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		return printExportResult(stdout, *asJSON, *out, digest, len(pack))
	}

	sink, err := openArchive(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: archive: %v\n", err)
		return 2
	}
	hash, err := exporter.WithArchive(sink).ArchivePack(ctx, req)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return printExportResult(stdout, *asJSON, "", hash, 0)
}

func printExportResult(stdout io.Writer, asJSON bool, path, digest string, size int) int {
	if asJSON {
		result := map[string]any{"digest": digest}
		if path != "" {
			result["path"] = path
			result["bytes"] = size
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return 0
	}
	if path != "" {
		fmt.Fprintf(stdout, "Evidence pack written to %s (%d bytes)\n", path, size)
	} else {
		fmt.Fprintln(stdout, "Evidence pack archived")
	}
	fmt.Fprintf(stdout, "Digest: %s\n", digest)
	return 0
}
