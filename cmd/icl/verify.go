package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/icl/core/pkg/config"
	"github.com/Mindburn-Labs/icl/core/pkg/integrity"
)

func runVerify(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	asJSON := fs.Bool("json", false, "emit the report as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
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

	report, err := checker.VerifyStore(ctx, store)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
	} else {
		fmt.Fprintf(stdout, "Entries checked: %d\n", report.Checked)
		fmt.Fprintf(stdout, "Head hash:       %s\n", report.HeadHash)
		if report.Valid {
			fmt.Fprintln(stdout, "Chain:           VALID")
		} else {
			fmt.Fprintln(stdout, "Chain:           INVALID")
			for _, v := range report.Violations {
				fmt.Fprintf(stdout, "  [%s] seq=%d entry=%s: %s\n", v.Code, v.Sequence, v.EntryID, v.Detail)
			}
		}
	}

	if !report.Valid {
		return 1
	}
	return 0
}
