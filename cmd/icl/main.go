// Command icl runs the intelligence capital ledger: an HTTP service by
// default, plus offline subcommands for integrity verification, evidence
// export and a demonstration scenario.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run dispatches to a subcommand. It exists separately from main so tests
// can drive the binary without exec.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServe(nil, stdout, stderr)
	}

	switch args[1] {
	case "serve", "server":
		return runServe(args[2:], stdout, stderr)
	case "verify":
		return runVerify(args[2:], stdout, stderr)
	case "export":
		return runExport(args[2:], stdout, stderr)
	case "demo":
		return runDemo(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "icl - intelligence capital ledger")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  icl <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  serve    Run the ledger HTTP service (default)")
	fmt.Fprintln(w, "  verify   Walk the configured store and report chain integrity")
	fmt.Fprintln(w, "  export   Write an evidence pack for one asset")
	fmt.Fprintln(w, "  demo     Run the canonical scenario against an in-memory ledger")
	fmt.Fprintln(w, "  help     Show this message")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Configuration is read from ICL_* environment variables; see pkg/config.")
}
