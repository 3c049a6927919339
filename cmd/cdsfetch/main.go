package main

import (
	"fmt"
	"io"
	"os"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitInvalidArgs  = 2
	ExitPoolNotReady = 3
	ExitJobsFailed   = 4
	ExitStorageError = 5
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "help", "-h", "--help":
			printUsage(stderr)
			return ExitSuccess
		default:
			fmt.Fprintf(stderr, "Unexpected argument: %s\n", args[0])
			printUsage(stderr)
			return ExitInvalidArgs
		}
	}

	return runDownload(stderr)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: cdsfetch

Download one Climate Data Store archive per year, in parallel, into a shared
output directory. cdsfetch takes no arguments.

Configuration:
  CDSFETCH_CONFIG      Optional YAML configuration file
  CDSFETCH_OUTPUT_DIR  Output directory or bucket URL (required)
  CDSFETCH_YEAR_FIRST  First year (default 1990)
  CDSFETCH_YEAR_LAST   Last year, inclusive (default 1999)
  CDSFETCH_WORKERS     Parallel workers (default 10)

Credentials are read from ~/.cdsapirc (or CDSAPI_RC, CDSAPI_URL, CDSAPI_KEY).`)
}
