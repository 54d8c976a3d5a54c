package app

import (
	"fmt"
	"os"
)

const usageText = `Usage: ingest-pipeline <command> [flags]

Commands:
  run       Ingest candidate batch files through the dedup pipeline
  serve     Run the HTTP ingestion API
  validate  Validate candidate batch files against the payload schema
  health    Check configuration and database connectivity

Run "ingest-pipeline <command> -h" for command flags.
`

func Run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usageText)
		return 2
	}

	switch args[0] {
	case "run":
		return runIngest(args[1:])
	case "serve":
		return runServe(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "health":
		return runHealth(args[1:])
	case "help", "-h", "--help":
		fmt.Print(usageText)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		fmt.Fprint(os.Stderr, usageText)
		return 2
	}
}
