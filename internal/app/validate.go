package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	payloadschema "nilewire.dev/ingest-pipeline/schema"
)

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	dir := fs.String("dir", "batches", "Directory containing candidate batch .json files")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	files, err := collectBatchFiles(strings.TrimSpace(*dir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to scan %s: %v\n", *dir, err)
		return 1
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "No .json batch files found under %s\n", *dir)
		return 1
	}

	valid := 0
	invalid := 0
	for _, path := range files {
		body, err := os.ReadFile(path)
		if err != nil {
			invalid++
			fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(path), err)
			continue
		}
		items, err := payloadschema.ValidateCandidateBatch(body)
		if err != nil {
			invalid++
			fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(path), err)
			continue
		}
		valid++
		fmt.Printf("%s: ok (%d candidates)\n", filepath.Base(path), len(items))
	}

	fmt.Printf("validate scanned=%d valid=%d invalid=%d\n", len(files), valid, invalid)
	if invalid > 0 {
		return 1
	}
	return 0
}
