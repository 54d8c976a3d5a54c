package main

import (
	"os"

	"nilewire.dev/ingest-pipeline/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
