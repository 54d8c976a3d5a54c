package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"nilewire.dev/ingest-pipeline/internal/cli"
	"nilewire.dev/ingest-pipeline/internal/config"
	"nilewire.dev/ingest-pipeline/internal/db"
	"nilewire.dev/ingest-pipeline/internal/globaltime"
	"nilewire.dev/ingest-pipeline/internal/logging"
	"nilewire.dev/ingest-pipeline/internal/pipeline"
	payloadschema "nilewire.dev/ingest-pipeline/schema"
)

func runIngest(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")
	dir := fs.String("dir", "batches", "Directory containing candidate batch .json files")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	candidates, skippedFiles, err := loadCandidateBatches(strings.TrimSpace(*dir), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load batches: %v\n", err)
		return 1
	}
	if len(candidates) == 0 {
		logger.Info().Str("dir", *dir).Int("skipped_files", skippedFiles).Msg("no candidates found")
		fmt.Println("run loaded=0")
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("run command failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	store := db.NewArticleStore(pool)
	embedder := pipeline.NewHTTPEmbedder(pipeline.EmbedderOptions{
		Endpoint:       cfg.EmbedEndpoint,
		ModelName:      cfg.EmbedModelName,
		Dimensions:     cfg.EmbeddingDimensions,
		RequestTimeout: cfg.EmbedRequestTimeout,
	})
	svc := pipeline.NewService(store, embedder, pipeline.Options{
		LexicalThreshold:  cfg.LexicalThreshold,
		SemanticThreshold: cfg.SemanticThreshold,
		SemanticWindow:    cfg.SemanticWindow(),
		EmbedBatchSize:    cfg.EmbedBatchSize,
		EmbedMaxRetries:   cfg.EmbedMaxRetries,
	}, logger)

	runID, err := store.BeginRun(ctx, globaltime.UTC())
	if err != nil {
		logger.Error().Err(err).Msg("failed to record run start")
		fmt.Fprintf(os.Stderr, "Failed to record run start: %v\n", err)
		return 1
	}

	// A run is idempotently re-enterable: everything committed before a
	// store failure is caught by the identity check on the retry.
	var summary pipeline.RunSummary
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = cfg.RunMaxElapsed
	runErr := backoff.Retry(func() error {
		var attemptErr error
		summary, attemptErr = svc.Run(ctx, candidates)
		if attemptErr != nil {
			logger.Warn().Err(attemptErr).Msg("run attempt failed; retrying with backoff")
		}
		return attemptErr
	}, backoff.WithContext(policy, ctx))

	finishedAt := globaltime.UTC()
	if runErr != nil {
		if markErr := store.FailRun(ctx, runID, runErr, finishedAt); markErr != nil {
			logger.Error().Err(markErr).Int64("run_id", runID).Msg("failed to mark run failed")
		}
		logger.Error().Err(runErr).Int64("run_id", runID).Msg("run failed")
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", runErr)
		return 1
	}

	if err := store.FinishRun(ctx, runID, summary, finishedAt); err != nil {
		logger.Error().Err(err).Int64("run_id", runID).Msg("failed to record run summary")
	}

	logger.Info().
		Int64("run_id", runID).
		Int("skipped_files", skippedFiles).
		Int("loaded", summary.Loaded).
		Int("batch_duplicates", summary.BatchDuplicates).
		Int("validation_rejects", summary.ValidationRejects).
		Int("exact_duplicates", summary.ExactDuplicates).
		Int("semantic_duplicates", summary.SemanticDuplicates).
		Int("processing_errors", summary.ProcessingErrors).
		Int("inserted", summary.Inserted).
		Msg("run completed")
	fmt.Printf(
		"run loaded=%d batch_duplicates=%d validation_rejects=%d exact_duplicates=%d semantic_duplicates=%d processing_errors=%d inserted=%d\n",
		summary.Loaded,
		summary.BatchDuplicates,
		summary.ValidationRejects,
		summary.ExactDuplicates,
		summary.SemanticDuplicates,
		summary.ProcessingErrors,
		summary.Inserted,
	)
	return 0
}

// loadCandidateBatches reads every .json batch file under dir in name order.
// A file that fails validation is skipped and counted, never fatal: one bad
// collector output must not block the rest of the run.
func loadCandidateBatches(dir string, logger zerolog.Logger) ([]pipeline.Candidate, int, error) {
	if dir == "" {
		return nil, 0, fmt.Errorf("directory path is empty")
	}

	files, err := collectBatchFiles(dir)
	if err != nil {
		return nil, 0, err
	}

	var candidates []pipeline.Candidate
	skipped := 0
	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			skipped++
			logger.Warn().Err(err).Str("file", path).Msg("skipping unreadable batch file")
			continue
		}
		if !json.Valid(raw) {
			skipped++
			logger.Warn().Str("file", path).Msg("skipping malformed batch file")
			continue
		}

		payloads, err := payloadschema.ValidateCandidateBatch(raw)
		if err != nil {
			skipped++
			logger.Warn().Err(err).Str("file", path).Msg("skipping invalid batch file")
			continue
		}

		fetchedAt := globaltime.UTC()
		for _, item := range payloads {
			candidates = append(candidates, pipeline.CandidateFromPayload(item, fetchedAt))
		}
	}

	return candidates, skipped, nil
}

func collectBatchFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", root, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if strings.EqualFold(filepath.Ext(name), ".json") {
			files = append(files, filepath.Join(root, name))
		}
	}
	sort.Strings(files)
	return files, nil
}
