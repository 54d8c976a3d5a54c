package db

import (
	"context"
	"strings"
	"time"

	"nilewire.dev/ingest-pipeline/internal/pipeline"
)

const maxRunErrorLength = 4000

// BeginRun records a started pipeline run and returns its id.
func (s *ArticleStore) BeginRun(ctx context.Context, startedAt time.Time) (int64, error) {
	const q = `
INSERT INTO news.ingest_runs (started_at, status)
VALUES ($1, 'running')
RETURNING run_id
`
	var runID int64
	err := s.pool.QueryRow(ctx, q, startedAt.UTC()).Scan(&runID)
	if err != nil {
		return 0, err
	}
	return runID, nil
}

// FinishRun marks a run completed with its summary counters.
func (s *ArticleStore) FinishRun(ctx context.Context, runID int64, summary pipeline.RunSummary, finishedAt time.Time) error {
	const q = `
UPDATE news.ingest_runs
SET
	status = 'completed',
	loaded = $2,
	batch_duplicates = $3,
	validation_rejects = $4,
	exact_duplicates = $5,
	semantic_duplicates = $6,
	processing_errors = $7,
	inserted = $8,
	finished_at = $9,
	error_message = NULL
WHERE run_id = $1
`
	_, err := s.pool.Exec(
		ctx,
		q,
		runID,
		summary.Loaded,
		summary.BatchDuplicates,
		summary.ValidationRejects,
		summary.ExactDuplicates,
		summary.SemanticDuplicates,
		summary.ProcessingErrors,
		summary.Inserted,
		finishedAt.UTC(),
	)
	return err
}

// FailRun marks a run failed, keeping the cause for operators. Committed
// articles from the failed run stand; re-running is safe.
func (s *ArticleStore) FailRun(ctx context.Context, runID int64, cause error, finishedAt time.Time) error {
	const q = `
UPDATE news.ingest_runs
SET
	status = 'failed',
	error_message = $2,
	finished_at = $3
WHERE run_id = $1
`
	msg := strings.TrimSpace(cause.Error())
	if len(msg) > maxRunErrorLength {
		msg = msg[:maxRunErrorLength]
	}

	_, err := s.pool.Exec(ctx, q, runID, msg, finishedAt.UTC())
	return err
}
