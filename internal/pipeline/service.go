package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"nilewire.dev/ingest-pipeline/internal/globaltime"
)

const (
	DefaultLexicalThreshold  = 0.85
	DefaultSemanticThreshold = 0.85
	DefaultSemanticWindow    = 48 * time.Hour
	DefaultEmbedMaxRetries   = 3

	embedRetryBaseDelay = 500 * time.Millisecond
	embedConcurrency    = 4
)

type Options struct {
	LexicalThreshold  float64
	SemanticThreshold float64
	SemanticWindow    time.Duration
	EmbedBatchSize    int
	EmbedMaxRetries   int
}

// Service is the ingestion coordinator: it decides, for each candidate,
// whether it duplicates already-admitted content and commits the survivors.
type Service struct {
	store    Store
	embedder Embedder
	opts     Options
	logger   zerolog.Logger

	// mu serializes the check-then-insert sequence so two mutual
	// near-duplicates processed concurrently cannot both be admitted.
	// Embedding runs outside the critical section.
	mu sync.Mutex
}

func NewService(store Store, embedder Embedder, opts Options, logger zerolog.Logger) *Service {
	if opts.LexicalThreshold <= 0 || opts.LexicalThreshold > 1 {
		opts.LexicalThreshold = DefaultLexicalThreshold
	}
	if opts.SemanticThreshold <= 0 || opts.SemanticThreshold > 1 {
		opts.SemanticThreshold = DefaultSemanticThreshold
	}
	if opts.SemanticWindow <= 0 {
		opts.SemanticWindow = DefaultSemanticWindow
	}
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = DefaultEmbedBatchSize
	}
	if opts.EmbedMaxRetries < 0 {
		opts.EmbedMaxRetries = DefaultEmbedMaxRetries
	}
	return &Service{
		store:    store,
		embedder: embedder,
		opts:     opts,
		logger:   logger,
	}
}

// Run processes one collection batch: lexical intra-batch dedup, validation,
// batched embedding, then serial admission. Individual rejections never fail
// the run; only a store failure aborts it, and an aborted run is safe to
// re-enter because committed rows are caught by the identity check on retry.
func (s *Service) Run(ctx context.Context, candidates []Candidate) (RunSummary, error) {
	if s == nil || s.store == nil || s.embedder == nil {
		return RunSummary{}, fmt.Errorf("pipeline service is not initialized")
	}

	summary := RunSummary{Loaded: len(candidates)}
	if len(candidates) == 0 {
		return summary, nil
	}

	unique, dropped := DedupBatch(candidates, s.opts.LexicalThreshold)
	summary.BatchDuplicates = dropped

	admissible := make([]Candidate, 0, len(unique))
	for _, candidate := range unique {
		if reason := validateCandidate(candidate); reason != "" {
			summary.ValidationRejects++
			s.logger.Warn().
				Str("url", candidate.URL).
				Str("source", candidate.Source).
				Str("reason", reason).
				Msg("candidate rejected before embedding")
			continue
		}
		admissible = append(admissible, candidate)
	}
	if len(admissible) == 0 {
		return summary, nil
	}

	embedded, failed, err := s.embedAll(ctx, admissible)
	if err != nil {
		return summary, err
	}
	summary.ProcessingErrors += failed

	for _, item := range embedded {
		outcome, err := s.Admit(ctx, item.candidate, item.embedding)
		if err != nil {
			return summary, err
		}
		summary.apply(outcome)
		s.logOutcome(item.candidate, outcome)
	}

	return summary, nil
}

// Admit runs the per-candidate admission sequence against the store. It is
// safe to call concurrently: the identity check, the semantic window check,
// and the insert happen under one lock, and a committed insert is visible to
// every later call.
func (s *Service) Admit(ctx context.Context, candidate Candidate, embedding Vector) (Outcome, error) {
	if reason := validateCandidate(candidate); reason != "" {
		return Outcome{Decision: DecisionValidationReject, Reason: reason}, nil
	}
	if len(embedding) == 0 {
		return Outcome{Decision: DecisionProcessingError, Reason: "missing embedding"}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.store.URLExists(ctx, candidate.URL)
	if err != nil {
		return Outcome{}, fmt.Errorf("identity check url=%s: %w", candidate.URL, err)
	}
	if exists {
		return Outcome{Decision: DecisionExactDuplicate, Reason: "url already admitted"}, nil
	}

	cutoff := globaltime.UTC().Add(-s.opts.SemanticWindow)
	neighbor, found, err := s.store.NearestInWindow(ctx, embedding, cutoff)
	if err != nil {
		return Outcome{}, fmt.Errorf("semantic window search url=%s: %w", candidate.URL, err)
	}
	// similarity >= threshold, not >.
	if found && neighbor.Similarity >= s.opts.SemanticThreshold {
		return Outcome{
			Decision:   DecisionSemanticDuplicate,
			MatchedID:  neighbor.ArticleID,
			Similarity: neighbor.Similarity,
			Reason:     fmt.Sprintf("matches article %d", neighbor.ArticleID),
		}, nil
	}

	id, err := s.store.Insert(ctx, admittedFromCandidate(candidate, embedding))
	if errors.Is(err, ErrDuplicateURL) {
		// Race on the unique constraint; the store is the final authority.
		return Outcome{Decision: DecisionExactDuplicate, Reason: "url unique constraint"}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("insert url=%s: %w", candidate.URL, err)
	}

	return Outcome{Decision: DecisionAdmitted, ArticleID: id}, nil
}

type embeddedCandidate struct {
	candidate Candidate
	embedding Vector
}

// embedAll embeds candidates in batches with bounded concurrency, preserving
// input order for the serial admission phase. A batch whose embedding backend
// stays unavailable past the retry budget fails only its own candidates.
func (s *Service) embedAll(ctx context.Context, candidates []Candidate) ([]embeddedCandidate, int, error) {
	batchSize := s.opts.EmbedBatchSize
	type batchResult struct {
		vectors []Vector
		failed  bool
	}

	batches := make([][]Candidate, 0, (len(candidates)+batchSize-1)/batchSize)
	for start := 0; start < len(candidates); start += batchSize {
		end := min(start+batchSize, len(candidates))
		batches = append(batches, candidates[start:end])
	}

	results := make([]batchResult, len(batches))
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, batch := range batches {
		g.Go(func() error {
			texts := make([]string, 0, len(batch))
			for _, candidate := range batch {
				texts = append(texts, candidate.EmbeddingText())
			}

			vectors, err := s.embedWithRetry(groupCtx, texts)
			if err != nil {
				if errors.Is(err, ErrModelUnavailable) || errors.Is(err, ErrMalformedResponse) {
					s.logger.Error().
						Err(err).
						Int("batch", i).
						Int("candidates", len(batch)).
						Msg("embedding failed after retries; rejecting batch candidates")
					results[i] = batchResult{failed: true}
					return nil
				}
				return err
			}
			results[i] = batchResult{vectors: vectors}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	embedded := make([]embeddedCandidate, 0, len(candidates))
	failed := 0
	for i, batch := range batches {
		if results[i].failed {
			failed += len(batch)
			continue
		}
		for j, candidate := range batch {
			embedded = append(embedded, embeddedCandidate{
				candidate: candidate,
				embedding: results[i].vectors[j],
			})
		}
	}
	return embedded, failed, nil
}

func (s *Service) embedWithRetry(ctx context.Context, texts []string) ([]Vector, error) {
	var lastErr error
	for attempt := 0; attempt <= s.opts.EmbedMaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * embedRetryBaseDelay
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !errors.Is(err, ErrModelUnavailable) {
			return nil, err
		}
	}
	return nil, lastErr
}

func validateCandidate(candidate Candidate) string {
	if strings.TrimSpace(candidate.URL) == "" {
		return "url is empty"
	}
	if strings.TrimSpace(candidate.Title) == "" {
		return "title is empty"
	}
	if candidate.ComparisonText() == "" {
		return "no comparison text"
	}
	return ""
}

func admittedFromCandidate(candidate Candidate, embedding Vector) AdmittedArticle {
	return AdmittedArticle{
		Source:      candidate.Source,
		Language:    candidate.Language,
		Category:    candidate.Category,
		Title:       candidate.Title,
		URL:         candidate.URL,
		Summary:     candidate.Summary,
		FullText:    candidate.FullText,
		ImageURL:    candidate.ImageURL,
		Sentiment:   candidate.Sentiment,
		PublishedAt: candidate.PublishedAt,
		FetchedAt:   candidate.FetchedAt,
		Embedding:   embedding,
	}
}

func (s *RunSummary) apply(outcome Outcome) {
	switch outcome.Decision {
	case DecisionAdmitted:
		s.Inserted++
	case DecisionValidationReject:
		s.ValidationRejects++
	case DecisionExactDuplicate:
		s.ExactDuplicates++
	case DecisionSemanticDuplicate:
		s.SemanticDuplicates++
	case DecisionProcessingError:
		s.ProcessingErrors++
	}
}

func (s *Service) logOutcome(candidate Candidate, outcome Outcome) {
	event := s.logger.Debug().
		Str("url", candidate.URL).
		Str("source", candidate.Source).
		Str("decision", string(outcome.Decision))
	if outcome.Decision == DecisionSemanticDuplicate {
		event = event.
			Int64("matched_id", outcome.MatchedID).
			Float64("similarity", outcome.Similarity)
	}
	if outcome.Decision == DecisionAdmitted {
		event = event.Int64("article_id", outcome.ArticleID)
	}
	event.Msg("admission decision")
}
