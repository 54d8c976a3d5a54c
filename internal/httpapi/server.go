package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"nilewire.dev/ingest-pipeline/internal/db"
	"nilewire.dev/ingest-pipeline/internal/globaltime"
	"nilewire.dev/ingest-pipeline/internal/pipeline"
	payloadschema "nilewire.dev/ingest-pipeline/schema"
)

const maxBatchBodyBytes = 32 << 20

// Server exposes the pipeline to push-style collectors. The dashboard reads
// the store directly; this surface is ingestion-only.
type Server struct {
	echo   *echo.Echo
	pool   *db.Pool
	store  *db.ArticleStore
	svc    *pipeline.Service
	logger zerolog.Logger
}

func New(pool *db.Pool, store *db.ArticleStore, svc *pipeline.Service, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("32M"))

	s := &Server{
		echo:   e,
		pool:   pool,
		store:  store,
		svc:    svc,
		logger: logger,
	}

	e.GET("/api/health", s.handleHealth)
	e.POST("/api/candidates", s.handleCandidates)

	return s
}

func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := s.pool.Ping(ctx); err != nil {
		s.logger.Error().Err(err).Msg("health check database ping failed")
		return internalError(c, "database unreachable")
	}
	return success(c, map[string]string{"database": "ok"})
}

func (s *Server) handleCandidates(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBatchBodyBytes))
	if err != nil {
		return fail(c, http.StatusBadRequest, "failed to read request body", nil)
	}

	payloads, err := payloadschema.ValidateCandidateBatch(body)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid candidate batch", map[string]any{
			"validation_error": err.Error(),
		})
	}

	fetchedAt := globaltime.UTC()
	candidates := make([]pipeline.Candidate, 0, len(payloads))
	for _, item := range payloads {
		candidates = append(candidates, pipeline.CandidateFromPayload(item, fetchedAt))
	}

	ctx := c.Request().Context()
	runID, err := s.store.BeginRun(ctx, fetchedAt)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to record run start")
		return internalError(c, "store unavailable")
	}

	summary, err := s.svc.Run(ctx, candidates)
	if err != nil {
		s.logger.Error().Err(err).Int64("run_id", runID).Msg("ingestion run failed")
		if markErr := s.store.FailRun(ctx, runID, err, globaltime.UTC()); markErr != nil {
			s.logger.Error().Err(markErr).Int64("run_id", runID).Msg("failed to mark run failed")
		}
		return internalError(c, "ingestion run failed")
	}

	if err := s.store.FinishRun(ctx, runID, summary, globaltime.UTC()); err != nil {
		s.logger.Error().Err(err).Int64("run_id", runID).Msg("failed to record run summary")
	}

	s.logger.Info().
		Int64("run_id", runID).
		Int("loaded", summary.Loaded).
		Int("batch_duplicates", summary.BatchDuplicates).
		Int("validation_rejects", summary.ValidationRejects).
		Int("exact_duplicates", summary.ExactDuplicates).
		Int("semantic_duplicates", summary.SemanticDuplicates).
		Int("processing_errors", summary.ProcessingErrors).
		Int("inserted", summary.Inserted).
		Msg("ingestion run completed")

	return success(c, map[string]any{
		"run_id":              runID,
		"loaded":              summary.Loaded,
		"batch_duplicates":    summary.BatchDuplicates,
		"validation_rejects":  summary.ValidationRejects,
		"exact_duplicates":    summary.ExactDuplicates,
		"semantic_duplicates": summary.SemanticDuplicates,
		"processing_errors":   summary.ProcessingErrors,
		"inserted":            summary.Inserted,
	})
}
