package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nilewire.dev/ingest-pipeline/internal/cli"
	"nilewire.dev/ingest-pipeline/internal/config"
	"nilewire.dev/ingest-pipeline/internal/db"
	"nilewire.dev/ingest-pipeline/internal/httpapi"
	"nilewire.dev/ingest-pipeline/internal/logging"
	"nilewire.dev/ingest-pipeline/internal/pipeline"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	connectTimeout := fs.Duration("connect-timeout", 30*time.Second, "Database connect timeout")

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

	connectCtx, cancel := context.WithTimeout(context.Background(), *connectTimeout)
	pool, err := db.NewPool(connectCtx, cfg)
	cancel()
	if err != nil {
		logger.Error().Err(err).Msg("serve command failed to connect to database")
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

	server := httpapi.New(pool, store, svc, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.ListenAddr)
	}()
	logger.Info().Str("addr", cfg.ListenAddr).Msg("http api listening")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server failed")
			return 1
		}
		return 0
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
			return 1
		}
		return 0
	}
}
