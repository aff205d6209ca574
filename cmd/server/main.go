// Package main provides the entry point for the paper search service server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/helixir/paper-search-service/internal/config"
	"github.com/helixir/paper-search-service/internal/dedup"
	"github.com/helixir/paper-search-service/internal/intent"
	"github.com/helixir/paper-search-service/internal/llm"
	"github.com/helixir/paper-search-service/internal/observability"
	"github.com/helixir/paper-search-service/internal/organize"
	"github.com/helixir/paper-search-service/internal/papersources"
	"github.com/helixir/paper-search-service/internal/papersources/scholar"
	"github.com/helixir/paper-search-service/internal/query"
	"github.com/helixir/paper-search-service/internal/relevance"
	httpserver "github.com/helixir/paper-search-service/internal/server/http"
	"github.com/helixir/paper-search-service/internal/session"
	"github.com/helixir/paper-search-service/internal/workflow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("paper-search-service server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics("papersearch")
	}

	// LLM client shared by all skills.
	llmClient := llm.NewOpenAIClient(llm.OpenAIConfig{
		Provider:    cfg.LLM.Provider,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		Timeout:     cfg.LLM.Timeout,
		MaxRetries:  cfg.LLM.MaxRetries,
		Temperature: cfg.LLM.Temperature,
	}, logger, metrics)
	logger.Info().
		Str("provider", cfg.LLM.Provider).
		Str("model", cfg.LLM.Model).
		Msg("LLM client configured")

	// Register paper sources.
	registry := papersources.NewRegistry()

	scholarCfg := cfg.PaperSources.GoogleScholar
	scholarHTTP := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:   scholarCfg.Timeout,
		RateLimit: scholarCfg.RateLimit,
	})
	scholarHTTP.Instrument(scholar.SourceName, metrics)
	registry.Register(scholar.New(scholar.Config{
		Enabled:    scholarCfg.Enabled,
		APIKey:     scholarCfg.APIKey,
		BaseURL:    scholarCfg.BaseURL,
		MaxResults: scholarCfg.MaxResults,
	}, scholarHTTP))

	enabled := registry.EnabledSources()
	if len(enabled) == 0 {
		logger.Warn().Msg("no paper sources enabled, searches will return no results")
	}
	sourceNames := make([]string, 0, len(enabled))
	for _, src := range enabled {
		sourceNames = append(sourceNames, src.Name())
	}
	logger.Info().Strs("sources", sourceNames).Msg("paper sources registered")

	// Assemble the search pipeline.
	pipeline := workflow.Pipeline{
		Intent:   intent.NewParser(llmClient, logger),
		Strategy: query.NewBuilder(llmClient, sourceNames, logger),
		Searcher: papersources.NewSearcher(registry, logger, metrics),
		Dedup: dedup.New(llmClient, dedup.Config{
			EnableLLMPass:    cfg.Dedup.EnableLLMPass,
			MaxLLMCandidates: cfg.Dedup.MaxLLMCandidates,
		}, logger, metrics),
		Scorer: relevance.New(llmClient, relevance.Config{
			BatchSize:   cfg.Relevance.BatchSize,
			Concurrency: cfg.Relevance.Concurrency,
		}, logger, metrics),
		Organizer: organize.New(organize.Config{
			MinRelevance: cfg.Organizer.MinRelevance,
		}, logger),
	}

	engineFactory := func(gate workflow.Gate, progress workflow.ProgressFunc) *workflow.Engine {
		return workflow.New(pipeline, gate, workflow.Config{
			MaxIterations:      cfg.Workflow.MaxIterations,
			StrategyCheckpoint: cfg.Workflow.StrategyCheckpoint,
		}, logger, metrics, progress)
	}

	sessions := session.NewManager(engineFactory, session.Config{
		DecideWaitTimeout:   cfg.Session.DecideWaitTimeout,
		PollInterval:        cfg.Session.PollInterval,
		RequireUserResponse: cfg.Session.RequireUserResponse,
	}, logger, metrics)

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    5 * time.Minute, // Long timeout for SSE streaming.
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	httpSrv := httpserver.NewServer(httpCfg, httpserver.MetricsConfig{
		Enabled: cfg.Metrics.Enabled,
		Path:    cfg.Metrics.Path,
	}, sessions, logger)

	// Channel to collect server errors.
	errCh := make(chan error, 1)

	go func() {
		logger.Info().
			Str("address", httpCfg.Address).
			Msg("HTTP server starting")
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().
		Str("http_address", httpCfg.Address).
		Msg("paper-search-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down paper-search-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("paper-search-service shutdown complete")
	return nil
}
