// docpipe server — ingests documentation from the web or local files,
// synthesizes it with an LLM, and embeds it into a vector store, all driven
// over an HTTP API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/docpipe/docpipe/pkg/api"
	"github.com/docpipe/docpipe/pkg/browser"
	"github.com/docpipe/docpipe/pkg/config"
	"github.com/docpipe/docpipe/pkg/discovery"
	"github.com/docpipe/docpipe/pkg/embedding"
	"github.com/docpipe/docpipe/pkg/fetch"
	"github.com/docpipe/docpipe/pkg/governor"
	"github.com/docpipe/docpipe/pkg/llm"
	_ "github.com/docpipe/docpipe/pkg/llm/providers"
	"github.com/docpipe/docpipe/pkg/metrics"
	"github.com/docpipe/docpipe/pkg/pipeline"
	"github.com/docpipe/docpipe/pkg/registry"
	"github.com/docpipe/docpipe/pkg/synthesize"
	"github.com/docpipe/docpipe/pkg/vector"
	"github.com/docpipe/docpipe/pkg/version"
	"github.com/docpipe/docpipe/pkg/websearch"
)

func main() {
	root := &cobra.Command{
		Use:           "docpipe",
		Short:         "Documentation ingestion pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Full())
		},
	})

	if err := root.Execute(); err != nil {
		slog.Error("docpipe exited with error", "error", err)
		os.Exit(1)
	}
}

func serve() error {
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("Starting docpipe",
		"version", version.Full(),
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
		"embedding_provider", cfg.EmbeddingProvider)

	ctx := context.Background()

	// Crawl filters with optional hot reload from a YAML override file.
	filters := &atomic.Pointer[config.CrawlFilters]{}
	filters.Store(config.DefaultCrawlFilters())
	if cfg.FilterConfigPath != "" {
		loaded, err := config.LoadCrawlFilters(cfg.FilterConfigPath)
		if err != nil {
			return fmt.Errorf("loading crawl filters: %w", err)
		}
		filters.Store(loaded)
	}
	watcher := config.NewFilterWatcher(cfg.FilterConfigPath, func(f *config.CrawlFilters) {
		filters.Store(f)
	})
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("starting filter watcher: %w", err)
	}
	defer watcher.Stop()

	promRegistry := prometheus.NewRegistry()
	m := metrics.New(promRegistry)

	store := registry.NewStore(cfg.WorkDir, logger)
	gov := governor.New(cfg.BrowserPoolSize, cfg.LLMConcurrency, cfg.QdrantBatchSize)
	pool := browser.NewPool(gov)

	llmClient := llm.NewClient(llm.WithLogger(logger))
	pipelineEP, err := llm.ResolvePipelineEndpoint(cfg)
	if err != nil {
		return fmt.Errorf("resolving pipeline LLM endpoint: %w", err)
	}
	answerEP, err := llm.ResolveSynthesizeEndpoint(cfg)
	if err != nil {
		return fmt.Errorf("resolving answer LLM endpoint: %w", err)
	}

	embedder, err := embedding.New(cfg)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	logger.Info("Embedder ready",
		"provider", embedder.Provider(), "model", embedder.Model(), "dimension", embedder.Dimension())

	vectors := vector.NewClient(cfg, vector.WithLogger(logger))
	searcher := websearch.NewClient(cfg)

	discoveryEngine := discovery.NewEngine(searcher, pool, filters.Load, m, logger)
	fetchEngine := fetch.NewEngine(pool, logger)
	synthEngine := synthesize.NewEngine(
		llmClient.Bind(pipelineEP), pipelineEP.Provider, pipelineEP.Model, gov, m, logger)

	orch := pipeline.New(pipeline.Config{
		Store:      store,
		Governor:   gov,
		Discovery:  discoveryEngine,
		Fetch:      fetchEngine,
		Synthesize: synthEngine,
		Embedder:   embedder,
		Vectors:    vectors,
		Metrics:    m,
		DataDir:    cfg.DataDir,
		Collection: cfg.VectorCollection,
		Logger:     logger,
	})
	orch.Start(ctx)
	defer orch.Stop()

	server := api.NewServer(api.Config{
		Store:      store,
		Ingestor:   orch,
		Vectors:    vectors,
		Embedder:   embedder,
		Completer:  llmClient,
		AnswerEP:   answerEP,
		Collection: cfg.VectorCollection,
		Registry:   promRegistry,
		Logger:     logger,
	})

	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("Server error triggered shutdown", "error", err)
	}

	// Cancel active work first so the dispatcher can drain, then stop HTTP.
	orch.CancelAll()
	orch.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("Shutdown complete")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
