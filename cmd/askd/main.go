// Askd is a retrieval-augmented query daemon over an issue tracker
// and wiki.
//
// The daemon ingests issues and pages into a vector store, answers
// natural-language queries against the indexed corpus through an LLM,
// and exposes everything over an HTTP API.
//
// Configuration is loaded from ~/.config/askd/config.yaml with
// environment variable overrides. See internal/config for details.
//
// Usage:
//
//	# Start daemon with defaults
//	askd
//
//	# Use an explicit config file
//	askd -config /etc/askd/config.yaml
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9000 LLM_API_KEY=... askd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/askd/internal/agent"
	"github.com/fyrsmithlabs/askd/internal/config"
	"github.com/fyrsmithlabs/askd/internal/embeddings"
	httpserver "github.com/fyrsmithlabs/askd/internal/http"
	"github.com/fyrsmithlabs/askd/internal/ingest"
	"github.com/fyrsmithlabs/askd/internal/llm"
	"github.com/fyrsmithlabs/askd/internal/logging"
	"github.com/fyrsmithlabs/askd/internal/source"
	"github.com/fyrsmithlabs/askd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/askd/config.yaml)")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  askd           Start the askd daemon\n")
			fmt.Fprintf(os.Stderr, "  askd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("askd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the askd daemon and blocks until the context is
// cancelled.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Initialize logger
//  3. Create embedding provider and vector store
//  4. Create LLM client and agent
//  5. Create source adapters and ingest service
//  6. Start the background refresher (if enabled)
//  7. Start the HTTP server
//  8. Graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("Starting askd",
		zap.Int("port", cfg.Server.HTTPPort),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	embedder, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:  cfg.Embeddings.Provider,
		Model:     cfg.Embeddings.Model,
		BaseURL:   cfg.Embeddings.BaseURL,
		APIKey:    cfg.Embeddings.APIKey.Value(),
		Dimension: cfg.Embeddings.Dimension,
	})
	if err != nil {
		return fmt.Errorf("failed to create embedding provider: %w", err)
	}
	defer embedder.Close()

	logger.Info("Embedding provider initialized",
		zap.String("provider", cfg.Embeddings.Provider),
		zap.Int("dimension", embedder.Dimension()))

	vectorSize := cfg.VectorStore.Qdrant.VectorSize
	if vectorSize == 0 {
		vectorSize = uint64(embedder.Dimension())
	}
	store, err := vectorstore.NewStore(vectorstore.Config{
		Provider: vectorstore.Provider(cfg.VectorStore.Provider),
		Chromem: vectorstore.ChromemConfig{
			Path:       cfg.VectorStore.Chromem.Path,
			Compress:   cfg.VectorStore.Chromem.Compress,
			Collection: cfg.VectorStore.Chromem.Collection,
		},
		Qdrant: vectorstore.QdrantConfig{
			Host:       cfg.VectorStore.Qdrant.Host,
			Port:       cfg.VectorStore.Qdrant.Port,
			Collection: cfg.VectorStore.Qdrant.Collection,
			VectorSize: vectorSize,
			UseTLS:     cfg.VectorStore.Qdrant.UseTLS,
		},
	}, embedder, logger)
	if err != nil {
		return fmt.Errorf("failed to create vector store: %w", err)
	}
	defer store.Close()

	client, err := llm.NewClient(llm.Config{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey.Value(),
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  cfg.LLM.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create llm client: %w", err)
	}

	qa := agent.New(store, client, agent.Config{TopK: cfg.Agent.TopK}, logger)

	var jira *source.JiraClient
	if cfg.Jira.BaseURL != "" {
		jira, err = source.NewJiraClient(source.JiraConfig{
			BaseURL:  cfg.Jira.BaseURL,
			Email:    cfg.Jira.Email,
			APIToken: cfg.Jira.APIToken.Value(),
			Project:  cfg.Jira.Project,
			DaysBack: cfg.Jira.DaysBack,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create jira client: %w", err)
		}
		logger.Info("Jira source configured",
			zap.String("base_url", cfg.Jira.BaseURL),
			zap.String("project", cfg.Jira.Project))
	}

	var confluence *source.ConfluenceClient
	if cfg.Confluence.BaseURL != "" {
		confluence, err = source.NewConfluenceClient(source.ConfluenceConfig{
			BaseURL:  cfg.Confluence.BaseURL,
			Email:    cfg.Confluence.Email,
			APIToken: cfg.Confluence.APIToken.Value(),
			SpaceKey: cfg.Confluence.SpaceKey,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create confluence client: %w", err)
		}
		logger.Info("Confluence source configured",
			zap.String("base_url", cfg.Confluence.BaseURL),
			zap.String("space_key", cfg.Confluence.SpaceKey))
	}

	// Typed nils must not reach the service as non-nil interfaces.
	var issueSource ingest.IssueSource
	if jira != nil {
		issueSource = jira
	}
	var pageSource ingest.PageSource
	if confluence != nil {
		pageSource = confluence
	}
	ingestSvc := ingest.NewService(store, issueSource, pageSource, nil, logger)

	if cfg.Refresh.Enabled {
		refresher := ingest.NewRefresher(ingestSvc, &ingest.RefresherConfig{
			Interval: cfg.Refresh.Interval,
			Project:  cfg.Jira.Project,
			SpaceKey: cfg.Confluence.SpaceKey,
		}, logger)
		refresher.Start(ctx)
		defer refresher.Stop()

		logger.Info("Background refresher started",
			zap.Duration("interval", cfg.Refresh.Interval))
	}

	var issueCreator httpserver.IssueCreator
	if jira != nil {
		issueCreator = jira
	}
	srv, err := httpserver.NewServer(qa, ingestSvc, issueCreator, logger, &httpserver.Config{
		Host: "localhost",
		Port: cfg.Server.HTTPPort,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
