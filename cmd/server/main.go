package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"

	"github.com/healthbridge-ai/healthbridge/pkg/agents"
	"github.com/healthbridge-ai/healthbridge/pkg/ai"
	"github.com/healthbridge-ai/healthbridge/pkg/catalog"
	"github.com/healthbridge-ai/healthbridge/pkg/config"
	"github.com/healthbridge-ai/healthbridge/pkg/db"
	"github.com/healthbridge-ai/healthbridge/pkg/intake"
	"github.com/healthbridge-ai/healthbridge/pkg/logging"
	"github.com/healthbridge-ai/healthbridge/pkg/memory"
	"github.com/healthbridge-ai/healthbridge/pkg/retrieval"
	"github.com/healthbridge-ai/healthbridge/pkg/server"
	"github.com/healthbridge-ai/healthbridge/pkg/session"
	"github.com/healthbridge-ai/healthbridge/pkg/vectorstore"
)

const criticConfidenceThreshold = 0.6

func main() {
	logger := log.NewWithOptions(os.Stdout, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Level:           log.DebugLevel,
		TimeFormat:      time.Kitchen,
	})

	cfg, err := config.LoadConfig(true)
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}
	logs := logging.NewFactory(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cat *catalog.Catalog
	if cfg.CatalogPath != "" {
		cat, err = catalog.Load(cfg.CatalogPath)
	} else {
		cat, err = catalog.Default()
	}
	if err != nil {
		logger.Fatal("failed to load field catalog", "error", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		logger.Fatal("failed to create database directory", "error", err)
	}
	store, err := db.NewStore(cfg.DBPath, logs.ForDatabase("sqlite"))
	if err != nil {
		logger.Fatal("failed to open database", "error", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	completions := ai.NewOpenAIService(logs.ForAI("completions"), cfg.CompletionsAPIKey, cfg.CompletionsAPIURL)
	embeddings := ai.NewOpenAIService(logs.ForAI("embeddings"), cfg.EmbeddingsAPIKey, cfg.EmbeddingsAPIURL)
	cached, err := ai.NewCachedEmbedding(embeddings, cfg.EmbeddingCacheSize)
	if err != nil {
		logger.Fatal("failed to initialize embedding cache", "error", err)
	}
	embedder, err := vectorstore.NewEmbeddingWrapper(cached, cfg.EmbeddingsModel)
	if err != nil {
		logger.Fatal("failed to initialize embedder", "error", err)
	}

	var vs vectorstore.Store
	switch cfg.VectorBackend {
	case "weaviate":
		vs, err = vectorstore.NewWeaviateStore(cfg.WeaviateHost, cfg.WeaviateScheme, logs.ForComponent("vectorstore"))
		if err != nil {
			logger.Fatal("failed to connect to Weaviate", "error", err)
		}
	default:
		logger.Warn("using in-memory vector store, embeddings will not survive restarts")
		vs = vectorstore.NewMemoryStore()
	}

	var nc *nats.Conn
	if cfg.NatsURL != "" {
		nc, err = nats.Connect(cfg.NatsURL)
		if err != nil {
			logger.Warn("failed to connect to NATS, events disabled", "error", err)
			nc = nil
		} else {
			defer nc.Close()
		}
	}

	retriever := retrieval.NewRetriever(vs, embedder, retrieval.NewCritic(criticConfidenceThreshold), logs.ForComponent("retrieval"))
	indexer := retrieval.NewIndexer(vs, embedder, logs.ForComponent("retrieval"))
	mem := memory.NewService(vs, embedder, logs.ForMemory("memories"))
	orchestrator := agents.NewOrchestrator(completions, cfg.CompletionsModel, retriever, mem, logs.ForAI("orchestrator"))

	extractor := intake.NewTieredExtractor(
		intake.NewSemanticTier(cat, cached, cfg.EmbeddingsModel, logs.ForComponent("intake")),
		intake.NewLLMTier(completions, cfg.CompletionsModel, cat, logs.ForComponent("intake")),
		intake.NewRegexTier(),
		logs.ForComponent("intake"),
	)

	sessions := session.NewService(session.Config{
		Catalog:   cat,
		Extractor: extractor,
		Questions: intake.NewQuestionGenerator(cat),
		Detector:  intake.NewDetector(),
		Evaluator: orchestrator,
		Memory:    mem,
		Store:     store,
		Nats:      nc,
		Logger:    logs.ForService("session"),
	})

	srv := server.New(sessions, retriever, indexer, mem, logs.ForHandler("http"))
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: srv.Router(),
	}

	go func() {
		logger.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
}
