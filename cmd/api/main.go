package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"

	"snaportho-caseprep/internal/anatomy"
	"snaportho-caseprep/internal/caseprep"
	"snaportho-caseprep/internal/config"
	"snaportho-caseprep/internal/http"
	"snaportho-caseprep/internal/llm"
	"snaportho-caseprep/internal/refiner"
	"snaportho-caseprep/internal/retrieval"
	"snaportho-caseprep/internal/vectorstore"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx := context.Background()

	// Initialize Qdrant vector store
	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
	if err != nil {
		log.Fatalf("Failed to create Qdrant client: %v", err)
	}
	if err := vectorStore.EnsureCollection(ctx, cfg.QdrantCollection, cfg.QdrantVectorSize); err != nil {
		log.Fatalf("Failed to ensure Qdrant collection: %v", err)
	}
	slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", cfg.QdrantVectorSize)

	// LLM clients
	chatClient := llm.NewClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.ChatModel, cfg.CallTimeout)
	embedder := llm.NewEmbeddingsClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.QdrantVectorSize, cfg.CallTimeout)

	// Anatomy branch needs its approach catalog; run without the branch if
	// the catalog cannot be loaded.
	var anatomyRunner caseprep.AnatomyRunner
	catalog, err := anatomy.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		slog.Warn("Approach catalog unavailable, anatomy branch disabled", "path", cfg.CatalogPath, "error", err)
	} else {
		anatomyRunner = anatomy.NewPipeline(chatClient, catalog)
		slog.Info("Approach catalog loaded", "path", cfg.CatalogPath, "approaches", len(catalog))
	}

	// Wire the pipeline
	orchestrator := caseprep.NewOrchestrator(
		refiner.NewQueryRefiner(chatClient),
		retrieval.NewEngine(embedder, vectorStore, cfg.QdrantCollection),
		caseprep.NewRelevanceFilter(chatClient),
		caseprep.NewChunkedExtractor(chatClient),
		caseprep.NewImportanceRanker(chatClient, caseprep.NewMemoryCache()),
		anatomyRunner,
	)
	slog.Info("Case-prep pipeline initialized", "chat_model", cfg.ChatModel, "embedding_model", cfg.EmbeddingModel)

	router := http.NewRouter(&http.Deps{
		Preparer:    orchestrator,
		VectorStore: vectorStore,
		Collection:  cfg.QdrantCollection,
	})

	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
