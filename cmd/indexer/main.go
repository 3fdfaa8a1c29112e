package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"snaportho-caseprep/internal/config"
	"snaportho-caseprep/internal/corpus"
	"snaportho-caseprep/internal/llm"
	"snaportho-caseprep/internal/vectorstore"
)

func main() {
	corpusPath := flag.String("corpus", "", "path to the flashcard JSONL export (required)")
	idPrefix := flag.String("prefix", "qa", "card ID prefix, also namespaces the embed state")
	flag.Parse()

	if *corpusPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	ctx := context.Background()

	cards, err := corpus.LoadCards(*corpusPath)
	if err != nil {
		log.Fatalf("Failed to load corpus: %v", err)
	}
	slog.Info("Corpus loaded", "path", *corpusPath, "cards", len(cards))

	db, err := corpus.OpenStateDB(cfg.CorpusDBPath)
	if err != nil {
		log.Fatalf("Failed to open embed-state database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
	if err != nil {
		log.Fatalf("Failed to create Qdrant client: %v", err)
	}
	if err := vectorStore.EnsureCollection(ctx, cfg.QdrantCollection, cfg.QdrantVectorSize); err != nil {
		log.Fatalf("Failed to ensure Qdrant collection: %v", err)
	}

	embedder := llm.NewEmbeddingsClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.QdrantVectorSize, cfg.CallTimeout)

	pipeline := corpus.NewPipeline(corpus.NewStateRepo(db), embedder, vectorStore, cfg.QdrantCollection)
	stats, err := pipeline.IndexCards(ctx, cards, *idPrefix)
	if err != nil {
		log.Fatalf("Indexing failed: %v", err)
	}

	slog.Info("Indexing finished",
		"total", stats.Total,
		"embedded", stats.Embedded,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)
	if stats.Failed > 0 {
		os.Exit(1)
	}
}
