package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"time"

	"docuquery/internal/cache"
	"docuquery/internal/config"
	"docuquery/internal/embed"
	"docuquery/internal/extract"
	"docuquery/internal/http"
	"docuquery/internal/ingest"
	"docuquery/internal/llm"
	"docuquery/internal/registry"
	"docuquery/internal/retrieval"
	"docuquery/internal/router"
	"docuquery/internal/vectorstore"
)

const (
	staleSweepInterval = 10 * time.Minute
	staleSweepAge      = 15 * time.Minute
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
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	// Initialize registry database
	db, err := registry.NewDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := registry.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	documentRepo := registry.NewDocumentRepo(db)
	chunkRepo := registry.NewChunkRepo(db)
	reg := registry.New(documentRepo)

	ctx := context.Background()

	// Initialize Qdrant vector store
	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL, cfg.QdrantCollection)
	if err != nil {
		log.Fatalf("Failed to create Qdrant client: %v", err)
	}
	if err := vectorStore.EnsureCollection(ctx, cfg.QdrantVectorSize); err != nil {
		log.Fatalf("Failed to ensure Qdrant collection: %v", err)
	}
	slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", cfg.QdrantVectorSize)

	// Embedding gateway with worker-pool fan-out
	embedClient := embed.NewClient(cfg.EmbeddingBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModelName, cfg.QdrantVectorSize)
	embedder, err := embed.NewGateway(embedClient, cfg.EmbeddingBatchSize, cfg.EmbeddingWorkers)
	if err != nil {
		log.Fatalf("Failed to create embedding gateway: %v", err)
	}
	defer embedder.Close()

	// Validate embedding vector size against the collection (fail-fast)
	testVectors, err := embedder.EmbedTexts(ctx, []string{"test"})
	if err != nil {
		log.Fatalf("Failed to validate embedding client: %v", err)
	}
	if len(testVectors) == 0 || len(testVectors[0]) != cfg.QdrantVectorSize {
		log.Fatalf("Embedding vector size mismatch: expected %d, got %d", cfg.QdrantVectorSize, len(testVectors[0]))
	}
	slog.Info("Embedding client validated", "vector_size", cfg.QdrantVectorSize)

	// Retrieval and answering
	ranker := retrieval.NewRanker(vectorStore, retrieval.Policy{
		SupportThreshold: cfg.SupportThreshold,
		WeightTopScore:   cfg.WeightTopScore,
		WeightGap:        cfg.WeightGap,
		WeightSupport:    cfg.WeightSupport,
	})
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName)
	answerCache := cache.New(cfg.AnswerCacheSize)

	answerRouter := router.New(embedder, ranker, chunkRepo, llmClient, answerCache, router.Options{
		Thresholds: router.Thresholds{
			High:   cfg.ConfidenceHigh,
			Medium: cfg.ConfidenceMedium,
			Low:    cfg.ConfidenceLow,
		},
		MaxTopK: cfg.MaxTopK,
	})
	slog.Info("Answer router initialized",
		"confidence_high", cfg.ConfidenceHigh, "confidence_medium", cfg.ConfidenceMedium, "confidence_low", cfg.ConfidenceLow)

	// Ingestion pipeline
	extractors := extract.NewRegistry()
	pipeline := ingest.NewPipeline(
		extractors,
		reg,
		chunkRepo,
		embedder,
		vectorStore,
		answerRouter,
		cfg.ChunkSize,
		cfg.ChunkOverlap,
	)

	// Reclaim state left over from a previous crash, then sweep periodically
	if err := pipeline.SweepStale(ctx, staleSweepAge); err != nil {
		slog.Warn("Startup stale sweep failed", "error", err)
	}
	go func() {
		ticker := time.NewTicker(staleSweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			if err := pipeline.SweepStale(context.Background(), staleSweepAge); err != nil {
				slog.Warn("Stale sweep failed", "error", err)
			}
		}
	}()

	deps := &http.Deps{
		Registry:    reg,
		Pipeline:    pipeline,
		Router:      answerRouter,
		Index:       vectorStore,
		DefaultTopK: cfg.DefaultTopK,
	}
	apiRouter := http.NewRouter(deps)

	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
	if err := nethttp.ListenAndServe(addr, apiRouter); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
