package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"docuquery/internal/contextutil"
)

// Embedder is the seam the ingestion pipeline and router depend on.
type Embedder interface {
	// EmbedTexts embeds all texts, preserving input order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// BatchClient embeds one batch of texts.
type BatchClient interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Gateway wraps an embedding client with batching and concurrent fan-out.
// Batches run on a shared worker pool; results are reassembled in input
// order, so callers may assign ordinals before embedding and rely on them
// afterward.
type Gateway struct {
	client    BatchClient
	batchSize int
	pool      *ants.Pool
	logger    *slog.Logger
}

// NewGateway creates a Gateway. workers bounds concurrent batches; batchSize
// bounds texts per provider call.
func NewGateway(client BatchClient, batchSize, workers int) (*Gateway, error) {
	if batchSize < 1 {
		batchSize = 1
	}
	if workers < 1 {
		workers = 1
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding pool: %w", err)
	}

	return &Gateway{
		client:    client,
		batchSize: batchSize,
		pool:      pool,
		logger:    slog.Default(),
	}, nil
}

// Close releases the worker pool.
func (g *Gateway) Close() {
	g.pool.Release()
}

// EmbedTexts embeds all texts. The first batch error cancels the remaining
// batches and is returned; partial results are discarded.
func (g *Gateway) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	type batch struct {
		start int
		texts []string
	}

	var batches []batch
	for start := 0; start < len(texts); start += g.batchSize {
		end := start + g.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, batch{start: start, texts: texts[start:end]})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]float32, len(texts))
	errs := make([]error, len(batches))
	var wg sync.WaitGroup

	for i, b := range batches {
		wg.Add(1)
		i, b := i, b
		submitErr := g.pool.Submit(func() {
			defer wg.Done()

			if ctx.Err() != nil {
				errs[i] = ctx.Err()
				return
			}

			vectors, err := g.client.EmbedBatch(ctx, b.texts)
			if err != nil {
				errs[i] = err
				cancel()
				return
			}
			copy(results[b.start:], vectors)
		})
		if submitErr != nil {
			wg.Done()
			errs[i] = fmt.Errorf("failed to submit embedding batch: %w", submitErr)
			cancel()
		}
	}

	wg.Wait()

	// Prefer the root-cause provider error over cancellations it triggered.
	var firstErr error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if firstErr == nil || errors.Is(firstErr, context.Canceled) {
			firstErr = err
		}
	}
	if firstErr != nil {
		logger.WarnContext(ctx, "embedding fan-out failed", "texts", len(texts), "batches", len(batches), "error", firstErr)
		return nil, firstErr
	}

	logger.DebugContext(ctx, "embedded texts", "texts", len(texts), "batches", len(batches))
	return results, nil
}
