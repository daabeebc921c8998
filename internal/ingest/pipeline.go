package ingest

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"docuquery/internal/chunker"
	"docuquery/internal/contextutil"
	"docuquery/internal/embed"
	"docuquery/internal/extract"
	"docuquery/internal/registry"
	"docuquery/internal/service"
	"docuquery/internal/vectorstore"
)

// Invalidator drops cached answers for a deleted document version. The
// degradation router implements it; the pipeline never touches the cache
// directly.
type Invalidator interface {
	InvalidateDocument(documentID string, version int)
}

// Result is the outward ingest payload.
type Result struct {
	DocumentID string `json:"document_id"`
	Version    int    `json:"version"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
}

// Pipeline orchestrates document ingestion: extract, chunk, embed, index,
// register. One document version ingests sequentially; independent documents
// ingest concurrently.
type Pipeline struct {
	extractors   *extract.Registry
	reg          *registry.Registry
	chunks       registry.ChunkStore
	embedder     embed.Embedder
	vectors      vectorstore.VectorStore
	invalidator  Invalidator
	chunkSize    int
	chunkOverlap int
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(
	extractors *extract.Registry,
	reg *registry.Registry,
	chunks registry.ChunkStore,
	embedder embed.Embedder,
	vectors vectorstore.VectorStore,
	invalidator Invalidator,
	chunkSize, chunkOverlap int,
) *Pipeline {
	return &Pipeline{
		extractors:   extractors,
		reg:          reg,
		chunks:       chunks,
		embedder:     embedder,
		vectors:      vectors,
		invalidator:  invalidator,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Ingest processes one uploaded document according to the exists policy.
// Failures after the pending record is created mark the version failed and
// roll back any partial chunks, so a failed ingest leaves no queryable state.
func (p *Pipeline) Ingest(ctx context.Context, filename, sourceFormat string, fileBytes []byte, policy registry.ExistsPolicy) (Result, error) {
	logger := contextutil.LoggerFromContext(ctx)

	checksum := fmt.Sprintf("%x", sha256.Sum256(fileBytes))

	decision, err := p.reg.BeginIngest(ctx, filename, sourceFormat, checksum, policy)
	if err != nil {
		return Result{}, err
	}

	if decision.Skipped() {
		return Result{
			DocumentID: decision.DocumentID,
			Version:    decision.Version,
			Status:     string(registry.StatusCompleted),
			ChunkCount: decision.ChunkCount,
		}, nil
	}

	documentID, version := decision.DocumentID, decision.Version

	blocks, err := p.extractors.Extract(ctx, fileBytes, sourceFormat)
	if err != nil {
		// Extraction failed before chunking started: fail the pending record.
		p.fail(ctx, documentID, version, err)
		if errors.Is(err, service.ErrParse) {
			return Result{DocumentID: documentID, Version: version, Status: string(registry.StatusFailed)}, err
		}
		return Result{}, err
	}

	if err := p.reg.MarkProcessing(ctx, documentID, version); err != nil {
		return Result{}, err
	}

	pieces, err := chunker.Split(blocks, p.chunkSize, p.chunkOverlap)
	if err != nil {
		p.fail(ctx, documentID, version, err)
		return Result{}, err
	}

	// Zero chunks is a valid, if unusual, completed document.
	if len(pieces) == 0 {
		if decision.Action == registry.ActionOverwrite {
			if err := p.supersede(ctx, documentID, decision.SupersededVersion); err != nil {
				p.fail(ctx, documentID, version, err)
				return Result{}, err
			}
		}
		if err := p.reg.MarkCompleted(ctx, documentID, version, 0); err != nil {
			return Result{}, err
		}
		logger.InfoContext(ctx, "ingested empty document", "document_id", documentID, "version", version)
		return Result{DocumentID: documentID, Version: version, Status: string(registry.StatusCompleted)}, nil
	}

	// Ordinals were assigned by the chunker before any embedding fan-out,
	// so citation ordering never depends on embedding completion order.
	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = piece.Text
	}

	vectors, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		p.fail(ctx, documentID, version, err)
		return Result{}, err
	}
	if len(vectors) != len(pieces) {
		err := fmt.Errorf("embedding count mismatch: expected %d, got %d", len(pieces), len(vectors))
		p.fail(ctx, documentID, version, err)
		return Result{}, err
	}

	chunkRecords := make([]*registry.ChunkRecord, len(pieces))
	points := make([]vectorstore.Point, len(pieces))
	for i, piece := range pieces {
		chunkID := uuid.New().String()
		chunkRecords[i] = &registry.ChunkRecord{
			ID:         chunkID,
			DocumentID: documentID,
			Version:    version,
			Ordinal:    piece.Ordinal,
			Text:       piece.Text,
			CharStart:  piece.CharStart,
			CharEnd:    piece.CharEnd,
		}
		points[i] = vectorstore.Point{
			ID:         chunkID,
			Vec:        vectors[i],
			DocumentID: documentID,
			Version:    version,
			Ordinal:    piece.Ordinal,
			CharStart:  piece.CharStart,
			CharEnd:    piece.CharEnd,
		}
	}

	// Supersede the prior version before the new chunks become queryable:
	// no window where both versions answer for the same document_id.
	if decision.Action == registry.ActionOverwrite {
		if err := p.supersede(ctx, documentID, decision.SupersededVersion); err != nil {
			p.fail(ctx, documentID, version, err)
			return Result{}, err
		}
	}

	if err := p.chunks.InsertBatch(ctx, chunkRecords); err != nil {
		p.fail(ctx, documentID, version, err)
		return Result{}, err
	}

	if err := p.vectors.Upsert(ctx, points); err != nil {
		p.fail(ctx, documentID, version, err)
		return Result{}, err
	}

	if err := p.reg.MarkCompleted(ctx, documentID, version, len(pieces)); err != nil {
		return Result{}, err
	}

	logger.InfoContext(ctx, "document ingested",
		"document_id", documentID, "version", version, "chunks", len(pieces), "action", string(decision.Action))

	return Result{
		DocumentID: documentID,
		Version:    version,
		Status:     string(registry.StatusCompleted),
		ChunkCount: len(pieces),
	}, nil
}

// fail marks a version failed and rolls back partial chunks and vectors.
func (p *Pipeline) fail(ctx context.Context, documentID string, version int, cause error) {
	logger := contextutil.LoggerFromContext(ctx)
	logger.ErrorContext(ctx, "ingest failed", "document_id", documentID, "version", version, "error", cause)

	if err := p.vectors.DeleteByDocument(ctx, documentID, version); err != nil {
		logger.WarnContext(ctx, "compensating vector delete failed", "document_id", documentID, "version", version, "error", err)
	}
	if err := p.chunks.DeleteByDocument(ctx, documentID, version); err != nil {
		logger.WarnContext(ctx, "compensating chunk delete failed", "document_id", documentID, "version", version, "error", err)
	}
	if err := p.reg.MarkFailed(ctx, documentID, version, cause.Error()); err != nil {
		logger.WarnContext(ctx, "failed to mark document failed", "document_id", documentID, "version", version, "error", err)
	}
}

// supersede removes an overwritten version's chunks, vectors and record.
func (p *Pipeline) supersede(ctx context.Context, documentID string, version int) error {
	if version <= 0 {
		return nil
	}
	if err := p.reg.BeginDelete(ctx, documentID, version); err != nil {
		return fmt.Errorf("failed to begin supersede of %s@%d: %w", documentID, version, err)
	}
	return p.completeDelete(ctx, documentID, version)
}

// Delete removes a document version outright: two-phase so a crash can
// never silently orphan vectors, then cache invalidation.
func (p *Pipeline) Delete(ctx context.Context, documentID string, version int) error {
	if _, err := p.reg.Get(ctx, documentID, version); err != nil {
		return err
	}
	if err := p.reg.BeginDelete(ctx, documentID, version); err != nil {
		return err
	}
	return p.completeDelete(ctx, documentID, version)
}

func (p *Pipeline) completeDelete(ctx context.Context, documentID string, version int) error {
	logger := contextutil.LoggerFromContext(ctx)

	if err := p.vectors.DeleteByDocument(ctx, documentID, version); err != nil {
		// The record stays in deleting; the recovery sweep retries.
		return err
	}
	if err := p.chunks.DeleteByDocument(ctx, documentID, version); err != nil {
		return err
	}
	if err := p.reg.FinishDelete(ctx, documentID, version); err != nil {
		return err
	}

	if p.invalidator != nil {
		p.invalidator.InvalidateDocument(documentID, version)
	}

	logger.InfoContext(ctx, "document deleted", "document_id", documentID, "version", version)
	return nil
}

// SweepStale reclaims stuck state: versions processing longer than olderThan
// are failed and rolled back, and interrupted deletes are completed.
func (p *Pipeline) SweepStale(ctx context.Context, olderThan time.Duration) error {
	logger := contextutil.LoggerFromContext(ctx)

	stale, err := p.reg.ListStaleProcessing(ctx, olderThan)
	if err != nil {
		return err
	}
	for _, rec := range stale {
		logger.WarnContext(ctx, "reclaiming stale processing document",
			"document_id", rec.DocumentID, "version", rec.Version, "updated_at", rec.UpdatedAt)
		p.fail(ctx, rec.DocumentID, rec.Version, fmt.Errorf("processing exceeded %s", olderThan))
	}

	deleting, err := p.reg.ListDeleting(ctx)
	if err != nil {
		return err
	}
	for _, rec := range deleting {
		logger.WarnContext(ctx, "completing interrupted delete",
			"document_id", rec.DocumentID, "version", rec.Version)
		if err := p.completeDelete(ctx, rec.DocumentID, rec.Version); err != nil {
			logger.ErrorContext(ctx, "failed to complete interrupted delete",
				"document_id", rec.DocumentID, "version", rec.Version, "error", err)
		}
	}

	return nil
}
