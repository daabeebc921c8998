package registry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"docuquery/internal/service"
)

// ChunkStore defines persistence for chunk text.
type ChunkStore interface {
	// InsertBatch inserts chunks in a single transaction. Chunk IDs must be
	// set (UUID) before calling.
	InsertBatch(ctx context.Context, chunks []*ChunkRecord) error
	// DeleteByDocument deletes all chunks of a document version.
	DeleteByDocument(ctx context.Context, documentID string, version int) error
	// ListIDsByDocument returns chunk IDs of a document version ordered by
	// ordinal. Used to delete the matching vector points.
	ListIDsByDocument(ctx context.Context, documentID string, version int) ([]string, error)
	// GetByID gets a chunk by its ID. Returns service.ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*ChunkRecord, error)
	// GetByIDs returns the chunks for the given IDs, ordered by document then
	// ordinal. Missing IDs are silently omitted.
	GetByIDs(ctx context.Context, ids []string) ([]*ChunkRecord, error)
	// CountByDocument returns how many chunks a document version has.
	CountByDocument(ctx context.Context, documentID string, version int) (int, error)
}

// ChunkRepo implements ChunkStore on SQLite.
type ChunkRepo struct {
	db *sql.DB
}

// NewChunkRepo creates a new ChunkRepo.
func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

func (r *ChunkRepo) InsertBatch(ctx context.Context, chunks []*ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (id, document_id, version, ordinal, text, char_start, char_end) VALUES (?, ?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx,
			chunk.ID, chunk.DocumentID, chunk.Version, chunk.Ordinal, chunk.Text, chunk.CharStart, chunk.CharEnd,
		); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk batch: %w", err)
	}
	return nil
}

func (r *ChunkRepo) DeleteByDocument(ctx context.Context, documentID string, version int) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM chunks WHERE document_id = ? AND version = ?",
		documentID, version,
	)
	if err != nil {
		return fmt.Errorf("failed to delete chunks by document: %w", err)
	}
	return nil
}

func (r *ChunkRepo) ListIDsByDocument(ctx context.Context, documentID string, version int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id FROM chunks WHERE document_id = ? AND version = ? ORDER BY ordinal",
		documentID, version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk IDs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chunk ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return ids, nil
}

func (r *ChunkRepo) GetByID(ctx context.Context, id string) (*ChunkRecord, error) {
	var chunk ChunkRecord
	err := r.db.QueryRowContext(ctx,
		"SELECT id, document_id, version, ordinal, text, char_start, char_end FROM chunks WHERE id = ?",
		id,
	).Scan(&chunk.ID, &chunk.DocumentID, &chunk.Version, &chunk.Ordinal, &chunk.Text, &chunk.CharStart, &chunk.CharEnd)

	if err == sql.ErrNoRows {
		return nil, service.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk: %w", err)
	}
	return &chunk, nil
}

func (r *ChunkRepo) GetByIDs(ctx context.Context, ids []string) ([]*ChunkRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(
			"SELECT id, document_id, version, ordinal, text, char_start, char_end FROM chunks WHERE id IN (%s) ORDER BY document_id, version, ordinal",
			strings.Join(placeholders, ", "),
		),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var chunks []*ChunkRecord
	for rows.Next() {
		var chunk ChunkRecord
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Version, &chunk.Ordinal, &chunk.Text, &chunk.CharStart, &chunk.CharEnd); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, &chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return chunks, nil
}

func (r *ChunkRepo) CountByDocument(ctx context.Context, documentID string, version int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunks WHERE document_id = ? AND version = ?",
		documentID, version,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}
