package registry

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_stores.go -package=mocks docuquery/internal/registry DocumentStore,ChunkStore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"docuquery/internal/service"
)

// DocumentStore defines persistence for document records.
type DocumentStore interface {
	// Insert inserts a new document record. Fails if (document_id, version)
	// already exists.
	Insert(ctx context.Context, rec *DocumentRecord) error
	// Get returns a record by (document_id, version). Returns
	// service.ErrNotFound if absent.
	Get(ctx context.Context, documentID string, version int) (*DocumentRecord, error)
	// FindCompletedByChecksum returns the most recent completed record with
	// the given checksum, or service.ErrNotFound.
	FindCompletedByChecksum(ctx context.Context, checksum string) (*DocumentRecord, error)
	// LatestVersion returns the highest version stored for a document_id, or
	// 0 if none exists.
	LatestVersion(ctx context.Context, documentID string) (int, error)
	// Transition moves a record from one of the given statuses to another.
	// Returns service.ErrConflict when the record is not in an accepted
	// status, which rejects racing writers.
	Transition(ctx context.Context, documentID string, version int, from []Status, to Status) error
	// SetCompleted transitions processing -> completed and records the final
	// chunk count.
	SetCompleted(ctx context.Context, documentID string, version int, chunkCount int) error
	// SetFailed transitions to failed and records the failure reason.
	SetFailed(ctx context.Context, documentID string, version int, reason string) error
	// Remove deletes the record outright. The chunks table cascades.
	Remove(ctx context.Context, documentID string, version int) error
	// ListStaleProcessing returns records stuck in processing since before
	// the given time, for the recovery sweep.
	ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]*DocumentRecord, error)
	// ListDeleting returns records left in the deleting state.
	ListDeleting(ctx context.Context) ([]*DocumentRecord, error)
	// ListAll returns all records ordered by document_id, version.
	ListAll(ctx context.Context) ([]*DocumentRecord, error)
	// CountByStatus returns record counts grouped by status.
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// DocumentRepo implements DocumentStore on SQLite.
type DocumentRepo struct {
	db *sql.DB
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

const documentColumns = "document_id, version, checksum, status, chunk_count, source_format, filename, COALESCE(failure_reason, ''), created_at, updated_at"

func (r *DocumentRepo) Insert(ctx context.Context, rec *DocumentRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (document_id, version, checksum, status, chunk_count, source_format, filename)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.DocumentID, rec.Version, rec.Checksum, string(rec.Status), rec.ChunkCount, rec.SourceFormat, rec.Filename,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document record: %w", err)
	}
	return nil
}

func (r *DocumentRepo) Get(ctx context.Context, documentID string, version int) (*DocumentRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE document_id = ? AND version = ?",
		documentID, version,
	)
	return scanDocument(row)
}

func (r *DocumentRepo) FindCompletedByChecksum(ctx context.Context, checksum string) (*DocumentRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE checksum = ? AND status = ? ORDER BY version DESC LIMIT 1",
		checksum, string(StatusCompleted),
	)
	return scanDocument(row)
}

func (r *DocumentRepo) LatestVersion(ctx context.Context, documentID string) (int, error) {
	var version sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		"SELECT MAX(version) FROM documents WHERE document_id = ?",
		documentID,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to query latest version: %w", err)
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

func (r *DocumentRepo) Transition(ctx context.Context, documentID string, version int, from []Status, to Status) error {
	placeholders := make([]string, len(from))
	args := []any{string(to), documentID, version}
	for i, s := range from {
		placeholders[i] = "?"
		args = append(args, string(s))
	}

	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(
			"UPDATE documents SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE document_id = ? AND version = ? AND status IN (%s)",
			strings.Join(placeholders, ", "),
		),
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to transition document status: %w", err)
	}
	return requireOneRow(res, documentID, version, to)
}

func (r *DocumentRepo) SetCompleted(ctx context.Context, documentID string, version int, chunkCount int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, chunk_count = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE document_id = ? AND version = ? AND status = ?`,
		string(StatusCompleted), chunkCount, documentID, version, string(StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("failed to mark document completed: %w", err)
	}
	return requireOneRow(res, documentID, version, StatusCompleted)
}

func (r *DocumentRepo) SetFailed(ctx context.Context, documentID string, version int, reason string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, failure_reason = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE document_id = ? AND version = ? AND status IN (?, ?)`,
		string(StatusFailed), reason, documentID, version, string(StatusPending), string(StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("failed to mark document failed: %w", err)
	}
	return requireOneRow(res, documentID, version, StatusFailed)
}

func (r *DocumentRepo) Remove(ctx context.Context, documentID string, version int) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM documents WHERE document_id = ? AND version = ?",
		documentID, version,
	)
	if err != nil {
		return fmt.Errorf("failed to remove document record: %w", err)
	}
	return nil
}

func (r *DocumentRepo) ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]*DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE status = ? AND updated_at < ?",
		string(StatusProcessing), olderThan.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale processing documents: %w", err)
	}
	return scanDocuments(rows)
}

func (r *DocumentRepo) ListDeleting(ctx context.Context) ([]*DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE status = ?",
		string(StatusDeleting),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query deleting documents: %w", err)
	}
	return scanDocuments(rows)
}

func (r *DocumentRepo) ListAll(ctx context.Context) ([]*DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM documents ORDER BY document_id, version",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	return scanDocuments(rows)
}

func (r *DocumentRepo) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM documents GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count documents by status: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return counts, nil
}

func requireOneRow(res sql.Result, documentID string, version int, to Status) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s@%d -> %s", service.ErrConflict, documentID, version, to)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*DocumentRecord, error) {
	var rec DocumentRecord
	var status string
	err := row.Scan(
		&rec.DocumentID, &rec.Version, &rec.Checksum, &status, &rec.ChunkCount,
		&rec.SourceFormat, &rec.Filename, &rec.FailureReason, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, service.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan document record: %w", err)
	}
	rec.Status = Status(status)
	return &rec, nil
}

func scanDocuments(rows *sql.Rows) ([]*DocumentRecord, error) {
	defer func() {
		_ = rows.Close()
	}()

	var records []*DocumentRecord
	for rows.Next() {
		rec, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}
