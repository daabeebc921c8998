package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"docuquery/internal/contextutil"
	"docuquery/internal/service"
)

// Registry is the single source of truth for what documents exist, in what
// versions, and in what state. All mutation of document lifecycle state goes
// through its transition methods, which serialize concurrent calls for the
// same (document_id, version) and stay concurrent across different documents.
type Registry struct {
	documents DocumentStore
	locks     *keyedLocks
	logger    *slog.Logger
}

// New creates a Registry over a DocumentStore.
func New(documents DocumentStore) *Registry {
	return &Registry{
		documents: documents,
		locks:     newKeyedLocks(),
		logger:    slog.Default(),
	}
}

// BeginIngest resolves how an upload relates to prior documents and creates
// the pending record when one is needed. Duplicate detection is best-effort:
// the checksum is trusted to identify content, hash collisions are not
// handled specially.
func (r *Registry) BeginIngest(ctx context.Context, filename, sourceFormat, checksum string, policy ExistsPolicy) (IngestDecision, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if !policy.Valid() {
		return IngestDecision{}, &service.ValidationError{Field: "exists_policy", Message: fmt.Sprintf("unknown policy %q", policy)}
	}

	existing, err := r.documents.FindCompletedByChecksum(ctx, checksum)
	if err != nil && !errors.Is(err, service.ErrNotFound) {
		return IngestDecision{}, fmt.Errorf("failed to check for duplicate: %w", err)
	}

	if existing != nil {
		switch policy {
		case PolicySkip:
			logger.InfoContext(ctx, "duplicate upload skipped",
				"document_id", existing.DocumentID, "version", existing.Version, "checksum", checksum[:16])
			return IngestDecision{
				Action:     ActionSkip,
				DocumentID: existing.DocumentID,
				Version:    existing.Version,
				ChunkCount: existing.ChunkCount,
			}, nil

		case PolicyOverwrite:
			return r.createVersion(ctx, existing.DocumentID, filename, sourceFormat, checksum, IngestDecision{
				Action:            ActionOverwrite,
				DocumentID:        existing.DocumentID,
				SupersededVersion: existing.Version,
			})

		case PolicyVersionAsNew:
			return r.createVersion(ctx, existing.DocumentID, filename, sourceFormat, checksum, IngestDecision{
				Action:     ActionNew,
				DocumentID: existing.DocumentID,
			})
		}
	}

	documentID := uuid.New().String()
	return r.createVersion(ctx, documentID, filename, sourceFormat, checksum, IngestDecision{
		Action:     ActionNew,
		DocumentID: documentID,
	})
}

func (r *Registry) createVersion(ctx context.Context, documentID, filename, sourceFormat, checksum string, decision IngestDecision) (IngestDecision, error) {
	unlock := r.locks.lock(documentID)
	defer unlock()

	latest, err := r.documents.LatestVersion(ctx, documentID)
	if err != nil {
		return IngestDecision{}, err
	}
	version := latest + 1

	rec := &DocumentRecord{
		DocumentID:   documentID,
		Version:      version,
		Checksum:     checksum,
		Status:       StatusPending,
		SourceFormat: sourceFormat,
		Filename:     filename,
	}
	if err := r.documents.Insert(ctx, rec); err != nil {
		return IngestDecision{}, err
	}

	decision.Version = version
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "ingest registered",
		"document_id", documentID, "version", version, "action", string(decision.Action))
	return decision, nil
}

// MarkProcessing transitions pending -> processing when chunking starts.
func (r *Registry) MarkProcessing(ctx context.Context, documentID string, version int) error {
	unlock := r.locks.lock(versionKey(documentID, version))
	defer unlock()
	return r.documents.Transition(ctx, documentID, version, []Status{StatusPending}, StatusProcessing)
}

// MarkCompleted transitions processing -> completed and records the chunk
// count. A second concurrent completion for the same version is rejected
// with service.ErrConflict.
func (r *Registry) MarkCompleted(ctx context.Context, documentID string, version int, chunkCount int) error {
	unlock := r.locks.lock(versionKey(documentID, version))
	defer unlock()
	return r.documents.SetCompleted(ctx, documentID, version, chunkCount)
}

// MarkFailed transitions to failed and records the reason. The caller is
// responsible for the compensating delete of any chunks and vectors already
// written for this version.
func (r *Registry) MarkFailed(ctx context.Context, documentID string, version int, reason string) error {
	unlock := r.locks.lock(versionKey(documentID, version))
	defer unlock()
	return r.documents.SetFailed(ctx, documentID, version, reason)
}

// BeginDelete marks the first phase of a two-phase delete. A crash after
// this point leaves a deleting record that the recovery sweep completes, so
// vectors are never silently orphaned.
func (r *Registry) BeginDelete(ctx context.Context, documentID string, version int) error {
	unlock := r.locks.lock(versionKey(documentID, version))
	defer unlock()
	return r.documents.Transition(ctx, documentID, version,
		[]Status{StatusCompleted, StatusFailed, StatusDeleting}, StatusDeleting)
}

// FinishDelete removes the record after vectors have been deleted.
func (r *Registry) FinishDelete(ctx context.Context, documentID string, version int) error {
	unlock := r.locks.lock(versionKey(documentID, version))
	defer unlock()
	return r.documents.Remove(ctx, documentID, version)
}

// Get returns a record by (document_id, version).
func (r *Registry) Get(ctx context.Context, documentID string, version int) (*DocumentRecord, error) {
	return r.documents.Get(ctx, documentID, version)
}

// ListAll returns all records.
func (r *Registry) ListAll(ctx context.Context) ([]*DocumentRecord, error) {
	return r.documents.ListAll(ctx)
}

// CountByStatus returns record counts grouped by status, for health reports.
func (r *Registry) CountByStatus(ctx context.Context) (map[Status]int, error) {
	return r.documents.CountByStatus(ctx)
}

// ListStaleProcessing returns records stuck in processing longer than the
// given duration. The recovery sweep fails them and cleans up partial state.
func (r *Registry) ListStaleProcessing(ctx context.Context, olderThan time.Duration) ([]*DocumentRecord, error) {
	cutoff := time.Now().Add(-olderThan)
	return r.documents.ListStaleProcessing(ctx, cutoff)
}

// ListDeleting returns records left mid-delete by a crash.
func (r *Registry) ListDeleting(ctx context.Context) ([]*DocumentRecord, error) {
	return r.documents.ListDeleting(ctx)
}
