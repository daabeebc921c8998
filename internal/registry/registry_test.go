package registry

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"docuquery/internal/service"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := NewDB(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func newTestRegistry(t *testing.T) (*Registry, *sql.DB) {
	t.Helper()
	db := newTestDB(t)
	return New(NewDocumentRepo(db)), db
}

func TestRegistry_BeginIngest_NewDocument(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	decision, err := reg.BeginIngest(ctx, "guide.md", "md", "checksum-a", PolicySkip)
	if err != nil {
		t.Fatalf("BeginIngest() error = %v", err)
	}

	if decision.Action != ActionNew {
		t.Errorf("action = %v, want %v", decision.Action, ActionNew)
	}
	if decision.Version != 1 {
		t.Errorf("version = %d, want 1", decision.Version)
	}
	if decision.DocumentID == "" {
		t.Error("document ID should be assigned")
	}

	rec, err := reg.Get(ctx, decision.DocumentID, 1)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Status != StatusPending {
		t.Errorf("status = %v, want pending", rec.Status)
	}
}

func TestRegistry_BeginIngest_InvalidPolicy(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.BeginIngest(context.Background(), "f.md", "md", "sum", ExistsPolicy("purge"))
	if !errors.Is(err, service.ErrInvalidInput) {
		t.Errorf("BeginIngest() error = %v, want ErrInvalidInput", err)
	}
}

// completeIngest drives a version through pending -> processing -> completed.
func completeIngest(t *testing.T, reg *Registry, filename, checksum string, policy ExistsPolicy) IngestDecision {
	t.Helper()
	ctx := context.Background()

	decision, err := reg.BeginIngest(ctx, filename, "md", checksum, policy)
	if err != nil {
		t.Fatalf("BeginIngest() error = %v", err)
	}
	if decision.Skipped() {
		return decision
	}
	if err := reg.MarkProcessing(ctx, decision.DocumentID, decision.Version); err != nil {
		t.Fatalf("MarkProcessing() error = %v", err)
	}
	if err := reg.MarkCompleted(ctx, decision.DocumentID, decision.Version, 3); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	return decision
}

func TestRegistry_BeginIngest_SkipIsIdempotent(t *testing.T) {
	reg, _ := newTestRegistry(t)

	first := completeIngest(t, reg, "guide.md", "same-sum", PolicySkip)

	// Re-uploading identical bytes is a no-op referencing the existing version.
	second, err := reg.BeginIngest(context.Background(), "guide-renamed.md", "md", "same-sum", PolicySkip)
	if err != nil {
		t.Fatalf("BeginIngest() error = %v", err)
	}
	if second.Action != ActionSkip {
		t.Errorf("action = %v, want skip", second.Action)
	}
	if second.DocumentID != first.DocumentID || second.Version != first.Version {
		t.Errorf("skip should reference %s@%d, got %s@%d",
			first.DocumentID, first.Version, second.DocumentID, second.Version)
	}
	if second.ChunkCount != 3 {
		t.Errorf("skip should report the existing chunk count, got %d", second.ChunkCount)
	}

	records, err := reg.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("skip must not create records, have %d", len(records))
	}
}

func TestRegistry_BeginIngest_Overwrite(t *testing.T) {
	reg, _ := newTestRegistry(t)

	first := completeIngest(t, reg, "guide.md", "same-sum", PolicySkip)

	decision, err := reg.BeginIngest(context.Background(), "guide.md", "md", "same-sum", PolicyOverwrite)
	if err != nil {
		t.Fatalf("BeginIngest() error = %v", err)
	}
	if decision.Action != ActionOverwrite {
		t.Errorf("action = %v, want overwrite", decision.Action)
	}
	if decision.DocumentID != first.DocumentID {
		t.Error("overwrite must stay under the same document ID")
	}
	if decision.Version != first.Version+1 {
		t.Errorf("version = %d, want %d", decision.Version, first.Version+1)
	}
	if decision.SupersededVersion != first.Version {
		t.Errorf("superseded version = %d, want %d", decision.SupersededVersion, first.Version)
	}
}

func TestRegistry_BeginIngest_VersionAsNew(t *testing.T) {
	reg, _ := newTestRegistry(t)

	first := completeIngest(t, reg, "guide.md", "same-sum", PolicySkip)

	decision, err := reg.BeginIngest(context.Background(), "guide.md", "md", "same-sum", PolicyVersionAsNew)
	if err != nil {
		t.Fatalf("BeginIngest() error = %v", err)
	}
	if decision.Action != ActionNew {
		t.Errorf("action = %v, want new", decision.Action)
	}
	if decision.DocumentID != first.DocumentID {
		t.Error("version_as_new on a checksum match keeps the document ID")
	}
	if decision.Version != first.Version+1 {
		t.Errorf("version = %d, want %d", decision.Version, first.Version+1)
	}
	if decision.SupersededVersion != 0 {
		t.Error("version_as_new never supersedes")
	}
}

func TestRegistry_BeginIngest_NoMatchCreatesNewDocument(t *testing.T) {
	reg, _ := newTestRegistry(t)

	first := completeIngest(t, reg, "a.md", "sum-a", PolicySkip)

	decision, err := reg.BeginIngest(context.Background(), "b.md", "md", "sum-b", PolicyOverwrite)
	if err != nil {
		t.Fatalf("BeginIngest() error = %v", err)
	}
	if decision.DocumentID == first.DocumentID {
		t.Error("different content must get its own document ID")
	}
	if decision.Version != 1 {
		t.Errorf("version = %d, want 1", decision.Version)
	}
}

func TestRegistry_BeginIngest_FailedVersionIsNotADuplicate(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	// A failed ingest leaves a failed record; its checksum must not block a
	// retry of the same bytes.
	first, err := reg.BeginIngest(ctx, "guide.md", "md", "sum", PolicySkip)
	if err != nil {
		t.Fatalf("BeginIngest() error = %v", err)
	}
	if err := reg.MarkFailed(ctx, first.DocumentID, first.Version, "boom"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	retry, err := reg.BeginIngest(ctx, "guide.md", "md", "sum", PolicySkip)
	if err != nil {
		t.Fatalf("BeginIngest() error = %v", err)
	}
	if retry.Skipped() {
		t.Error("a failed version must not satisfy duplicate detection")
	}
}

func TestRegistry_StateMachine(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	decision, err := reg.BeginIngest(ctx, "f.md", "md", "sum", PolicySkip)
	if err != nil {
		t.Fatalf("BeginIngest() error = %v", err)
	}
	id, ver := decision.DocumentID, decision.Version

	// completed requires processing first
	if err := reg.MarkCompleted(ctx, id, ver, 5); !errors.Is(err, service.ErrConflict) {
		t.Errorf("MarkCompleted() from pending error = %v, want ErrConflict", err)
	}

	if err := reg.MarkProcessing(ctx, id, ver); err != nil {
		t.Fatalf("MarkProcessing() error = %v", err)
	}

	// a second processing transition races and loses
	if err := reg.MarkProcessing(ctx, id, ver); !errors.Is(err, service.ErrConflict) {
		t.Errorf("second MarkProcessing() error = %v, want ErrConflict", err)
	}

	if err := reg.MarkCompleted(ctx, id, ver, 5); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	// a second completion races and loses
	if err := reg.MarkCompleted(ctx, id, ver, 5); !errors.Is(err, service.ErrConflict) {
		t.Errorf("second MarkCompleted() error = %v, want ErrConflict", err)
	}

	rec, err := reg.Get(ctx, id, ver)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Status != StatusCompleted || rec.ChunkCount != 5 {
		t.Errorf("record = %+v, want completed with 5 chunks", rec)
	}
}

func TestRegistry_TwoPhaseDelete(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	decision := completeIngest(t, reg, "f.md", "sum", PolicySkip)
	id, ver := decision.DocumentID, decision.Version

	if err := reg.BeginDelete(ctx, id, ver); err != nil {
		t.Fatalf("BeginDelete() error = %v", err)
	}

	rec, err := reg.Get(ctx, id, ver)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Status != StatusDeleting {
		t.Errorf("status = %v, want deleting", rec.Status)
	}

	// BeginDelete is re-entrant so an interrupted delete can be resumed.
	if err := reg.BeginDelete(ctx, id, ver); err != nil {
		t.Errorf("repeated BeginDelete() error = %v, want nil", err)
	}

	if err := reg.FinishDelete(ctx, id, ver); err != nil {
		t.Fatalf("FinishDelete() error = %v", err)
	}
	if _, err := reg.Get(ctx, id, ver); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestRegistry_BeginDelete_RejectsPending(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	decision, err := reg.BeginIngest(ctx, "f.md", "md", "sum", PolicySkip)
	if err != nil {
		t.Fatalf("BeginIngest() error = %v", err)
	}
	if err := reg.BeginDelete(ctx, decision.DocumentID, decision.Version); !errors.Is(err, service.ErrConflict) {
		t.Errorf("BeginDelete() on pending error = %v, want ErrConflict", err)
	}
}

func TestRegistry_MarkFailed_RecordsReason(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	decision, err := reg.BeginIngest(ctx, "f.md", "md", "sum", PolicySkip)
	if err != nil {
		t.Fatalf("BeginIngest() error = %v", err)
	}
	if err := reg.MarkFailed(ctx, decision.DocumentID, decision.Version, "embedding provider unavailable"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	rec, err := reg.Get(ctx, decision.DocumentID, decision.Version)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Status != StatusFailed {
		t.Errorf("status = %v, want failed", rec.Status)
	}
	if rec.FailureReason != "embedding provider unavailable" {
		t.Errorf("failure reason = %q", rec.FailureReason)
	}
}

func TestRegistry_CountByStatus(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	completeIngest(t, reg, "a.md", "sum-a", PolicySkip)
	completeIngest(t, reg, "b.md", "sum-b", PolicySkip)

	if _, err := reg.BeginIngest(ctx, "c.md", "md", "sum-c", PolicySkip); err != nil {
		t.Fatalf("BeginIngest() error = %v", err)
	}

	counts, err := reg.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	if counts[StatusCompleted] != 2 {
		t.Errorf("completed = %d, want 2", counts[StatusCompleted])
	}
	if counts[StatusPending] != 1 {
		t.Errorf("pending = %d, want 1", counts[StatusPending])
	}
}

func TestRegistry_ListStaleProcessing(t *testing.T) {
	reg, db := newTestRegistry(t)
	ctx := context.Background()

	decision, err := reg.BeginIngest(ctx, "f.md", "md", "sum", PolicySkip)
	if err != nil {
		t.Fatalf("BeginIngest() error = %v", err)
	}
	if err := reg.MarkProcessing(ctx, decision.DocumentID, decision.Version); err != nil {
		t.Fatalf("MarkProcessing() error = %v", err)
	}

	// Fresh processing records are not stale.
	stale, err := reg.ListStaleProcessing(ctx, time.Minute)
	if err != nil {
		t.Fatalf("ListStaleProcessing() error = %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("fresh record reported stale: %d", len(stale))
	}

	// Backdate the record to simulate a crashed worker.
	_, err = db.Exec("UPDATE documents SET updated_at = DATETIME('now', '-1 hour') WHERE document_id = ?", decision.DocumentID)
	if err != nil {
		t.Fatalf("backdate update error = %v", err)
	}

	stale, err = reg.ListStaleProcessing(ctx, time.Minute)
	if err != nil {
		t.Fatalf("ListStaleProcessing() error = %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("stale records = %d, want 1", len(stale))
	}
	if stale[0].DocumentID != decision.DocumentID {
		t.Errorf("stale record = %s, want %s", stale[0].DocumentID, decision.DocumentID)
	}
}

func TestExistsPolicy_Valid(t *testing.T) {
	tests := []struct {
		policy ExistsPolicy
		want   bool
	}{
		{policy: PolicySkip, want: true},
		{policy: PolicyOverwrite, want: true},
		{policy: PolicyVersionAsNew, want: true},
		{policy: ExistsPolicy(""), want: false},
		{policy: ExistsPolicy("replace"), want: false},
	}
	for _, tt := range tests {
		if got := tt.policy.Valid(); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.policy, got, tt.want)
		}
	}
}
