package registry

import "time"

// Status is the lifecycle state of a document version.
type Status string

const (
	// StatusPending is set on upload acceptance, before chunking starts.
	StatusPending Status = "pending"
	// StatusProcessing is set when chunking starts.
	StatusProcessing Status = "processing"
	// StatusCompleted is set once all chunks are embedded and indexed.
	StatusCompleted Status = "completed"
	// StatusFailed is set on an unrecoverable parse or embedding error, after
	// partial chunks have been rolled back.
	StatusFailed Status = "failed"
	// StatusDeleting marks the first phase of a two-phase delete. A crash
	// mid-delete leaves a deleting record that the recovery sweep completes.
	StatusDeleting Status = "deleting"
)

// ExistsPolicy governs how an upload whose checksum matches an existing
// completed document is reconciled.
type ExistsPolicy string

const (
	// PolicySkip returns the existing document untouched.
	PolicySkip ExistsPolicy = "skip"
	// PolicyOverwrite reuses the document_id with an incremented version and
	// supersedes the prior version's chunks.
	PolicyOverwrite ExistsPolicy = "overwrite"
	// PolicyVersionAsNew stores the upload as a new version alongside the
	// existing ones.
	PolicyVersionAsNew ExistsPolicy = "version_as_new"
)

// Valid reports whether the policy is one of the known values.
func (p ExistsPolicy) Valid() bool {
	switch p {
	case PolicySkip, PolicyOverwrite, PolicyVersionAsNew:
		return true
	}
	return false
}

// DocumentRecord tracks one version of a logical document.
type DocumentRecord struct {
	DocumentID    string
	Version       int
	Checksum      string // SHA-256 hex of the uploaded bytes
	Status        Status
	ChunkCount    int
	SourceFormat  string
	Filename      string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ChunkRecord is the stored text of one chunk. Vectors live only in the
// vector index, referenced by the chunk ID.
type ChunkRecord struct {
	ID         string // UUID, same as the vector point ID
	DocumentID string
	Version    int
	Ordinal    int // position within the document version, contiguous from 0
	Text       string
	CharStart  int // rune offsets into the source block, for previews
	CharEnd    int
}
