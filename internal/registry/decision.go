package registry

// DecisionAction is the ingestion action resolved by BeginIngest.
type DecisionAction string

const (
	// ActionSkip means the upload is a known duplicate and nothing was
	// created. DocumentID and Version point at the existing record.
	ActionSkip DecisionAction = "skip"
	// ActionOverwrite means a new pending version was created under the same
	// document_id. The caller must remove the superseded version's chunks
	// before the new ones become queryable.
	ActionOverwrite DecisionAction = "overwrite"
	// ActionNew means a new pending record was created with no superseded
	// version.
	ActionNew DecisionAction = "new"
)

// IngestDecision is the outcome of BeginIngest. A duplicate is a decision,
// not an error. SupersededVersion is set only for ActionOverwrite.
type IngestDecision struct {
	Action            DecisionAction
	DocumentID        string
	Version           int
	ChunkCount        int // populated for ActionSkip so the caller can echo it
	SupersededVersion int
}

// Skipped reports whether the ingest resolved to an idempotent no-op.
func (d IngestDecision) Skipped() bool { return d.Action == ActionSkip }
