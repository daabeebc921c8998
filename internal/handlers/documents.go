package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"docuquery/internal/contextutil"
	"docuquery/internal/ingest"
	"docuquery/internal/registry"
)

// DocumentsHandler handles document listing and deletion.
type DocumentsHandler struct {
	reg      *registry.Registry
	pipeline *ingest.Pipeline
}

// NewDocumentsHandler creates a new DocumentsHandler.
func NewDocumentsHandler(reg *registry.Registry, pipeline *ingest.Pipeline) *DocumentsHandler {
	return &DocumentsHandler{reg: reg, pipeline: pipeline}
}

// DocumentResponse is one registered document version.
type DocumentResponse struct {
	DocumentID    string `json:"document_id"`
	Version       int    `json:"version"`
	Status        string `json:"status"`
	ChunkCount    int    `json:"chunk_count"`
	SourceFormat  string `json:"source_format"`
	Filename      string `json:"filename"`
	Checksum      string `json:"checksum"`
	FailureReason string `json:"failure_reason,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// ListResponse wraps the document listing.
type ListResponse struct {
	Documents []DocumentResponse `json:"documents"`
}

// List returns every registered document version.
func (h *DocumentsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	records, err := h.reg.ListAll(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list documents", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}

	docs := make([]DocumentResponse, 0, len(records))
	for _, rec := range records {
		docs = append(docs, toDocumentResponse(rec))
	}
	writeJSON(w, http.StatusOK, ListResponse{Documents: docs})
}

// Get returns a single document version.
func (h *DocumentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	documentID, version, ok := h.pathParams(w, r)
	if !ok {
		return
	}

	rec, err := h.reg.Get(ctx, documentID, version)
	if err != nil {
		writeServiceError(w, ctx, err, "Failed to load document")
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(rec))
}

// Delete removes a document version and everything derived from it.
func (h *DocumentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	documentID, version, ok := h.pathParams(w, r)
	if !ok {
		return
	}

	if err := h.pipeline.Delete(ctx, documentID, version); err != nil {
		writeServiceError(w, ctx, err, "Failed to delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentsHandler) pathParams(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	documentID := chi.URLParam(r, "documentID")
	if documentID == "" {
		writeError(w, http.StatusBadRequest, "Document ID is required")
		return "", 0, false
	}
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		writeError(w, http.StatusBadRequest, "Version must be a positive integer")
		return "", 0, false
	}
	return documentID, version, true
}

func toDocumentResponse(rec *registry.DocumentRecord) DocumentResponse {
	return DocumentResponse{
		DocumentID:    rec.DocumentID,
		Version:       rec.Version,
		Status:        string(rec.Status),
		ChunkCount:    rec.ChunkCount,
		SourceFormat:  rec.SourceFormat,
		Filename:      rec.Filename,
		Checksum:      rec.Checksum,
		FailureReason: rec.FailureReason,
		CreatedAt:     rec.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
