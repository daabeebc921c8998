package handlers

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"docuquery/internal/contextutil"
	"docuquery/internal/ingest"
	"docuquery/internal/registry"
	"docuquery/internal/service"
)

// maxUploadBytes caps a single document upload at 20 MiB.
const maxUploadBytes = 20 << 20

// IngestHandler handles document uploads.
type IngestHandler struct {
	pipeline *ingest.Pipeline
}

// NewIngestHandler creates a new IngestHandler.
func NewIngestHandler(pipeline *ingest.Pipeline) *IngestHandler {
	return &IngestHandler{pipeline: pipeline}
}

// ServeHTTP accepts a multipart upload under the "file" field. Optional form
// values: "format" (defaults to the file extension) and "exists_policy"
// (skip, overwrite, version_as_new; defaults to skip).
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		logger.WarnContext(ctx, "invalid multipart request", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid multipart request")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	fileBytes, err := io.ReadAll(file)
	if err != nil {
		logger.ErrorContext(ctx, "failed to read upload", "error", err)
		writeError(w, http.StatusBadRequest, "Failed to read upload")
		return
	}
	if len(fileBytes) == 0 {
		writeError(w, http.StatusBadRequest, "Uploaded file is empty")
		return
	}

	format := strings.TrimSpace(r.FormValue("format"))
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(header.Filename), ".")
	}
	if format == "" {
		writeError(w, http.StatusBadRequest, "Cannot determine document format")
		return
	}

	policy := registry.ExistsPolicy(r.FormValue("exists_policy"))
	if policy == "" {
		policy = registry.PolicySkip
	}
	if !policy.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid exists_policy")
		return
	}

	result, err := h.pipeline.Ingest(ctx, header.Filename, format, fileBytes, policy)
	if err != nil {
		// A parse failure still registered a failed version; report it so the
		// client can see the document_id it will show up under.
		if errors.Is(err, service.ErrParse) && result.DocumentID != "" {
			writeJSON(w, http.StatusUnprocessableEntity, result)
			return
		}
		writeServiceError(w, ctx, err, "Ingestion failed")
		return
	}

	writeJSON(w, http.StatusCreated, result)
}
