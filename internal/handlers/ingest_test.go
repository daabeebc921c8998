package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/mock/gomock"

	"docuquery/internal/extract"
	"docuquery/internal/ingest"
	"docuquery/internal/registry"
	vsmocks "docuquery/internal/vectorstore/mocks"
)

type noopEmbedder struct{}

func (noopEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{0.1, 0.2}
	}
	return vectors, nil
}

type noopInvalidator struct{}

func (noopInvalidator) InvalidateDocument(string, int) {}

// newHandlerFixture wires a real pipeline over a temp SQLite database and a
// mocked vector store. Shared by the ingest and documents handler tests.
func newHandlerFixture(t *testing.T) (*ingest.Pipeline, *registry.Registry, *vsmocks.MockVectorStore) {
	t.Helper()

	db, err := registry.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := registry.Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	ctrl := gomock.NewController(t)
	vectors := vsmocks.NewMockVectorStore(ctrl)
	reg := registry.New(registry.NewDocumentRepo(db))
	pipeline := ingest.NewPipeline(
		extract.NewRegistry(), reg, registry.NewChunkRepo(db),
		noopEmbedder{}, vectors, noopInvalidator{}, 100, 20,
	)
	return pipeline, reg, vectors
}

// multipartUpload builds a multipart request body for the ingest endpoint.
func multipartUpload(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestIngestHandler_Success(t *testing.T) {
	pipeline, _, vectors := newHandlerFixture(t)
	vectors.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)

	handler := NewIngestHandler(pipeline)
	body, contentType := multipartUpload(t, "notes.txt", []byte("some document content"), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var result ingest.Result
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Status != "completed" || result.Version != 1 || result.DocumentID == "" {
		t.Errorf("result = %+v", result)
	}
}

func TestIngestHandler_FormatFromFilename(t *testing.T) {
	pipeline, _, vectors := newHandlerFixture(t)
	vectors.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)

	handler := NewIngestHandler(pipeline)
	body, contentType := multipartUpload(t, "guide.md", []byte("# Title\n\nSome content here."), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
}

func TestIngestHandler_BadRequests(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  []byte
		fields   map[string]string
	}{
		{
			name: "missing file field",
		},
		{
			name:     "empty file",
			filename: "a.txt",
			content:  []byte{},
		},
		{
			name:     "no determinable format",
			filename: "noextension",
			content:  []byte("content"),
		},
		{
			name:     "invalid exists policy",
			filename: "a.txt",
			content:  []byte("content"),
			fields:   map[string]string{"exists_policy": "replace"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipeline, _, _ := newHandlerFixture(t)
			handler := NewIngestHandler(pipeline)

			body, contentType := multipartUpload(t, tt.filename, tt.content, tt.fields)
			req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
			req.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestIngestHandler_UnsupportedFormat(t *testing.T) {
	pipeline, reg, vectors := newHandlerFixture(t)
	vectors.EXPECT().DeleteByDocument(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	handler := NewIngestHandler(pipeline)
	body, contentType := multipartUpload(t, "report.docx", []byte("binary blob"), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", w.Code, w.Body.String())
	}

	// The failure is recorded so the client can inspect it later.
	var result ingest.Result
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Status != "failed" || result.DocumentID == "" {
		t.Errorf("result = %+v, want failed with a document_id", result)
	}
	rec, err := reg.Get(req.Context(), result.DocumentID, result.Version)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Status != registry.StatusFailed {
		t.Errorf("registry status = %s, want failed", rec.Status)
	}
}

func TestIngestHandler_NonMultipartBody(t *testing.T) {
	pipeline, _, _ := newHandlerFixture(t)
	handler := NewIngestHandler(pipeline)

	req := httptest.NewRequest(http.MethodPost, "/api/documents", bytes.NewBufferString(`{"file":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
