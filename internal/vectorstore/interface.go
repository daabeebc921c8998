package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks docuquery/internal/vectorstore VectorStore

import "context"

// Point represents a chunk vector with its metadata.
type Point struct {
	ID         string
	Vec        []float32
	DocumentID string
	Version    int
	Ordinal    int
	CharStart  int
	CharEnd    int
}

// SearchResult represents one nearest-neighbor hit.
type SearchResult struct {
	PointID    string
	Score      float32
	DocumentID string
	Version    int
	Ordinal    int
	CharStart  int
	CharEnd    int
}

// Filter restricts a query to a set of documents. Nil means no restriction.
type Filter struct {
	DocumentIDs []string
}

// VectorStore is the narrow contract the pipeline and ranker depend on. The
// registry is the only authorized driver of writes.
type VectorStore interface {
	// Upsert inserts or updates chunk points.
	Upsert(ctx context.Context, points []Point) error

	// Query returns the topK nearest points, optionally filtered. An
	// unreachable index surfaces as service.ErrIndexUnavailable.
	Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]SearchResult, error)

	// DeleteByDocument removes every point of a document version.
	DeleteByDocument(ctx context.Context, documentID string, version int) error
}
