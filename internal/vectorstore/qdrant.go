package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"docuquery/internal/contextutil"
	"docuquery/internal/service"
)

// QdrantStore implements VectorStore using Qdrant, bound to one collection.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantStore creates a new Qdrant vector store client.
// urlStr should be in the format "http://host:port" (e.g., "http://localhost:6333").
// The gRPC port (typically 6334) will be derived from the HTTP port.
func NewQdrantStore(urlStr, collection string) (*QdrantStore, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port := 6334 // Default gRPC port
	if parsedURL.Port() != "" {
		httpPort, err := strconv.Atoi(parsedURL.Port())
		if err == nil {
			// gRPC port is typically HTTP port + 1
			port = httpPort + 1
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantStore{client: client, collection: collection}, nil
}

// Upsert inserts or updates chunk points.
func (s *QdrantStore) Upsert(ctx context.Context, points []Point) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, point := range points {
		qdrantPoints = append(qdrantPoints, &qdrant.PointStruct{
			Id:      qdrant.NewID(point.ID),
			Vectors: qdrant.NewVectors(point.Vec...),
			Payload: qdrant.NewValueMap(map[string]any{
				"document_id": point.DocumentID,
				"version":     point.Version,
				"ordinal":     point.Ordinal,
				"char_start":  point.CharStart,
				"char_end":    point.CharEnd,
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         qdrantPoints,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to upsert points", "collection", s.collection, "count", len(points), "error", err)
		return fmt.Errorf("%w: upsert: %v", service.ErrIndexUnavailable, err)
	}

	logger.DebugContext(ctx, "upserted points", "collection", s.collection, "count", len(points))
	return nil
}

// Query returns the topK nearest points, optionally filtered by document set.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]SearchResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if topK <= 0 {
		return nil, &service.ValidationError{Field: "top_k", Message: "must be greater than 0"}
	}

	var qdrantFilter *qdrant.Filter
	if filter != nil && len(filter.DocumentIDs) > 0 {
		qdrantFilter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchKeywords("document_id", filter.DocumentIDs...),
			},
		}
	}

	limit := uint64(topK)
	queryReq := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if qdrantFilter != nil {
		queryReq.Filter = qdrantFilter
	}

	scoredPoints, err := s.client.Query(ctx, queryReq)
	if err != nil {
		logger.ErrorContext(ctx, "failed to query points", "collection", s.collection, "top_k", topK, "error", err)
		return nil, fmt.Errorf("%w: query: %v", service.ErrIndexUnavailable, err)
	}

	results := make([]SearchResult, 0, len(scoredPoints))
	for _, point := range scoredPoints {
		result := SearchResult{Score: point.Score}
		if point.Id != nil {
			result.PointID = point.Id.GetUuid()
		}
		if point.Payload != nil {
			result.DocumentID = point.Payload["document_id"].GetStringValue()
			result.Version = int(point.Payload["version"].GetIntegerValue())
			result.Ordinal = int(point.Payload["ordinal"].GetIntegerValue())
			result.CharStart = int(point.Payload["char_start"].GetIntegerValue())
			result.CharEnd = int(point.Payload["char_end"].GetIntegerValue())
		}
		results = append(results, result)
	}

	logger.DebugContext(ctx, "query completed", "collection", s.collection, "top_k", topK, "results", len(results))
	return results, nil
}

// DeleteByDocument removes every point of a document version.
func (s *QdrantStore) DeleteByDocument(ctx context.Context, documentID string, version int) error {
	logger := contextutil.LoggerFromContext(ctx)

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document_id", documentID),
				qdrant.NewMatchInt("version", int64(version)),
			},
		}),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to delete points", "collection", s.collection, "document_id", documentID, "version", version, "error", err)
		return fmt.Errorf("%w: delete: %v", service.ErrIndexUnavailable, err)
	}

	logger.InfoContext(ctx, "deleted document points", "collection", s.collection, "document_id", documentID, "version", version)
	return nil
}

// EnsureCollection ensures the bound collection exists with the specified
// vector size, validating the size when it already exists.
func (s *QdrantStore) EnsureCollection(ctx context.Context, vectorSize int) error {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if !exists {
		logger.InfoContext(ctx, "creating collection", "collection", s.collection, "vector_size", vectorSize)
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(vectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		return nil
	}

	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to get collection info: %w", err)
	}

	config := info.Config
	if config == nil || config.Params == nil {
		return fmt.Errorf("collection config is invalid")
	}
	vectorsConfig := config.Params.GetVectorsConfig()
	if vectorsConfig == nil {
		return fmt.Errorf("collection vectors config is invalid")
	}
	params := vectorsConfig.GetParams()
	if params == nil || params.Size == 0 {
		return fmt.Errorf("could not determine collection vector size")
	}
	if int(params.Size) != vectorSize {
		return fmt.Errorf("collection vector size mismatch: expected %d, got %d", vectorSize, params.Size)
	}

	logger.InfoContext(ctx, "collection validated", "collection", s.collection, "vector_size", vectorSize)
	return nil
}

// CollectionExists reports whether the bound collection exists.
func (s *QdrantStore) CollectionExists(ctx context.Context) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}
	return exists, nil
}
