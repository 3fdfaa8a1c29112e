package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks snaportho-caseprep/internal/vectorstore VectorStore

import "context"

// Point represents a vector point with metadata.
type Point struct {
	ID   string
	Vec  []float32
	Meta map[string]any
}

// Match represents a scored result from a vector query.
type Match struct {
	ID    string
	Score float32
	Meta  map[string]any
}

// VectorStore defines the interface for vector storage operations.
type VectorStore interface {
	// Query performs a similarity search. A nil filter means no restriction.
	// Matches come back in descending score order.
	Query(ctx context.Context, collection string, vector []float32, topK int, filter *Filter) ([]Match, error)

	// Upsert inserts or updates points in the collection.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Delete removes points by their IDs.
	Delete(ctx context.Context, collection string, ids []string) error

	// CollectionExists checks if a collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)
}
