// Package vector provides interfaces and implementations for persistent,
// collection-scoped vector storage with nearest-neighbor query.
package vector

import "context"

// Document represents a stored record with its embedding and metadata.
type Document struct {
	// ID is the unique identifier for the record within its collection.
	ID string

	// Embedding is the vector representation of the record.
	Embedding []float32

	// Metadata holds round-trip-safe fields attached to the record.
	// Values must be strings or numbers; ValidateMetadata enforces this
	// at upsert time.
	Metadata map[string]any
}

// QueryResult represents a search result with its distance to the query
// embedding and a normalized similarity score (higher = more similar).
type QueryResult struct {
	Document

	Distance float32
	Score    float32
}

// Store manages named collections that share one storage location.
type Store interface {
	// Collection opens the named collection, creating it on first use.
	// The call is idempotent.
	Collection(ctx context.Context, name string) (Collection, error)

	// Close releases any resources held by the store.
	Close() error
}

// Collection is a persistent keyed set of vector records with one fixed
// embedding dimension. The dimension is pinned by the first successful
// upsert; later upserts with a different embedding length fail with
// ErrDimensionMismatch and leave the collection unchanged.
type Collection interface {
	// Upsert inserts or replaces records by ID. A record's embedding and
	// metadata become visible together; concurrent upserts to the same ID
	// resolve last-write-wins.
	Upsert(ctx context.Context, docs []Document) error

	// Get performs point lookups, preserving input order. Missing IDs
	// yield nil entries rather than errors.
	Get(ctx context.Context, ids []string) ([]*Document, error)

	// GetByFilter returns all records whose metadata field equals value.
	GetByFilter(ctx context.Context, field, value string) ([]Document, error)

	// Query returns up to topK records nearest to embedding, ordered by
	// ascending distance with ties broken by ascending ID. A collection
	// holding fewer than topK records returns all of them.
	Query(ctx context.Context, embedding []float32, topK int) ([]QueryResult, error)

	// Clear removes every record from the collection.
	Clear(ctx context.Context) error

	// Count returns the number of records in the collection.
	Count(ctx context.Context) (int, error)
}
