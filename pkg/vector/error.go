package vector

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record is not found in the vector store.
	ErrNotFound = errors.New("record not found")

	// ErrDimensionMismatch is returned when an embedding's length does not
	// match the collection's fixed dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrStore is returned when the persistence layer fails.
	ErrStore = errors.New("vector store failure")

	// ErrEmbedding is returned when embedding generation fails.
	ErrEmbedding = errors.New("embedding failed")

	// ErrConnection is returned when the vector store connection fails.
	ErrConnection = errors.New("vector store connection failed")

	// ErrMetadata is returned when a metadata value is not round-trip-safe.
	ErrMetadata = errors.New("unsupported metadata value")
)

// ValidateMetadata checks that every metadata value is a string or a number.
// Anything else would not survive the storage round trip intact.
func ValidateMetadata(meta map[string]any) error {
	for k, v := range meta {
		switch v.(type) {
		case string, float64, float32, int, int64, uint:
		default:
			return fmt.Errorf("%w: field %q has type %T", ErrMetadata, k, v)
		}
	}
	return nil
}
