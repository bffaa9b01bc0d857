// Package vector provides the vector index used for semantic similarity
// search over knowledge documents.
//
// Two implementations share the Index interface: Memory, an exact
// brute-force scan suited to the expected corpus size (hundreds to low
// thousands of documents), and Postgres, a pgvector-backed index for
// deployments that already run PostgreSQL.
//
// Both order query results by descending cosine similarity with ties
// broken by document id, so identical inputs always produce identical
// output ordering.
package vector

import (
	"context"
	"errors"
)

var (
	// ErrDimensionMismatch indicates a vector whose dimensionality does
	// not match the index. Mixing embedder versions is a configuration
	// error, not a retryable condition.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrEmptyVector indicates an empty or all-zero query vector.
	ErrEmptyVector = errors.New("empty vector")
)

// Entry is a single similarity match: a document id and its cosine
// similarity to the query, in [-1, 1].
type Entry struct {
	ID    string
	Score float64
}

// Index holds (id, vector) pairs and answers nearest-neighbor queries
// by cosine similarity.
//
// Implementations must guarantee that a Query started after a Remove
// completed never returns the removed id, and that concurrent mutation
// of the same id is serialized (last writer wins).
type Index interface {
	// Upsert inserts or replaces the vector for id.
	Upsert(ctx context.Context, id string, vec []float32) error

	// Remove deletes the entry for id. Removing an absent id is a no-op.
	Remove(ctx context.Context, id string) error

	// Query returns up to k entries ordered by descending similarity.
	// If k exceeds the index size, all entries are returned.
	Query(ctx context.Context, vec []float32, k int) ([]Entry, error)

	// Len reports the number of indexed vectors.
	Len(ctx context.Context) (int, error)
}
