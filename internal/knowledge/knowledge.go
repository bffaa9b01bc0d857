// Package knowledge manages the support knowledge base: FAQ, policy and
// procedure documents with stable identifiers, persisted in SQLite and
// indexed for semantic search.
//
// Every committed write keeps the vector index in step with the
// document table: Put re-embeds and upserts the vector entry before it
// returns, and Delete evicts the entry along with the row. A retrieval
// that starts after a write completes therefore always sees the write.
package knowledge

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested document id is absent.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidDocument indicates a document missing required fields.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrUnknownCategory indicates a category outside the configured
	// allow-list. Categories are bounded labels, not free text.
	ErrUnknownCategory = errors.New("unknown category")
)

// Document is a knowledge base entry.
type Document struct {
	ID        string
	Title     string
	Body      string
	Category  string // lower-case, validated against the allow-list
	Tags      []string
	UpdatedAt time.Time
}

// Filter restricts List results. Zero values match everything.
type Filter struct {
	Category string
	Tag      string
	Limit    int32 // 0 = DefaultListLimit
}

// DefaultListLimit caps unbounded listings.
const DefaultListLimit = 1000

// UpsertDocumentParams carries a document row plus its embedding blob.
type UpsertDocumentParams struct {
	ID        string
	Title     string
	Body      string
	Category  string
	TagsJSON  []byte
	Embedding []byte
	UpdatedAt time.Time
}

// DocumentRow is a persisted document as read back from storage.
type DocumentRow struct {
	ID        string
	Title     string
	Body      string
	Category  string
	TagsJSON  []byte
	UpdatedAt time.Time
}

// ListDocumentsParams filters a listing.
type ListDocumentsParams struct {
	Category string
	Tag      string
	Limit    int32
}

// EmbeddingRow pairs a document id with its stored embedding blob.
type EmbeddingRow struct {
	ID        string
	Embedding []byte
}

// Querier defines the storage operations the Store needs. The interface
// is defined here, by the consumer, so unit tests can substitute a mock
// for the SQLite implementation.
type Querier interface {
	// UpsertDocument inserts or overwrites a document row by id.
	UpsertDocument(ctx context.Context, arg UpsertDocumentParams) error

	// GetDocument returns a row or ErrNotFound.
	GetDocument(ctx context.Context, id string) (DocumentRow, error)

	// DeleteDocument removes a row; absent ids are a no-op.
	DeleteDocument(ctx context.Context, id string) error

	// ListDocuments returns rows matching the filter, newest first.
	ListDocuments(ctx context.Context, arg ListDocumentsParams) ([]DocumentRow, error)

	// CountDocuments counts all documents.
	CountDocuments(ctx context.Context) (int64, error)

	// ListEmbeddings returns every (id, embedding) pair for index rebuilds.
	ListEmbeddings(ctx context.Context) ([]EmbeddingRow, error)
}
