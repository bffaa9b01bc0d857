package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/replymate/replymate/internal/backoff"
	"github.com/replymate/replymate/internal/genai"
	"github.com/replymate/replymate/internal/vector"
)

// Store manages knowledge documents and keeps the vector index
// synchronized with every write.
//
// Safe for concurrent use. Writes are serialized by a mutex so a
// half-finished Put can never be observed by a concurrent retrieval;
// reads go straight to the querier and index.
type Store struct {
	queries    Querier
	embedder   genai.Embedder
	index      vector.Index
	retry      backoff.Policy
	categories map[string]struct{}
	logger     *slog.Logger

	writeMu sync.Mutex
}

// New creates a Store.
//
// categories is the allow-list validated on every write; it must not be
// empty. The embedder and index must use the same model version; the
// Store cannot detect a mismatch beyond vector dimensionality.
func New(queries Querier, embedder genai.Embedder, index vector.Index, categories []string, retry backoff.Policy, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	allowed := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		allowed[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}

	return &Store{
		queries:    queries,
		embedder:   embedder,
		index:      index,
		retry:      retry,
		categories: allowed,
		logger:     logger,
	}
}

// Put inserts or overwrites a document by id, assigning a fresh UUID
// when the id is empty. The body is embedded and the vector entry
// upserted before Put returns, so the document is immediately
// retrievable via search.
func (s *Store) Put(ctx context.Context, doc Document) (Document, error) {
	if err := s.validate(&doc); err != nil {
		return Document{}, err
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.UpdatedAt = time.Now().UTC()

	vec, err := s.embed(ctx, doc.Body)
	if err != nil {
		return Document{}, fmt.Errorf("embedding document %q: %w", doc.ID, err)
	}

	tagsJSON, err := json.Marshal(doc.Tags)
	if err != nil {
		return Document{}, fmt.Errorf("marshaling tags: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err = s.queries.UpsertDocument(ctx, UpsertDocumentParams{
		ID:        doc.ID,
		Title:     doc.Title,
		Body:      doc.Body,
		Category:  doc.Category,
		TagsJSON:  tagsJSON,
		Embedding: EncodeVector(vec),
		UpdatedAt: doc.UpdatedAt,
	})
	if err != nil {
		return Document{}, fmt.Errorf("upserting document %q: %w", doc.ID, err)
	}

	if err := s.index.Upsert(ctx, doc.ID, vec); err != nil {
		return Document{}, fmt.Errorf("indexing document %q: %w", doc.ID, err)
	}

	s.logger.Debug("put document", "id", doc.ID, "category", doc.Category, "body_length", len(doc.Body))
	return doc, nil
}

// Get returns the document with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Document, error) {
	row, err := s.queries.GetDocument(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Document{}, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return Document{}, fmt.Errorf("getting document %q: %w", id, err)
	}
	return rowToDocument(row, s.logger), nil
}

// Delete removes the document and its vector entry. Idempotent: deleting
// an absent id is not an error. A deleted id is never reused.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.queries.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("deleting document %q: %w", id, err)
	}
	if err := s.index.Remove(ctx, id); err != nil {
		return fmt.Errorf("evicting vector for %q: %w", id, err)
	}

	s.logger.Debug("deleted document", "id", id)
	return nil
}

// List returns documents matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Document, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > DefaultListLimit {
		return nil, fmt.Errorf("limit must be between 1 and %d, got %d", DefaultListLimit, limit)
	}
	if filter.Category != "" {
		if _, ok := s.categories[strings.ToLower(filter.Category)]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, filter.Category)
		}
	}

	rows, err := s.queries.ListDocuments(ctx, ListDocumentsParams{
		Category: strings.ToLower(filter.Category),
		Tag:      strings.ToLower(filter.Tag),
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, rowToDocument(row, s.logger))
	}
	return docs, nil
}

// Count returns the total number of documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	count, err := s.queries.CountDocuments(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return int(count), nil
}

// Rebuild loads every stored embedding into the vector index. Called at
// startup so the in-memory index reflects the persisted corpus without
// re-embedding. Documents whose embedding blob is missing or corrupt
// are re-embedded and repaired in place.
func (s *Store) Rebuild(ctx context.Context) (int, error) {
	rows, err := s.queries.ListEmbeddings(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing embeddings: %w", err)
	}

	loaded := 0
	for _, row := range rows {
		vec, decErr := DecodeVector(row.Embedding)
		if decErr != nil || len(vec) == 0 {
			s.logger.Warn("stored embedding unusable, re-embedding", "id", row.ID, "error", decErr)
			if err := s.reembed(ctx, row.ID); err != nil {
				s.logger.Error("re-embedding failed", "id", row.ID, "error", err)
				continue
			}
			loaded++
			continue
		}
		if err := s.index.Upsert(ctx, row.ID, vec); err != nil {
			return loaded, fmt.Errorf("indexing %q during rebuild: %w", row.ID, err)
		}
		loaded++
	}

	s.logger.Debug("index rebuilt", "documents", loaded)
	return loaded, nil
}

// validate normalizes and checks a document before writing.
func (s *Store) validate(doc *Document) error {
	if strings.TrimSpace(doc.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidDocument)
	}
	if strings.TrimSpace(doc.Body) == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidDocument)
	}

	doc.Category = strings.ToLower(strings.TrimSpace(doc.Category))
	if _, ok := s.categories[doc.Category]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, doc.Category)
	}

	seen := make(map[string]struct{}, len(doc.Tags))
	tags := make([]string, 0, len(doc.Tags))
	for _, tag := range doc.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	doc.Tags = tags

	return nil
}

// embed calls the embedder, retrying transient failures per the policy.
func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		v, embedErr := s.embedder.Embed(ctx, text)
		if embedErr != nil {
			if errors.Is(embedErr, genai.ErrEmbeddingUnavailable) {
				return backoff.Retryable(embedErr)
			}
			return embedErr
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// reembed regenerates and persists the embedding for an existing row.
func (s *Store) reembed(ctx context.Context, id string) error {
	row, err := s.queries.GetDocument(ctx, id)
	if err != nil {
		return err
	}

	vec, err := s.embed(ctx, row.Body)
	if err != nil {
		return err
	}

	err = s.queries.UpsertDocument(ctx, UpsertDocumentParams{
		ID:        row.ID,
		Title:     row.Title,
		Body:      row.Body,
		Category:  row.Category,
		TagsJSON:  row.TagsJSON,
		Embedding: EncodeVector(vec),
		UpdatedAt: row.UpdatedAt,
	})
	if err != nil {
		return err
	}
	return s.index.Upsert(ctx, id, vec)
}

func rowToDocument(row DocumentRow, logger *slog.Logger) Document {
	var tags []string
	if len(row.TagsJSON) > 0 {
		if err := json.Unmarshal(row.TagsJSON, &tags); err != nil {
			logger.Warn("failed to parse tags", "document_id", row.ID, "error", err)
		}
	}
	return Document{
		ID:        row.ID,
		Title:     row.Title,
		Body:      row.Body,
		Category:  row.Category,
		Tags:      tags,
		UpdatedAt: row.UpdatedAt,
	}
}
