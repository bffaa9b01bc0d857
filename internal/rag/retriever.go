package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/replymate/replymate/internal/backoff"
	"github.com/replymate/replymate/internal/genai"
	"github.com/replymate/replymate/internal/knowledge"
	"github.com/replymate/replymate/internal/vector"
)

// Retriever embeds queries and ranks knowledge documents by similarity.
type Retriever struct {
	embedder genai.Embedder
	index    vector.Index
	source   DocumentSource
	retry    backoff.Policy
	logger   *slog.Logger
}

// NewRetriever wires a retriever over the given embedder, index, and
// document source.
func NewRetriever(embedder genai.Embedder, index vector.Index, source DocumentSource, retry backoff.Policy, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		source:   source,
		retry:    retry,
		logger:   logger,
	}
}

// Retrieve embeds the query, fetches the top-k nearest documents, and drops
// candidates scoring below minScore. Results are ordered by score descending
// with ties broken by most recent update. An empty corpus yields an empty
// result, not an error. Embedding failures are retried with backoff and then
// propagated.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, minScore float64) ([]ScoredDocument, error) {
	if k <= 0 {
		return nil, nil
	}

	vec, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	entries, err := r.index.Query(ctx, vec, k)
	if err != nil {
		if errors.Is(err, vector.ErrDimensionMismatch) {
			return nil, fmt.Errorf("query vector does not match index dimensionality: %w", err)
		}
		return nil, fmt.Errorf("querying index: %w", err)
	}

	results := make([]ScoredDocument, 0, len(entries))
	for _, entry := range entries {
		if entry.Score < minScore {
			continue
		}
		doc, err := r.source.Get(ctx, entry.ID)
		if err != nil {
			// A document deleted after its vector was scored is
			// excluded rather than failing the whole query.
			if errors.Is(err, knowledge.ErrNotFound) {
				r.logger.Debug("dropping hit for deleted document", "id", entry.ID)
				continue
			}
			return nil, fmt.Errorf("loading document %q: %w", entry.ID, err)
		}
		results = append(results, ScoredDocument{Document: doc, Score: entry.Score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Document.UpdatedAt.Equal(results[j].Document.UpdatedAt) {
			return results[i].Document.UpdatedAt.After(results[j].Document.UpdatedAt)
		}
		return results[i].Document.ID < results[j].Document.ID
	})

	r.logger.Debug("retrieved documents",
		"query_length", len(query), "k", k, "min_score", minScore, "hits", len(results))
	return results, nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	var vec []float32
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		v, embedErr := r.embedder.Embed(ctx, query)
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
