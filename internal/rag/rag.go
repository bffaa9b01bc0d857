// Package rag implements semantic retrieval over the knowledge base and
// budget-bounded context assembly for response generation.
package rag

import (
	"context"

	"github.com/replymate/replymate/internal/genai"
	"github.com/replymate/replymate/internal/knowledge"
)

// ScoredDocument is one retrieval hit: a knowledge document and its cosine
// similarity to the query, in [-1, 1].
type ScoredDocument struct {
	Document knowledge.Document
	Score    float64
}

// Bundle is the context selected for one generation call. TotalSize counts
// excerpt text characters and never exceeds the budget it was assembled
// under. DocumentIDs records provenance in inclusion order.
type Bundle struct {
	Excerpts    []genai.ContextExcerpt
	DocumentIDs []string
	TotalSize   int
	TopScore    float64
}

// Empty reports whether the bundle carries no grounded knowledge.
func (b Bundle) Empty() bool { return len(b.Excerpts) == 0 }

// DocumentSource hydrates retrieval hits. *knowledge.Store satisfies it.
type DocumentSource interface {
	Get(ctx context.Context, id string) (knowledge.Document, error)
}
