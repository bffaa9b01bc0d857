// Package genai wraps the external language-model services behind narrow
// interfaces. The rest of the core treats embedding and generation as
// black boxes: an Embedder maps text to a fixed-length vector, a
// Generator turns an assembled prompt into reply text.
//
// Transport failures map to the sentinel errors ErrEmbeddingUnavailable
// and ErrGenerationUnavailable so callers can classify them as transient
// and retry with backoff.
package genai

import (
	"context"
	"errors"
)

var (
	// ErrEmbeddingUnavailable indicates the embedding backend could not
	// be reached. Transient; callers retry with bounded backoff.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrGenerationUnavailable indicates the generation backend could
	// not be reached. Transient; callers retry with bounded backoff.
	ErrGenerationUnavailable = errors.New("generation service unavailable")
)

// Embedder maps a text string to a fixed-length vector. Implementations
// must be deterministic for a given model version, which makes results
// safe to memoize (see CachedEmbedder).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ContextExcerpt is one retrieved knowledge excerpt included in a
// generation request.
type ContextExcerpt struct {
	Title    string
	Category string
	Text     string
}

// GenerateRequest carries everything the generation backend needs:
// the customer's query, the assembled knowledge context, and the
// conversation hints computed by triage.
type GenerateRequest struct {
	Query     string
	Context   []ContextExcerpt
	Sentiment string // e.g. "frustrated", "neutral"
	Category  string // e.g. "billing"
}

// Generation is the backend's reply. QualitySignal is the backend's own
// confidence in [0, 1] when it reports one; nil otherwise.
type Generation struct {
	Text          string
	QualitySignal *float64
}

// Generator produces a reply from a generation request.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (Generation, error)
}
