package genai

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

const offlineDim = 256

// Offline is a provider that needs no API key. Embeddings are deterministic
// hashed bag-of-words vectors, and generation stitches a reply directly from
// the supplied excerpts. Meant for local development and demos, not
// production answers.
type Offline struct{}

var (
	_ Embedder  = (*Offline)(nil)
	_ Generator = (*Offline)(nil)
)

// NewOffline creates the offline provider.
func NewOffline() *Offline { return &Offline{} }

// Embed hashes each word of text into a fixed-size normalized vector.
// Identical texts embed identically; texts sharing vocabulary score
// positive cosine similarity.
func (o *Offline) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, offlineDim)
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%offlineDim]++
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum > 0 {
		norm := math.Sqrt(sum)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

// Generate composes a reply from the retrieved excerpts without calling any
// model. It reports no quality signal, so empty retrievals take the caller's
// fallback path.
func (o *Offline) Generate(_ context.Context, req GenerateRequest) (Generation, error) {
	if len(req.Context) == 0 {
		return Generation{Text: "Thank you for reaching out. We will look into your request."}, nil
	}

	var b strings.Builder
	b.WriteString("Thank you for contacting support.\n\n")
	for _, excerpt := range req.Context {
		fmt.Fprintf(&b, "%s: %s\n\n", excerpt.Title, excerpt.Text)
	}
	b.WriteString("If this does not resolve your issue, please reply and we will assist further.")
	return Generation{Text: b.String()}, nil
}
