// Package testutil provides deterministic fakes and database helpers shared
// by tests across packages.
package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"github.com/replymate/replymate/internal/genai"
)

// HashDim is the dimensionality of HashEmbedder vectors.
const HashDim = 64

// HashEmbedder is a deterministic offline embedder. It hashes each word into
// a fixed-size bag-of-words vector, so identical texts embed identically and
// texts sharing words score positive cosine similarity.
type HashEmbedder struct {
	mu    sync.Mutex
	calls []string

	// Err, when set, is returned by every Embed call.
	Err error
	// FailFirst makes the first FailFirst calls return Err before
	// succeeding, for retry tests.
	FailFirst int
}

var _ genai.Embedder = (*HashEmbedder)(nil)

func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls = append(e.calls, text)
	n := len(e.calls)
	e.mu.Unlock()

	if e.Err != nil && (e.FailFirst == 0 || n <= e.FailFirst) {
		return nil, e.Err
	}

	vec := make([]float32, HashDim)
	for _, word := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%HashDim]++
	}
	normalize(vec)
	return vec, nil
}

// Calls returns the texts passed to Embed, in order.
func (e *HashEmbedder) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

// ScriptedRule maps a query substring to a canned generation.
type ScriptedRule struct {
	Contains string
	Reply    genai.Generation
}

// ScriptedGenerator returns canned responses keyed on query substrings and
// records every request it receives.
type ScriptedGenerator struct {
	mu       sync.Mutex
	requests []genai.GenerateRequest

	Rules   []ScriptedRule
	Default genai.Generation
	// Err, when set, is returned by every Generate call.
	Err error
	// FailFirst makes the first FailFirst calls return Err before
	// succeeding.
	FailFirst int
}

var _ genai.Generator = (*ScriptedGenerator)(nil)

func (g *ScriptedGenerator) Generate(_ context.Context, req genai.GenerateRequest) (genai.Generation, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	n := len(g.requests)
	g.mu.Unlock()

	if g.Err != nil && (g.FailFirst == 0 || n <= g.FailFirst) {
		return genai.Generation{}, g.Err
	}
	for _, rule := range g.Rules {
		if strings.Contains(req.Query, rule.Contains) {
			return rule.Reply, nil
		}
	}
	if g.Default.Text == "" {
		return genai.Generation{Text: "Thank you for reaching out. We will look into this."}, nil
	}
	return g.Default, nil
}

// Requests returns the generate requests received, in order.
func (g *ScriptedGenerator) Requests() []genai.GenerateRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]genai.GenerateRequest(nil), g.requests...)
}

// QualityPtr is a convenience for building quality signals in table tests.
func QualityPtr(v float64) *float64 { return &v }
