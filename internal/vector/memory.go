package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Memory is an in-memory exact brute-force index. At knowledge-base
// scale a linear scan beats approximate structures on both simplicity
// and recall (which is exact by construction).
//
// Safe for concurrent use. A single RWMutex guards the map, which also
// serializes concurrent upserts of the same id (last writer wins).
type Memory struct {
	mu      sync.RWMutex
	dim     int // 0 until the first upsert fixes it
	vectors map[string][]float32
	norms   map[string]float64
}

var _ Index = (*Memory)(nil)

// NewMemory creates an empty in-memory index. The dimensionality is
// fixed by the first upserted vector; every later vector must match.
func NewMemory() *Memory {
	return &Memory{
		vectors: make(map[string][]float32),
		norms:   make(map[string]float64),
	}
}

// Upsert inserts or replaces the vector for id.
func (m *Memory) Upsert(_ context.Context, id string, vec []float32) error {
	if len(vec) == 0 {
		return ErrEmptyVector
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dim == 0 {
		m.dim = len(vec)
	} else if len(vec) != m.dim {
		return fmt.Errorf("%w: index dimension %d, got %d", ErrDimensionMismatch, m.dim, len(vec))
	}

	stored := make([]float32, len(vec))
	copy(stored, vec)
	m.vectors[id] = stored
	m.norms[id] = norm(stored)
	return nil
}

// Remove deletes the entry for id. Idempotent.
func (m *Memory) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vectors, id)
	delete(m.norms, id)
	return nil
}

// Query returns the top-k entries by cosine similarity, ties broken by id.
func (m *Memory) Query(_ context.Context, vec []float32, k int) ([]Entry, error) {
	if len(vec) == 0 {
		return nil, ErrEmptyVector
	}
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.vectors) == 0 {
		return nil, nil
	}
	if m.dim != 0 && len(vec) != m.dim {
		return nil, fmt.Errorf("%w: index dimension %d, query has %d", ErrDimensionMismatch, m.dim, len(vec))
	}

	queryNorm := norm(vec)
	entries := make([]Entry, 0, len(m.vectors))
	for id, stored := range m.vectors {
		entries = append(entries, Entry{ID: id, Score: cosine(vec, queryNorm, stored, m.norms[id])})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].ID < entries[j].ID
	})

	if k < len(entries) {
		entries = entries[:k]
	}
	return entries, nil
}

// Len reports the number of indexed vectors.
func (m *Memory) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors), nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine computes cosine similarity given precomputed norms.
// A zero vector has no direction; similarity against it is 0.
func cosine(a []float32, normA float64, b []float32, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}
