package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryIndex is a brute-force cosine index. It backs tests and small
// single-node deployments where an external vector search service is not
// available.
type MemoryIndex struct {
	mu         sync.RWMutex
	dimensions int
	entries    map[primitive.ObjectID]memoryEntry
}

type memoryEntry struct {
	vector []float32
	meta   Metadata
}

func NewMemoryIndex(dimensions int) *MemoryIndex {
	return &MemoryIndex{
		dimensions: dimensions,
		entries:    make(map[primitive.ObjectID]memoryEntry),
	}
}

func (m *MemoryIndex) Upsert(ctx context.Context, id primitive.ObjectID, vector []float32, meta Metadata) error {
	if len(vector) != m.dimensions {
		return fmt.Errorf("%w: got %d, index expects %d", ErrDimensionMismatch, len(vector), m.dimensions)
	}
	cp := make([]float32, len(vector))
	copy(cp, vector)
	m.mu.Lock()
	m.entries[id] = memoryEntry{vector: cp, meta: meta}
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Match, error) {
	if len(vector) != m.dimensions {
		return nil, fmt.Errorf("%w: got %d, index expects %d", ErrDimensionMismatch, len(vector), m.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	matches := make([]Match, 0, len(m.entries))
	for id, e := range m.entries {
		if !filter.allows(id, e.meta) {
			continue
		}
		matches = append(matches, Match{
			FragmentID: id,
			Similarity: Cosine(vector, e.vector),
			Metadata:   e.meta,
		})
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (m *MemoryIndex) Delete(ctx context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return nil
}

// Len reports how many vectors the index holds.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Cosine computes cosine similarity between two equal-length vectors.
// Zero vectors yield 0.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
