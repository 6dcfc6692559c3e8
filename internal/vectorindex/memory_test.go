package vectorindex

import (
	"context"
	"math"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMemoryIndexRejectsWrongDimension(t *testing.T) {
	idx := NewMemoryIndex(3)
	err := idx.Upsert(context.Background(), primitive.NewObjectID(), []float32{1, 0}, Metadata{})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if _, err := idx.Query(context.Background(), []float32{1, 0}, 5, Filter{}); err == nil {
		t.Fatal("expected dimension mismatch error on query")
	}
}

func TestMemoryIndexRanksByCosine(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)

	near := primitive.NewObjectID()
	far := primitive.NewObjectID()
	if err := idx.Upsert(ctx, near, []float32{1, 0.1}, Metadata{}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert(ctx, far, []float32{0, 1}, Metadata{}); err != nil {
		t.Fatal(err)
	}

	matches, err := idx.Query(ctx, []float32{1, 0}, 2, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].FragmentID != near {
		t.Fatal("nearest vector should rank first")
	}
	if matches[0].Similarity <= matches[1].Similarity {
		t.Fatal("similarities not descending")
	}
}

func TestMemoryIndexFilters(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)

	src := primitive.NewObjectID()
	other := primitive.NewObjectID()
	a := primitive.NewObjectID()
	b := primitive.NewObjectID()
	idx.Upsert(ctx, a, []float32{1, 0}, Metadata{SourceID: src, Language: "en", Quality: 4})
	idx.Upsert(ctx, b, []float32{1, 0}, Metadata{SourceID: other, Language: "de", Quality: 2})

	matches, err := idx.Query(ctx, []float32{1, 0}, 10, Filter{Language: "en"})
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].FragmentID != a {
		t.Fatalf("language filter failed: %+v", matches)
	}

	matches, _ = idx.Query(ctx, []float32{1, 0}, 10, Filter{ExcludeSource: src})
	if len(matches) != 1 || matches[0].FragmentID != b {
		t.Fatalf("source exclusion failed: %+v", matches)
	}

	matches, _ = idx.Query(ctx, []float32{1, 0}, 10, Filter{MinQuality: 3})
	if len(matches) != 1 || matches[0].FragmentID != a {
		t.Fatalf("quality filter failed: %+v", matches)
	}
}

func TestMemoryIndexUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)
	id := primitive.NewObjectID()
	idx.Upsert(ctx, id, []float32{1, 0}, Metadata{})
	idx.Upsert(ctx, id, []float32{0, 1}, Metadata{})
	if idx.Len() != 1 {
		t.Fatalf("expected 1 entry after upsert, got %d", idx.Len())
	}
	matches, _ := idx.Query(ctx, []float32{0, 1}, 1, Filter{})
	if math.Abs(matches[0].Similarity-1) > 1e-9 {
		t.Fatalf("vector not replaced: similarity %f", matches[0].Similarity)
	}
}

func TestCosine(t *testing.T) {
	if got := Cosine([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical vectors: got %f", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Fatalf("orthogonal vectors: got %f", got)
	}
	if got := Cosine([]float32{1, 0}, []float32{-1, 0}); math.Abs(got+1) > 1e-9 {
		t.Fatalf("opposite vectors: got %f", got)
	}
	if got := Cosine([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Fatalf("zero vector: got %f", got)
	}
}
