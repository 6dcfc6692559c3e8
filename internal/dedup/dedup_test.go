package dedup

import (
	"context"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"knowledge-platform/internal/store"
	"knowledge-platform/internal/textproc"
	"knowledge-platform/internal/vectorindex"
	"knowledge-platform/models"
)

func newDedup(t *testing.T, s *store.Store, idx vectorindex.Index) *Deduplicator {
	t.Helper()
	d, err := New(s.Fragments, idx, 0.97)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestNewRejectsBadThreshold(t *testing.T) {
	s := store.NewMemoryStore()
	idx := vectorindex.NewMemoryIndex(2)
	if _, err := New(s.Fragments, idx, 0); err == nil {
		t.Fatal("zero threshold must be rejected")
	}
	if _, err := New(s.Fragments, idx, 1.5); err == nil {
		t.Fatal("threshold above 1 must be rejected")
	}
}

func TestCheckExactWithinRun(t *testing.T) {
	ctx := context.Background()
	d := newDedup(t, store.NewMemoryStore(), vectorindex.NewMemoryIndex(2))

	draft := models.FragmentDraft{Index: 0, Text: "boilerplate footer", ContentHash: textproc.ContentHash("boilerplate footer")}
	v, err := d.CheckExact(ctx, draft)
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != KindNone {
		t.Fatalf("first occurrence flagged: %+v", v)
	}

	dup := models.FragmentDraft{Index: 7, Text: "boilerplate footer", ContentHash: draft.ContentHash}
	v, err = d.CheckExact(ctx, dup)
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != KindExact {
		t.Fatalf("repeat occurrence not flagged: %+v", v)
	}
}

func TestCheckExactAgainstStore(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	hash := textproc.ContentHash("already indexed text")
	stored := []models.Fragment{{
		DocumentID:  primitive.NewObjectID(),
		SourceID:    primitive.NewObjectID(),
		ContentHash: hash,
		Status:      models.FragmentStatusIndexed,
	}}
	if err := s.Fragments.InsertMany(ctx, stored); err != nil {
		t.Fatal(err)
	}

	d := newDedup(t, s, vectorindex.NewMemoryIndex(2))
	v, err := d.CheckExact(ctx, models.FragmentDraft{Text: "already indexed text", ContentHash: hash})
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != KindExact {
		t.Fatalf("stored duplicate not flagged: %+v", v)
	}
	if v.RefID != stored[0].ID {
		t.Fatal("verdict should reference the stored fragment")
	}
}

func TestCheckExactResetBetweenRuns(t *testing.T) {
	ctx := context.Background()
	d := newDedup(t, store.NewMemoryStore(), vectorindex.NewMemoryIndex(2))
	draft := models.FragmentDraft{Text: "x", ContentHash: textproc.ContentHash("x")}
	d.CheckExact(ctx, draft)
	d.Reset()
	v, err := d.CheckExact(ctx, draft)
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != KindNone {
		t.Fatal("reset should clear run-local state")
	}
}

func TestCheckNearFlagsCrossSourceDuplicate(t *testing.T) {
	ctx := context.Background()
	idx := vectorindex.NewMemoryIndex(2)
	d := newDedup(t, store.NewMemoryStore(), idx)

	otherSource := primitive.NewObjectID()
	canonical := primitive.NewObjectID()
	if err := idx.Upsert(ctx, canonical, []float32{1, 0}, vectorindex.Metadata{
		SourceID:   otherSource,
		DocumentID: primitive.NewObjectID(),
	}); err != nil {
		t.Fatal(err)
	}

	frag := models.Fragment{
		ID:         primitive.NewObjectID(),
		SourceID:   primitive.NewObjectID(),
		DocumentID: primitive.NewObjectID(),
	}
	v, err := d.CheckNear(ctx, frag, []float32{1, 0.01})
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != KindNear {
		t.Fatalf("expected near verdict, got %+v", v)
	}
	if v.RefID != canonical {
		t.Fatal("verdict should reference the canonical fragment")
	}
}

func TestCheckNearIgnoresSameSource(t *testing.T) {
	ctx := context.Background()
	idx := vectorindex.NewMemoryIndex(2)
	d := newDedup(t, store.NewMemoryStore(), idx)

	sourceID := primitive.NewObjectID()
	if err := idx.Upsert(ctx, primitive.NewObjectID(), []float32{1, 0}, vectorindex.Metadata{
		SourceID:   sourceID,
		DocumentID: primitive.NewObjectID(),
	}); err != nil {
		t.Fatal(err)
	}

	frag := models.Fragment{
		ID:         primitive.NewObjectID(),
		SourceID:   sourceID,
		DocumentID: primitive.NewObjectID(),
	}
	v, err := d.CheckNear(ctx, frag, []float32{1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != KindNone {
		t.Fatalf("same-source match must not count as near duplicate: %+v", v)
	}
}

func TestCheckNearBelowThreshold(t *testing.T) {
	ctx := context.Background()
	idx := vectorindex.NewMemoryIndex(2)
	d := newDedup(t, store.NewMemoryStore(), idx)

	if err := idx.Upsert(ctx, primitive.NewObjectID(), []float32{1, 1}, vectorindex.Metadata{
		SourceID:   primitive.NewObjectID(),
		DocumentID: primitive.NewObjectID(),
	}); err != nil {
		t.Fatal(err)
	}

	frag := models.Fragment{
		ID:         primitive.NewObjectID(),
		SourceID:   primitive.NewObjectID(),
		DocumentID: primitive.NewObjectID(),
	}
	// cos(45 degrees) is about 0.707, well under 0.97.
	v, err := d.CheckNear(ctx, frag, []float32{1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if v.Kind != KindNone {
		t.Fatalf("below-threshold similarity flagged: %+v", v)
	}
}
