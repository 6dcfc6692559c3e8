package ranking

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"knowledge-platform/internal/store"
	"knowledge-platform/internal/vectorindex"
	"knowledge-platform/models"
)

type fakeQueryEmbedder struct {
	vector  []float32
	model   string
	version string
}

func (f *fakeQueryEmbedder) EmbedQuery(ctx context.Context, text, hash string) ([]float32, error) {
	return f.vector, nil
}
func (f *fakeQueryEmbedder) Model() string   { return f.model }
func (f *fakeQueryEmbedder) Version() string { return f.version }

type fixture struct {
	store  *store.Store
	index  *vectorindex.MemoryIndex
	engine *Engine
}

func newFixture(t *testing.T, queryVec []float32) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	idx := vectorindex.NewMemoryIndex(len(queryVec))
	emb := &fakeQueryEmbedder{vector: queryVec, model: "m", version: "1"}
	engine, err := NewEngine(idx, s, emb, Options{
		CorpusModel:   "m",
		CorpusVersion: "1",
		OverFetch:     2,
		QualityWeight: 0.3,
		SourceWeight:  0.2,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{store: s, index: idx, engine: engine}
}

// addFragment indexes one fragment with the given vector under a source of
// the given weight and returns its id.
func (f *fixture) addFragment(t *testing.T, name string, vector []float32, quality, sourceWeight float64) primitive.ObjectID {
	t.Helper()
	ctx := context.Background()
	source := &models.Source{Name: name, Type: models.SourceTypeWeb, Active: true, QualityWeight: sourceWeight}
	if err := f.store.Sources.Create(ctx, source); err != nil {
		t.Fatal(err)
	}
	frags := []models.Fragment{{
		DocumentID:   primitive.NewObjectID(),
		SourceID:     source.ID,
		Text:         "content of " + name,
		QualityScore: quality,
		Status:       models.FragmentStatusIndexed,
	}}
	if err := f.store.Fragments.InsertMany(ctx, frags); err != nil {
		t.Fatal(err)
	}
	err := f.index.Upsert(ctx, frags[0].ID, vector, vectorindex.Metadata{
		DocumentID: frags[0].DocumentID,
		SourceID:   source.ID,
		SourceType: models.SourceTypeWeb,
		Model:      "m", ModelVersion: "1",
		Quality: quality,
	})
	if err != nil {
		t.Fatal(err)
	}
	return frags[0].ID
}

func TestSearchEmptyWhenNothingMeetsMinSimilarity(t *testing.T) {
	f := newFixture(t, []float32{1, 0})
	// cos = 0.85 against the query vector.
	f.addFragment(t, "src-a", []float32{0.85, 0.5268}, 3, 1)

	results, err := f.engine.Search(context.Background(), Query{
		Text: "some question", Limit: 10, MinSimilarity: 0.9,
	})
	if err != nil {
		t.Fatalf("empty result must not be an error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results above 0.9, got %d", len(results))
	}
}

func TestSearchSimilarityDominates(t *testing.T) {
	f := newFixture(t, []float32{1, 0})
	near := f.addFragment(t, "src-near", []float32{1, 0.05}, 3, 1)
	far := f.addFragment(t, "src-far", []float32{1, 0.8}, 3, 1)

	results, err := f.engine.Search(context.Background(), Query{Text: "q", Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Fragment.ID != near || results[1].Fragment.ID != far {
		t.Fatal("equal quality and trust: higher similarity must rank first")
	}
	if results[0].CompositeScore <= results[1].CompositeScore {
		t.Fatal("composite scores not descending")
	}
}

func TestSearchSourceWeightUpdateReRanks(t *testing.T) {
	f := newFixture(t, []float32{1, 0})
	ctx := context.Background()

	// Identical vectors and quality; only source trust can separate them.
	weak := f.addFragment(t, "src-weak", []float32{1, 0.01}, 3, 1)
	strong := f.addFragment(t, "src-strong", []float32{1, 0.012}, 3, 1)

	results, err := f.engine.Search(ctx, Query{Text: "q", Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	// Raise the weak source's trust to maximum; same candidates must now
	// rank it first without any re-indexing.
	weakFrag, _ := f.store.Fragments.Get(ctx, weak)
	if err := f.store.Sources.SetQualityWeight(ctx, weakFrag.SourceID, 5); err != nil {
		t.Fatal(err)
	}
	results, err = f.engine.Search(ctx, Query{Text: "q", Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Fragment.ID != weak {
		t.Fatal("updated source weight should promote its fragments")
	}
	if results[1].Fragment.ID != strong {
		t.Fatal("other candidate should remain in the result set")
	}
}

func TestSearchRejectsModelMismatch(t *testing.T) {
	f := newFixture(t, []float32{1, 0})
	f.engine.corpusVersion = "2"

	_, err := f.engine.Search(context.Background(), Query{Text: "q", Limit: 5})
	if !errors.Is(err, ErrModelMismatch) {
		t.Fatalf("expected ErrModelMismatch, got %v", err)
	}
}

func TestSearchPagination(t *testing.T) {
	f := newFixture(t, []float32{1, 0})
	f.addFragment(t, "s1", []float32{1, 0.01}, 3, 1)
	f.addFragment(t, "s2", []float32{1, 0.02}, 3, 1)
	f.addFragment(t, "s3", []float32{1, 0.03}, 3, 1)

	page1, err := f.engine.Search(context.Background(), Query{Text: "q", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	page2, err := f.engine.Search(context.Background(), Query{Text: "q", Limit: 2, Offset: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page1) != 2 || len(page2) != 1 {
		t.Fatalf("unexpected page sizes: %d and %d", len(page1), len(page2))
	}
	for _, r := range page1 {
		if r.Fragment.ID == page2[0].Fragment.ID {
			t.Fatal("pages overlap")
		}
	}

	beyond, err := f.engine.Search(context.Background(), Query{Text: "q", Limit: 2, Offset: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(beyond) != 0 {
		t.Fatal("offset past the result set should return empty")
	}
}

func TestSearchSkipsNonIndexedFragments(t *testing.T) {
	f := newFixture(t, []float32{1, 0})
	ctx := context.Background()
	id := f.addFragment(t, "src-x", []float32{1, 0.01}, 3, 1)
	if err := f.store.Fragments.SetStatus(ctx, id, models.FragmentStatusEmbeddingFailed); err != nil {
		t.Fatal(err)
	}

	results, err := f.engine.Search(ctx, Query{Text: "q", Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatal("non-indexed fragments must never surface in results")
	}
}

func TestSearchLogsHistory(t *testing.T) {
	f := newFixture(t, []float32{1, 0})
	f.addFragment(t, "src-h", []float32{1, 0.01}, 3, 1)

	if _, err := f.engine.Search(context.Background(), Query{Text: "where is the handbook", Limit: 5}); err != nil {
		t.Fatal(err)
	}
	entries, err := f.store.SearchHistory.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(entries))
	}
	if entries[0].Results != 1 {
		t.Fatalf("history should record the result count, got %d", entries[0].Results)
	}
}

func TestSearchBlankQueryReturnsNothing(t *testing.T) {
	f := newFixture(t, []float32{1, 0})
	results, err := f.engine.Search(context.Background(), Query{Text: "   ", Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatal("blank query should return no results")
	}
}

func TestSearchCacheMissesAfterWeightUpdate(t *testing.T) {
	f := newFixture(t, []float32{1, 0})
	f.engine.cache = NewMemoryResultCache()
	f.engine.cacheTTL = time.Minute
	ctx := context.Background()

	weak := f.addFragment(t, "src-weak", []float32{1, 0.01}, 3, 1)
	strong := f.addFragment(t, "src-strong", []float32{1, 0.012}, 3, 1)

	results, err := f.engine.Search(ctx, Query{Text: "q", Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].Fragment.ID != strong {
		t.Fatal("higher similarity should rank first before the weight change")
	}

	// A weight change must not serve the page ranked under the old weights.
	weakFrag, _ := f.store.Fragments.Get(ctx, weak)
	if err := f.store.Sources.SetQualityWeight(ctx, weakFrag.SourceID, 5); err != nil {
		t.Fatal(err)
	}
	results, err = f.engine.Search(ctx, Query{Text: "q", Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Fragment.ID != weak {
		t.Fatal("cached page ranked under the old source weights was served")
	}
}

func TestSearchCacheHitServesAndLogs(t *testing.T) {
	f := newFixture(t, []float32{1, 0})
	f.engine.cache = NewMemoryResultCache()
	f.engine.cacheTTL = time.Minute
	ctx := context.Background()

	id := f.addFragment(t, "src-c", []float32{1, 0.01}, 3, 1)
	first, err := f.engine.Search(ctx, Query{Text: "cached question", Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 result, got %d", len(first))
	}

	// Removing the vector makes a recomputation come back empty, so a
	// non-empty repeat proves the page came from the cache.
	if err := f.index.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	second, err := f.engine.Search(ctx, Query{Text: "cached question", Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 1 || second[0].Fragment.ID != id {
		t.Fatal("repeat query should be served from the cache")
	}

	entries, err := f.store.SearchHistory.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("cache hits must still be logged; want 2 entries, got %d", len(entries))
	}
}
