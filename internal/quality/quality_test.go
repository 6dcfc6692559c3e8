package quality

import (
	"context"
	"math"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"knowledge-platform/internal/config"
	"knowledge-platform/internal/store"
	"knowledge-platform/models"
)

func equalWeights() config.QualityWeights {
	return config.QualityWeights{Authority: 1, Accuracy: 1, Completeness: 1, Timeliness: 1, Utility: 1}
}

func newEngine(t *testing.T, s *store.Store) *Engine {
	t.Helper()
	e, err := NewEngine(s.Quality, equalWeights(), 180*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestNewEngineRejectsBadInputs(t *testing.T) {
	s := store.NewMemoryStore()
	if _, err := NewEngine(s.Quality, config.QualityWeights{}, time.Hour); err == nil {
		t.Fatal("zero weights must be rejected")
	}
	if _, err := NewEngine(s.Quality, equalWeights(), 0); err == nil {
		t.Fatal("zero half-life must be rejected")
	}
}

func TestScoreFragmentStaysInRange(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	e := newEngine(t, s)

	published := time.Now().Add(-24 * time.Hour)
	source := &models.Source{ID: primitive.NewObjectID(), QualityWeight: 5}
	doc := &models.Document{ID: primitive.NewObjectID(), PublishedAt: &published}
	frag := &models.Fragment{
		ID:         primitive.NewObjectID(),
		TokenCount: 400,
		Text:       "A complete, well formed passage of text that ends properly.",
	}

	overall, err := e.ScoreFragment(ctx, source, doc, frag)
	if err != nil {
		t.Fatal(err)
	}
	if overall < 0 || overall > 5 {
		t.Fatalf("overall out of range: %f", overall)
	}

	// Every component plus overall must be recorded as current.
	for _, st := range append(models.ScoreTypes, models.ScoreTypeOverall) {
		if _, err := s.Quality.Current(ctx, models.EntityFragment, frag.ID, st); err != nil {
			t.Fatalf("missing current %s score: %v", st, err)
		}
	}
}

func TestAuthorityTracksSourceWeight(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	e := newEngine(t, s)

	frag := func() *models.Fragment {
		return &models.Fragment{ID: primitive.NewObjectID(), TokenCount: 300, Text: "Text that ends."}
	}
	doc := &models.Document{ID: primitive.NewObjectID()}

	low, err := e.ScoreFragment(ctx, &models.Source{QualityWeight: 0.5}, doc, frag())
	if err != nil {
		t.Fatal(err)
	}
	high, err := e.ScoreFragment(ctx, &models.Source{QualityWeight: 5}, doc, frag())
	if err != nil {
		t.Fatal(err)
	}
	if high <= low {
		t.Fatalf("higher source weight should raise the score: %f vs %f", high, low)
	}
}

func TestTimelinessDecay(t *testing.T) {
	s := store.NewMemoryStore()
	e := newEngine(t, s)
	now := time.Now()
	e.now = func() time.Time { return now }

	fresh := now.Add(-time.Hour)
	oneHalfLife := now.Add(-180 * 24 * time.Hour)
	ancient := now.Add(-10 * 180 * 24 * time.Hour)

	if got := e.timeliness(&fresh); got < 4.9 {
		t.Fatalf("fresh content should score near 5, got %f", got)
	}
	if got := e.timeliness(&oneHalfLife); math.Abs(got-2.5) > 0.05 {
		t.Fatalf("one half-life should score near 2.5, got %f", got)
	}
	if got := e.timeliness(&ancient); got > 0.1 {
		t.Fatalf("ancient content should score near 0, got %f", got)
	}
	if got := e.timeliness(nil); got != Neutral {
		t.Fatalf("unknown date should score neutral, got %f", got)
	}
}

func TestCompletenessPenalizesStubs(t *testing.T) {
	s := store.NewMemoryStore()
	e := newEngine(t, s)

	stub := &models.Fragment{TokenCount: 10, Text: "tiny stub"}
	full := &models.Fragment{TokenCount: 400, Text: "A long, self contained passage that ends with a period."}
	if e.fragmentCompleteness(stub) >= e.fragmentCompleteness(full) {
		t.Fatal("stub should score below a full fragment")
	}
	if e.fragmentCompleteness(&models.Fragment{}) != 0 {
		t.Fatal("empty fragment should score zero")
	}
}

func TestReEvaluationVersionsHistory(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	e := newEngine(t, s)

	doc := &models.Document{ID: primitive.NewObjectID()}
	frag := &models.Fragment{ID: primitive.NewObjectID(), TokenCount: 300, Text: "Ends well."}

	if _, err := e.ScoreFragment(ctx, &models.Source{QualityWeight: 1}, doc, frag); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ScoreFragment(ctx, &models.Source{QualityWeight: 5}, doc, frag); err != nil {
		t.Fatal(err)
	}

	history, err := s.Quality.History(ctx, models.EntityFragment, frag.ID, models.ScoreTypeOverall)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(history))
	}
	current, err := s.Quality.Current(ctx, models.EntityFragment, frag.ID, models.ScoreTypeOverall)
	if err != nil {
		t.Fatal(err)
	}
	if current.Score <= history[0].Score {
		t.Fatal("current row should reflect the re-evaluation")
	}
}

func TestScoreDocumentAveragesFragments(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	e := newEngine(t, s)

	doc := &models.Document{ID: primitive.NewObjectID()}
	frags := []models.Fragment{
		{ID: primitive.NewObjectID(), QualityScore: 2},
		{ID: primitive.NewObjectID(), QualityScore: 4},
	}
	got, err := e.ScoreDocument(ctx, &models.Source{QualityWeight: 3}, doc, frags)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-3) > 1e-9 {
		t.Fatalf("expected mean 3, got %f", got)
	}
}
