package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"knowledge-platform/models"
)

func TestDocumentsRejectDuplicateHash(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first := &models.Document{SourceID: primitive.NewObjectID(), ContentHash: "abc", Status: models.StatusProcessing}
	if err := s.Documents.Create(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := &models.Document{SourceID: primitive.NewObjectID(), ContentHash: "abc", Status: models.StatusProcessing}
	if err := s.Documents.Create(ctx, second); !errors.Is(err, ErrDuplicateHash) {
		t.Fatalf("expected ErrDuplicateHash, got %v", err)
	}

	// A skipped audit record with the same hash is always allowed.
	skipped := &models.Document{SourceID: primitive.NewObjectID(), ContentHash: "abc", Status: models.StatusSkipped}
	if err := s.Documents.Create(ctx, skipped); err != nil {
		t.Fatalf("skipped record should not collide: %v", err)
	}
}

func TestQualityAppendFlipsCurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := primitive.NewObjectID()

	if err := s.Quality.Append(ctx, []models.QualityScore{{
		EntityType: models.EntityFragment, EntityID: id,
		ScoreType: models.ScoreTypeOverall, Score: 2.0,
	}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Quality.Append(ctx, []models.QualityScore{{
		EntityType: models.EntityFragment, EntityID: id,
		ScoreType: models.ScoreTypeOverall, Score: 4.0,
	}}); err != nil {
		t.Fatal(err)
	}

	current, err := s.Quality.Current(ctx, models.EntityFragment, id, models.ScoreTypeOverall)
	if err != nil {
		t.Fatal(err)
	}
	if current.Score != 4.0 {
		t.Fatalf("expected current score 4.0, got %f", current.Score)
	}

	history, err := s.Quality.History(ctx, models.EntityFragment, id, models.ScoreTypeOverall)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history must be append-only, got %d rows", len(history))
	}
	currentCount := 0
	for _, row := range history {
		if row.IsCurrent {
			currentCount++
		}
	}
	if currentCount != 1 {
		t.Fatalf("exactly one row may be current, got %d", currentCount)
	}
}

func TestSourcesDeactivateAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	source := &models.Source{Name: "handbook", Type: models.SourceTypeWeb, Active: true}
	if err := s.Sources.Create(ctx, source); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := s.Sources.RecordPoll(ctx, source.ID, true, 3); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := s.Sources.Get(ctx, source.ID)
	if !got.Active {
		t.Fatal("source deactivated before reaching the failure limit")
	}

	// A success resets the counter.
	if err := s.Sources.RecordPoll(ctx, source.ID, false, 3); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Sources.Get(ctx, source.ID)
	if got.FailureCount != 0 {
		t.Fatalf("expected reset counter, got %d", got.FailureCount)
	}

	for i := 0; i < 3; i++ {
		if err := s.Sources.RecordPoll(ctx, source.ID, true, 3); err != nil {
			t.Fatal(err)
		}
	}
	got, _ = s.Sources.Get(ctx, source.ID)
	if got.Active {
		t.Fatal("source should deactivate at the failure limit")
	}
}

func TestEmbeddingsUpsertIsUniquePerModelVersion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	fragID := primitive.NewObjectID()

	for i := 0; i < 2; i++ {
		err := s.Embeddings.Upsert(ctx, &models.Embedding{
			FragmentID: fragID, Model: "m", ModelVersion: "1",
			Vector: []float32{float32(i)}, Dimensions: 1,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	err := s.Embeddings.Upsert(ctx, &models.Embedding{
		FragmentID: fragID, Model: "m", ModelVersion: "2",
		Vector: []float32{9}, Dimensions: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Embeddings.GetByFragment(ctx, fragID, "m", "1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Vector[0] != 1 {
		t.Fatalf("upsert did not overwrite: %v", got.Vector)
	}
	if _, err := s.Embeddings.GetByFragment(ctx, fragID, "m", "2"); err != nil {
		t.Fatalf("second version missing: %v", err)
	}
}

func TestFragmentsNearDuplicateLinking(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	frags := []models.Fragment{
		{DocumentID: primitive.NewObjectID(), Status: models.FragmentStatusIndexed},
	}
	if err := s.Fragments.InsertMany(ctx, frags); err != nil {
		t.Fatal(err)
	}
	ref := primitive.NewObjectID()
	if err := s.Fragments.SetNearDuplicate(ctx, frags[0].ID, ref); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Fragments.Get(ctx, frags[0].ID)
	if got.NearDuplicateOf == nil || *got.NearDuplicateOf != ref {
		t.Fatal("near-duplicate link not set")
	}

	if err := s.Fragments.ClearNearDuplicates(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Fragments.Get(ctx, frags[0].ID)
	if got.NearDuplicateOf != nil {
		t.Fatal("near-duplicate link not cleared")
	}
}

func TestSearchHistoryPopularQueries(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, q := range []string{"mongo indexes", "mongo indexes", "mongo indexes", "redis locks", "redis locks", "gocron"} {
		if err := s.SearchHistory.Log(ctx, &models.SearchHistory{Query: q}); err != nil {
			t.Fatal(err)
		}
	}

	popular, err := s.SearchHistory.Popular(ctx, time.Time{}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(popular) != 2 {
		t.Fatalf("want 2 rows, got %d", len(popular))
	}
	if popular[0].Query != "mongo indexes" || popular[0].Count != 3 {
		t.Fatalf("unexpected top query: %+v", popular[0])
	}
	if popular[1].Query != "redis locks" || popular[1].Count != 2 {
		t.Fatalf("unexpected second query: %+v", popular[1])
	}

	cutoff := time.Now().Add(time.Hour)
	empty, err := s.SearchHistory.Popular(ctx, cutoff, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Fatalf("future window should be empty, got %d rows", len(empty))
	}
}

func TestSourcesDeleteCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	source := &models.Source{Name: "handbook", Type: models.SourceTypeWeb, Active: true}
	if err := s.Sources.Create(ctx, source); err != nil {
		t.Fatal(err)
	}
	doc := &models.Document{SourceID: source.ID, ContentHash: "h1", Status: models.StatusCompleted}
	if err := s.Documents.Create(ctx, doc); err != nil {
		t.Fatal(err)
	}
	frags := []models.Fragment{{DocumentID: doc.ID, SourceID: source.ID, Status: models.FragmentStatusIndexed}}
	if err := s.Fragments.InsertMany(ctx, frags); err != nil {
		t.Fatal(err)
	}
	err := s.Embeddings.Upsert(ctx, &models.Embedding{
		FragmentID: frags[0].ID, Model: "m", ModelVersion: "1",
		Vector: []float32{1}, Dimensions: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Sources.Delete(ctx, source.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Sources.Get(ctx, source.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("source still present after delete: %v", err)
	}
	if _, err := s.Documents.Get(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("document survived source deletion: %v", err)
	}
	remaining, err := s.Fragments.ListByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Fatalf("fragments survived source deletion: %d", len(remaining))
	}
	if _, err := s.Embeddings.GetByFragment(ctx, frags[0].ID, "m", "1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("embedding survived source deletion: %v", err)
	}
}

func TestSourcesRejectOutOfRangeWeight(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	bad := &models.Source{Name: "sketchy", Type: models.SourceTypeWeb, Active: true, QualityWeight: 9}
	if err := s.Sources.Create(ctx, bad); err == nil {
		t.Fatal("create accepted an out-of-range quality weight")
	}

	source := &models.Source{Name: "handbook", Type: models.SourceTypeWeb, Active: true, QualityWeight: 3}
	if err := s.Sources.Create(ctx, source); err != nil {
		t.Fatal(err)
	}
	if err := s.Sources.SetQualityWeight(ctx, source.ID, -1); err == nil {
		t.Fatal("update accepted an out-of-range quality weight")
	}
	got, err := s.Sources.Get(ctx, source.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.QualityWeight != 3 {
		t.Fatalf("rejected update must not change the weight, got %v", got.QualityWeight)
	}
}
