package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"knowledge-platform/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateHash = errors.New("content hash already ingested")
	ErrDuplicateName = errors.New("source name already registered")
)

// Sources manages registered knowledge sources. Deleting a source cascades
// to its documents, fragments, embeddings and vectors.
type Sources interface {
	Create(ctx context.Context, source *models.Source) error
	Get(ctx context.Context, id primitive.ObjectID) (*models.Source, error)
	GetByName(ctx context.Context, name string) (*models.Source, error)
	List(ctx context.Context) ([]models.Source, error)
	ListActive(ctx context.Context) ([]models.Source, error)
	SetQualityWeight(ctx context.Context, id primitive.ObjectID, weight float64) error
	// RecordPoll updates last_checked_at and the failure counter. A source
	// that reaches failureLimit consecutive failures is deactivated.
	RecordPoll(ctx context.Context, id primitive.ObjectID, failed bool, failureLimit int) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// Documents manages ingested document records. Content-hash uniqueness is
// enforced here, among non-skipped documents.
type Documents interface {
	Create(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, id primitive.ObjectID) (*models.Document, error)
	FindByContentHash(ctx context.Context, hash string) (*models.Document, error)
	ListBySource(ctx context.Context, sourceID primitive.ObjectID) ([]models.Document, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]models.Document, error)
	SetStatus(ctx context.Context, id primitive.ObjectID, status, errMsg string) error
	SetCompleted(ctx context.Context, id primitive.ObjectID, fragmentCount int) error
	SetQuality(ctx context.Context, id primitive.ObjectID, score float64) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// Fragments manages indexed fragments.
type Fragments interface {
	InsertMany(ctx context.Context, fragments []models.Fragment) error
	Get(ctx context.Context, id primitive.ObjectID) (*models.Fragment, error)
	ListByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Fragment, error)
	ListByDocument(ctx context.Context, documentID primitive.ObjectID) ([]models.Fragment, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]models.Fragment, error)
	FindByContentHash(ctx context.Context, hash string) (*models.Fragment, error)
	SetStatus(ctx context.Context, id primitive.ObjectID, status string) error
	SetQuality(ctx context.Context, id primitive.ObjectID, score float64) error
	SetNearDuplicate(ctx context.Context, id, refID primitive.ObjectID) error
	ClearNearDuplicates(ctx context.Context) error
	DeleteByDocument(ctx context.Context, documentID primitive.ObjectID) error
}

// Embeddings persists embedding rows, unique per (fragment, model, version).
type Embeddings interface {
	Upsert(ctx context.Context, emb *models.Embedding) error
	GetByFragment(ctx context.Context, fragmentID primitive.ObjectID, model, version string) (*models.Embedding, error)
	DeleteByFragment(ctx context.Context, fragmentID primitive.ObjectID) error
	DeleteByModel(ctx context.Context, model, version string) error
}

// Quality keeps the append-only quality score history. Append flips
// is_current off on the superseded row for each (entity, score type) pair.
type Quality interface {
	Append(ctx context.Context, scores []models.QualityScore) error
	Current(ctx context.Context, entityType string, entityID primitive.ObjectID, scoreType string) (*models.QualityScore, error)
	History(ctx context.Context, entityType string, entityID primitive.ObjectID, scoreType string) ([]models.QualityScore, error)
}

// SearchHistory logs executed searches for utility scoring and analytics.
type SearchHistory interface {
	Log(ctx context.Context, entry *models.SearchHistory) error
	Recent(ctx context.Context, limit int) ([]models.SearchHistory, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
	Popular(ctx context.Context, since time.Time, limit int) ([]models.PopularQuery, error)
}

// Store bundles the repositories a worker needs.
type Store struct {
	Sources       Sources
	Documents     Documents
	Fragments     Fragments
	Embeddings    Embeddings
	Quality       Quality
	SearchHistory SearchHistory
}
