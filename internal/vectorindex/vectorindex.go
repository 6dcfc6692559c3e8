package vectorindex

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrDimensionMismatch is returned when a vector does not match the index
// dimension. Vectors of unexpected dimension are rejected, never stored.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Metadata travels with each vector so retrieval-time filters can run inside
// the index where it supports them.
type Metadata struct {
	DocumentID   primitive.ObjectID `bson:"document_id"`
	SourceID     primitive.ObjectID `bson:"source_id"`
	SourceType   string             `bson:"source_type"`
	Language     string             `bson:"language,omitempty"`
	Model        string             `bson:"model"`
	ModelVersion string             `bson:"model_version"`
	Quality      float64            `bson:"quality"`
	PublishedAt  time.Time          `bson:"published_at,omitempty"`
}

// Filter narrows a query. Zero values mean no constraint.
type Filter struct {
	SourceType      string
	Language        string
	ExcludeSource   primitive.ObjectID
	ExcludeDocument primitive.ObjectID
	MinQuality      float64
	PublishedAfter  time.Time
	PublishedBefore time.Time
	Model           string
	ModelVersion    string
}

// Match is one nearest neighbor. Similarity is cosine, in [-1, 1].
type Match struct {
	FragmentID primitive.ObjectID
	Similarity float64
	Metadata   Metadata
}

// Index is the vector index collaborator contract. The distance metric is
// cosine; all ranking math assumes it.
type Index interface {
	Upsert(ctx context.Context, id primitive.ObjectID, vector []float32, meta Metadata) error
	Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Match, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

func (f Filter) allows(id primitive.ObjectID, meta Metadata) bool {
	if f.SourceType != "" && meta.SourceType != f.SourceType {
		return false
	}
	if f.Language != "" && meta.Language != f.Language {
		return false
	}
	if !f.ExcludeSource.IsZero() && meta.SourceID == f.ExcludeSource {
		return false
	}
	if !f.ExcludeDocument.IsZero() && meta.DocumentID == f.ExcludeDocument {
		return false
	}
	if f.MinQuality > 0 && meta.Quality < f.MinQuality {
		return false
	}
	if !f.PublishedAfter.IsZero() && meta.PublishedAt.Before(f.PublishedAfter) {
		return false
	}
	if !f.PublishedBefore.IsZero() && meta.PublishedAt.After(f.PublishedBefore) {
		return false
	}
	if f.Model != "" && meta.Model != f.Model {
		return false
	}
	if f.ModelVersion != "" && meta.ModelVersion != f.ModelVersion {
		return false
	}
	return true
}
