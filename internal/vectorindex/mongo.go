package vectorindex

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoIndex keeps fragment vectors in a dedicated collection served by an
// Atlas vector search index. Keeping vectors out of the fragments collection
// keeps fragment reads cheap and lets the search index stay narrow.
type MongoIndex struct {
	collection *mongo.Collection
	indexName  string
	dimensions int
}

func NewMongoIndex(db *mongo.Database, indexName string, dimensions int) *MongoIndex {
	return &MongoIndex{
		collection: db.Collection("fragment_vectors"),
		indexName:  indexName,
		dimensions: dimensions,
	}
}

func (m *MongoIndex) Upsert(ctx context.Context, id primitive.ObjectID, vector []float32, meta Metadata) error {
	if len(vector) != m.dimensions {
		return fmt.Errorf("%w: got %d, index expects %d", ErrDimensionMismatch, len(vector), m.dimensions)
	}
	doc := bson.M{
		"fragment_id":   id,
		"vector":        vector,
		"document_id":   meta.DocumentID,
		"source_id":     meta.SourceID,
		"source_type":   meta.SourceType,
		"language":      meta.Language,
		"model":         meta.Model,
		"model_version": meta.ModelVersion,
		"quality":       meta.Quality,
		"published_at":  meta.PublishedAt,
	}
	_, err := m.collection.UpdateOne(ctx,
		bson.M{"fragment_id": id},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert fragment vector: %w", err)
	}
	return nil
}

func (m *MongoIndex) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Match, error) {
	if len(vector) != m.dimensions {
		return nil, fmt.Errorf("%w: got %d, index expects %d", ErrDimensionMismatch, len(vector), m.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}

	search := bson.M{
		"index":         m.indexName,
		"path":          "vector",
		"queryVector":   vector,
		"numCandidates": k * 10,
		"limit":         k,
	}
	if f := m.searchFilter(filter); len(f) > 0 {
		search["filter"] = f
	}

	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: search}},
		{{Key: "$project", Value: bson.M{
			"fragment_id":   1,
			"document_id":   1,
			"source_id":     1,
			"source_type":   1,
			"language":      1,
			"model":         1,
			"model_version": 1,
			"quality":       1,
			"published_at":  1,
			"score":         bson.M{"$meta": "vectorSearchScore"},
		}}},
	}

	cursor, err := m.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		FragmentID primitive.ObjectID `bson:"fragment_id"`
		Score      float64            `bson:"score"`
		Metadata   `bson:",inline"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode vector search results: %w", err)
	}

	matches := make([]Match, 0, len(rows))
	for _, r := range rows {
		matches = append(matches, Match{
			FragmentID: r.FragmentID,
			// Atlas reports cosine scores as (1+cos)/2; undo that so callers
			// always see raw cosine.
			Similarity: 2*r.Score - 1,
			Metadata:   r.Metadata,
		})
	}
	return matches, nil
}

func (m *MongoIndex) Delete(ctx context.Context, id primitive.ObjectID) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"fragment_id": id}); err != nil {
		return fmt.Errorf("failed to delete fragment vector: %w", err)
	}
	return nil
}

// DeleteByDocument removes every vector belonging to a document.
func (m *MongoIndex) DeleteByDocument(ctx context.Context, documentID primitive.ObjectID) error {
	if _, err := m.collection.DeleteMany(ctx, bson.M{"document_id": documentID}); err != nil {
		return fmt.Errorf("failed to delete document vectors: %w", err)
	}
	return nil
}

func (m *MongoIndex) searchFilter(f Filter) bson.M {
	clauses := bson.M{}
	if f.SourceType != "" {
		clauses["source_type"] = f.SourceType
	}
	if f.Language != "" {
		clauses["language"] = f.Language
	}
	if !f.ExcludeSource.IsZero() {
		clauses["source_id"] = bson.M{"$ne": f.ExcludeSource}
	}
	if !f.ExcludeDocument.IsZero() {
		clauses["document_id"] = bson.M{"$ne": f.ExcludeDocument}
	}
	if f.MinQuality > 0 {
		clauses["quality"] = bson.M{"$gte": f.MinQuality}
	}
	if f.Model != "" {
		clauses["model"] = f.Model
	}
	if f.ModelVersion != "" {
		clauses["model_version"] = f.ModelVersion
	}
	published := bson.M{}
	if !f.PublishedAfter.IsZero() {
		published["$gte"] = f.PublishedAfter
	}
	if !f.PublishedBefore.IsZero() {
		published["$lte"] = f.PublishedBefore
	}
	if len(published) > 0 {
		clauses["published_at"] = published
	}
	return clauses
}
