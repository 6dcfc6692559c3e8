package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"knowledge-platform/models"
)

// NewMongoStore wires every repository against the given database.
func NewMongoStore(db *mongo.Database) *Store {
	return &Store{
		Sources:       &mongoSources{db: db},
		Documents:     &mongoDocuments{col: db.Collection("documents")},
		Fragments:     &mongoFragments{col: db.Collection("fragments")},
		Embeddings:    &mongoEmbeddings{col: db.Collection("embeddings")},
		Quality:       &mongoQuality{col: db.Collection("quality_scores")},
		SearchHistory: &mongoSearchHistory{col: db.Collection("search_history")},
	}
}

type mongoSources struct {
	db *mongo.Database
}

func (s *mongoSources) col() *mongo.Collection { return s.db.Collection("sources") }

func (s *mongoSources) Create(ctx context.Context, source *models.Source) error {
	now := time.Now()
	source.ID = primitive.NewObjectID()
	source.CreatedAt = now
	source.UpdatedAt = now
	if source.QualityWeight == 0 {
		source.QualityWeight = models.DefaultQualityWeight
	}
	if !models.ValidQualityWeight(source.QualityWeight) {
		return fmt.Errorf("quality weight %.2f out of range [%.1f, %.1f]",
			source.QualityWeight, models.MinQualityWeight, models.MaxQualityWeight)
	}
	if _, err := s.col().InsertOne(ctx, source); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("failed to create source: %w", err)
	}
	return nil
}

func (s *mongoSources) Get(ctx context.Context, id primitive.ObjectID) (*models.Source, error) {
	var source models.Source
	err := s.col().FindOne(ctx, bson.M{"_id": id}).Decode(&source)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return &source, nil
}

func (s *mongoSources) GetByName(ctx context.Context, name string) (*models.Source, error) {
	var source models.Source
	err := s.col().FindOne(ctx, bson.M{"name": name}).Decode(&source)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source by name: %w", err)
	}
	return &source, nil
}

func (s *mongoSources) List(ctx context.Context) ([]models.Source, error) {
	cursor, err := s.col().Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer cursor.Close(ctx)
	var sources []models.Source
	if err := cursor.All(ctx, &sources); err != nil {
		return nil, fmt.Errorf("failed to decode sources: %w", err)
	}
	return sources, nil
}

func (s *mongoSources) ListActive(ctx context.Context) ([]models.Source, error) {
	cursor, err := s.col().Find(ctx, bson.M{"active": true})
	if err != nil {
		return nil, fmt.Errorf("failed to list active sources: %w", err)
	}
	defer cursor.Close(ctx)
	var sources []models.Source
	if err := cursor.All(ctx, &sources); err != nil {
		return nil, fmt.Errorf("failed to decode sources: %w", err)
	}
	return sources, nil
}

func (s *mongoSources) SetQualityWeight(ctx context.Context, id primitive.ObjectID, weight float64) error {
	if !models.ValidQualityWeight(weight) {
		return fmt.Errorf("quality weight %.2f out of range [%.1f, %.1f]",
			weight, models.MinQualityWeight, models.MaxQualityWeight)
	}
	res, err := s.col().UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"quality_weight": weight, "updated_at": time.Now()}})
	if err != nil {
		return fmt.Errorf("failed to update quality weight: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoSources) RecordPoll(ctx context.Context, id primitive.ObjectID, failed bool, failureLimit int) error {
	now := time.Now()
	if !failed {
		_, err := s.col().UpdateOne(ctx, bson.M{"_id": id},
			bson.M{"$set": bson.M{"failure_count": 0, "last_checked_at": now, "updated_at": now}})
		if err != nil {
			return fmt.Errorf("failed to record poll: %w", err)
		}
		return nil
	}

	var source models.Source
	err := s.col().FindOneAndUpdate(ctx, bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"failure_count": 1},
			"$set": bson.M{"last_checked_at": now, "updated_at": now},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&source)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to record poll failure: %w", err)
	}
	if failureLimit > 0 && source.FailureCount >= failureLimit && source.Active {
		_, err = s.col().UpdateOne(ctx, bson.M{"_id": id},
			bson.M{"$set": bson.M{"active": false, "updated_at": time.Now()}})
		if err != nil {
			return fmt.Errorf("failed to deactivate source: %w", err)
		}
	}
	return nil
}

func (s *mongoSources) Delete(ctx context.Context, id primitive.ObjectID) error {
	// Cascade bottom-up so a partial failure never orphans child rows that
	// point at a deleted parent.
	docs := s.db.Collection("documents")
	cursor, err := docs.Find(ctx, bson.M{"source_id": id}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return fmt.Errorf("failed to list documents for cascade: %w", err)
	}
	var ids []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &ids); err != nil {
		return fmt.Errorf("failed to decode document ids: %w", err)
	}

	docIDs := make([]primitive.ObjectID, 0, len(ids))
	for _, d := range ids {
		docIDs = append(docIDs, d.ID)
	}
	if len(docIDs) > 0 {
		frags := s.db.Collection("fragments")
		fragCursor, err := frags.Find(ctx, bson.M{"document_id": bson.M{"$in": docIDs}},
			options.Find().SetProjection(bson.M{"_id": 1}))
		if err != nil {
			return fmt.Errorf("failed to list fragments for cascade: %w", err)
		}
		var fragRows []struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := fragCursor.All(ctx, &fragRows); err != nil {
			return fmt.Errorf("failed to decode fragment ids: %w", err)
		}
		fragIDs := make([]primitive.ObjectID, 0, len(fragRows))
		for _, f := range fragRows {
			fragIDs = append(fragIDs, f.ID)
		}
		if len(fragIDs) > 0 {
			if _, err := s.db.Collection("embeddings").DeleteMany(ctx, bson.M{"fragment_id": bson.M{"$in": fragIDs}}); err != nil {
				return fmt.Errorf("failed to cascade embeddings: %w", err)
			}
			if _, err := s.db.Collection("fragment_vectors").DeleteMany(ctx, bson.M{"fragment_id": bson.M{"$in": fragIDs}}); err != nil {
				return fmt.Errorf("failed to cascade vectors: %w", err)
			}
		}
		if _, err := frags.DeleteMany(ctx, bson.M{"document_id": bson.M{"$in": docIDs}}); err != nil {
			return fmt.Errorf("failed to cascade fragments: %w", err)
		}
		if _, err := docs.DeleteMany(ctx, bson.M{"source_id": id}); err != nil {
			return fmt.Errorf("failed to cascade documents: %w", err)
		}
	}

	res, err := s.col().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

type mongoDocuments struct {
	col *mongo.Collection
}

func (d *mongoDocuments) Create(ctx context.Context, doc *models.Document) error {
	if doc.ContentHash != "" && doc.Status != models.StatusSkipped {
		existing, err := d.FindByContentHash(ctx, doc.ContentHash)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if existing != nil {
			return ErrDuplicateHash
		}
	}
	doc.ID = primitive.NewObjectID()
	doc.IngestedAt = time.Now()
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}
	if _, err := d.col.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (d *mongoDocuments) Get(ctx context.Context, id primitive.ObjectID) (*models.Document, error) {
	var doc models.Document
	err := d.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

// FindByContentHash only considers non-skipped documents; skipped records
// exist purely as an audit trail of rejected re-ingestions.
func (d *mongoDocuments) FindByContentHash(ctx context.Context, hash string) (*models.Document, error) {
	var doc models.Document
	err := d.col.FindOne(ctx, bson.M{
		"content_hash": hash,
		"status":       bson.M{"$ne": models.StatusSkipped},
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find document by hash: %w", err)
	}
	return &doc, nil
}

func (d *mongoDocuments) ListBySource(ctx context.Context, sourceID primitive.ObjectID) ([]models.Document, error) {
	cursor, err := d.col.Find(ctx, bson.M{"source_id": sourceID})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer cursor.Close(ctx)
	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}
	return docs, nil
}

func (d *mongoDocuments) ListByStatus(ctx context.Context, status string, limit int) ([]models.Document, error) {
	opts := options.Find().SetSort(bson.M{"ingested_at": 1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := d.col.Find(ctx, bson.M{"status": status}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents by status: %w", err)
	}
	defer cursor.Close(ctx)
	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}
	return docs, nil
}

func (d *mongoDocuments) SetStatus(ctx context.Context, id primitive.ObjectID, status, errMsg string) error {
	update := bson.M{"status": status, "error_message": errMsg}
	if status == models.StatusCompleted || status == models.StatusFailed {
		update["processed_at"] = time.Now()
	}
	res, err := d.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": update})
	if err != nil {
		return fmt.Errorf("failed to set document status: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *mongoDocuments) SetCompleted(ctx context.Context, id primitive.ObjectID, fragmentCount int) error {
	res, err := d.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":         models.StatusCompleted,
		"fragment_count": fragmentCount,
		"error_message":  "",
		"processed_at":   time.Now(),
	}})
	if err != nil {
		return fmt.Errorf("failed to complete document: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *mongoDocuments) SetQuality(ctx context.Context, id primitive.ObjectID, score float64) error {
	res, err := d.col.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"quality_score": score}})
	if err != nil {
		return fmt.Errorf("failed to set document quality: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *mongoDocuments) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := d.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

type mongoFragments struct {
	col *mongo.Collection
}

func (f *mongoFragments) InsertMany(ctx context.Context, fragments []models.Fragment) error {
	if len(fragments) == 0 {
		return nil
	}
	now := time.Now()
	docs := make([]interface{}, len(fragments))
	for i := range fragments {
		if fragments[i].ID.IsZero() {
			fragments[i].ID = primitive.NewObjectID()
		}
		fragments[i].CreatedAt = now
		docs[i] = fragments[i]
	}
	if _, err := f.col.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert fragments: %w", err)
	}
	return nil
}

func (f *mongoFragments) Get(ctx context.Context, id primitive.ObjectID) (*models.Fragment, error) {
	var frag models.Fragment
	err := f.col.FindOne(ctx, bson.M{"_id": id}).Decode(&frag)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fragment: %w", err)
	}
	return &frag, nil
}

func (f *mongoFragments) ListByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Fragment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := f.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to list fragments: %w", err)
	}
	defer cursor.Close(ctx)
	var frags []models.Fragment
	if err := cursor.All(ctx, &frags); err != nil {
		return nil, fmt.Errorf("failed to decode fragments: %w", err)
	}
	return frags, nil
}

func (f *mongoFragments) ListByDocument(ctx context.Context, documentID primitive.ObjectID) ([]models.Fragment, error) {
	cursor, err := f.col.Find(ctx, bson.M{"document_id": documentID},
		options.Find().SetSort(bson.M{"chunk_index": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list document fragments: %w", err)
	}
	defer cursor.Close(ctx)
	var frags []models.Fragment
	if err := cursor.All(ctx, &frags); err != nil {
		return nil, fmt.Errorf("failed to decode fragments: %w", err)
	}
	return frags, nil
}

func (f *mongoFragments) ListByStatus(ctx context.Context, status string, limit int) ([]models.Fragment, error) {
	opts := options.Find().SetSort(bson.M{"created_at": 1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := f.col.Find(ctx, bson.M{"status": status}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list fragments by status: %w", err)
	}
	defer cursor.Close(ctx)
	var frags []models.Fragment
	if err := cursor.All(ctx, &frags); err != nil {
		return nil, fmt.Errorf("failed to decode fragments: %w", err)
	}
	return frags, nil
}

func (f *mongoFragments) FindByContentHash(ctx context.Context, hash string) (*models.Fragment, error) {
	var frag models.Fragment
	err := f.col.FindOne(ctx, bson.M{"content_hash": hash}).Decode(&frag)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find fragment by hash: %w", err)
	}
	return &frag, nil
}

func (f *mongoFragments) SetStatus(ctx context.Context, id primitive.ObjectID, status string) error {
	res, err := f.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"status": status}})
	if err != nil {
		return fmt.Errorf("failed to set fragment status: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (f *mongoFragments) SetQuality(ctx context.Context, id primitive.ObjectID, score float64) error {
	res, err := f.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"quality_score": score}})
	if err != nil {
		return fmt.Errorf("failed to set fragment quality: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (f *mongoFragments) SetNearDuplicate(ctx context.Context, id, refID primitive.ObjectID) error {
	res, err := f.col.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"near_duplicate_of": refID}})
	if err != nil {
		return fmt.Errorf("failed to link near duplicate: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (f *mongoFragments) ClearNearDuplicates(ctx context.Context) error {
	_, err := f.col.UpdateMany(ctx,
		bson.M{"near_duplicate_of": bson.M{"$exists": true}},
		bson.M{"$unset": bson.M{"near_duplicate_of": ""}})
	if err != nil {
		return fmt.Errorf("failed to clear near-duplicate links: %w", err)
	}
	return nil
}

func (f *mongoFragments) DeleteByDocument(ctx context.Context, documentID primitive.ObjectID) error {
	if _, err := f.col.DeleteMany(ctx, bson.M{"document_id": documentID}); err != nil {
		return fmt.Errorf("failed to delete document fragments: %w", err)
	}
	return nil
}

type mongoEmbeddings struct {
	col *mongo.Collection
}

func (e *mongoEmbeddings) Upsert(ctx context.Context, emb *models.Embedding) error {
	emb.CreatedAt = time.Now()
	if emb.ID.IsZero() {
		emb.ID = primitive.NewObjectID()
	}
	_, err := e.col.UpdateOne(ctx,
		bson.M{"fragment_id": emb.FragmentID, "model": emb.Model, "model_version": emb.ModelVersion},
		bson.M{"$set": bson.M{
			"content_hash": emb.ContentHash,
			"vector":       emb.Vector,
			"dimensions":   emb.Dimensions,
			"created_at":   emb.CreatedAt,
		}, "$setOnInsert": bson.M{"_id": emb.ID}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	return nil
}

func (e *mongoEmbeddings) GetByFragment(ctx context.Context, fragmentID primitive.ObjectID, model, version string) (*models.Embedding, error) {
	var emb models.Embedding
	err := e.col.FindOne(ctx, bson.M{
		"fragment_id":   fragmentID,
		"model":         model,
		"model_version": version,
	}).Decode(&emb)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	return &emb, nil
}

func (e *mongoEmbeddings) DeleteByFragment(ctx context.Context, fragmentID primitive.ObjectID) error {
	if _, err := e.col.DeleteMany(ctx, bson.M{"fragment_id": fragmentID}); err != nil {
		return fmt.Errorf("failed to delete fragment embeddings: %w", err)
	}
	return nil
}

func (e *mongoEmbeddings) DeleteByModel(ctx context.Context, model, version string) error {
	if _, err := e.col.DeleteMany(ctx, bson.M{"model": model, "model_version": version}); err != nil {
		return fmt.Errorf("failed to delete model embeddings: %w", err)
	}
	return nil
}

type mongoQuality struct {
	col *mongo.Collection
}

func (q *mongoQuality) Append(ctx context.Context, scores []models.QualityScore) error {
	if len(scores) == 0 {
		return nil
	}
	now := time.Now()
	docs := make([]interface{}, 0, len(scores))
	for i := range scores {
		// Supersede the previous current row, then append the new one. The
		// history itself is never mutated.
		_, err := q.col.UpdateMany(ctx, bson.M{
			"entity_type": scores[i].EntityType,
			"entity_id":   scores[i].EntityID,
			"score_type":  scores[i].ScoreType,
			"is_current":  true,
		}, bson.M{"$set": bson.M{"is_current": false}})
		if err != nil {
			return fmt.Errorf("failed to supersede quality score: %w", err)
		}
		scores[i].ID = primitive.NewObjectID()
		scores[i].IsCurrent = true
		if scores[i].EvaluatedAt.IsZero() {
			scores[i].EvaluatedAt = now
		}
		docs = append(docs, scores[i])
	}
	if _, err := q.col.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to append quality scores: %w", err)
	}
	return nil
}

func (q *mongoQuality) Current(ctx context.Context, entityType string, entityID primitive.ObjectID, scoreType string) (*models.QualityScore, error) {
	var score models.QualityScore
	err := q.col.FindOne(ctx, bson.M{
		"entity_type": entityType,
		"entity_id":   entityID,
		"score_type":  scoreType,
		"is_current":  true,
	}).Decode(&score)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current quality score: %w", err)
	}
	return &score, nil
}

func (q *mongoQuality) History(ctx context.Context, entityType string, entityID primitive.ObjectID, scoreType string) ([]models.QualityScore, error) {
	cursor, err := q.col.Find(ctx, bson.M{
		"entity_type": entityType,
		"entity_id":   entityID,
		"score_type":  scoreType,
	}, options.Find().SetSort(bson.M{"evaluated_at": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list quality history: %w", err)
	}
	defer cursor.Close(ctx)
	var scores []models.QualityScore
	if err := cursor.All(ctx, &scores); err != nil {
		return nil, fmt.Errorf("failed to decode quality history: %w", err)
	}
	return scores, nil
}

type mongoSearchHistory struct {
	col *mongo.Collection
}

func (h *mongoSearchHistory) Log(ctx context.Context, entry *models.SearchHistory) error {
	entry.ID = primitive.NewObjectID()
	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now()
	}
	if _, err := h.col.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to log search: %w", err)
	}
	return nil
}

func (h *mongoSearchHistory) Recent(ctx context.Context, limit int) ([]models.SearchHistory, error) {
	opts := options.Find().SetSort(bson.M{"executed_at": -1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := h.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list search history: %w", err)
	}
	defer cursor.Close(ctx)
	var entries []models.SearchHistory
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode search history: %w", err)
	}
	return entries, nil
}

func (h *mongoSearchHistory) CountSince(ctx context.Context, since time.Time) (int64, error) {
	n, err := h.col.CountDocuments(ctx, bson.M{"executed_at": bson.M{"$gte": since}})
	if err != nil {
		return 0, fmt.Errorf("failed to count searches: %w", err)
	}
	return n, nil
}

func (h *mongoSearchHistory) Popular(ctx context.Context, since time.Time, limit int) ([]models.PopularQuery, error) {
	if limit <= 0 {
		limit = 10
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"executed_at": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.M{"_id": "$query", "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: limit}},
	}
	cursor, err := h.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate popular queries: %w", err)
	}
	defer cursor.Close(ctx)
	var rows []models.PopularQuery
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode popular queries: %w", err)
	}
	return rows, nil
}
