package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	// Create indexes
	err = createIndexes(client, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

func createIndexes(client *mongo.Client, dbName string) error {
	db := client.Database(dbName)

	// Sources collection indexes
	sourcesCollection := db.Collection("sources")
	sourceIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "active", Value: 1}},
		},
	}
	_, err := sourcesCollection.Indexes().CreateMany(context.Background(), sourceIndexes)
	if err != nil {
		return err
	}

	// Documents collection indexes. Hash uniqueness among non-skipped
	// documents is enforced by the store (a skipped duplicate keeps the same
	// hash on purpose), so content_hash carries a plain index for lookup.
	documentsCollection := db.Collection("documents")
	documentIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "source_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "content_hash", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "ingested_at", Value: -1}},
		},
	}
	_, err = documentsCollection.Indexes().CreateMany(context.Background(), documentIndexes)
	if err != nil {
		return err
	}

	// Fragments collection indexes
	fragmentsCollection := db.Collection("fragments")
	fragmentIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "document_id", Value: 1}, {Key: "chunk_index", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "source_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "content_hash", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
	}
	_, err = fragmentsCollection.Indexes().CreateMany(context.Background(), fragmentIndexes)
	if err != nil {
		return err
	}

	// Embeddings collection indexes
	embeddingsCollection := db.Collection("embeddings")
	embeddingIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "fragment_id", Value: 1},
				{Key: "model", Value: 1},
				{Key: "model_version", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "content_hash", Value: 1}},
		},
	}
	_, err = embeddingsCollection.Indexes().CreateMany(context.Background(), embeddingIndexes)
	if err != nil {
		return err
	}

	// Quality scores collection indexes
	qualityCollection := db.Collection("quality_scores")
	qualityIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "entity_type", Value: 1},
				{Key: "entity_id", Value: 1},
				{Key: "score_type", Value: 1},
				{Key: "is_current", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "evaluated_at", Value: -1}},
		},
	}
	_, err = qualityCollection.Indexes().CreateMany(context.Background(), qualityIndexes)
	if err != nil {
		return err
	}

	// Search history indexes
	historyCollection := db.Collection("search_history")
	historyIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "query", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "executed_at", Value: -1}},
		},
	}
	_, err = historyCollection.Indexes().CreateMany(context.Background(), historyIndexes)
	if err != nil {
		return err
	}

	return nil
}
