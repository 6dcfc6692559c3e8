package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Embedding is a vector representation of one fragment under one
// (model, model_version) pair. At most one embedding may exist per
// (fragment, model, version) triple; re-embedding overwrites.
type Embedding struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FragmentID   primitive.ObjectID `bson:"fragment_id" json:"fragment_id"`
	ContentHash  string             `bson:"content_hash" json:"content_hash"`
	Model        string             `bson:"model" json:"model"`
	ModelVersion string             `bson:"model_version" json:"model_version"`
	Vector       []float32          `bson:"vector" json:"-"`
	Dimensions   int                `bson:"dimensions" json:"dimensions"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}
