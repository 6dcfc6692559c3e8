package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document processing status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusSkipped    = "skipped" // duplicate content hash, never re-processed
)

// Document is one ingested unit (a PDF, web page, feed entry). The content
// hash is computed over normalized text and is unique among non-skipped
// documents; a later document with the same hash is marked skipped.
type Document struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SourceID      primitive.ObjectID `bson:"source_id" json:"source_id"`
	Title         string             `bson:"title,omitempty" json:"title,omitempty"`
	ContentHash   string             `bson:"content_hash" json:"content_hash"`
	Language      string             `bson:"language,omitempty" json:"language,omitempty"`
	Status        string             `bson:"status" json:"status"`
	QualityScore  float64            `bson:"quality_score" json:"quality_score"` // 0..5
	FragmentCount int                `bson:"fragment_count" json:"fragment_count"`
	ErrorMessage  string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	PublishedAt   *time.Time         `bson:"published_at,omitempty" json:"published_at,omitempty"`
	IngestedAt    time.Time          `bson:"ingested_at" json:"ingested_at"`
	ProcessedAt   *time.Time         `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
}
