package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Fragment status constants. A fragment below the quality floor stays stored
// with StatusBelowQuality so a later threshold change can include it without
// re-ingesting the source.
const (
	FragmentStatusPending         = "pending"
	FragmentStatusIndexed         = "indexed"
	FragmentStatusEmbeddingFailed = "embedding_failed"
	FragmentStatusBelowQuality    = "below_quality"
)

// FragmentDraft is a chunker output before persistence: no identity yet,
// just content, position and counts.
type FragmentDraft struct {
	Index       int    `json:"index"`
	Text        string `json:"text"`
	TokenCount  int    `json:"token_count"`
	CharCount   int    `json:"char_count"`
	ContentHash string `json:"content_hash"`
	Page        int    `json:"page,omitempty"`
	Section     string `json:"section,omitempty"`
	Level       int    `json:"level,omitempty"`
}

// Fragment is a bounded span of a document's normalized text, the unit of
// embedding and retrieval. ChunkIndex values are dense and zero-based per
// document.
type Fragment struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	DocumentID      primitive.ObjectID  `bson:"document_id" json:"document_id"`
	SourceID        primitive.ObjectID  `bson:"source_id" json:"source_id"`
	ChunkIndex      int                 `bson:"chunk_index" json:"chunk_index"`
	Text            string              `bson:"text" json:"text"`
	TokenCount      int                 `bson:"token_count" json:"token_count"`
	CharCount       int                 `bson:"char_count" json:"char_count"`
	ContentHash     string              `bson:"content_hash" json:"content_hash"`
	Page            int                 `bson:"page,omitempty" json:"page,omitempty"`
	Section         string              `bson:"section,omitempty" json:"section,omitempty"`
	Level           int                 `bson:"level,omitempty" json:"level,omitempty"`
	Language        string              `bson:"language,omitempty" json:"language,omitempty"`
	QualityScore    float64             `bson:"quality_score" json:"quality_score"` // 0..5
	Status          string              `bson:"status" json:"status"`
	NearDuplicateOf *primitive.ObjectID `bson:"near_duplicate_of,omitempty" json:"near_duplicate_of,omitempty"`
	EmbeddingModel  string              `bson:"embedding_model,omitempty" json:"embedding_model,omitempty"`
	CreatedAt       time.Time           `bson:"created_at" json:"created_at"`
}
