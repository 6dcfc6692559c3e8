package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Source types supported by the extractor registry
const (
	SourceTypeFileDrop = "file_drop"
	SourceTypeFeed     = "feed"
	SourceTypeWeb      = "web"
)

// Quality weight bounds for a source (0 = untrusted, 5 = canonical)
const (
	MinQualityWeight     = 0.0
	MaxQualityWeight     = 5.0
	DefaultQualityWeight = 1.0
)

// Source is a registered origin of documents. Sources are soft-deactivated
// when consecutive failures exceed the configured limit, never deleted by the
// scheduler.
type Source struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string             `bson:"name" json:"name"`
	Type          string             `bson:"type" json:"type"` // file_drop, feed, web
	URI           string             `bson:"uri,omitempty" json:"uri,omitempty"`
	PollInterval  time.Duration      `bson:"poll_interval" json:"poll_interval"`
	FailureCount  int                `bson:"failure_count" json:"failure_count"`
	Active        bool               `bson:"active" json:"active"`
	QualityWeight float64            `bson:"quality_weight" json:"quality_weight"` // 0..5
	RateLimited   bool               `bson:"rate_limited" json:"rate_limited"`     // requires per-source fetch mutex
	LastCheckedAt *time.Time         `bson:"last_checked_at,omitempty" json:"last_checked_at,omitempty"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}

// ValidQualityWeight reports whether w is inside the allowed range.
func ValidQualityWeight(w float64) bool {
	return w >= MinQualityWeight && w <= MaxQualityWeight
}
