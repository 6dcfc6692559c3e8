package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RankedFragment is one search result: a fragment plus its raw similarity
// and the composite rank score that ordered it.
type RankedFragment struct {
	Fragment       Fragment `json:"fragment"`
	Similarity     float64  `json:"similarity"`
	CompositeScore float64  `json:"composite_score"`
	SourceWeight   float64  `json:"source_weight"`
}

// PopularQuery is an aggregation row: how often one query ran in a window.
type PopularQuery struct {
	Query string `bson:"_id" json:"query"`
	Count int64  `bson:"count" json:"count"`
}

// SearchHistory is an append-only log of executed queries, used for
// analytics and utility scoring.
type SearchHistory struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Query      string             `bson:"query" json:"query"`
	Language   string             `bson:"language,omitempty" json:"language,omitempty"`
	Results    int                `bson:"results" json:"results"`
	TopScore   float64            `bson:"top_score,omitempty" json:"top_score,omitempty"`
	DurationMs int64              `bson:"duration_ms" json:"duration_ms"`
	ExecutedAt time.Time          `bson:"executed_at" json:"executed_at"`
}
