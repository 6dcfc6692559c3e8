package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Quality score types
const (
	ScoreTypeAuthority    = "authority"
	ScoreTypeAccuracy     = "accuracy"
	ScoreTypeCompleteness = "completeness"
	ScoreTypeTimeliness   = "timeliness"
	ScoreTypeUtility      = "utility"
	ScoreTypeOverall      = "overall"
)

// Entity types a quality score can attach to
const (
	EntitySource   = "source"
	EntityDocument = "document"
	EntityFragment = "fragment"
)

// QualityScore is a versioned, append-only evaluation record. Only the
// latest row per (entity, score_type) carries IsCurrent; history is retained
// for audit.
type QualityScore struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EntityType  string             `bson:"entity_type" json:"entity_type"`
	EntityID    primitive.ObjectID `bson:"entity_id" json:"entity_id"`
	ScoreType   string             `bson:"score_type" json:"score_type"`
	Score       float64            `bson:"score" json:"score"` // 0..5
	IsCurrent   bool               `bson:"is_current" json:"is_current"`
	Evaluator   string             `bson:"evaluator,omitempty" json:"evaluator,omitempty"`
	Detail      string             `bson:"detail,omitempty" json:"detail,omitempty"`
	EvaluatedAt time.Time          `bson:"evaluated_at" json:"evaluated_at"`
}

// ScoreTypes lists the component score types in evaluation order.
var ScoreTypes = []string{
	ScoreTypeAuthority,
	ScoreTypeAccuracy,
	ScoreTypeCompleteness,
	ScoreTypeTimeliness,
	ScoreTypeUtility,
}
