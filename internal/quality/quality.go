package quality

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"knowledge-platform/internal/config"
	"knowledge-platform/internal/store"
	"knowledge-platform/models"
)

const evaluatorName = "heuristic-v1"

// Neutral is the component score used when no signal exists yet. Accuracy
// and utility start neutral and are refined by review and usage over time.
const Neutral = 2.5

// Engine computes heuristic quality scores and persists them through the
// append-only history, flipping is_current on superseded rows.
type Engine struct {
	quality  store.Quality
	weights  config.QualityWeights
	halfLife time.Duration
	now      func() time.Time
}

func NewEngine(quality store.Quality, weights config.QualityWeights, halfLife time.Duration) (*Engine, error) {
	if weights.Total() <= 0 {
		return nil, fmt.Errorf("quality weights must sum to a positive value")
	}
	if halfLife <= 0 {
		return nil, fmt.Errorf("timeliness half-life must be positive, got %v", halfLife)
	}
	return &Engine{quality: quality, weights: weights, halfLife: halfLife, now: time.Now}, nil
}

// ScoreFragment computes, persists and returns the overall score for a
// fragment. Prior accuracy and utility scores are carried forward so manual
// review and usage signals survive re-evaluation.
func (e *Engine) ScoreFragment(ctx context.Context, source *models.Source, doc *models.Document, frag *models.Fragment) (float64, error) {
	components := map[string]float64{
		models.ScoreTypeAuthority:    e.authority(source),
		models.ScoreTypeAccuracy:     e.carryForward(ctx, models.EntityFragment, frag, models.ScoreTypeAccuracy),
		models.ScoreTypeCompleteness: e.fragmentCompleteness(frag),
		models.ScoreTypeTimeliness:   e.timeliness(doc.PublishedAt),
		models.ScoreTypeUtility:      e.carryForward(ctx, models.EntityFragment, frag, models.ScoreTypeUtility),
	}
	overall := e.overall(components)

	scores := make([]models.QualityScore, 0, len(components)+1)
	for _, st := range models.ScoreTypes {
		scores = append(scores, models.QualityScore{
			EntityType: models.EntityFragment,
			EntityID:   frag.ID,
			ScoreType:  st,
			Score:      components[st],
			Evaluator:  evaluatorName,
		})
	}
	scores = append(scores, models.QualityScore{
		EntityType: models.EntityFragment,
		EntityID:   frag.ID,
		ScoreType:  models.ScoreTypeOverall,
		Score:      overall,
		Evaluator:  evaluatorName,
	})
	if err := e.quality.Append(ctx, scores); err != nil {
		return 0, fmt.Errorf("failed to persist fragment quality: %w", err)
	}
	return overall, nil
}

// ScoreDocument aggregates fragment overall scores into a document score and
// persists the document-level history row.
func (e *Engine) ScoreDocument(ctx context.Context, source *models.Source, doc *models.Document, fragments []models.Fragment) (float64, error) {
	overall := e.authority(source)
	if len(fragments) > 0 {
		var sum float64
		for _, frag := range fragments {
			sum += frag.QualityScore
		}
		overall = clamp(sum / float64(len(fragments)))
	}
	err := e.quality.Append(ctx, []models.QualityScore{{
		EntityType: models.EntityDocument,
		EntityID:   doc.ID,
		ScoreType:  models.ScoreTypeOverall,
		Score:      overall,
		Evaluator:  evaluatorName,
	}})
	if err != nil {
		return 0, fmt.Errorf("failed to persist document quality: %w", err)
	}
	return overall, nil
}

// authority maps the source quality weight onto the 0..5 component scale.
func (e *Engine) authority(source *models.Source) float64 {
	if source == nil {
		return Neutral
	}
	return clamp(source.QualityWeight)
}

// fragmentCompleteness rewards fragments long enough to stand alone and
// penalizes stubs. A fragment near the token budget with sentence-final
// punctuation reads as a complete thought.
func (e *Engine) fragmentCompleteness(frag *models.Fragment) float64 {
	if frag == nil || frag.TokenCount == 0 {
		return 0
	}
	score := 5.0 * math.Min(1, float64(frag.TokenCount)/200.0)
	text := strings.TrimSpace(frag.Text)
	if !strings.HasSuffix(text, ".") && !strings.HasSuffix(text, "!") && !strings.HasSuffix(text, "?") {
		score *= 0.9
	}
	return clamp(score)
}

// timeliness decays exponentially with document age. An unknown publication
// date scores neutral rather than stale.
func (e *Engine) timeliness(publishedAt *time.Time) float64 {
	if publishedAt == nil || publishedAt.IsZero() {
		return Neutral
	}
	age := e.now().Sub(*publishedAt)
	if age <= 0 {
		return 5.0
	}
	halfLives := float64(age) / float64(e.halfLife)
	return clamp(5.0 * math.Pow(0.5, halfLives))
}

// carryForward reuses the previous current score for signals this engine
// cannot compute, falling back to neutral.
func (e *Engine) carryForward(ctx context.Context, entityType string, frag *models.Fragment, scoreType string) float64 {
	if frag == nil || frag.ID.IsZero() {
		return Neutral
	}
	prev, err := e.quality.Current(ctx, entityType, frag.ID, scoreType)
	if err != nil {
		return Neutral
	}
	return clamp(prev.Score)
}

func (e *Engine) overall(components map[string]float64) float64 {
	total := e.weights.Total()
	weighted := components[models.ScoreTypeAuthority]*e.weights.Authority +
		components[models.ScoreTypeAccuracy]*e.weights.Accuracy +
		components[models.ScoreTypeCompleteness]*e.weights.Completeness +
		components[models.ScoreTypeTimeliness]*e.weights.Timeliness +
		components[models.ScoreTypeUtility]*e.weights.Utility
	return clamp(weighted / total)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 5 {
		return 5
	}
	return v
}
