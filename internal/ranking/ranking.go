package ranking

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"knowledge-platform/internal/logger"
	"knowledge-platform/internal/store"
	"knowledge-platform/internal/telemetry"
	"knowledge-platform/internal/textproc"
	"knowledge-platform/internal/vectorindex"
	"knowledge-platform/models"
)

// ErrModelMismatch is returned when the query embedder and the indexed
// corpus disagree on (model, version). Similarities across model versions
// are meaningless, so the query is rejected rather than silently degraded.
var ErrModelMismatch = errors.New("query embedding model does not match the indexed corpus")

// QueryEmbedder is the slice of the embedding layer that retrieval needs.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text, contentHash string) ([]float32, error)
	Model() string
	Version() string
}

// Filters narrow a search to a slice of the corpus. Zero values mean no
// constraint.
type Filters struct {
	SourceType      string    `json:"source_type,omitempty"`
	Language        string    `json:"language,omitempty"`
	MinQuality      float64   `json:"min_quality,omitempty"`
	PublishedAfter  time.Time `json:"published_after,omitempty"`
	PublishedBefore time.Time `json:"published_before,omitempty"`
}

// Query is one retrieval request.
type Query struct {
	Text          string  `json:"text"`
	Filters       Filters `json:"filters"`
	Limit         int     `json:"limit"`
	Offset        int     `json:"offset"`
	MinSimilarity float64 `json:"min_similarity"`
}

// Engine retrieves candidates from the vector index and re-ranks them with
// quality and source signals.
type Engine struct {
	index     vectorindex.Index
	fragments store.Fragments
	sources   store.Sources
	history   store.SearchHistory
	embedder  QueryEmbedder

	corpusModel   string
	corpusVersion string
	overFetch     int
	qualityWeight float64
	sourceWeight  float64

	cache    ResultCache
	cacheTTL time.Duration
	metrics  *telemetry.Metrics
	now      func() time.Time
}

type Options struct {
	CorpusModel   string
	CorpusVersion string
	OverFetch     int
	QualityWeight float64
	SourceWeight  float64
	Cache         ResultCache
	CacheTTL      time.Duration
}

func NewEngine(index vectorindex.Index, st *store.Store, embedder QueryEmbedder, opts Options) (*Engine, error) {
	if index == nil || st == nil || embedder == nil {
		return nil, fmt.Errorf("index, store and embedder are required")
	}
	if opts.OverFetch < 2 {
		return nil, fmt.Errorf("over-fetch factor must be at least 2, got %d", opts.OverFetch)
	}
	if opts.QualityWeight < 0 || opts.SourceWeight < 0 {
		return nil, fmt.Errorf("ranking weights must be non-negative")
	}
	return &Engine{
		index:         index,
		fragments:     st.Fragments,
		sources:       st.Sources,
		history:       st.SearchHistory,
		embedder:      embedder,
		corpusModel:   opts.CorpusModel,
		corpusVersion: opts.CorpusVersion,
		overFetch:     opts.OverFetch,
		qualityWeight: opts.QualityWeight,
		sourceWeight:  opts.SourceWeight,
		cache:         opts.Cache,
		cacheTTL:      opts.CacheTTL,
		now:           time.Now,
	}, nil
}

// SetMetrics attaches instrumentation. A nil-metrics engine records nothing.
func (e *Engine) SetMetrics(m *telemetry.Metrics) {
	e.metrics = m
}

// Search runs retrieval then re-ranking. An empty result set is a valid
// outcome, not an error.
func (e *Engine) Search(ctx context.Context, q Query) ([]models.RankedFragment, error) {
	started := e.now()

	norm := textproc.Normalize(q.Text, textproc.SourceHint{})
	if norm.Text == "" {
		return nil, nil
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.MinSimilarity < 0 || q.MinSimilarity > 1 {
		return nil, fmt.Errorf("min similarity must be in [0, 1], got %f", q.MinSimilarity)
	}
	if e.embedder.Model() != e.corpusModel || e.embedder.Version() != e.corpusVersion {
		return nil, fmt.Errorf("%w: query uses %s/%s, corpus holds %s/%s", ErrModelMismatch,
			e.embedder.Model(), e.embedder.Version(), e.corpusModel, e.corpusVersion)
	}

	// Source weights participate in the composite score, so they are part
	// of the cache identity: a weight update must miss old entries.
	cacheKey := ""
	if fingerprint, err := e.weightsFingerprint(ctx); err == nil {
		cacheKey = e.cacheKey(norm.Text, q, fingerprint)
	}
	if cached, ok := e.cachedResults(ctx, cacheKey); ok {
		elapsed := e.now().Sub(started)
		if e.metrics != nil {
			e.metrics.RecordSearch(elapsed.Seconds(), len(cached))
		}
		e.logSearch(ctx, norm, q, cached, elapsed)
		return cached, nil
	}

	queryHash := textproc.ContentHash(norm.Text)
	vector, err := e.embedder.EmbedQuery(ctx, norm.Text, queryHash)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}

	// Over-fetch so post-retrieval filtering and re-ordering still fill the
	// requested page.
	k := (q.Offset + q.Limit) * e.overFetch
	matches, err := e.index.Query(ctx, vector, k, vectorindex.Filter{
		SourceType:      q.Filters.SourceType,
		Language:        q.Filters.Language,
		MinQuality:      q.Filters.MinQuality,
		PublishedAfter:  q.Filters.PublishedAfter,
		PublishedBefore: q.Filters.PublishedBefore,
		Model:           e.corpusModel,
		ModelVersion:    e.corpusVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	ranked, err := e.rank(ctx, matches, q.MinSimilarity)
	if err != nil {
		return nil, err
	}

	// Pagination happens after the composite sort so pages are stable.
	if q.Offset >= len(ranked) {
		ranked = nil
	} else {
		end := q.Offset + q.Limit
		if end > len(ranked) {
			end = len(ranked)
		}
		ranked = ranked[q.Offset:end]
	}

	elapsed := e.now().Sub(started)
	if e.metrics != nil {
		e.metrics.RecordSearch(elapsed.Seconds(), len(ranked))
	}
	e.logSearch(ctx, norm, q, ranked, elapsed)
	e.storeResults(ctx, cacheKey, ranked)
	return ranked, nil
}

func (e *Engine) rank(ctx context.Context, matches []vectorindex.Match, minSimilarity float64) ([]models.RankedFragment, error) {
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]primitive.ObjectID, 0, len(matches))
	similarity := make(map[primitive.ObjectID]float64, len(matches))
	for _, m := range matches {
		if m.Similarity < minSimilarity {
			continue
		}
		ids = append(ids, m.FragmentID)
		similarity[m.FragmentID] = m.Similarity
	}
	if len(ids) == 0 {
		return nil, nil
	}

	fragments, err := e.fragments.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate fragments: %w", err)
	}

	// Source weights are read at query time so an updated weight re-ranks
	// existing candidates without re-indexing.
	weights := make(map[primitive.ObjectID]float64)
	for _, frag := range fragments {
		if _, ok := weights[frag.SourceID]; ok {
			continue
		}
		source, err := e.sources.Get(ctx, frag.SourceID)
		if err != nil {
			weights[frag.SourceID] = models.DefaultQualityWeight
			continue
		}
		weights[frag.SourceID] = source.QualityWeight
	}

	ranked := make([]models.RankedFragment, 0, len(fragments))
	for _, frag := range fragments {
		if frag.Status != models.FragmentStatusIndexed {
			continue
		}
		sim := similarity[frag.ID]
		weight := weights[frag.SourceID]
		ranked = append(ranked, models.RankedFragment{
			Fragment:       frag,
			Similarity:     sim,
			SourceWeight:   weight,
			CompositeScore: e.composite(sim, frag.QualityScore, weight),
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].CompositeScore != ranked[j].CompositeScore {
			return ranked[i].CompositeScore > ranked[j].CompositeScore
		}
		// Tie-break on source trust, then recency.
		if ranked[i].SourceWeight != ranked[j].SourceWeight {
			return ranked[i].SourceWeight > ranked[j].SourceWeight
		}
		return ranked[i].Fragment.CreatedAt.After(ranked[j].Fragment.CreatedAt)
	})
	return ranked, nil
}

// composite scales raw similarity by normalized quality and source trust.
// Similarity dominates; quality and trust only adjust within it.
func (e *Engine) composite(similarity, quality, sourceWeight float64) float64 {
	return similarity * (1 + e.qualityWeight*(quality/5) + e.sourceWeight*(sourceWeight/5))
}

// weightsFingerprint digests every source's quality weight. Any weight
// change yields a new fingerprint, so cached pages ranked under the old
// weights can no longer be served.
func (e *Engine) weightsFingerprint(ctx context.Context) (string, error) {
	if e.cache == nil {
		return "", nil
	}
	sources, err := e.sources.List(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list sources for cache key: %w", err)
	}
	h := sha256.New()
	for _, source := range sources {
		fmt.Fprintf(h, "%s=%g;", source.ID.Hex(), source.QualityWeight)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (e *Engine) cacheKey(normText string, q Query, weightsFingerprint string) string {
	payload, _ := json.Marshal(struct {
		Text    string  `json:"text"`
		Query   Query   `json:"query"`
		Model   string  `json:"model"`
		Ver     string  `json:"version"`
		WQ      float64 `json:"wq"`
		WS      float64 `json:"ws"`
		Weights string  `json:"weights"`
	}{normText, q, e.corpusModel, e.corpusVersion, e.qualityWeight, e.sourceWeight, weightsFingerprint})
	sum := sha256.Sum256(payload)
	return "search:" + hex.EncodeToString(sum[:])
}

func (e *Engine) cachedResults(ctx context.Context, key string) ([]models.RankedFragment, bool) {
	if e.cache == nil || key == "" {
		return nil, false
	}
	raw, ok, err := e.cache.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var results []models.RankedFragment
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, false
	}
	return results, true
}

func (e *Engine) storeResults(ctx context.Context, key string, results []models.RankedFragment) {
	if e.cache == nil || key == "" {
		return
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, key, raw, e.cacheTTL); err != nil {
		logger.Debug("Search cache write failed", "error", err)
	}
}

func (e *Engine) logSearch(ctx context.Context, norm textproc.Normalized, q Query, results []models.RankedFragment, elapsed time.Duration) {
	if e.history == nil {
		return
	}
	entry := &models.SearchHistory{
		Query:      norm.Text,
		Language:   norm.Language,
		Results:    len(results),
		DurationMs: elapsed.Milliseconds(),
	}
	if len(results) > 0 {
		entry.TopScore = results[0].CompositeScore
	}
	if err := e.history.Log(ctx, entry); err != nil {
		logger.Debug("Search history write failed", "error", err)
	}
}
