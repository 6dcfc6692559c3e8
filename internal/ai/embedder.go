package ai

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"knowledge-platform/internal/logger"
	"knowledge-platform/internal/retry"
	"knowledge-platform/models"
)

// Failure records one fragment whose embedding could not be produced after
// the retry budget was exhausted. The rest of the batch is unaffected.
type Failure struct {
	FragmentID primitive.ObjectID
	Err        error
}

// Embedder batches fragment text through an Encoder with caching and
// per-item retry isolation.
type Embedder struct {
	enc       Encoder
	cache     VectorCache
	batchSize int
	batchWait time.Duration
	cacheTTL  time.Duration
	policy    retry.Policy
}

func NewEmbedder(enc Encoder, cache VectorCache, batchSize int, batchWait, cacheTTL time.Duration, policy retry.Policy) (*Embedder, error) {
	if enc == nil {
		return nil, fmt.Errorf("encoder is required")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if cache == nil {
		cache = NewMemoryVectorCache()
	}
	return &Embedder{
		enc:       enc,
		cache:     cache,
		batchSize: batchSize,
		batchWait: batchWait,
		cacheTTL:  cacheTTL,
		policy:    policy,
	}, nil
}

func (e *Embedder) Model() string   { return e.enc.Model() }
func (e *Embedder) Version() string { return e.enc.Version() }

// EmbedFragments produces one embedding row per fragment. Cached vectors are
// reused by content hash. A fragment whose embedding keeps failing lands in
// the returned failures without aborting the others; the error return is
// reserved for systemic conditions such as context cancellation.
func (e *Embedder) EmbedFragments(ctx context.Context, fragments []models.Fragment) ([]models.Embedding, []Failure, error) {
	if len(fragments) == 0 {
		return nil, nil, nil
	}

	embeddings := make([]models.Embedding, 0, len(fragments))
	var failures []Failure
	var pending []models.Fragment

	for _, frag := range fragments {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		vector, hit, err := e.cache.Get(ctx, CacheKey(e.enc.Model(), e.enc.Version(), frag.ContentHash))
		if err != nil {
			logger.Warn("Embedding cache read failed", "fragment_id", frag.ID.Hex(), "error", err)
		}
		if hit && len(vector) == e.enc.Dimensions() {
			embeddings = append(embeddings, e.row(frag, vector))
			continue
		}
		pending = append(pending, frag)
	}

	for start := 0; start < len(pending); start += e.batchSize {
		end := start + e.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		if start > 0 && e.batchWait > 0 {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(e.batchWait):
			}
		}

		rows, failed, err := e.embedBatch(ctx, batch)
		if err != nil {
			return nil, nil, err
		}
		embeddings = append(embeddings, rows...)
		failures = append(failures, failed...)
	}

	return embeddings, failures, nil
}

// embedBatch tries the whole batch in one call, then isolates failures by
// retrying items individually.
func (e *Embedder) embedBatch(ctx context.Context, batch []models.Fragment) ([]models.Embedding, []Failure, error) {
	texts := make([]string, len(batch))
	for i, frag := range batch {
		texts[i] = frag.Text
	}

	vectors, err := e.enc.Encode(ctx, texts)
	if err == nil {
		return e.collect(ctx, batch, vectors)
	}
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}
	logger.Warn("Batch embedding failed, retrying items individually",
		"batch_size", len(batch), "error", err)

	var rows []models.Embedding
	var failures []Failure
	for _, frag := range batch {
		vector, itemErr := e.embedOne(ctx, frag.Text)
		if itemErr != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			failures = append(failures, Failure{FragmentID: frag.ID, Err: itemErr})
			continue
		}
		if len(vector) != e.enc.Dimensions() {
			failures = append(failures, Failure{
				FragmentID: frag.ID,
				Err:        fmt.Errorf("unexpected vector dimension %d, want %d", len(vector), e.enc.Dimensions()),
			})
			continue
		}
		e.store(ctx, frag.ContentHash, vector)
		rows = append(rows, e.row(frag, vector))
	}
	return rows, failures, nil
}

func (e *Embedder) collect(ctx context.Context, batch []models.Fragment, vectors [][]float32) ([]models.Embedding, []Failure, error) {
	if len(vectors) != len(batch) {
		return nil, nil, fmt.Errorf("encoder returned %d vectors for %d fragments", len(vectors), len(batch))
	}
	var rows []models.Embedding
	var failures []Failure
	for i, frag := range batch {
		if len(vectors[i]) != e.enc.Dimensions() {
			failures = append(failures, Failure{
				FragmentID: frag.ID,
				Err:        fmt.Errorf("unexpected vector dimension %d, want %d", len(vectors[i]), e.enc.Dimensions()),
			})
			continue
		}
		e.store(ctx, frag.ContentHash, vectors[i])
		rows = append(rows, e.row(frag, vectors[i]))
	}
	return rows, failures, nil
}

func (e *Embedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := e.policy.Do(ctx, func(ctx context.Context) error {
		vectors, err := e.enc.Encode(ctx, []string{text})
		if err != nil {
			return err
		}
		if len(vectors) != 1 {
			return retry.Permanent{Err: fmt.Errorf("encoder returned %d vectors for one text", len(vectors))}
		}
		vector = vectors[0]
		return nil
	})
	return vector, err
}

// EmbedQuery embeds one query string, using the same cache namespace as
// fragments so a query matching known content costs nothing.
func (e *Embedder) EmbedQuery(ctx context.Context, text, contentHash string) ([]float32, error) {
	if contentHash != "" {
		vector, hit, err := e.cache.Get(ctx, CacheKey(e.enc.Model(), e.enc.Version(), contentHash))
		if err == nil && hit && len(vector) == e.enc.Dimensions() {
			return vector, nil
		}
	}
	vector, err := e.embedOne(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vector) != e.enc.Dimensions() {
		return nil, fmt.Errorf("unexpected query vector dimension %d, want %d", len(vector), e.enc.Dimensions())
	}
	if contentHash != "" {
		e.store(ctx, contentHash, vector)
	}
	return vector, nil
}

func (e *Embedder) row(frag models.Fragment, vector []float32) models.Embedding {
	return models.Embedding{
		FragmentID:   frag.ID,
		ContentHash:  frag.ContentHash,
		Model:        e.enc.Model(),
		ModelVersion: e.enc.Version(),
		Vector:       vector,
		Dimensions:   len(vector),
	}
}

func (e *Embedder) store(ctx context.Context, contentHash string, vector []float32) {
	if contentHash == "" {
		return
	}
	if err := e.cache.Set(ctx, CacheKey(e.enc.Model(), e.enc.Version(), contentHash), vector, e.cacheTTL); err != nil {
		logger.Warn("Embedding cache write failed", "error", err)
	}
}
