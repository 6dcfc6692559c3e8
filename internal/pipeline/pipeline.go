package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"knowledge-platform/internal/ai"
	"knowledge-platform/internal/chunker"
	"knowledge-platform/internal/dedup"
	"knowledge-platform/internal/logger"
	"knowledge-platform/internal/quality"
	"knowledge-platform/internal/store"
	"knowledge-platform/internal/telemetry"
	"knowledge-platform/internal/textproc"
	"knowledge-platform/internal/vectorindex"
	"knowledge-platform/models"
)

// RawDocument is extracted content before normalization.
type RawDocument struct {
	Title       string     `json:"title"`
	Text        string     `json:"text"`
	Language    string     `json:"language,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	URI         string     `json:"uri,omitempty"`
}

// FragmentEmbedder is the slice of the embedding layer ingestion needs.
type FragmentEmbedder interface {
	EmbedFragments(ctx context.Context, fragments []models.Fragment) ([]models.Embedding, []ai.Failure, error)
	Model() string
	Version() string
}

// Config carries the pipeline knobs.
type Config struct {
	MinChunkChars      int
	MinQualityScore    float64
	IndexBelowFloor    bool
	NearDupThreshold   float64
	EmbedStageTimeout  time.Duration
	SourceFailureLimit int
}

// Pipeline turns raw documents into indexed, quality-scored fragments.
type Pipeline struct {
	store    *store.Store
	chunker  *chunker.Chunker
	quality  *quality.Engine
	embedder FragmentEmbedder
	index    vectorindex.Index
	cfg      Config
	metrics  *telemetry.Metrics
}

func New(st *store.Store, ch *chunker.Chunker, qe *quality.Engine, emb FragmentEmbedder, idx vectorindex.Index, cfg Config) (*Pipeline, error) {
	if st == nil || ch == nil || qe == nil || emb == nil || idx == nil {
		return nil, fmt.Errorf("store, chunker, quality engine, embedder and index are required")
	}
	if cfg.NearDupThreshold <= 0 || cfg.NearDupThreshold > 1 {
		return nil, fmt.Errorf("near-duplicate threshold must be in (0, 1], got %f", cfg.NearDupThreshold)
	}
	return &Pipeline{store: st, chunker: ch, quality: qe, embedder: emb, index: idx, cfg: cfg}, nil
}

// SetMetrics attaches instrumentation. A nil-metrics pipeline is valid and
// records nothing.
func (p *Pipeline) SetMetrics(m *telemetry.Metrics) {
	p.metrics = m
}

// IngestDocument runs the full ingestion flow for one raw document. A
// repeated document (same normalized content hash) is recorded as skipped
// and is not an error. Cancellation rolls committed fragments back and
// leaves the document in a terminal failed state.
func (p *Pipeline) IngestDocument(ctx context.Context, source *models.Source, raw RawDocument) (*models.Document, error) {
	started := time.Now()
	norm := textproc.Normalize(raw.Text, textproc.SourceHint{DeclaredLanguage: raw.Language})
	for _, warning := range norm.Warnings {
		logger.Warn("Normalization warning", "source", source.Name, "title", raw.Title, "warning", warning)
	}

	hash := textproc.ContentHash(norm.Text)
	if hash != "" {
		existing, err := p.store.Documents.FindByContentHash(ctx, hash)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("duplicate check failed: %w", err)
		}
		if existing != nil {
			skipped := &models.Document{
				SourceID:    source.ID,
				Title:       raw.Title,
				ContentHash: hash,
				Language:    norm.Language,
				Status:      models.StatusSkipped,
				PublishedAt: raw.PublishedAt,
			}
			if err := p.store.Documents.Create(ctx, skipped); err != nil {
				return nil, fmt.Errorf("failed to record skipped document: %w", err)
			}
			logger.Info("Document skipped as duplicate",
				"source", source.Name, "title", raw.Title, "canonical", existing.ID.Hex())
			if p.metrics != nil {
				p.metrics.RecordDuplicate("document")
				p.metrics.RecordDocument(models.StatusSkipped, source.Type, time.Since(started).Seconds())
			}
			return skipped, nil
		}
	}

	doc := &models.Document{
		SourceID:    source.ID,
		Title:       raw.Title,
		ContentHash: hash,
		Language:    norm.Language,
		Status:      models.StatusProcessing,
		PublishedAt: raw.PublishedAt,
	}
	if err := p.store.Documents.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	fragments, err := p.process(ctx, source, doc, norm)
	if err != nil {
		p.rollback(doc, err)
		if p.metrics != nil {
			p.metrics.RecordDocument(models.StatusFailed, source.Type, time.Since(started).Seconds())
		}
		return doc, err
	}

	if err := p.store.Documents.SetCompleted(ctx, doc.ID, len(fragments)); err != nil {
		err = fmt.Errorf("failed to complete document: %w", err)
		p.rollback(doc, err)
		if p.metrics != nil {
			p.metrics.RecordDocument(models.StatusFailed, source.Type, time.Since(started).Seconds())
		}
		return doc, err
	}
	doc.Status = models.StatusCompleted
	doc.FragmentCount = len(fragments)

	if score, err := p.quality.ScoreDocument(ctx, source, doc, fragments); err != nil {
		logger.Warn("Document quality scoring failed", "document_id", doc.ID.Hex(), "error", err)
	} else {
		doc.QualityScore = score
		if err := p.store.Documents.SetQuality(ctx, doc.ID, score); err != nil {
			logger.Warn("Failed to persist document quality", "document_id", doc.ID.Hex(), "error", err)
		}
	}
	if p.metrics != nil {
		p.metrics.RecordDocument(models.StatusCompleted, source.Type, time.Since(started).Seconds())
		p.metrics.RecordFragments(len(fragments), source.Type)
	}
	logger.Info("Document ingested",
		"source", source.Name, "document_id", doc.ID.Hex(),
		"fragments", len(fragments), "language", doc.Language)
	return doc, nil
}

func (p *Pipeline) process(ctx context.Context, source *models.Source, doc *models.Document, norm textproc.Normalized) ([]models.Fragment, error) {
	drafts, err := p.chunker.Chunk(norm.Text)
	if err != nil {
		return nil, fmt.Errorf("chunking failed: %w", err)
	}

	deduper, err := dedup.New(p.store.Fragments, p.index, p.cfg.NearDupThreshold)
	if err != nil {
		return nil, err
	}

	// Filter stubs and exact duplicates, then re-assign indices so they stay
	// dense and zero-based.
	kept := make([]models.FragmentDraft, 0, len(drafts))
	for _, draft := range drafts {
		if p.cfg.MinChunkChars > 0 && draft.CharCount < p.cfg.MinChunkChars {
			continue
		}
		verdict, err := deduper.CheckExact(ctx, draft)
		if err != nil {
			return nil, err
		}
		if verdict.Kind == dedup.KindExact {
			logger.Debug("Exact duplicate fragment dropped",
				"document_id", doc.ID.Hex(), "chunk_index", draft.Index)
			if p.metrics != nil {
				p.metrics.RecordDuplicate("exact")
			}
			continue
		}
		kept = append(kept, draft)
	}
	if len(kept) == 0 {
		return nil, nil
	}

	fragments := make([]models.Fragment, len(kept))
	for i, draft := range kept {
		fragments[i] = models.Fragment{
			ID:          primitive.NewObjectID(),
			DocumentID:  doc.ID,
			SourceID:    source.ID,
			ChunkIndex:  i,
			Text:        draft.Text,
			TokenCount:  draft.TokenCount,
			CharCount:   draft.CharCount,
			ContentHash: draft.ContentHash,
			Page:        draft.Page,
			Section:     draft.Section,
			Level:       draft.Level,
			Language:    doc.Language,
			Status:      models.FragmentStatusPending,
		}
	}
	if err := p.store.Fragments.InsertMany(ctx, fragments); err != nil {
		return nil, err
	}

	embeddable := make([]models.Fragment, 0, len(fragments))
	for i := range fragments {
		score, err := p.quality.ScoreFragment(ctx, source, doc, &fragments[i])
		if err != nil {
			return fragments, err
		}
		fragments[i].QualityScore = score
		if err := p.store.Fragments.SetQuality(ctx, fragments[i].ID, score); err != nil {
			return fragments, err
		}
		if score < p.cfg.MinQualityScore && !p.cfg.IndexBelowFloor {
			fragments[i].Status = models.FragmentStatusBelowQuality
			if err := p.store.Fragments.SetStatus(ctx, fragments[i].ID, models.FragmentStatusBelowQuality); err != nil {
				return fragments, err
			}
			continue
		}
		embeddable = append(embeddable, fragments[i])
	}

	if err := p.embedAndIndex(ctx, source, doc, deduper, embeddable); err != nil {
		return fragments, err
	}
	return fragments, nil
}

// embedAndIndex runs the embedding stage under its own deadline, then
// persists vectors and checks near duplicates.
func (p *Pipeline) embedAndIndex(ctx context.Context, source *models.Source, doc *models.Document, deduper *dedup.Deduplicator, fragments []models.Fragment) error {
	if len(fragments) == 0 {
		return nil
	}

	stageCtx := ctx
	if p.cfg.EmbedStageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, p.cfg.EmbedStageTimeout)
		defer cancel()
	}

	embeddings, failures, err := p.embedder.EmbedFragments(stageCtx, fragments)
	if err != nil {
		return fmt.Errorf("embedding stage failed: %w", err)
	}
	if p.metrics != nil {
		p.metrics.RecordEmbeddingBatch(len(fragments), len(failures), p.embedder.Model())
	}

	for _, failure := range failures {
		logger.Warn("Fragment embedding failed permanently",
			"fragment_id", failure.FragmentID.Hex(), "error", failure.Err)
		if err := p.store.Fragments.SetStatus(ctx, failure.FragmentID, models.FragmentStatusEmbeddingFailed); err != nil {
			return err
		}
	}

	byID := make(map[primitive.ObjectID]models.Fragment, len(fragments))
	for _, frag := range fragments {
		byID[frag.ID] = frag
	}

	for i := range embeddings {
		if err := ctx.Err(); err != nil {
			return err
		}
		emb := embeddings[i]
		frag := byID[emb.FragmentID]

		if err := p.store.Embeddings.Upsert(ctx, &emb); err != nil {
			return err
		}
		meta := vectorindex.Metadata{
			DocumentID:   frag.DocumentID,
			SourceID:     frag.SourceID,
			SourceType:   source.Type,
			Language:     frag.Language,
			Model:        emb.Model,
			ModelVersion: emb.ModelVersion,
			Quality:      frag.QualityScore,
		}
		if doc.PublishedAt != nil {
			meta.PublishedAt = *doc.PublishedAt
		}

		// Near-duplicate detection runs before the fragment's own vector is
		// indexed, so it can never match itself.
		verdict, err := deduper.CheckNear(ctx, frag, emb.Vector)
		if err != nil {
			return err
		}
		if verdict.Kind == dedup.KindNear {
			if err := p.store.Fragments.SetNearDuplicate(ctx, frag.ID, verdict.RefID); err != nil {
				return err
			}
			if p.metrics != nil {
				p.metrics.RecordDuplicate("near")
			}
			logger.Debug("Near-duplicate fragment linked",
				"fragment_id", frag.ID.Hex(), "canonical", verdict.RefID.Hex())
		}

		if err := p.index.Upsert(ctx, frag.ID, emb.Vector, meta); err != nil {
			return err
		}
		if err := p.store.Fragments.SetStatus(ctx, frag.ID, models.FragmentStatusIndexed); err != nil {
			return err
		}
	}
	return nil
}

// rollback removes committed fragments and marks the document failed. The
// corpus never keeps fragments whose embeddings were cut off mid-flight.
func (p *Pipeline) rollback(doc *models.Document, cause error) {
	// The triggering context may already be dead; cleanup gets its own.
	cleanup, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fragments, err := p.store.Fragments.ListByDocument(cleanup, doc.ID)
	if err == nil {
		for _, frag := range fragments {
			_ = p.store.Embeddings.DeleteByFragment(cleanup, frag.ID)
			_ = p.index.Delete(cleanup, frag.ID)
		}
	}
	if err := p.store.Fragments.DeleteByDocument(cleanup, doc.ID); err != nil {
		logger.Error("Failed to roll back fragments", "document_id", doc.ID.Hex(), "error", err)
	}

	msg := "ingestion failed: " + cause.Error()
	if errors.Is(cause, context.Canceled) {
		msg = "ingestion cancelled"
	} else if errors.Is(cause, context.DeadlineExceeded) {
		msg = "ingestion stage timed out"
	}
	if err := p.store.Documents.SetStatus(cleanup, doc.ID, models.StatusFailed, msg); err != nil {
		logger.Error("Failed to mark document failed", "document_id", doc.ID.Hex(), "error", err)
	}
	doc.Status = models.StatusFailed
	doc.ErrorMessage = msg
}

// ReindexAll re-embeds every stored fragment under the current model.
// Near-duplicate links are cleared first; they are only meaningful within
// one model version.
func (p *Pipeline) ReindexAll(ctx context.Context) (int, error) {
	if err := p.store.Fragments.ClearNearDuplicates(ctx); err != nil {
		return 0, err
	}

	total := 0
	for _, status := range []string{models.FragmentStatusIndexed, models.FragmentStatusEmbeddingFailed} {
		fragments, err := p.store.Fragments.ListByStatus(ctx, status, 0)
		if err != nil {
			return total, err
		}
		for start := 0; start < len(fragments); start += 128 {
			end := start + 128
			if end > len(fragments) {
				end = len(fragments)
			}
			n, err := p.reindexBatch(ctx, fragments[start:end])
			total += n
			if err != nil {
				return total, err
			}
		}
	}
	logger.Info("Reindex complete", "fragments", total,
		"model", p.embedder.Model(), "version", p.embedder.Version())
	return total, nil
}

func (p *Pipeline) reindexBatch(ctx context.Context, fragments []models.Fragment) (int, error) {
	embeddings, failures, err := p.embedder.EmbedFragments(ctx, fragments)
	if err != nil {
		return 0, err
	}
	for _, failure := range failures {
		if err := p.store.Fragments.SetStatus(ctx, failure.FragmentID, models.FragmentStatusEmbeddingFailed); err != nil {
			return 0, err
		}
	}

	byID := make(map[primitive.ObjectID]models.Fragment, len(fragments))
	for _, frag := range fragments {
		byID[frag.ID] = frag
	}
	sourceTypes := make(map[primitive.ObjectID]string)

	count := 0
	for i := range embeddings {
		emb := embeddings[i]
		frag := byID[emb.FragmentID]
		if err := p.store.Embeddings.Upsert(ctx, &emb); err != nil {
			return count, err
		}
		if _, ok := sourceTypes[frag.SourceID]; !ok {
			sourceType := ""
			if source, err := p.store.Sources.Get(ctx, frag.SourceID); err == nil {
				sourceType = source.Type
			}
			sourceTypes[frag.SourceID] = sourceType
		}
		doc, err := p.store.Documents.Get(ctx, frag.DocumentID)
		meta := vectorindex.Metadata{
			DocumentID:   frag.DocumentID,
			SourceID:     frag.SourceID,
			SourceType:   sourceTypes[frag.SourceID],
			Language:     frag.Language,
			Model:        emb.Model,
			ModelVersion: emb.ModelVersion,
			Quality:      frag.QualityScore,
		}
		if err == nil && doc.PublishedAt != nil {
			meta.PublishedAt = *doc.PublishedAt
		}
		if err := p.index.Upsert(ctx, frag.ID, emb.Vector, meta); err != nil {
			return count, err
		}
		if err := p.store.Fragments.SetStatus(ctx, frag.ID, models.FragmentStatusIndexed); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
