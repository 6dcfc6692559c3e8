package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"knowledge-platform/internal/extract"
	"knowledge-platform/internal/logger"
	"knowledge-platform/internal/pipeline"
	"knowledge-platform/internal/store"
	"knowledge-platform/models"
)

const (
	TaskSourcePoll     = "source:poll"
	TaskDocumentIngest = "document:ingest"
	TaskReindexAll     = "corpus:reindex"
)

type SourcePollPayload struct {
	SourceID string `json:"source_id"`
}

type DocumentIngestPayload struct {
	SourceID string               `json:"source_id"`
	Document pipeline.RawDocument `json:"document"`
}

// Task creators
func NewSourcePollTask(sourceID primitive.ObjectID) (*asynq.Task, error) {
	payload, err := json.Marshal(SourcePollPayload{SourceID: sourceID.Hex()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskSourcePoll,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("default"),
	), nil
}

func NewDocumentIngestTask(sourceID primitive.ObjectID, doc pipeline.RawDocument) (*asynq.Task, error) {
	payload, err := json.Marshal(DocumentIngestPayload{
		SourceID: sourceID.Hex(),
		Document: doc,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskDocumentIngest,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(15*time.Minute),
		asynq.Queue("critical"),
	), nil
}

func NewReindexAllTask() (*asynq.Task, error) {
	return asynq.NewTask(
		TaskReindexAll,
		nil,
		asynq.MaxRetry(1),
		asynq.Timeout(2*time.Hour),
		asynq.Queue("low"),
	), nil
}

// Task handlers
type TaskProcessor struct {
	store      *store.Store
	pipeline   *pipeline.Pipeline
	extractors *extract.Registry
	client     *asynq.Client
	lock       *pipeline.SourceLock

	extractTimeout time.Duration
	failureLimit   int
}

func NewTaskProcessor(st *store.Store, p *pipeline.Pipeline, reg *extract.Registry, client *asynq.Client, lock *pipeline.SourceLock, extractTimeout time.Duration, failureLimit int) *TaskProcessor {
	return &TaskProcessor{
		store:          st,
		pipeline:       p,
		extractors:     reg,
		client:         client,
		lock:           lock,
		extractTimeout: extractTimeout,
		failureLimit:   failureLimit,
	}
}

// HandleSourcePoll extracts a source and fans its documents out as ingest
// tasks. Extraction failures count against the source's failure budget.
func (tp *TaskProcessor) HandleSourcePoll(ctx context.Context, t *asynq.Task) error {
	var payload SourcePollPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}
	sourceID, err := primitive.ObjectIDFromHex(payload.SourceID)
	if err != nil {
		return fmt.Errorf("invalid source id %q: %w", payload.SourceID, asynq.SkipRetry)
	}

	source, err := tp.store.Sources.Get(ctx, sourceID)
	if err != nil {
		return err
	}
	if !source.Active {
		logger.Info("Skipping poll of inactive source", "source", source.Name)
		return nil
	}

	docs, err := tp.extractSource(ctx, source)
	pollErr := tp.store.Sources.RecordPoll(ctx, source.ID, err != nil, tp.failureLimit)
	if pollErr != nil {
		logger.Error("Failed to record poll outcome", "source", source.Name, "error", pollErr)
	}
	if err != nil {
		logger.Warn("Source extraction failed", "source", source.Name, "error", err)
		return err
	}

	for _, doc := range docs {
		task, err := NewDocumentIngestTask(source.ID, doc)
		if err != nil {
			return err
		}
		if _, err := tp.client.EnqueueContext(ctx, task); err != nil {
			return fmt.Errorf("failed to enqueue ingest task: %w", err)
		}
	}
	logger.Info("Source polled", "source", source.Name, "documents", len(docs))
	return nil
}

// extractSource runs the extractor under the extraction deadline, holding
// the source token when the source is rate limited.
func (tp *TaskProcessor) extractSource(ctx context.Context, source *models.Source) ([]pipeline.RawDocument, error) {
	ex, err := tp.extractors.For(source)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	if source.RateLimited && tp.lock != nil {
		release, err := tp.lock.Acquire(ctx, source.ID)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	stageCtx := ctx
	if tp.extractTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, tp.extractTimeout)
		defer cancel()
	}
	return ex.Extract(stageCtx, source)
}

// HandleDocumentIngest runs the ingestion pipeline for one raw document.
func (tp *TaskProcessor) HandleDocumentIngest(ctx context.Context, t *asynq.Task) error {
	var payload DocumentIngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}
	sourceID, err := primitive.ObjectIDFromHex(payload.SourceID)
	if err != nil {
		return fmt.Errorf("invalid source id %q: %w", payload.SourceID, asynq.SkipRetry)
	}
	source, err := tp.store.Sources.Get(ctx, sourceID)
	if err != nil {
		return err
	}

	doc, err := tp.pipeline.IngestDocument(ctx, source, payload.Document)
	if err != nil {
		// The pipeline already rolled back and marked the document failed;
		// re-running the whole task would duplicate the skipped audit trail.
		logger.Error("Document ingestion failed",
			"source", source.Name, "title", payload.Document.Title, "error", err)
		return fmt.Errorf("ingestion failed: %v: %w", err, asynq.SkipRetry)
	}
	if doc.Status == models.StatusSkipped {
		logger.Debug("Duplicate document skipped", "source", source.Name, "title", payload.Document.Title)
	}
	return nil
}

// HandleReindexAll re-embeds the whole corpus under the current model.
func (tp *TaskProcessor) HandleReindexAll(ctx context.Context, t *asynq.Task) error {
	n, err := tp.pipeline.ReindexAll(ctx)
	if err != nil {
		return fmt.Errorf("reindex failed after %d fragments: %w", n, err)
	}
	return nil
}
