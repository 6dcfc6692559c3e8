package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	DocumentsProcessed metric.Int64Counter
	FragmentsIndexed   metric.Int64Counter
	DuplicatesDropped  metric.Int64Counter
	EmbeddingBatches   metric.Int64Counter
	EmbeddingFailures  metric.Int64Counter
	IngestDuration     metric.Float64Histogram
	SearchDuration     metric.Float64Histogram
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("knowledge-platform")

	documentsProcessed, err := meter.Int64Counter(
		"ingest.documents.total",
		metric.WithDescription("Documents that reached a terminal state"),
	)
	if err != nil {
		return nil, err
	}

	fragmentsIndexed, err := meter.Int64Counter(
		"ingest.fragments.indexed",
		metric.WithDescription("Fragments written to the vector index"),
	)
	if err != nil {
		return nil, err
	}

	duplicatesDropped, err := meter.Int64Counter(
		"ingest.duplicates.total",
		metric.WithDescription("Exact and near duplicates detected"),
	)
	if err != nil {
		return nil, err
	}

	embeddingBatches, err := meter.Int64Counter(
		"embeddings.batches.total",
		metric.WithDescription("Embedding batch calls issued"),
	)
	if err != nil {
		return nil, err
	}

	embeddingFailures, err := meter.Int64Counter(
		"embeddings.failures.total",
		metric.WithDescription("Fragments whose embedding failed permanently"),
	)
	if err != nil {
		return nil, err
	}

	ingestDuration, err := meter.Float64Histogram(
		"ingest.document.duration",
		metric.WithDescription("Per-document ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	searchDuration, err := meter.Float64Histogram(
		"search.duration",
		metric.WithDescription("End-to-end search duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		DocumentsProcessed: documentsProcessed,
		FragmentsIndexed:   fragmentsIndexed,
		DuplicatesDropped:  duplicatesDropped,
		EmbeddingBatches:   embeddingBatches,
		EmbeddingFailures:  embeddingFailures,
		IngestDuration:     ingestDuration,
		SearchDuration:     searchDuration,
	}, nil
}

// RecordDocument records one terminal document outcome.
func (m *Metrics) RecordDocument(status, sourceType string, seconds float64) {
	attrs := []attribute.KeyValue{
		attribute.String("document.status", status),
		attribute.String("source.type", sourceType),
	}
	m.DocumentsProcessed.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.IngestDuration.Record(context.Background(), seconds, metric.WithAttributes(attrs...))
}

// RecordFragments records fragments committed to the index.
func (m *Metrics) RecordFragments(count int, sourceType string) {
	m.FragmentsIndexed.Add(context.Background(), int64(count),
		metric.WithAttributes(attribute.String("source.type", sourceType)))
}

// RecordDuplicate records one dropped or linked duplicate.
func (m *Metrics) RecordDuplicate(kind string) {
	m.DuplicatesDropped.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("duplicate.kind", kind)))
}

// RecordEmbeddingBatch records one embedding batch call and its failures.
func (m *Metrics) RecordEmbeddingBatch(size, failures int, model string) {
	attrs := []attribute.KeyValue{attribute.String("embedding.model", model)}
	m.EmbeddingBatches.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	if failures > 0 {
		m.EmbeddingFailures.Add(context.Background(), int64(failures), metric.WithAttributes(attrs...))
	}
}

// RecordSearch records one executed search.
func (m *Metrics) RecordSearch(seconds float64, results int) {
	m.SearchDuration.Record(context.Background(), seconds,
		metric.WithAttributes(attribute.Int("search.results", results)))
}
