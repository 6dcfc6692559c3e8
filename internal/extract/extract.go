package extract

import (
	"context"
	"fmt"

	"knowledge-platform/internal/pipeline"
	"knowledge-platform/models"
)

// Extractor turns a source into raw documents ready for ingestion.
type Extractor interface {
	Extract(ctx context.Context, source *models.Source) ([]pipeline.RawDocument, error)
}

// Registry maps source types to extractors.
type Registry struct {
	byType map[string]Extractor
}

func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]Extractor)}
}

func (r *Registry) Register(sourceType string, ex Extractor) {
	r.byType[sourceType] = ex
}

// For returns the extractor registered for the source's type.
func (r *Registry) For(source *models.Source) (Extractor, error) {
	ex, ok := r.byType[source.Type]
	if !ok {
		return nil, fmt.Errorf("no extractor registered for source type %q", source.Type)
	}
	return ex, nil
}
