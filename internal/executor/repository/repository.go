package repository

import (
	"context"

	"golang-trend-publisher/internal/executor/dto"
)

// EmbeddingProvider turns texts into vectors. The result has one vector per input text, in order.
type EmbeddingProvider interface {
	Name() string
	// ModelVersion identifies the vector space; vectors of different versions are never compared.
	ModelVersion() string
	// Validate reports a missing credential or setting without calling the provider.
	Validate() error
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerationProvider writes an article draft for a topic.
type GenerationProvider interface {
	Name() string
	Validate() error
	Generate(ctx context.Context, topic dto.TopicContext) (*dto.ArticleDraft, error)
}
