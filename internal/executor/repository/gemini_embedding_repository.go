package repository

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"golang-trend-publisher/internal/executor/config"
	"golang-trend-publisher/pkg/errs"
	"golang-trend-publisher/pkg/logger"
	"golang-trend-publisher/pkg/ratelimit"
)

// geminiEmbeddingRepository is an EmbeddingProvider backed by the Gemini embedding models.
type geminiEmbeddingRepository struct {
	cfg     config.Embedding
	logger  *logger.Logger
	models  GenAIModels
	limiter *ratelimit.KeyedLimiter
}

// NewGeminiEmbeddingRepository creates a new Gemini embedding provider. models may be nil when no
// credential is configured.
func NewGeminiEmbeddingRepository(cfg config.Embedding, log *logger.Logger, models GenAIModels, limiter *ratelimit.KeyedLimiter) EmbeddingProvider {
	return &geminiEmbeddingRepository{
		cfg:     cfg,
		logger:  log,
		models:  models,
		limiter: limiter,
	}
}

func (r *geminiEmbeddingRepository) Name() string {
	return geminiProviderName
}

func (r *geminiEmbeddingRepository) ModelVersion() string {
	return geminiProviderName + "/" + r.cfg.Model
}

func (r *geminiEmbeddingRepository) Validate() error {
	return validateGemini(r.models, r.cfg.APIKey, r.cfg.Model, "embedding")
}

func (r *geminiEmbeddingRepository) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, "gemini:embed"); err != nil {
			return nil, &errs.ProviderError{Provider: r.Name(), Op: "embed", Err: fmt.Errorf("failed to wait for request limit: %w", err)}
		}
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	resp, err := r.models.EmbedContent(ctx, r.cfg.Model, contents, &genai.EmbedContentConfig{TaskType: "CLUSTERING"})
	if err != nil {
		r.logger.Error("Failed to embed batch", logger.ErrorField(err), logger.IntField("batch_size", len(texts)))
		return nil, &errs.ProviderError{Provider: r.Name(), Op: "embed", Err: err}
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, &errs.MalformedOutputError{
			Provider: r.Name(),
			Reason:   fmt.Sprintf("expected %d embeddings, got %d", len(texts), got),
		}
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, &errs.MalformedOutputError{Provider: r.Name(), Reason: fmt.Sprintf("embedding %d is empty", i)}
		}
		vectors[i] = e.Values
	}
	return vectors, nil
}
