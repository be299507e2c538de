package service

import (
	"context"
	"fmt"
	"time"

	"golang-trend-publisher/internal/entity"
	"golang-trend-publisher/internal/executor/config"
	"golang-trend-publisher/internal/executor/repository"
	"golang-trend-publisher/pkg/errs"
	"golang-trend-publisher/pkg/logger"
	"golang-trend-publisher/pkg/utils"
)

// EmbeddingResult is the outcome for one item: a vector or the error that prevented it.
type EmbeddingResult struct {
	Vector []float32
	Err    error
}

// EmbeddingService embeds items in batches, reusing vectors stored for the current model version.
type EmbeddingService interface {
	Validate() error
	ModelVersion() string
	// EmbedItems returns one result per item, in order. Provider failures are per item; the
	// returned error is set only for storage failures.
	EmbedItems(ctx context.Context, items []entity.ScrapedItem) ([]EmbeddingResult, error)
}

type embeddingService struct {
	cfg      config.Embedding
	logger   *logger.Logger
	provider repository.EmbeddingProvider
	repo     repository.ItemEmbeddingRepository
}

// NewEmbeddingService creates a new EmbeddingService.
func NewEmbeddingService(cfg config.Embedding, log *logger.Logger, provider repository.EmbeddingProvider, repo repository.ItemEmbeddingRepository) EmbeddingService {
	return &embeddingService{
		cfg:      cfg,
		logger:   log,
		provider: provider,
		repo:     repo,
	}
}

func (s *embeddingService) Validate() error {
	return s.provider.Validate()
}

func (s *embeddingService) ModelVersion() string {
	return s.provider.ModelVersion()
}

func (s *embeddingService) EmbedItems(ctx context.Context, items []entity.ScrapedItem) ([]EmbeddingResult, error) {
	results := make([]EmbeddingResult, len(items))
	if len(items) == 0 {
		return results, nil
	}
	model := s.provider.ModelVersion()

	ids := make([]uint, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	stored, err := s.repo.FindByItemIDs(ctx, ids, model)
	if err != nil {
		return nil, errs.Storage("find embeddings", err)
	}

	var pending []int
	for i, it := range items {
		if v, ok := stored[it.ID]; ok && len(v) > 0 {
			results[i].Vector = v
			continue
		}
		pending = append(pending, i)
	}

	batchSize := max(1, s.cfg.BatchSize)
	for start := 0; start < len(pending); start += batchSize {
		if !utils.ShouldContinue(ctx, s.logger) {
			for _, idx := range pending[start:] {
				results[idx].Err = &errs.ProviderError{Provider: s.provider.Name(), Op: "embed", Err: ctx.Err()}
			}
			break
		}
		batch := pending[start:min(start+batchSize, len(pending))]
		if err := s.embedBatch(ctx, items, batch, results, model); err != nil {
			return nil, err
		}
	}

	return results, nil
}

// embedBatch fills results for the item indexes in batch. Only storage failures are returned.
func (s *embeddingService) embedBatch(ctx context.Context, items []entity.ScrapedItem, batch []int, results []EmbeddingResult, model string) error {
	texts := make([]string, len(batch))
	for i, idx := range batch {
		texts[i] = s.embeddingText(items[idx])
	}

	callCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	vectors, err := s.provider.Embed(callCtx, texts)
	if err == nil && len(vectors) != len(batch) {
		err = &errs.MalformedOutputError{
			Provider: s.provider.Name(),
			Reason:   fmt.Sprintf("expected %d vectors, got %d", len(batch), len(vectors)),
		}
	}
	if err != nil {
		s.logger.Warn("Embedding batch failed", logger.IntField("batch_size", len(batch)), logger.ErrorField(err))
		for _, idx := range batch {
			results[idx].Err = err
		}
		return nil
	}

	rows := make([]entity.ItemEmbedding, 0, len(batch))
	for i, idx := range batch {
		results[idx].Vector = vectors[i]
		rows = append(rows, entity.ItemEmbedding{
			ItemID:       items[idx].ID,
			ModelVersion: model,
			Dimension:    len(vectors[i]),
			Vector:       vectors[i],
		})
	}
	if err := s.repo.SaveAll(ctx, rows); err != nil {
		return errs.Storage("save embeddings", err)
	}

	s.logger.Debug("Embedding batch done", logger.IntField("batch_size", len(batch)), logger.DurationField("elapsed", time.Since(start)))
	return nil
}

func (s *embeddingService) embeddingText(item entity.ScrapedItem) string {
	text := item.Title
	if item.Body != "" {
		text += "\n\n" + item.Body
	}
	if s.cfg.MaxTextChars > 0 {
		text = utils.TruncateRunes(text, s.cfg.MaxTextChars)
	}
	return text
}
