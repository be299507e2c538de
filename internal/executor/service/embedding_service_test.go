package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-trend-publisher/internal/entity"
	"golang-trend-publisher/internal/executor/repository"
	"golang-trend-publisher/pkg/logger"
)

func seedItems(t *testing.T, repo repository.ScrapedItemRepository, n int, category string, scrapedAt time.Time) []entity.ScrapedItem {
	t.Helper()
	items := make([]entity.ScrapedItem, 0, n)
	for i := 0; i < n; i++ {
		item := &entity.ScrapedItem{
			SourceID:     fmt.Sprintf("src-%d", i%3),
			Category:     category,
			CanonicalURL: fmt.Sprintf("https://example.com/%s/%d", category, i),
			Title:        fmt.Sprintf("Story topic%d part %d", i%2, i),
			Body:         "Body text for the story.",
			ContentHash:  fmt.Sprintf("%s-%d", category, i),
			ScrapedAt:    scrapedAt,
		}
		inserted, err := repo.InsertIfAbsent(context.Background(), item)
		require.NoError(t, err)
		require.True(t, inserted)
		items = append(items, *item)
	}
	return items
}

func TestEmbeddingService_ReusesStoredVectors(t *testing.T) {
	db := newTestDB(t)
	itemRepo := repository.NewScrapedItemRepository(db)
	embedRepo := repository.NewItemEmbeddingRepository(db)
	items := seedItems(t, itemRepo, 5, "tech", time.Now().UTC())

	provider := newFakeEmbedder()
	cfg := testConfig().Embedding
	cfg.BatchSize = 2
	svc := NewEmbeddingService(cfg, logger.NewNop(), provider, embedRepo)
	ctx := context.Background()

	first, err := svc.EmbedItems(ctx, items)
	require.NoError(t, err)
	require.Len(t, first, 5)
	for _, r := range first {
		assert.NoError(t, r.Err)
		assert.Len(t, r.Vector, provider.dim)
	}
	assert.EqualValues(t, 3, provider.calls.Load(), "5 items in batches of 2")

	second, err := svc.EmbedItems(ctx, items)
	require.NoError(t, err)
	assert.EqualValues(t, 3, provider.calls.Load(), "stored vectors are reused")
	for i := range items {
		assert.Equal(t, first[i].Vector, second[i].Vector)
	}
	assert.Equal(t, "fake/v1", svc.ModelVersion())
}

func TestEmbeddingService_ProviderFailureIsPerItem(t *testing.T) {
	db := newTestDB(t)
	itemRepo := repository.NewScrapedItemRepository(db)
	items := seedItems(t, itemRepo, 3, "tech", time.Now().UTC())

	provider := newFakeEmbedder()
	provider.embedErr = errors.New("quota exceeded")
	svc := NewEmbeddingService(testConfig().Embedding, logger.NewNop(), provider, repository.NewItemEmbeddingRepository(db))

	results, err := svc.EmbedItems(context.Background(), items)
	require.NoError(t, err, "provider failures are not fatal")
	for _, r := range results {
		assert.Nil(t, r.Vector)
		assert.EqualError(t, r.Err, "quota exceeded")
	}
}
