package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-trend-publisher/internal/entity"
	"golang-trend-publisher/internal/executor/repository"
	"golang-trend-publisher/pkg/logger"
)

func newTrendService(t *testing.T, provider *fakeEmbedder) (TrendService, repository.ScrapedItemRepository) {
	t.Helper()
	db := newTestDB(t)
	itemRepo := repository.NewScrapedItemRepository(db)
	cfg := testConfig()
	embedding := NewEmbeddingService(cfg.Embedding, logger.NewNop(), provider, repository.NewItemEmbeddingRepository(db))
	return NewTrendService(cfg.Trend, logger.NewNop(), itemRepo, embedding), itemRepo
}

func TestTrendService_DetectTrends(t *testing.T) {
	svc, itemRepo := newTrendService(t, newFakeEmbedder())
	now := time.Now().UTC()
	seedItems(t, itemRepo, 6, "tech", now.Add(-time.Hour))
	seedItems(t, itemRepo, 3, entity.CategoryStocks, now.Add(-time.Hour))
	seedItems(t, itemRepo, 2, "science", now.Add(-72*time.Hour))

	res, err := svc.DetectTrends(context.Background(), entity.RunOptions{ClusteringThreshold: 0.78, Hours: 24})
	require.NoError(t, err)

	assert.Equal(t, 6, res.Items, "market categories and old items are excluded")
	assert.Equal(t, 6, res.Embedded)
	assert.False(t, res.Failed())
	require.Len(t, res.Clusters, 2)
	for _, c := range res.Clusters {
		assert.Equal(t, "tech", c.Category)
		assert.Equal(t, 3, c.Size())
		assert.Len(t, c.Centroid, 16)
		assert.Greater(t, c.Score, 0.0)
	}
	assert.ElementsMatch(t, []string{"tech-001", "tech-002"}, []string{res.Clusters[0].ID, res.Clusters[1].ID})
}

func TestTrendService_SkipsAssignedItems(t *testing.T) {
	svc, itemRepo := newTrendService(t, newFakeEmbedder())
	items := seedItems(t, itemRepo, 4, "tech", time.Now().UTC())
	require.NoError(t, itemRepo.AssignTopic(context.Background(), []uint{items[0].ID, items[1].ID}, "covered"))

	res, err := svc.DetectTrends(context.Background(), entity.RunOptions{ClusteringThreshold: 0.78, Hours: 24})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Items)
}

func TestTrendService_LowThresholdMergesEverything(t *testing.T) {
	provider := newFakeEmbedder()
	svc, itemRepo := newTrendService(t, provider)
	seedItems(t, itemRepo, 6, "tech", time.Now().UTC())

	strict, err := svc.DetectTrends(context.Background(), entity.RunOptions{ClusteringThreshold: 0.99, Hours: 24})
	require.NoError(t, err)
	loose, err := svc.DetectTrends(context.Background(), entity.RunOptions{ClusteringThreshold: 0.001, Hours: 24})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(strict.Clusters), len(loose.Clusters))
	require.Len(t, loose.Clusters, 1)
	assert.Equal(t, 6, loose.Clusters[0].Size())
}

func TestTrendService_EmbeddingFailure(t *testing.T) {
	provider := newFakeEmbedder()
	provider.embedErr = errors.New("provider unavailable")
	svc, itemRepo := newTrendService(t, provider)
	seedItems(t, itemRepo, 3, "tech", time.Now().UTC())

	res, err := svc.DetectTrends(context.Background(), entity.RunOptions{ClusteringThreshold: 0.78, Hours: 24})
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.Equal(t, 3, res.EmbeddingFailures)
	assert.Empty(t, res.Clusters)
	assert.Equal(t, []string{"provider unavailable"}, res.Errors, "repeated errors are reported once")
}

func TestTrendService_NoItems(t *testing.T) {
	svc, _ := newTrendService(t, newFakeEmbedder())
	res, err := svc.DetectTrends(context.Background(), entity.RunOptions{ClusteringThreshold: 0.78, Hours: 24})
	require.NoError(t, err)
	assert.Zero(t, res.Items)
	assert.False(t, res.Failed())
}

func TestTrendService_FullWindowKeepsNewestItems(t *testing.T) {
	db := newTestDB(t)
	itemRepo := repository.NewScrapedItemRepository(db)
	cfg := testConfig()
	cfg.Trend.MaxItems = 10
	embedding := NewEmbeddingService(cfg.Embedding, logger.NewNop(), newFakeEmbedder(), repository.NewItemEmbeddingRepository(db))
	svc := NewTrendService(cfg.Trend, logger.NewNop(), itemRepo, embedding)

	now := time.Now().UTC()
	seedItems(t, itemRepo, 10, "archive", now.Add(-20*time.Hour))
	seedItems(t, itemRepo, 4, "tech", now.Add(-time.Minute))

	for run := 0; run < 2; run++ {
		res, err := svc.DetectTrends(context.Background(), entity.RunOptions{ClusteringThreshold: 0.78, Hours: 24})
		require.NoError(t, err)
		assert.Equal(t, 10, res.Items)
		assert.Equal(t, 4, res.Truncated)
		require.NotEmpty(t, res.Errors)
		assert.Contains(t, res.Errors[len(res.Errors)-1], "4 older items")

		fresh := 0
		for _, c := range res.Clusters {
			if c.Category == "tech" {
				fresh += c.Size()
			}
		}
		assert.Equal(t, 4, fresh, "every fresh item is clustered")
	}
}
