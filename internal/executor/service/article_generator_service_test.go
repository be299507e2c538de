package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-trend-publisher/internal/entity"
	"golang-trend-publisher/internal/executor/cluster"
	"golang-trend-publisher/internal/executor/config"
	"golang-trend-publisher/internal/executor/dto"
	"golang-trend-publisher/internal/executor/repository"
	"golang-trend-publisher/pkg/errs"
	"golang-trend-publisher/pkg/logger"
)

type generatorFixture struct {
	svc         ArticleGeneratorService
	provider    *fakeGenerator
	itemRepo    repository.ScrapedItemRepository
	articleRepo repository.ArticleRepository
}

func newGeneratorFixture(t *testing.T, tune func(*config.Config)) *generatorFixture {
	t.Helper()
	db := newTestDB(t)
	cfg := testConfig()
	cfg.Generator.MinClaimChars = 20
	if tune != nil {
		tune(cfg)
	}
	f := &generatorFixture{
		provider:    &fakeGenerator{},
		itemRepo:    repository.NewScrapedItemRepository(db),
		articleRepo: repository.NewArticleRepository(db),
	}
	f.svc = NewArticleGeneratorService(cfg.Generator, cfg.Trend, logger.NewNop(), f.provider, f.articleRepo, f.itemRepo)
	return f
}

func clusterOf(id string, items []entity.ScrapedItem, score float64) cluster.TopicCluster {
	return cluster.TopicCluster{ID: id, Category: items[0].Category, Members: items, Score: score}
}

func TestArticleGeneratorService_GeneratesArticle(t *testing.T) {
	f := newGeneratorFixture(t, nil)
	ctx := context.Background()
	items := seedItems(t, f.itemRepo, 3, "tech", time.Now().UTC())

	c := clusterOf("tech-001", items, 2.5)
	res, err := f.svc.Generate(ctx, []cluster.TopicCluster{c})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Generated)
	assert.Equal(t, dto.StepStatusSuccess, res.Status())
	require.Len(t, res.Slugs, 1)

	key := ClusterTopicKey(c)
	article, err := f.articleRepo.FindByTopicKey(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, article)
	assert.Equal(t, res.Slugs[0], article.Slug)
	assert.True(t, strings.HasSuffix(article.Slug, "-"+key[:8]))
	assert.Len(t, article.Citations, 3)
	assert.Equal(t, "example.com", article.Citations[0].Domain)
	assert.Equal(t, 2.5, article.TrendingScore)
	assert.NotEmpty(t, article.SEO.MetaTitle)
	assert.Len(t, article.FAQ, 1)

	remaining, err := f.itemRepo.ListRecentItems(ctx, repository.ItemFilter{Since: time.Now().UTC().Add(-time.Hour), OnlyUnassigned: true})
	require.NoError(t, err)
	assert.Empty(t, remaining, "members are assigned to the topic")
}

func TestArticleGeneratorService_DuplicateTopicIsSkipped(t *testing.T) {
	f := newGeneratorFixture(t, nil)
	ctx := context.Background()
	items := seedItems(t, f.itemRepo, 3, "tech", time.Now().UTC())
	c := clusterOf("tech-001", items, 2)

	_, err := f.svc.Generate(ctx, []cluster.TopicCluster{c})
	require.NoError(t, err)

	res, err := f.svc.Generate(ctx, []cluster.TopicCluster{c})
	require.NoError(t, err)
	assert.Zero(t, res.Generated)
	assert.Equal(t, 1, res.Skipped)
	assert.EqualValues(t, 1, f.provider.calls.Load(), "the provider is not called for a covered topic")
}

func TestArticleGeneratorService_RejectsWeakTopic(t *testing.T) {
	f := newGeneratorFixture(t, nil)
	items := seedItems(t, f.itemRepo, 3, "tech", time.Now().UTC())
	single := []entity.ScrapedItem{items[0], items[0]}

	res, err := f.svc.Generate(context.Background(), []cluster.TopicCluster{clusterOf("tech-001", single, 2)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rejected)
	assert.Zero(t, f.provider.calls.Load())
	require.Len(t, res.Errors, 1)
	assert.True(t, strings.HasPrefix(res.Errors[0], "rejected: topic tech-001: "), res.Errors[0])
	assert.Contains(t, res.Errors[0], "distinct sources")
}

func TestArticleGeneratorService_MalformedOutput(t *testing.T) {
	f := newGeneratorFixture(t, nil)
	f.provider.err = &errs.MalformedOutputError{Provider: "fake", Reason: "missing body"}
	items := seedItems(t, f.itemRepo, 3, "tech", time.Now().UTC())

	res, err := f.svc.Generate(context.Background(), []cluster.TopicCluster{clusterOf("tech-001", items, 2)})
	require.NoError(t, err, "provider output errors are per topic")
	assert.Equal(t, 1, res.Errored)
	assert.Equal(t, dto.StepStatusFailed, res.Status())
	assert.Contains(t, res.Errors[0], "missing body")
	assert.False(t, strings.HasPrefix(res.Errors[0], "rejected:"), "generation errors are not rejections")

	article, err := f.articleRepo.FindByTopicKey(context.Background(), ClusterTopicKey(clusterOf("tech-001", items, 2)))
	require.NoError(t, err)
	assert.Nil(t, article)
}

func TestArticleGeneratorService_SelectsTopClusters(t *testing.T) {
	f := newGeneratorFixture(t, func(cfg *config.Config) {
		cfg.Generator.MaxTopics = 2
	})
	now := time.Now().UTC()
	var clusters []cluster.TopicCluster
	for i, category := range []string{"a", "b", "c", "d"} {
		items := seedItems(t, f.itemRepo, 3, category, now)
		clusters = append(clusters, clusterOf(category+"-001", items, float64(i+1)))
	}
	tiny := seedItems(t, f.itemRepo, 1, "e", now)
	clusters = append(clusters, clusterOf("e-001", tiny, 100))

	res, err := f.svc.Generate(context.Background(), clusters)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Considered)
	assert.Equal(t, 2, res.Generated)
	assert.Equal(t, 3, res.Skipped, "one below the minimum size, two beyond the topic cap")

	var topics []string
	f.provider.topics.Range(func(_, v any) bool {
		topics = append(topics, v.(dto.TopicContext).Category)
		return true
	})
	assert.ElementsMatch(t, []string{"c", "d"}, topics, "the highest scores win")
}

func TestArticleGeneratorService_SlugCollision(t *testing.T) {
	f := newGeneratorFixture(t, nil)
	ctx := context.Background()
	items := seedItems(t, f.itemRepo, 3, "tech", time.Now().UTC())
	c := clusterOf("tech-001", items, 2)
	key := ClusterTopicKey(c)

	draft, err := f.provider.Generate(ctx, dto.TopicContext{Headline: c.Representative().Title})
	require.NoError(t, err)
	taken := ArticleSlug(draft.Title, key)
	inserted, err := f.articleRepo.InsertIfAbsent(ctx, &entity.Article{Slug: taken, TopicKey: "other-topic", Title: "Other"})
	require.NoError(t, err)
	require.True(t, inserted)

	res, err := f.svc.Generate(ctx, []cluster.TopicCluster{c})
	require.NoError(t, err)
	require.Equal(t, 1, res.Generated)
	assert.Equal(t, taken+"-2", res.Slugs[0])
}
