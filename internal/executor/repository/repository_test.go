package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"golang-trend-publisher/internal/entity"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&entity.ScrapedItem{},
		&entity.ItemEmbedding{},
		&entity.Article{},
		&entity.MarketTrend{},
		&entity.Instrument{},
		&entity.WorkflowRun{},
	))
	return db
}

func newItem(hash, category string, scrapedAt time.Time) *entity.ScrapedItem {
	return &entity.ScrapedItem{
		SourceID:     "src",
		Category:     category,
		CanonicalURL: "https://example.com/" + hash,
		Title:        "title " + hash,
		Body:         "body " + hash,
		ContentHash:  hash,
		ScrapedAt:    scrapedAt,
	}
}

func TestScrapedItemRepository_InsertIfAbsent(t *testing.T) {
	ctx := context.Background()
	repo := NewScrapedItemRepository(newTestDB(t))
	now := time.Now().UTC()

	inserted, err := repo.InsertIfAbsent(ctx, newItem("h1", "tech", now))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.InsertIfAbsent(ctx, newItem("h1", "tech", now))
	require.NoError(t, err)
	assert.False(t, inserted, "same content hash must not be stored twice")

	existing, err := repo.FindExistingHashes(ctx, []string{"h1", "h2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"h1": true}, existing)

	item, err := repo.FindByHash(ctx, "h1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "title h1", item.Title)

	missing, err := repo.FindByHash(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestScrapedItemRepository_ListRecentItems(t *testing.T) {
	ctx := context.Background()
	repo := NewScrapedItemRepository(newTestDB(t))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, it := range []*entity.ScrapedItem{
		newItem("old", "tech", base.Add(-48*time.Hour)),
		newItem("b", "tech", base.Add(2*time.Hour)),
		newItem("a", "tech", base.Add(time.Hour)),
		newItem("s", entity.CategoryStocks, base.Add(time.Hour)),
		newItem("c", "world", base.Add(3*time.Hour)),
	} {
		_, err := repo.InsertIfAbsent(ctx, it)
		require.NoError(t, err)
	}

	items, err := repo.ListRecentItems(ctx, ItemFilter{Since: base, ExcludeCategories: entity.MarketCategories})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "a", items[0].ContentHash, "ordered by scraped_at")
	assert.Equal(t, "b", items[1].ContentHash)
	assert.Equal(t, "c", items[2].ContentHash)

	items, err = repo.ListRecentItems(ctx, ItemFilter{Since: base, Categories: []string{entity.CategoryStocks}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "s", items[0].ContentHash)

	require.NoError(t, repo.AssignTopic(ctx, []uint{items[0].ID}, "topic-1"))
	items, err = repo.ListRecentItems(ctx, ItemFilter{Since: base, OnlyUnassigned: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, it := range items {
		assert.Nil(t, it.TopicKey)
	}
}

func TestScrapedItemRepository_ListRecentItemsKeepsNewest(t *testing.T) {
	ctx := context.Background()
	repo := NewScrapedItemRepository(newTestDB(t))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, hash := range []string{"h0", "h1", "h2", "h3", "h4"} {
		_, err := repo.InsertIfAbsent(ctx, newItem(hash, "tech", base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	filter := ItemFilter{Since: base, OnlyUnassigned: true, Limit: 3}
	items, err := repo.ListRecentItems(ctx, filter)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "h2", items[0].ContentHash, "the newest items, oldest first")
	assert.Equal(t, "h3", items[1].ContentHash)
	assert.Equal(t, "h4", items[2].ContentHash)

	total, err := repo.CountRecentItems(ctx, filter)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)

	total, err = repo.CountRecentItems(ctx, ItemFilter{Since: base.Add(3 * time.Hour)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

func TestScrapedItemRepository_IncrementViews(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewScrapedItemRepository(db)
	item := newItem("v", "tech", time.Now().UTC())
	_, err := repo.InsertIfAbsent(ctx, item)
	require.NoError(t, err)

	require.NoError(t, repo.IncrementViews(ctx, item.ID))
	require.NoError(t, repo.IncrementViews(ctx, item.ID))

	var stored entity.ScrapedItem
	require.NoError(t, db.First(&stored, item.ID).Error)
	assert.Equal(t, int64(2), stored.ViewCount)

	assert.ErrorIs(t, repo.IncrementViews(ctx, 9999), gorm.ErrRecordNotFound)
}

func TestItemEmbeddingRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewItemEmbeddingRepository(newTestDB(t))

	require.NoError(t, repo.SaveAll(ctx, []entity.ItemEmbedding{
		{ItemID: 1, ModelVersion: "m1", Dimension: 2, Vector: []float32{1, 0}},
		{ItemID: 2, ModelVersion: "m1", Dimension: 2, Vector: []float32{0, 1}},
		{ItemID: 1, ModelVersion: "m2", Dimension: 3, Vector: []float32{1, 1, 1}},
	}))
	require.NoError(t, repo.SaveAll(ctx, []entity.ItemEmbedding{
		{ItemID: 1, ModelVersion: "m1", Dimension: 2, Vector: []float32{0.5, 0.5}},
	}))

	got, err := repo.FindByItemIDs(ctx, []uint{1, 2, 3}, "m1")
	require.NoError(t, err)
	assert.Equal(t, map[uint][]float32{1: {0.5, 0.5}, 2: {0, 1}}, got)

	got, err = repo.FindByItemIDs(ctx, []uint{1}, "m2")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 1}, got[1])
}

func TestArticleRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewArticleRepository(newTestDB(t))

	article := &entity.Article{
		Slug:      "big-news-abcd1234",
		TopicKey:  "key-1",
		Title:     "Big news",
		Body:      "body",
		Summary:   "summary",
		FAQ:       []entity.FAQ{{Question: "q", Answer: "a"}},
		Tags:      []string{"news"},
		Citations: []entity.Citation{{URL: "https://example.com/a", Domain: "example.com"}},
		SEO:       entity.SEOMetadata{MetaTitle: "Big news", Keywords: []string{"big"}},
	}
	inserted, err := repo.InsertIfAbsent(ctx, article)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := &entity.Article{Slug: "other-slug", TopicKey: "key-1", Title: "t", Body: "b"}
	inserted, err = repo.InsertIfAbsent(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted, "one article per topic key")

	found, err := repo.FindByTopicKey(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "big-news-abcd1234", found.Slug)
	assert.Equal(t, []entity.FAQ{{Question: "q", Answer: "a"}}, found.FAQ)
	assert.Equal(t, "example.com", found.Citations[0].Domain)
	assert.Equal(t, []string{"big"}, found.SEO.Keywords)

	none, err := repo.FindByTopicKey(ctx, "key-2")
	require.NoError(t, err)
	assert.Nil(t, none)

	exists, err := repo.SlugExists(ctx, "big-news-abcd1234")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repo.SlugExists(ctx, "other-slug")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, repo.IncrementViews(ctx, "big-news-abcd1234"))
	bySlug, err := repo.FindBySlug(ctx, "big-news-abcd1234")
	require.NoError(t, err)
	assert.Equal(t, int64(1), bySlug.ViewCount)
	assert.ErrorIs(t, repo.IncrementViews(ctx, "missing"), gorm.ErrRecordNotFound)
}

func TestMarketTrendRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewMarketTrendRepository(db)
	bucket := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(ctx, &entity.MarketTrend{
		Category: entity.CategoryStocks, Symbol: "BBCA", Bucket: bucket,
		MentionCount: 2, Score: 1.5, ItemIDs: datatypes.JSONSlice[uint]{1, 2},
	}))
	require.NoError(t, repo.Upsert(ctx, &entity.MarketTrend{
		Category: entity.CategoryStocks, Symbol: "BBCA", Bucket: bucket,
		MentionCount: 3, Score: 2.5, ItemIDs: datatypes.JSONSlice[uint]{1, 2, 3},
	}))

	var trends []entity.MarketTrend
	require.NoError(t, db.Find(&trends).Error)
	require.Len(t, trends, 1)
	assert.Equal(t, 3, trends[0].MentionCount)
	assert.InDelta(t, 2.5, trends[0].Score, 1e-9)
	assert.Equal(t, datatypes.JSONSlice[uint]{1, 2, 3}, trends[0].ItemIDs)
}

func TestInstrumentsRepository_GetInstruments(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.Create(&[]entity.Instrument{
		{Code: "BBCA", Name: "Bank Central Asia", Category: entity.CategoryStocks},
		{Code: "XAU", Name: "Gold", Category: entity.CategoryMetals, Aliases: []string{"emas"}},
		{Code: "TLKM", Name: "Telkom Indonesia", Category: entity.CategorySharia},
	}).Error)

	repo := NewInstrumentsRepository(db)
	all, err := repo.GetInstruments(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	metals, err := repo.GetInstruments(ctx, []string{entity.CategoryMetals})
	require.NoError(t, err)
	require.Len(t, metals, 1)
	assert.Equal(t, []string{"emas"}, metals[0].Aliases)
}

func TestWorkflowRunRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewWorkflowRunRepository(newTestDB(t))
	now := time.Now().UTC()

	run := &entity.WorkflowRun{
		ID:       "run-1",
		Trigger:  entity.TriggerCLI,
		Status:   entity.RunStatusQueued,
		Options:  datatypes.NewJSONType(entity.RunOptions{Hours: 6}),
		QueuedAt: now,
	}
	require.NoError(t, repo.Create(ctx, run))
	require.NoError(t, repo.MarkStarted(ctx, "run-1", now))

	run.Status = entity.RunStatusSucceeded
	run.State = "done"
	run.Success = true
	run.Steps = datatypes.JSON(`{"scrape":{"status":"success"}}`)
	run.FinishedAt = sql.NullTime{Time: now.Add(time.Minute), Valid: true}
	require.NoError(t, repo.Finalize(ctx, run))

	stored, err := repo.FindByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, entity.RunStatusSucceeded, stored.Status)
	assert.True(t, stored.Success)
	assert.True(t, stored.StartedAt.Valid)
	assert.Equal(t, 6, stored.Options.Data().Hours)

	run.Status = entity.RunStatusFailed
	assert.ErrorIs(t, repo.Finalize(ctx, run), ErrRunFinalized, "finished runs are immutable")
	assert.ErrorIs(t, repo.MarkStarted(ctx, "run-1", now), ErrRunFinalized)
}
