//go:build integration

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"golang-trend-publisher/internal/entity"
)

func newPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("trend_publisher_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	_, b, _, _ := runtime.Caller(0)
	migrationPath := fmt.Sprintf("file://%s/../../../migrations", filepath.Dir(b))
	m, err := migrate.New(migrationPath, connStr)
	require.NoError(t, err)
	require.NoError(t, m.Up())

	db, err := gorm.Open(postgres.Open(connStr), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestPostgres_Repositories(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	db := newPostgresDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	items := NewScrapedItemRepository(db)
	for i, hash := range []string{"p1", "p2", "p3"} {
		inserted, err := items.InsertIfAbsent(ctx, newItem(hash, "tech", now.Add(-time.Duration(i)*time.Hour)))
		require.NoError(t, err)
		assert.True(t, inserted)
	}
	inserted, err := items.InsertIfAbsent(ctx, newItem("p1", "tech", now))
	require.NoError(t, err)
	assert.False(t, inserted, "the content hash is unique")

	existing, err := items.FindExistingHashes(ctx, []string{"p1", "p9"})
	require.NoError(t, err)
	assert.True(t, existing["p1"])
	assert.False(t, existing["p9"])

	recent, err := items.ListRecentItems(ctx, ItemFilter{Since: now.Add(-90 * time.Minute), Categories: []string{"tech"}, OnlyUnassigned: true, Limit: 10})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.NoError(t, items.AssignTopic(ctx, []uint{recent[0].ID}, "topic-a"))
	recent, err = items.ListRecentItems(ctx, ItemFilter{Since: now.Add(-90 * time.Minute), OnlyUnassigned: true, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	embeddings := NewItemEmbeddingRepository(db)
	require.NoError(t, embeddings.SaveAll(ctx, []entity.ItemEmbedding{
		{ItemID: recent[0].ID, ModelVersion: "m1", Dimension: 3, Vector: []float32{0.1, 0.2, 0.3}},
	}))
	require.NoError(t, embeddings.SaveAll(ctx, []entity.ItemEmbedding{
		{ItemID: recent[0].ID, ModelVersion: "m1", Dimension: 3, Vector: []float32{9, 9, 9}},
	}), "saving an existing embedding replaces it")
	vectors, err := embeddings.FindByItemIDs(ctx, []uint{recent[0].ID}, "m1")
	require.NoError(t, err)
	assert.Equal(t, []float32{9, 9, 9}, vectors[recent[0].ID])

	articles := NewArticleRepository(db)
	article := &entity.Article{
		Slug:      "ai-chips-rally-1a2b3c4d",
		TopicKey:  "1a2b3c4d5e",
		Title:     "AI chips rally",
		Body:      "Body",
		Citations: []entity.Citation{{URL: "https://example.com/p1", Domain: "example.com"}},
	}
	ok, err := articles.InsertIfAbsent(ctx, article)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = articles.InsertIfAbsent(ctx, &entity.Article{Slug: "other", TopicKey: "1a2b3c4d5e", Title: "x", Body: "y"})
	require.NoError(t, err)
	assert.False(t, ok, "one article per topic key")
	require.NoError(t, articles.IncrementViews(ctx, article.Slug))
	stored, err := articles.FindBySlug(ctx, article.Slug)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stored.ViewCount)
	assert.Len(t, stored.Citations, 1)

	instruments, err := NewInstrumentsRepository(db).GetInstruments(ctx, entity.MarketCategories)
	require.NoError(t, err)
	assert.NotEmpty(t, instruments, "instruments are seeded by migration")

	trends := NewMarketTrendRepository(db)
	bucket := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	require.NoError(t, trends.Upsert(ctx, &entity.MarketTrend{Category: "stocks", Symbol: "BBCA", Bucket: bucket, MentionCount: 2, Score: 1.5}))
	require.NoError(t, trends.Upsert(ctx, &entity.MarketTrend{Category: "stocks", Symbol: "BBCA", Bucket: bucket, MentionCount: 4, Score: 3}))
	var trend entity.MarketTrend
	require.NoError(t, db.Where("symbol = ?", "BBCA").First(&trend).Error)
	assert.Equal(t, 4, trend.MentionCount)

	runs := NewWorkflowRunRepository(db)
	run := &entity.WorkflowRun{ID: "0b7e1c8a-1f7e-4d55-9a57-0d7b4c2e9f10", Trigger: entity.TriggerCron, Status: entity.RunStatusQueued, QueuedAt: now}
	require.NoError(t, runs.Create(ctx, run))
	require.NoError(t, runs.MarkStarted(ctx, run.ID, now))
	run.Status = entity.RunStatusSucceeded
	run.Success = true
	run.Steps = []byte(`{"scrape":{"status":"success"}}`)
	run.FinishedAt = sql.NullTime{Time: now.Add(time.Minute), Valid: true}
	require.NoError(t, runs.Finalize(ctx, run))
	assert.ErrorIs(t, runs.Finalize(ctx, run), ErrRunFinalized)
}
