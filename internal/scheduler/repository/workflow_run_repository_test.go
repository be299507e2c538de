package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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
	require.NoError(t, db.AutoMigrate(&entity.WorkflowRun{}))
	return db
}

func seedRuns(t *testing.T, repo WorkflowRunRepository, base time.Time) {
	t.Helper()
	statuses := []entity.RunStatus{entity.RunStatusSucceeded, entity.RunStatusFailed, entity.RunStatusSucceeded, entity.RunStatusQueued, entity.RunStatusSucceeded}
	for i, status := range statuses {
		trigger := entity.TriggerCron
		if i%2 == 1 {
			trigger = entity.TriggerHTTP
		}
		require.NoError(t, repo.Create(context.Background(), &entity.WorkflowRun{
			ID:       fmt.Sprintf("run-%d", i),
			Trigger:  trigger,
			Status:   status,
			QueuedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
}

func TestWorkflowRunRepository_FindByID(t *testing.T) {
	repo := NewWorkflowRunRepository(newTestDB(t))
	seedRuns(t, repo, time.Now().UTC())

	run, err := repo.FindByID(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, entity.RunStatusFailed, run.Status)

	_, err = repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestWorkflowRunRepository_List(t *testing.T) {
	repo := NewWorkflowRunRepository(newTestDB(t))
	seedRuns(t, repo, time.Now().UTC())
	ctx := context.Background()

	runs, total, err := repo.List(ctx, RunFilter{Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-4", runs[0].ID, "newest first")
	assert.Equal(t, "run-3", runs[1].ID)

	runs, total, err = repo.List(ctx, RunFilter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-0", runs[0].ID)

	runs, total, err = repo.List(ctx, RunFilter{Status: entity.RunStatusSucceeded, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, runs, 3)

	runs, total, err = repo.List(ctx, RunFilter{Trigger: entity.TriggerHTTP, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, runs, 2)
}

func TestWorkflowRunRepository_MarkFailed(t *testing.T) {
	repo := NewWorkflowRunRepository(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &entity.WorkflowRun{
		ID: "run-x", Trigger: entity.TriggerHTTP, Status: entity.RunStatusQueued, QueuedAt: time.Now().UTC(),
	}))

	at := time.Now().UTC()
	require.NoError(t, repo.MarkFailed(ctx, "run-x", "redis unavailable", at))

	run, err := repo.FindByID(ctx, "run-x")
	require.NoError(t, err)
	assert.Equal(t, entity.RunStatusFailed, run.Status)
	assert.Equal(t, "redis unavailable", run.Error.String)
	assert.True(t, run.FinishedAt.Valid)

	// A finished run is left untouched.
	require.NoError(t, repo.MarkFailed(ctx, "run-x", "second reason", at.Add(time.Minute)))
	run, err = repo.FindByID(ctx, "run-x")
	require.NoError(t, err)
	assert.Equal(t, "redis unavailable", run.Error.String)
}
