package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gorm.io/gorm"

	"golang-trend-publisher/internal/entity"
)

// ErrRunFinalized is returned when writing to a run that already finished.
var ErrRunFinalized = errors.New("workflow run already finalized")

// WorkflowRunRepository defines the interface for workflow run records.
type WorkflowRunRepository interface {
	Create(ctx context.Context, run *entity.WorkflowRun) error
	FindByID(ctx context.Context, id string) (*entity.WorkflowRun, error)
	MarkStarted(ctx context.Context, id string, startedAt time.Time) error
	// Finalize writes the terminal fields of run. A run can be finalized once.
	Finalize(ctx context.Context, run *entity.WorkflowRun) error
}

// NewWorkflowRunRepository creates a new GORM-based workflow run repository.
func NewWorkflowRunRepository(db *gorm.DB) WorkflowRunRepository {
	return &workflowRunRepository{db: db}
}

type workflowRunRepository struct {
	db *gorm.DB
}

func (r *workflowRunRepository) Create(ctx context.Context, run *entity.WorkflowRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// FindByID retrieves a workflow run by its ID.
func (r *workflowRunRepository) FindByID(ctx context.Context, id string) (*entity.WorkflowRun, error) {
	var run entity.WorkflowRun
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *workflowRunRepository) MarkStarted(ctx context.Context, id string, startedAt time.Time) error {
	tx := r.db.WithContext(ctx).Model(&entity.WorkflowRun{}).
		Where("id = ? AND finished_at IS NULL", id).
		Updates(map[string]interface{}{
			"status":     entity.RunStatusRunning,
			"started_at": sql.NullTime{Time: startedAt, Valid: true},
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrRunFinalized
	}
	return nil
}

func (r *workflowRunRepository) Finalize(ctx context.Context, run *entity.WorkflowRun) error {
	tx := r.db.WithContext(ctx).Model(&entity.WorkflowRun{}).
		Where("id = ? AND finished_at IS NULL", run.ID).
		Updates(map[string]interface{}{
			"status":      run.Status,
			"state":       run.State,
			"success":     run.Success,
			"steps":       run.Steps,
			"error":       run.Error,
			"finished_at": run.FinishedAt,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrRunFinalized
	}
	return nil
}
