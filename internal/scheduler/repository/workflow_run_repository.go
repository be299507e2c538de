package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"golang-trend-publisher/internal/entity"

	"gorm.io/gorm"
)

// ErrRunNotFound is returned when no workflow run has the requested ID.
var ErrRunNotFound = errors.New("workflow run not found")

// RunFilter narrows a run listing. Zero values match everything.
type RunFilter struct {
	Status  entity.RunStatus
	Trigger string
	Limit   int
	Offset  int
}

// WorkflowRunRepository defines the interface for workflow run history operations.
type WorkflowRunRepository interface {
	Create(ctx context.Context, run *entity.WorkflowRun) error
	FindByID(ctx context.Context, id string) (*entity.WorkflowRun, error)
	List(ctx context.Context, filter RunFilter) ([]entity.WorkflowRun, int64, error)
	MarkFailed(ctx context.Context, id, reason string, at time.Time) error
}

// NewWorkflowRunRepository creates a new GORM-based workflow run repository.
func NewWorkflowRunRepository(db *gorm.DB) WorkflowRunRepository {
	return &workflowRunRepository{db: db}
}

type workflowRunRepository struct {
	db *gorm.DB
}

// Create creates a new workflow run record.
func (r *workflowRunRepository) Create(ctx context.Context, run *entity.WorkflowRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// FindByID retrieves a workflow run by its ID.
func (r *workflowRunRepository) FindByID(ctx context.Context, id string) (*entity.WorkflowRun, error) {
	var run entity.WorkflowRun
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return &run, nil
}

// List returns one page of runs, newest first, together with the total match count.
func (r *workflowRunRepository) List(ctx context.Context, filter RunFilter) ([]entity.WorkflowRun, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.WorkflowRun{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Trigger != "" {
		query = query.Where(`"trigger" = ?`, filter.Trigger)
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := query.Order("queued_at desc").Offset(filter.Offset)
	if filter.Limit > 0 {
		page = page.Limit(filter.Limit)
	}
	var runs []entity.WorkflowRun
	if err := page.Find(&runs).Error; err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// MarkFailed finalizes a run that never reached the executor.
func (r *workflowRunRepository) MarkFailed(ctx context.Context, id, reason string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&entity.WorkflowRun{}).
		Where("id = ? AND finished_at IS NULL", id).
		Updates(map[string]interface{}{
			"status":      entity.RunStatusFailed,
			"state":       "failed",
			"error":       sql.NullString{String: reason, Valid: true},
			"finished_at": sql.NullTime{Time: at, Valid: true},
		}).Error
}
