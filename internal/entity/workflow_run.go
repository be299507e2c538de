package entity

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run triggers.
const (
	TriggerCron = "cron"
	TriggerHTTP = "http"
	TriggerCLI  = "cli"
)

// RunOptions are the per-run overrides. Zero values fall back to configuration defaults.
type RunOptions struct {
	ClusteringThreshold float64 `json:"clustering_threshold,omitempty"`
	Hours               int     `json:"hours,omitempty"`
	MaxItems            int     `json:"max_items,omitempty"`
}

// WorkflowRun is the audit record of one pipeline execution. It is immutable once FinishedAt is set.
type WorkflowRun struct {
	ID         string                         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Trigger    string                         `gorm:"type:varchar(20);not null" json:"trigger"`
	Status     RunStatus                      `gorm:"type:varchar(20);not null;index" json:"status"`
	State      string                         `gorm:"type:varchar(30)" json:"state"`
	Success    bool                           `gorm:"not null;default:false" json:"success"`
	Options    datatypes.JSONType[RunOptions] `gorm:"type:jsonb" json:"options"`
	Steps      datatypes.JSON                 `gorm:"type:jsonb" json:"steps"`
	Error      sql.NullString                 `gorm:"type:text" json:"error"`
	QueuedAt   time.Time                      `gorm:"not null" json:"queued_at"`
	StartedAt  sql.NullTime                   `json:"started_at"`
	FinishedAt sql.NullTime                   `json:"finished_at"`
	CreatedAt  time.Time                      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time                      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WorkflowRun) TableName() string {
	return "workflow_runs"
}
