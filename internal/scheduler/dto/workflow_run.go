package dto

import (
	"encoding/json"
	"time"
)

// TriggerRunRequest is the body of a manual run trigger. Omitted fields use the executor defaults.
type TriggerRunRequest struct {
	ClusteringThreshold float64 `json:"clustering_threshold,omitempty" example:"0.8"`
	Hours               int     `json:"hours,omitempty" example:"24"`
	MaxItems            int     `json:"max_items,omitempty" example:"500"`
}

// TriggerRunResponse acknowledges a queued run.
type TriggerRunResponse struct {
	ID       string    `json:"id"`
	Status   string    `json:"status"`
	StreamID string    `json:"stream_id"`
	QueuedAt time.Time `json:"queued_at"`
}

// RunOptionsResponse echoes the overrides a run was queued with.
type RunOptionsResponse struct {
	ClusteringThreshold float64 `json:"clustering_threshold,omitempty"`
	Hours               int     `json:"hours,omitempty"`
	MaxItems            int     `json:"max_items,omitempty"`
}

// WorkflowRunResponse is the DTO for API responses containing workflow run details.
type WorkflowRunResponse struct {
	ID         string             `json:"id"`
	Trigger    string             `json:"trigger"`
	Status     string             `json:"status"`
	State      string             `json:"state"`
	Success    bool               `json:"success"`
	Options    RunOptionsResponse `json:"options"`
	Steps      json.RawMessage    `json:"steps,omitempty" swaggertype:"object"`
	Error      string             `json:"error,omitempty"`
	QueuedAt   time.Time          `json:"queued_at"`
	StartedAt  *time.Time         `json:"started_at,omitempty"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	Duration   int64              `json:"duration_ms"`
}

// WorkflowRunListResponse is one page of workflow runs.
type WorkflowRunListResponse struct {
	Items  []*WorkflowRunResponse `json:"items"`
	Total  int64                  `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

// ListRunsQuery holds the list filters bound from the query string.
type ListRunsQuery struct {
	Status  string `query:"status"`
	Trigger string `query:"trigger"`
	Limit   int    `query:"limit"`
	Offset  int    `query:"offset"`
}
