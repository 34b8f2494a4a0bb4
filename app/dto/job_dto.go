package dto

import "time"

// JobResponse is the operator view of a job. Payload tokens are never exposed.
type JobResponse struct {
	ID                string     `json:"id"`
	Type              string     `json:"type"`
	Status            string     `json:"status"`
	CampaignID        string     `json:"campaign_id,omitempty"`
	FacebookAccountID string     `json:"facebook_account_id,omitempty"`
	ExportID          string     `json:"export_id,omitempty"`
	RunAt             time.Time  `json:"run_at"`
	Attempts          int        `json:"attempts"`
	Error             *string    `json:"error,omitempty"`
	Action            string     `json:"action,omitempty"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ListJobsRequest represents the job inspection filter
type ListJobsRequest struct {
	CampaignID        string `query:"campaign_id"`
	FacebookAccountID string `query:"facebook_account_id"`
	Type              string `query:"type"`
	Status            string `query:"status" validate:"omitempty,oneof=waiting ready active completed failed cancelled"`
	Page              int    `query:"page"`
	PageSize          int    `query:"page_size"`
}

// ListJobsResponse is a page of jobs
type ListJobsResponse struct {
	Items    []JobResponse `json:"items"`
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}
