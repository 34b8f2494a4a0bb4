package dto

import "time"

// ListAuditLogsRequest filters the operator audit trail
type ListAuditLogsRequest struct {
	OperatorID string `query:"operator_id"`
	CampaignID string `query:"campaign_id"`
	Action     string `query:"action"`
	Success    *bool  `query:"success"`
	Since      string `query:"since" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Page       int    `query:"page"`
	PageSize   int    `query:"page_size"`
}

// AuditLogResponse is one recorded operator action
type AuditLogResponse struct {
	ID         uint      `json:"id"`
	OperatorID string    `json:"operator_id,omitempty"`
	Role       string    `json:"role,omitempty"`
	Action     string    `json:"action"`
	CampaignID string    `json:"campaign_id,omitempty"`
	Target     string    `json:"target,omitempty"`
	StatusCode int       `json:"status_code"`
	Success    bool      `json:"success"`
	ErrorCode  string    `json:"error_code,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListAuditLogsResponse is a page of audit entries
type ListAuditLogsResponse struct {
	Items    []AuditLogResponse `json:"items"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}
