package models

import (
	"time"
)

// AuditLog records one operator request that changed orchestration state
type AuditLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	OperatorID *string   `gorm:"size:255;index:idx_audit_operator_id" json:"operator_id,omitempty"`
	Role       *string   `gorm:"size:32" json:"role,omitempty"`
	Action     string    `gorm:"size:255;not null;index:idx_audit_action" json:"action"`
	CampaignID *string   `gorm:"size:255;index:idx_audit_campaign_id" json:"campaign_id,omitempty"`
	Target     *string   `gorm:"size:255" json:"target,omitempty"`
	StatusCode int       `gorm:"not null" json:"status_code"`
	Success    bool      `gorm:"not null;index:idx_audit_success" json:"success"`
	ErrorCode  *string   `gorm:"size:64" json:"error_code,omitempty"`
	IPAddress  *string   `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent  *string   `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID  *string   `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	CreatedAt  time.Time `gorm:"not null;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	OperatorID    *string
	CampaignID    *string
	Action        *string
	Success       *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return !a.Success
}
