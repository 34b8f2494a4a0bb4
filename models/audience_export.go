package models

import "time"

// AudienceExportStatus represents the status of an audience export file
type AudienceExportStatus string

const (
	AudienceExportStatusPending AudienceExportStatus = "pending"
	AudienceExportStatusReady   AudienceExportStatus = "ready"
	AudienceExportStatusExpired AudienceExportStatus = "expired"
)

// AudienceExport is a spreadsheet of a campaign's latest audience records
type AudienceExport struct {
	ID                string               `gorm:"primaryKey;size:36" json:"id"`
	CampaignID        string               `gorm:"size:64;not null;index:idx_audience_exports_campaign_id" json:"campaign_id"`
	FacebookAccountID string               `gorm:"size:64" json:"facebook_account_id,omitempty"`
	FilePath          string               `gorm:"type:text" json:"-"`
	Status            AudienceExportStatus `gorm:"type:varchar(16);not null" json:"status"`
	Rows              int                  `gorm:"not null;default:0" json:"rows"`
	ExpiresAt         time.Time            `gorm:"not null" json:"expires_at"`
	CreatedAt         time.Time            `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time            `gorm:"not null" json:"updated_at"`
}

func (AudienceExport) TableName() string { return "audience_exports" }

// InFlight reports whether the export still holds a file on disk
func (e *AudienceExport) InFlight() bool {
	return e.Status != AudienceExportStatusExpired
}
