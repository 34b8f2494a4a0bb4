package models

import "time"

// FacebookAudience is the outcome of one estimate cycle for one
// (campaign, account, category, geolocation, fetch date) tuple
type FacebookAudience struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	CampaignID         string    `gorm:"size:64;not null;uniqueIndex:idx_facebook_audiences_natural_key,priority:1" json:"campaign_id"`
	FacebookAccountID  string    `gorm:"size:64;not null;uniqueIndex:idx_facebook_audiences_natural_key,priority:2" json:"facebook_account_id"`
	AudienceCategoryID string    `gorm:"size:64;not null;uniqueIndex:idx_facebook_audiences_natural_key,priority:3" json:"audience_category_id"`
	GeolocationID      string    `gorm:"size:64;not null;uniqueIndex:idx_facebook_audiences_natural_key,priority:4" json:"geolocation_id"`
	FetchDate          string    `gorm:"size:10;not null;uniqueIndex:idx_facebook_audiences_natural_key,priority:5" json:"fetch_date"`
	Estimate           int64     `gorm:"not null;default:0" json:"estimate"`
	Total              int64     `gorm:"not null;default:0" json:"total"`
	LocationEstimate   int64     `gorm:"not null;default:0" json:"location_estimate"`
	LocationTotal      int64     `gorm:"not null;default:0" json:"location_total"`
	CreatedAt          time.Time `gorm:"not null;index:idx_facebook_audiences_created_at" json:"created_at"`
	UpdatedAt          time.Time `gorm:"not null" json:"updated_at"`
}

func (FacebookAudience) TableName() string { return "facebook_audiences" }

// FacebookAudienceFilter selects audience records
type FacebookAudienceFilter struct {
	CampaignID         *string
	FacebookAccountID  *string
	AudienceCategoryID *string
	GeolocationID      *string
	FetchDate          *string
}
