package dto

import "time"

// AudienceRecordResponse is one audience record
type AudienceRecordResponse struct {
	CampaignID         string    `json:"campaign_id"`
	FacebookAccountID  string    `json:"facebook_account_id"`
	AudienceCategoryID string    `json:"audience_category_id"`
	GeolocationID      string    `json:"geolocation_id"`
	FetchDate          string    `json:"fetch_date"`
	Estimate           int64     `json:"estimate"`
	Total              int64     `json:"total"`
	LocationEstimate   int64     `json:"location_estimate"`
	LocationTotal      int64     `json:"location_total"`
	CreatedAt          time.Time `json:"created_at"`
}

// LatestAudienceRequest selects one natural key
type LatestAudienceRequest struct {
	CampaignID         string `json:"-"`
	FacebookAccountID  string `query:"facebook_account_id" validate:"required"`
	AudienceCategoryID string `query:"audience_category_id" validate:"required"`
	GeolocationID      string `query:"geolocation_id" validate:"required"`
}

// CampaignAudienceResponse lists the latest record of every natural key of a campaign
type CampaignAudienceResponse struct {
	CampaignID string                   `json:"campaign_id"`
	Items      []AudienceRecordResponse `json:"items"`
}

// AudienceExportResponse is the operator view of an export
type AudienceExportResponse struct {
	ID                string    `json:"id"`
	CampaignID        string    `json:"campaign_id"`
	FacebookAccountID string    `json:"facebook_account_id,omitempty"`
	Status            string    `json:"status"`
	Rows              int       `json:"rows"`
	ExpiresAt         time.Time `json:"expires_at"`
	CreatedAt         time.Time `json:"created_at"`
}

// CreateExportRequest represents the request to export a campaign's audience
type CreateExportRequest struct {
	CampaignID        string `json:"-"`
	FacebookAccountID string `json:"facebook_account_id" validate:"omitempty,max=64"`
}
