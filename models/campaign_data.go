package models

import "time"

// Person is an engagement record collected for a campaign
type Person struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	CampaignID        string    `gorm:"size:64;not null;index:idx_people_campaign_id" json:"campaign_id"`
	FacebookAccountID string    `gorm:"size:64" json:"facebook_account_id"`
	FacebookID        string    `gorm:"size:64" json:"facebook_id"`
	Name              string    `gorm:"size:255" json:"name"`
	CreatedAt         time.Time `gorm:"not null" json:"created_at"`
}

func (Person) TableName() string { return "people" }

// Canvas is a campaign planning section
type Canvas struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CampaignID string    `gorm:"size:64;not null;index:idx_canvas_campaign_id" json:"campaign_id"`
	SectionKey string    `gorm:"size:64" json:"section_key"`
	Value      string    `gorm:"type:text" json:"value"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (Canvas) TableName() string { return "canvas" }

// MapFeature is a drawn feature on a campaign map
type MapFeature struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CampaignID string    `gorm:"size:64;not null;index:idx_map_features_campaign_id" json:"campaign_id"`
	Title      string    `gorm:"size:255" json:"title"`
	Geometry   string    `gorm:"type:text" json:"geometry"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (MapFeature) TableName() string { return "map_features" }
