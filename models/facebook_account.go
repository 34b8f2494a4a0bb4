package models

import "time"

// FacebookAccount is the directory entry of a Facebook page shared across campaigns
type FacebookAccount struct {
	FacebookID string    `gorm:"primaryKey;size:64" json:"facebook_id"`
	Name       string    `gorm:"size:255" json:"name"`
	Category   string    `gorm:"size:255" json:"category"`
	FanCount   int64     `gorm:"not null;default:0" json:"fan_count"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

func (FacebookAccount) TableName() string { return "facebook_accounts" }
