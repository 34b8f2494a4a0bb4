package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// CampaignStatus represents the status of a campaign
type CampaignStatus string

const (
	CampaignStatusActive           CampaignStatus = "active"
	CampaignStatusSuspended        CampaignStatus = "suspended"
	CampaignStatusInvalidAdAccount CampaignStatus = "invalid-ad-account"
)

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusActive, CampaignStatusSuspended, CampaignStatusInvalidAdAccount:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignStatus: %s", s)
	}
	return string(s), nil
}

// Campaign is the read snapshot of a campaign supplied by the campaign CRUD layer
type Campaign struct {
	ID          string            `gorm:"primaryKey;size:64" json:"id"`
	Name        string            `gorm:"size:255" json:"name"`
	Status      CampaignStatus    `gorm:"type:varchar(32);not null;default:'active'" json:"status"`
	AdAccountID *string           `gorm:"size:64" json:"ad_account_id,omitempty"`
	ContextID   string            `gorm:"size:64;index:idx_campaigns_context_id" json:"context_id"`
	Accounts    []CampaignAccount `gorm:"foreignKey:CampaignID;references:ID" json:"accounts,omitempty"`
	CreatedAt   time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null" json:"updated_at"`
}

func (Campaign) TableName() string { return "campaigns" }

// IsSuspended reports whether the campaign was suspended by an operator
func (c *Campaign) IsSuspended() bool {
	return c.Status == CampaignStatusSuspended
}

// MainAccount returns the campaign's primary account, or nil
func (c *Campaign) MainAccount() *CampaignAccount {
	for i := range c.Accounts {
		if c.Accounts[i].IsMain {
			return &c.Accounts[i]
		}
	}
	return nil
}

// Account returns the attached account with the given Facebook id, or nil
func (c *Campaign) Account(facebookID string) *CampaignAccount {
	for i := range c.Accounts {
		if c.Accounts[i].FacebookID == facebookID {
			return &c.Accounts[i]
		}
	}
	return nil
}

// CampaignAccount attaches a Facebook account to a campaign.
// AccessToken is always a long-lived token returned by the token exchange.
type CampaignAccount struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CampaignID    string    `gorm:"size:64;not null;uniqueIndex:idx_campaign_accounts_campaign_facebook,priority:1" json:"campaign_id"`
	FacebookID    string    `gorm:"size:64;not null;uniqueIndex:idx_campaign_accounts_campaign_facebook,priority:2;index:idx_campaign_accounts_facebook_id" json:"facebook_id"`
	AccessToken   string    `gorm:"type:text;not null" json:"-"`
	IsMain        bool      `gorm:"not null;default:false" json:"is_main"`
	ChatbotActive bool      `gorm:"not null;default:false" json:"chatbot_active"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

func (CampaignAccount) TableName() string { return "campaign_accounts" }

// CampaignUser is a platform user with access to a campaign
type CampaignUser struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CampaignID  string    `gorm:"size:64;not null;uniqueIndex:idx_campaign_users_campaign_user,priority:1" json:"campaign_id"`
	UserID      string    `gorm:"size:64;not null;uniqueIndex:idx_campaign_users_campaign_user,priority:2" json:"user_id"`
	Role        string    `gorm:"size:32;not null;default:'guest'" json:"role"`
	AccessToken string    `gorm:"type:text" json:"-"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

func (CampaignUser) TableName() string { return "campaign_users" }

// AdAccountUser links a platform user and its Facebook user token to an ad account
type AdAccountUser struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	AdAccountID string    `gorm:"size:64;not null;uniqueIndex:idx_ad_account_users_account_user,priority:1" json:"ad_account_id"`
	UserID      string    `gorm:"size:64;not null;uniqueIndex:idx_ad_account_users_account_user,priority:2" json:"user_id"`
	AccessToken string    `gorm:"type:text;not null" json:"-"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

func (AdAccountUser) TableName() string { return "ad_account_users" }
