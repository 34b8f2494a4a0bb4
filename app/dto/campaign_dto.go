package dto

// AttachAccountRequest represents the request to attach a Facebook page to a campaign.
// AccessToken is the short-lived page token; it is exchanged and never stored.
type AttachAccountRequest struct {
	CampaignID  string `json:"-"`
	FacebookID  string `json:"id" validate:"required,max=64"`
	Name        string `json:"name" validate:"max=255"`
	Category    string `json:"category" validate:"max=255"`
	FanCount    int64  `json:"fan_count" validate:"gte=0"`
	AccessToken string `json:"access_token" validate:"required"`
}

// AttachAccountResponse represents the response to an attached account
type AttachAccountResponse struct {
	Message    string        `json:"message"`
	CampaignID string        `json:"campaign_id"`
	FacebookID string        `json:"facebook_id"`
	IsMain     bool          `json:"is_main"`
	Jobs       []JobResponse `json:"jobs"`
}

// RemoveAccountRequest represents the request to detach an account from a campaign
type RemoveAccountRequest struct {
	CampaignID string `json:"-"`
	FacebookID string `json:"-" validate:"required"`
}

// RemoveAccountResponse represents the response to a detached account
type RemoveAccountResponse struct {
	Message              string `json:"message"`
	RemovedJobs          int64  `json:"removed_jobs"`
	RemovedAudiences     int64  `json:"removed_audiences"`
	AccountDeprovisioned bool   `json:"account_deprovisioned"`
}

// RefreshAccountJobRequest represents the request to refresh one job of an attached account
type RefreshAccountJobRequest struct {
	CampaignID        string `json:"-"`
	FacebookAccountID string `json:"-"`
	Kind              string `json:"kind" validate:"required,oneof=entries refetch audiences fbUsers"`
}

// CampaignActionResponse represents the response of a campaign lifecycle trigger
type CampaignActionResponse struct {
	Message    string `json:"message"`
	CampaignID string `json:"campaign_id"`
	Status     string `json:"status,omitempty"`
}

// CampaignJobsResponse lists the jobs a campaign refresh converged
type CampaignJobsResponse struct {
	Message    string        `json:"message"`
	CampaignID string        `json:"campaign_id"`
	Status     string        `json:"status"`
	Jobs       []JobResponse `json:"jobs"`
}

// RemoveCampaignResponse summarises a campaign cascade delete
type RemoveCampaignResponse struct {
	Message               string `json:"message"`
	CampaignID            string `json:"campaign_id"`
	ExpiredExports        int    `json:"expired_exports"`
	RemovedJobs           int64  `json:"removed_jobs"`
	RemovedAudiences      int64  `json:"removed_audiences"`
	DeprovisionedAccounts int    `json:"deprovisioned_accounts"`
}

// RefreshTokensResponse reports the accounts whose stored token was renewed
type RefreshTokensResponse struct {
	Message    string   `json:"message"`
	CampaignID string   `json:"campaign_id"`
	Refreshed  []string `json:"refreshed"`
}
