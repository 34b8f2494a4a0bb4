package testing

import (
	"fmt"

	"github.com/amirphl/audience-orchestrator/models"
	"github.com/amirphl/audience-orchestrator/utils"
	"github.com/lib/pq"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTargetingContext creates a targeting context with the given number of
// location geolocations and interest categories
func (tf *TestFixtures) CreateTargetingContext(id string, geolocations, categories int) (*models.Context, error) {
	ctxRow := &models.Context{
		ID:                  id,
		Name:                "Context " + id,
		GeolocationIDs:      pq.StringArray{},
		AudienceCategoryIDs: pq.StringArray{},
	}

	for i := 1; i <= geolocations; i++ {
		geo := &models.Geolocation{
			ID:   fmt.Sprintf("%s-G%d", id, i),
			Name: fmt.Sprintf("Region %d", i),
			Type: models.GeolocationTypeLocation,
			Facebook: []models.FacebookLocation{
				{Key: fmt.Sprintf("BR-%d", i), Type: "region", Name: fmt.Sprintf("Region %d", i)},
			},
		}
		if err := tf.DB.DB.Create(geo).Error; err != nil {
			return nil, fmt.Errorf("failed to create geolocation: %w", err)
		}
		ctxRow.GeolocationIDs = append(ctxRow.GeolocationIDs, geo.ID)
	}

	for i := 1; i <= categories; i++ {
		category := &models.AudienceCategory{
			ID:    fmt.Sprintf("%s-K%d", id, i),
			Title: fmt.Sprintf("Category %d", i),
			Spec: map[string]any{
				"interests": []any{
					map[string]any{"id": fmt.Sprintf("600%d", i), "name": fmt.Sprintf("Interest %d", i)},
				},
			},
		}
		if err := tf.DB.DB.Create(category).Error; err != nil {
			return nil, fmt.Errorf("failed to create audience category: %w", err)
		}
		ctxRow.AudienceCategoryIDs = append(ctxRow.AudienceCategoryIDs, category.ID)
	}

	if err := tf.DB.DB.Create(ctxRow).Error; err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	return ctxRow, nil
}

// CreateTestCampaign creates an active campaign bound to the context and ad account,
// with one registered ad account user
func (tf *TestFixtures) CreateTestCampaign(id, contextID, adAccountID string) (*models.Campaign, error) {
	campaign := &models.Campaign{
		ID:          id,
		Name:        "Campaign " + id,
		Status:      models.CampaignStatusActive,
		AdAccountID: utils.ToPtr(adAccountID),
		ContextID:   contextID,
	}
	if err := tf.DB.DB.Create(campaign).Error; err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	user := &models.AdAccountUser{
		AdAccountID: adAccountID,
		UserID:      "user-" + id,
		AccessToken: "user-token-" + id,
	}
	if err := tf.DB.DB.Where("ad_account_id = ? AND user_id = ?", user.AdAccountID, user.UserID).
		FirstOrCreate(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create ad account user: %w", err)
	}
	return campaign, nil
}

// AttachTestAccount attaches an account directly, bypassing token exchange
func (tf *TestFixtures) AttachTestAccount(campaignID, facebookID string, isMain bool) (*models.CampaignAccount, error) {
	directory := &models.FacebookAccount{FacebookID: facebookID, Name: "Page " + facebookID}
	if err := tf.DB.DB.Where("facebook_id = ?", facebookID).FirstOrCreate(directory).Error; err != nil {
		return nil, fmt.Errorf("failed to create facebook account: %w", err)
	}

	account := &models.CampaignAccount{
		CampaignID:  campaignID,
		FacebookID:  facebookID,
		AccessToken: "long-token-" + facebookID,
		IsMain:      isMain,
	}
	if err := tf.DB.DB.Create(account).Error; err != nil {
		return nil, fmt.Errorf("failed to attach account: %w", err)
	}
	return account, nil
}
