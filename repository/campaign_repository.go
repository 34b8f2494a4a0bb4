package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/audience-orchestrator/models"
	"github.com/amirphl/audience-orchestrator/utils"
	"gorm.io/gorm"
)

// CampaignRepositoryImpl implements CampaignRepository
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, any]
}

func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{BaseRepository: NewBaseRepository[models.Campaign, any](db)}
}

// ByID returns the campaign with its attached accounts, main account first
func (r *CampaignRepositoryImpl) ByID(ctx context.Context, id string) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.getDB(ctx).
		Preload("Accounts", func(db *gorm.DB) *gorm.DB {
			return db.Order("is_main DESC, created_at ASC, id ASC")
		}).
		Where("id = ?", id).
		Take(&campaign).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find campaign %s: %w", id, err)
	}
	return &campaign, nil
}

func (r *CampaignRepositoryImpl) UpdateStatus(ctx context.Context, id string, status models.CampaignStatus) error {
	res := r.getDB(ctx).Model(&models.Campaign{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": utils.UTCNow()})
	if res.Error != nil {
		return fmt.Errorf("failed to update campaign %s status: %w", id, res.Error)
	}
	return nil
}

// ClearAdAccount drops the ad account reference and marks the campaign invalid
func (r *CampaignRepositoryImpl) ClearAdAccount(ctx context.Context, id string) error {
	res := r.getDB(ctx).Model(&models.Campaign{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"ad_account_id": nil,
			"status":        models.CampaignStatusInvalidAdAccount,
			"updated_at":    utils.UTCNow(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to clear ad account of campaign %s: %w", id, res.Error)
	}
	return nil
}

// AttachAccount adds the account to the campaign or refreshes its token.
// Promoting an account to main demotes the previous main account.
func (r *CampaignRepositoryImpl) AttachAccount(ctx context.Context, account *models.CampaignAccount) error {
	db := r.getDB(ctx)
	now := utils.UTCNow()

	if account.IsMain {
		err := db.Model(&models.CampaignAccount{}).
			Where("campaign_id = ? AND facebook_id <> ? AND is_main = ?", account.CampaignID, account.FacebookID, true).
			Updates(map[string]any{"is_main": false, "updated_at": now}).Error
		if err != nil {
			return fmt.Errorf("failed to demote main account of campaign %s: %w", account.CampaignID, err)
		}
	}

	var existing models.CampaignAccount
	err := db.Where("campaign_id = ? AND facebook_id = ?", account.CampaignID, account.FacebookID).Take(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		account.CreatedAt = now
		account.UpdatedAt = now
		if err := db.Create(account).Error; err != nil {
			return fmt.Errorf("failed to attach account %s to campaign %s: %w", account.FacebookID, account.CampaignID, err)
		}
		return nil
	case err != nil:
		return err
	}

	updates := map[string]any{
		"access_token": account.AccessToken,
		"updated_at":   now,
	}
	if account.IsMain {
		updates["is_main"] = true
	}
	if err := db.Model(&existing).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update account %s of campaign %s: %w", account.FacebookID, account.CampaignID, err)
	}
	account.ID = existing.ID
	account.IsMain = existing.IsMain || account.IsMain
	account.CreatedAt = existing.CreatedAt
	return nil
}

func (r *CampaignRepositoryImpl) DetachAccount(ctx context.Context, campaignID, facebookID string) (int64, error) {
	res := r.getDB(ctx).
		Where("campaign_id = ? AND facebook_id = ?", campaignID, facebookID).
		Delete(&models.CampaignAccount{})
	return res.RowsAffected, res.Error
}

func (r *CampaignRepositoryImpl) DetachAllAccounts(ctx context.Context, campaignID string) (int64, error) {
	res := r.getDB(ctx).Where("campaign_id = ?", campaignID).Delete(&models.CampaignAccount{})
	return res.RowsAffected, res.Error
}

func (r *CampaignRepositoryImpl) UpdateAccountToken(ctx context.Context, campaignID, facebookID, accessToken string) error {
	return r.getDB(ctx).Model(&models.CampaignAccount{}).
		Where("campaign_id = ? AND facebook_id = ?", campaignID, facebookID).
		Updates(map[string]any{"access_token": accessToken, "updated_at": utils.UTCNow()}).Error
}

// CountCampaignsWithAccount counts the campaigns an account is attached to
func (r *CampaignRepositoryImpl) CountCampaignsWithAccount(ctx context.Context, facebookID string) (int64, error) {
	var count int64
	err := r.getDB(ctx).Model(&models.CampaignAccount{}).
		Where("facebook_id = ?", facebookID).
		Distinct("campaign_id").
		Count(&count).Error
	return count, err
}

func (r *CampaignRepositoryImpl) ListUsers(ctx context.Context, campaignID string) ([]*models.CampaignUser, error) {
	var rows []*models.CampaignUser
	err := r.getDB(ctx).Where("campaign_id = ?", campaignID).Order("id ASC").Find(&rows).Error
	return rows, err
}

func (r *CampaignRepositoryImpl) DeleteUsers(ctx context.Context, campaignID string) (int64, error) {
	res := r.getDB(ctx).Where("campaign_id = ?", campaignID).Delete(&models.CampaignUser{})
	return res.RowsAffected, res.Error
}

func (r *CampaignRepositoryImpl) Delete(ctx context.Context, id string) error {
	if err := r.getDB(ctx).Where("id = ?", id).Delete(&models.Campaign{}).Error; err != nil {
		return fmt.Errorf("failed to delete campaign %s: %w", id, err)
	}
	return nil
}
