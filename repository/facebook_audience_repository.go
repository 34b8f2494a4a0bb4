package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/audience-orchestrator/models"
	"github.com/amirphl/audience-orchestrator/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FacebookAudienceRepositoryImpl implements FacebookAudienceRepository
type FacebookAudienceRepositoryImpl struct {
	*BaseRepository[models.FacebookAudience, models.FacebookAudienceFilter]
}

func NewFacebookAudienceRepository(db *gorm.DB) FacebookAudienceRepository {
	return &FacebookAudienceRepositoryImpl{
		BaseRepository: NewBaseRepository[models.FacebookAudience, models.FacebookAudienceFilter](db),
	}
}

// Upsert inserts the record or overwrites the four estimates of the existing
// record with the same natural key
func (r *FacebookAudienceRepositoryImpl) Upsert(ctx context.Context, record *models.FacebookAudience) error {
	now := utils.UTCNow()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	err := r.getDB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "campaign_id"},
			{Name: "facebook_account_id"},
			{Name: "audience_category_id"},
			{Name: "geolocation_id"},
			{Name: "fetch_date"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"estimate", "total", "location_estimate", "location_total", "updated_at",
		}),
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to upsert audience for campaign %s account %s: %w",
			record.CampaignID, record.FacebookAccountID, err)
	}
	return nil
}

// Latest returns the most recent record of a (campaign, account, category, geolocation)
func (r *FacebookAudienceRepositoryImpl) Latest(ctx context.Context, campaignID, facebookAccountID, audienceCategoryID, geolocationID string) (*models.FacebookAudience, error) {
	var row models.FacebookAudience
	err := r.getDB(ctx).
		Where("campaign_id = ? AND facebook_account_id = ? AND audience_category_id = ? AND geolocation_id = ?",
			campaignID, facebookAccountID, audienceCategoryID, geolocationID).
		Order("created_at DESC, id DESC").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// LatestByCampaign returns the newest record of every (account, category, geolocation) of a campaign
func (r *FacebookAudienceRepositoryImpl) LatestByCampaign(ctx context.Context, campaignID string, facebookAccountID *string) ([]*models.FacebookAudience, error) {
	filter := models.FacebookAudienceFilter{CampaignID: &campaignID, FacebookAccountID: facebookAccountID}
	rows, err := r.ByFilter(ctx, filter, "created_at DESC, id DESC", 0, 0)
	if err != nil {
		return nil, err
	}

	type key struct{ account, category, geolocation string }
	seen := make(map[key]struct{}, len(rows))
	latest := make([]*models.FacebookAudience, 0, len(rows))
	for _, row := range rows {
		k := key{row.FacebookAccountID, row.AudienceCategoryID, row.GeolocationID}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		latest = append(latest, row)
	}
	return latest, nil
}

func (r *FacebookAudienceRepositoryImpl) DeleteByCampaign(ctx context.Context, campaignID string) (int64, error) {
	res := r.getDB(ctx).Where("campaign_id = ?", campaignID).Delete(&models.FacebookAudience{})
	return res.RowsAffected, res.Error
}

func (r *FacebookAudienceRepositoryImpl) DeleteByCampaignAccount(ctx context.Context, campaignID, facebookAccountID string) (int64, error) {
	res := r.getDB(ctx).
		Where("campaign_id = ? AND facebook_account_id = ?", campaignID, facebookAccountID).
		Delete(&models.FacebookAudience{})
	return res.RowsAffected, res.Error
}

func (r *FacebookAudienceRepositoryImpl) ByFilter(ctx context.Context, filter models.FacebookAudienceFilter, orderBy string, limit, offset int) ([]*models.FacebookAudience, error) {
	var rows []*models.FacebookAudience
	db := paginate(applyAudienceFilter(r.getDB(ctx), filter), orderBy, limit, offset)
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *FacebookAudienceRepositoryImpl) Count(ctx context.Context, filter models.FacebookAudienceFilter) (int64, error) {
	var count int64
	if err := applyAudienceFilter(r.getDB(ctx).Model(&models.FacebookAudience{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func applyAudienceFilter(db *gorm.DB, filter models.FacebookAudienceFilter) *gorm.DB {
	if filter.CampaignID != nil {
		db = db.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.FacebookAccountID != nil {
		db = db.Where("facebook_account_id = ?", *filter.FacebookAccountID)
	}
	if filter.AudienceCategoryID != nil {
		db = db.Where("audience_category_id = ?", *filter.AudienceCategoryID)
	}
	if filter.GeolocationID != nil {
		db = db.Where("geolocation_id = ?", *filter.GeolocationID)
	}
	if filter.FetchDate != nil {
		db = db.Where("fetch_date = ?", *filter.FetchDate)
	}
	return db
}
