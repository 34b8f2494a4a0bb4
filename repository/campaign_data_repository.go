package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/audience-orchestrator/models"
	"gorm.io/gorm"
)

// CampaignDataRepositoryImpl implements CampaignDataRepository
type CampaignDataRepositoryImpl struct {
	*BaseRepository[models.Person, any]
}

func NewCampaignDataRepository(db *gorm.DB) CampaignDataRepository {
	return &CampaignDataRepositoryImpl{BaseRepository: NewBaseRepository[models.Person, any](db)}
}

// DeleteByCampaign removes people, canvas sections and map features of a campaign
func (r *CampaignDataRepositoryImpl) DeleteByCampaign(ctx context.Context, campaignID string) error {
	db := r.getDB(ctx)
	for _, model := range []any{&models.Person{}, &models.Canvas{}, &models.MapFeature{}} {
		if err := db.Where("campaign_id = ?", campaignID).Delete(model).Error; err != nil {
			return fmt.Errorf("failed to delete %T of campaign %s: %w", model, campaignID, err)
		}
	}
	return nil
}
