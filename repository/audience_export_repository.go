package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/audience-orchestrator/models"
	"github.com/amirphl/audience-orchestrator/utils"
	"gorm.io/gorm"
)

// AudienceExportRepositoryImpl implements AudienceExportRepository
type AudienceExportRepositoryImpl struct {
	*BaseRepository[models.AudienceExport, any]
}

func NewAudienceExportRepository(db *gorm.DB) AudienceExportRepository {
	return &AudienceExportRepositoryImpl{BaseRepository: NewBaseRepository[models.AudienceExport, any](db)}
}

func (r *AudienceExportRepositoryImpl) ByID(ctx context.Context, id string) (*models.AudienceExport, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *AudienceExportRepositoryImpl) UpdateStatus(ctx context.Context, id string, status models.AudienceExportStatus) error {
	err := r.getDB(ctx).Model(&models.AudienceExport{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": utils.UTCNow()}).Error
	if err != nil {
		return fmt.Errorf("failed to update export %s: %w", id, err)
	}
	return nil
}

func (r *AudienceExportRepositoryImpl) ListByCampaign(ctx context.Context, campaignID string) ([]*models.AudienceExport, error) {
	var rows []*models.AudienceExport
	err := r.getDB(ctx).Where("campaign_id = ?", campaignID).Order("created_at DESC").Find(&rows).Error
	return rows, err
}

func (r *AudienceExportRepositoryImpl) DeleteByCampaign(ctx context.Context, campaignID string) (int64, error) {
	res := r.getDB(ctx).Where("campaign_id = ?", campaignID).Delete(&models.AudienceExport{})
	return res.RowsAffected, res.Error
}
