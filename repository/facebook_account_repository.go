package repository

import (
	"context"
	"fmt"

	"github.com/amirphl/audience-orchestrator/models"
	"github.com/amirphl/audience-orchestrator/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FacebookAccountRepositoryImpl implements FacebookAccountRepository
type FacebookAccountRepositoryImpl struct {
	*BaseRepository[models.FacebookAccount, any]
}

func NewFacebookAccountRepository(db *gorm.DB) FacebookAccountRepository {
	return &FacebookAccountRepositoryImpl{BaseRepository: NewBaseRepository[models.FacebookAccount, any](db)}
}

func (r *FacebookAccountRepositoryImpl) ByFacebookID(ctx context.Context, facebookID string) (*models.FacebookAccount, error) {
	return r.findOne(ctx, "facebook_id = ?", facebookID)
}

// Upsert inserts the directory entry or refreshes its name, category and fan count
func (r *FacebookAccountRepositoryImpl) Upsert(ctx context.Context, account *models.FacebookAccount) error {
	now := utils.UTCNow()
	account.CreatedAt = now
	account.UpdatedAt = now
	err := r.getDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "facebook_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "category", "fan_count", "updated_at"}),
	}).Create(account).Error
	if err != nil {
		return fmt.Errorf("failed to upsert facebook account %s: %w", account.FacebookID, err)
	}
	return nil
}

func (r *FacebookAccountRepositoryImpl) Delete(ctx context.Context, facebookID string) error {
	return r.getDB(ctx).Where("facebook_id = ?", facebookID).Delete(&models.FacebookAccount{}).Error
}
