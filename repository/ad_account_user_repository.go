package repository

import (
	"context"

	"github.com/amirphl/audience-orchestrator/models"
	"gorm.io/gorm"
)

// AdAccountUserRepositoryImpl implements AdAccountUserRepository
type AdAccountUserRepositoryImpl struct {
	*BaseRepository[models.AdAccountUser, any]
}

func NewAdAccountUserRepository(db *gorm.DB) AdAccountUserRepository {
	return &AdAccountUserRepositoryImpl{BaseRepository: NewBaseRepository[models.AdAccountUser, any](db)}
}

func (r *AdAccountUserRepositoryImpl) ListByAdAccount(ctx context.Context, adAccountID string) ([]*models.AdAccountUser, error) {
	var rows []*models.AdAccountUser
	err := r.getDB(ctx).Where("ad_account_id = ?", adAccountID).Order("id ASC").Find(&rows).Error
	return rows, err
}
