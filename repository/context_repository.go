package repository

import (
	"context"

	"github.com/amirphl/audience-orchestrator/models"
	"gorm.io/gorm"
)

// ContextRepositoryImpl implements ContextRepository
type ContextRepositoryImpl struct {
	*BaseRepository[models.Context, any]
}

func NewContextRepository(db *gorm.DB) ContextRepository {
	return &ContextRepositoryImpl{BaseRepository: NewBaseRepository[models.Context, any](db)}
}

func (r *ContextRepositoryImpl) ByID(ctx context.Context, id string) (*models.Context, error) {
	return r.findOne(ctx, "id = ?", id)
}

// Geolocations returns the geolocations with the given ids, in the order of ids
func (r *ContextRepositoryImpl) Geolocations(ctx context.Context, ids []string) ([]*models.Geolocation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []*models.Geolocation
	if err := r.getDB(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Geolocation, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	ordered := make([]*models.Geolocation, 0, len(rows))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			ordered = append(ordered, row)
		}
	}
	return ordered, nil
}

// AudienceCategories returns the categories with the given ids, in the order of ids
func (r *ContextRepositoryImpl) AudienceCategories(ctx context.Context, ids []string) ([]*models.AudienceCategory, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []*models.AudienceCategory
	if err := r.getDB(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]*models.AudienceCategory, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	ordered := make([]*models.AudienceCategory, 0, len(rows))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			ordered = append(ordered, row)
		}
	}
	return ordered, nil
}
