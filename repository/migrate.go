package repository

import (
	"fmt"

	"github.com/amirphl/audience-orchestrator/models"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// liveJobIndex enforces at most one waiting, ready or active job per identity
const liveJobIndex = "idx_jobs_live_identity"

// Migrate creates or updates the schema. The partial unique index is created
// with raw SQL because gorm index tags cannot carry an IN list.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Job{},
		&models.Campaign{},
		&models.CampaignAccount{},
		&models.CampaignUser{},
		&models.AdAccountUser{},
		&models.FacebookAccount{},
		&models.Context{},
		&models.Geolocation{},
		&models.AudienceCategory{},
		&models.FacebookAudience{},
		&models.AudienceExport{},
		&models.Person{},
		&models.Canvas{},
		&models.MapFeature{},
		&models.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	stmt := fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (type, identity_key) WHERE status IN ('%s', '%s', '%s')",
		pq.QuoteIdentifier(liveJobIndex),
		pq.QuoteIdentifier(models.Job{}.TableName()),
		models.JobStatusWaiting, models.JobStatusReady, models.JobStatusActive,
	)
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("failed to create %s: %w", liveJobIndex, err)
	}
	return nil
}
