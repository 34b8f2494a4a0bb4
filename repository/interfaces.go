// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/amirphl/audience-orchestrator/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	Count(ctx context.Context, filter F) (int64, error)
}

// JobRepository is the durable job queue.
// Transition is the only path that changes a job's status.
type JobRepository interface {
	Repository[models.Job, models.JobFilter]
	ByID(ctx context.Context, id string) (*models.Job, error)
	Enqueue(ctx context.Context, payload models.JobPayload, opts models.EnqueueOptions) (*models.Job, error)
	FindPending(ctx context.Context, jobType models.JobType, identityKey string) (*models.Job, error)
	FindLatest(ctx context.Context, jobType models.JobType, identityKey string) (*models.Job, error)
	Transition(ctx context.Context, id string, from, to models.JobStatus, change models.JobChange) (bool, error)
	ClaimNext(ctx context.Context, types []models.JobType, now time.Time) (*models.Job, error)
	Touch(ctx context.Context, id string) error
	RemoveByOwner(ctx context.Context, filter models.JobFilter) (int64, error)
	FailStale(ctx context.Context, olderThan time.Time) (int64, error)
	PurgeCompleted(ctx context.Context, olderThan time.Time) (int64, error)
}

// AuditLogRepository keeps the trail of operator actions
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
}

// FacebookAudienceRepository stores audience records keyed by their natural key
type FacebookAudienceRepository interface {
	Repository[models.FacebookAudience, models.FacebookAudienceFilter]
	Upsert(ctx context.Context, record *models.FacebookAudience) error
	Latest(ctx context.Context, campaignID, facebookAccountID, audienceCategoryID, geolocationID string) (*models.FacebookAudience, error)
	LatestByCampaign(ctx context.Context, campaignID string, facebookAccountID *string) ([]*models.FacebookAudience, error)
	DeleteByCampaign(ctx context.Context, campaignID string) (int64, error)
	DeleteByCampaignAccount(ctx context.Context, campaignID, facebookAccountID string) (int64, error)
}

// CampaignRepository reads campaign snapshots and applies the lifecycle writes
type CampaignRepository interface {
	ByID(ctx context.Context, id string) (*models.Campaign, error)
	Save(ctx context.Context, campaign *models.Campaign) error
	UpdateStatus(ctx context.Context, id string, status models.CampaignStatus) error
	ClearAdAccount(ctx context.Context, id string) error
	AttachAccount(ctx context.Context, account *models.CampaignAccount) error
	DetachAccount(ctx context.Context, campaignID, facebookID string) (int64, error)
	DetachAllAccounts(ctx context.Context, campaignID string) (int64, error)
	UpdateAccountToken(ctx context.Context, campaignID, facebookID, accessToken string) error
	CountCampaignsWithAccount(ctx context.Context, facebookID string) (int64, error)
	ListUsers(ctx context.Context, campaignID string) ([]*models.CampaignUser, error)
	DeleteUsers(ctx context.Context, campaignID string) (int64, error)
	Delete(ctx context.Context, id string) error
}

// FacebookAccountRepository maintains the shared account directory
type FacebookAccountRepository interface {
	ByFacebookID(ctx context.Context, facebookID string) (*models.FacebookAccount, error)
	Upsert(ctx context.Context, account *models.FacebookAccount) error
	Delete(ctx context.Context, facebookID string) error
}

// ContextRepository reads targeting contexts with their geolocations and categories
type ContextRepository interface {
	ByID(ctx context.Context, id string) (*models.Context, error)
	Geolocations(ctx context.Context, ids []string) ([]*models.Geolocation, error)
	AudienceCategories(ctx context.Context, ids []string) ([]*models.AudienceCategory, error)
}

// AdAccountUserRepository lists the platform users registered on an ad account
type AdAccountUserRepository interface {
	ListByAdAccount(ctx context.Context, adAccountID string) ([]*models.AdAccountUser, error)
}

// AudienceExportRepository stores audience export files metadata
type AudienceExportRepository interface {
	ByID(ctx context.Context, id string) (*models.AudienceExport, error)
	Save(ctx context.Context, export *models.AudienceExport) error
	UpdateStatus(ctx context.Context, id string, status models.AudienceExportStatus) error
	ListByCampaign(ctx context.Context, campaignID string) ([]*models.AudienceExport, error)
	DeleteByCampaign(ctx context.Context, campaignID string) (int64, error)
}

// CampaignDataRepository removes records derived from a campaign
type CampaignDataRepository interface {
	DeleteByCampaign(ctx context.Context, campaignID string) error
}
