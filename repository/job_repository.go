package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/audience-orchestrator/models"
	"github.com/amirphl/audience-orchestrator/utils"
	"gorm.io/gorm"
)

// claimBatchSize is how many due jobs a worker inspects per claim attempt
const claimBatchSize = 16

// JobRepositoryImpl implements JobRepository
type JobRepositoryImpl struct {
	*BaseRepository[models.Job, models.JobFilter]
}

func NewJobRepository(db *gorm.DB) JobRepository {
	return &JobRepositoryImpl{BaseRepository: NewBaseRepository[models.Job, models.JobFilter](db)}
}

func (r *JobRepositoryImpl) ByID(ctx context.Context, id string) (*models.Job, error) {
	return r.findOne(ctx, "id = ?", id)
}

// Enqueue inserts a new job. The partial unique index on live jobs turns a
// concurrent duplicate into ErrDuplicateJob.
func (r *JobRepositoryImpl) Enqueue(ctx context.Context, payload models.JobPayload, opts models.EnqueueOptions) (*models.Job, error) {
	job, err := models.NewJob(payload, opts, utils.UTCNow())
	if err != nil {
		return nil, err
	}

	if err := r.getDB(ctx).Create(job).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateJob
		}
		return nil, fmt.Errorf("failed to enqueue %s job: %w", job.Type, err)
	}
	return job, nil
}

// FindPending returns the live (waiting, ready or active) job of an identity
func (r *JobRepositoryImpl) FindPending(ctx context.Context, jobType models.JobType, identityKey string) (*models.Job, error) {
	db := r.getDB(ctx)
	var job models.Job
	err := db.Where("type = ? AND identity_key = ? AND status IN ?", jobType, identityKey, models.LiveJobStatuses).
		Order("created_at DESC").
		Take(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// FindLatest returns the most recent job of an identity whatever its status
func (r *JobRepositoryImpl) FindLatest(ctx context.Context, jobType models.JobType, identityKey string) (*models.Job, error) {
	db := r.getDB(ctx)
	var job models.Job
	err := db.Where("type = ? AND identity_key = ?", jobType, identityKey).
		Order("created_at DESC").
		Take(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// Transition moves a job from one status to another with a compare-and-set.
// It reports false without error when the job is no longer in the expected status.
func (r *JobRepositoryImpl) Transition(ctx context.Context, id string, from, to models.JobStatus, change models.JobChange) (bool, error) {
	if !to.Valid() {
		return false, fmt.Errorf("invalid target status %q", to)
	}

	now := utils.UTCNow()
	updates := map[string]any{
		"status":     to,
		"updated_at": now,
	}
	if change.RunAt != nil {
		updates["run_at"] = change.RunAt.UTC()
	}
	if len(change.Data) > 0 {
		updates["data"] = change.Data
	}
	if change.ClearError {
		updates["error"] = nil
	} else if change.Error != nil {
		updates["error"] = *change.Error
	}
	switch to {
	case models.JobStatusActive:
		updates["attempts"] = gorm.Expr("attempts + 1")
		updates["started_at"] = now
		updates["finished_at"] = nil
	case models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled:
		updates["finished_at"] = now
	}

	res := r.getDB(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return false, ErrDuplicateJob
		}
		return false, fmt.Errorf("failed to transition job %s from %s to %s: %w", id, from, to, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ClaimNext claims the oldest due ready job among the given types.
// Losing a claim race to another worker moves on to the next candidate.
func (r *JobRepositoryImpl) ClaimNext(ctx context.Context, types []models.JobType, now time.Time) (*models.Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	var candidates []*models.Job
	err := r.getDB(ctx).
		Select("id").
		Where("status = ? AND run_at <= ? AND type IN ?", models.JobStatusReady, now.UTC(), types).
		Order("run_at ASC, created_at ASC").
		Limit(claimBatchSize).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due jobs: %w", err)
	}

	for _, c := range candidates {
		ok, err := r.Transition(ctx, c.ID, models.JobStatusReady, models.JobStatusActive, models.JobChange{})
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		return r.ByID(ctx, c.ID)
	}
	return nil, nil
}

// Touch refreshes the heartbeat of an active job
func (r *JobRepositoryImpl) Touch(ctx context.Context, id string) error {
	return r.getDB(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", id, models.JobStatusActive).
		Update("updated_at", utils.UTCNow()).Error
}

// RemoveByOwner deletes every job of a campaign, account or export.
// Active jobs are removed too; their workers discard the result.
func (r *JobRepositoryImpl) RemoveByOwner(ctx context.Context, filter models.JobFilter) (int64, error) {
	if !filter.HasOwner() {
		return 0, errors.New("remove by owner requires a campaign, account or export scope")
	}
	res := applyJobFilter(r.getDB(ctx), filter).Delete(&models.Job{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to remove jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// FailStale fails active jobs whose heartbeat is older than the given time.
// Such jobs belong to a worker that died or was restarted.
func (r *JobRepositoryImpl) FailStale(ctx context.Context, olderThan time.Time) (int64, error) {
	now := utils.UTCNow()
	res := r.getDB(ctx).Model(&models.Job{}).
		Where("status = ? AND updated_at < ?", models.JobStatusActive, olderThan.UTC()).
		Updates(map[string]any{
			"status":      models.JobStatusFailed,
			"error":       "worker lease expired",
			"finished_at": now,
			"updated_at":  now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to fail stale jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// PurgeCompleted deletes completed jobs finished before the given time
func (r *JobRepositoryImpl) PurgeCompleted(ctx context.Context, olderThan time.Time) (int64, error) {
	res := r.getDB(ctx).
		Where("status = ? AND updated_at < ?", models.JobStatusCompleted, olderThan.UTC()).
		Delete(&models.Job{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge completed jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *JobRepositoryImpl) ByFilter(ctx context.Context, filter models.JobFilter, orderBy string, limit, offset int) ([]*models.Job, error) {
	if orderBy == "" {
		orderBy = "created_at DESC"
	}
	var rows []*models.Job
	db := paginate(applyJobFilter(r.getDB(ctx), filter), orderBy, limit, offset)
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *JobRepositoryImpl) Count(ctx context.Context, filter models.JobFilter) (int64, error) {
	var count int64
	if err := applyJobFilter(r.getDB(ctx).Model(&models.Job{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func applyJobFilter(db *gorm.DB, filter models.JobFilter) *gorm.DB {
	if len(filter.Types) > 0 {
		db = db.Where("type IN ?", filter.Types)
	}
	if len(filter.Statuses) > 0 {
		db = db.Where("status IN ?", filter.Statuses)
	}
	if filter.CampaignID != nil {
		db = db.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.FacebookAccountID != nil {
		db = db.Where("facebook_account_id = ?", *filter.FacebookAccountID)
	}
	if filter.ExportID != nil {
		db = db.Where("export_id = ?", *filter.ExportID)
	}
	return db
}
