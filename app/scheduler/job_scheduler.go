package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/audience-orchestrator/models"
	"github.com/amirphl/audience-orchestrator/repository"
	"github.com/amirphl/audience-orchestrator/utils"
	"go.uber.org/zap"
)

// RefreshAction describes what a refresh did to the job set
type RefreshAction string

const (
	RefreshEnqueued  RefreshAction = "enqueued"
	RefreshArmed     RefreshAction = "armed"
	RefreshRestarted RefreshAction = "restarted"
	RefreshUnchanged RefreshAction = "unchanged"
)

// Scheduler errors
var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobNotRestartable = errors.New("only failed or cancelled jobs can be restarted")
	ErrJobNotCancellable = errors.New("only live jobs can be cancelled")
)

// JobScheduler makes sure exactly one live job exists per desired unit of work,
// reusing the job history instead of piling up duplicates
type JobScheduler struct {
	jobs   repository.JobRepository
	logger *zap.Logger
}

func NewJobScheduler(jobs repository.JobRepository, logger *zap.Logger) *JobScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobScheduler{jobs: jobs, logger: logger}
}

// Refresh converges the job of payload's identity:
// a waiting job (or a ready one parked at ForeverDate) is armed to run now,
// a failed or cancelled one is restarted, a missing one is enqueued, anything else is left alone.
// Calling it repeatedly is safe.
func (s *JobScheduler) Refresh(ctx context.Context, payload models.JobPayload) (*models.Job, RefreshAction, error) {
	return s.refresh(ctx, payload, nil)
}

// RefreshSince is Refresh for periodic work: a completed job that finished before
// since is treated as history and a new job is enqueued
func (s *JobScheduler) RefreshSince(ctx context.Context, payload models.JobPayload, since time.Time) (*models.Job, RefreshAction, error) {
	return s.refresh(ctx, payload, &since)
}

func (s *JobScheduler) refresh(ctx context.Context, payload models.JobPayload, since *time.Time) (*models.Job, RefreshAction, error) {
	data, err := models.EncodePayload(payload)
	if err != nil {
		return nil, "", err
	}
	jobType := payload.JobType()
	identityKey := models.IdentityKey(payload)

	job, action, err := s.converge(ctx, payload, data, jobType, identityKey, since)
	if err != nil {
		s.logger.Error("Job refresh failed",
			zap.String("job_type", jobType.String()),
			zap.String("identity_key", identityKey),
			zap.Error(err))
		return nil, "", err
	}
	refreshTotal.WithLabelValues(jobType.String(), string(action)).Inc()
	if action != RefreshUnchanged {
		s.logger.Info("Job refreshed",
			zap.String("job_type", jobType.String()),
			zap.String("job_id", job.ID),
			zap.String("action", string(action)))
	}
	return job, action, nil
}

func (s *JobScheduler) converge(ctx context.Context, payload models.JobPayload, data models.JobData, jobType models.JobType, identityKey string, since *time.Time) (*models.Job, RefreshAction, error) {
	live, err := s.jobs.FindPending(ctx, jobType, identityKey)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find live job: %w", err)
	}
	if live != nil {
		return s.arm(ctx, live, data)
	}

	latest, err := s.jobs.FindLatest(ctx, jobType, identityKey)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find latest job: %w", err)
	}
	if latest != nil {
		switch {
		case latest.Status.Restartable():
			return s.restart(ctx, latest, data)
		case latest.Status == models.JobStatusCompleted && !finishedBefore(latest, since):
			return latest, RefreshUnchanged, nil
		}
	}

	job, err := s.jobs.Enqueue(ctx, payload, models.EnqueueOptions{})
	if errors.Is(err, repository.ErrDuplicateJob) {
		// Another caller enqueued the same identity first.
		return s.reread(ctx, jobType, identityKey)
	}
	if err != nil {
		return nil, "", err
	}
	return job, RefreshEnqueued, nil
}

func finishedBefore(job *models.Job, since *time.Time) bool {
	if since == nil {
		return false
	}
	finished := job.UpdatedAt
	if job.FinishedAt != nil {
		finished = *job.FinishedAt
	}
	return finished.Before(*since)
}

// arm schedules a waiting job, or a ready job parked at ForeverDate, to run now.
// A non-empty data replaces the stored payload so the run uses the caller's tokens.
func (s *JobScheduler) arm(ctx context.Context, job *models.Job, data models.JobData) (*models.Job, RefreshAction, error) {
	parked := job.Status == models.JobStatusReady && !job.Scheduled()
	if job.Status != models.JobStatusWaiting && !parked {
		return job, RefreshUnchanged, nil
	}

	now := utils.UTCNow()
	ok, err := s.jobs.Transition(ctx, job.ID, job.Status, models.JobStatusReady, models.JobChange{RunAt: &now, Data: data})
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return s.reread(ctx, job.Type, job.IdentityKey)
	}
	job.Status = models.JobStatusReady
	job.RunAt = now
	if len(data) > 0 {
		job.Data = data
	}
	return job, RefreshArmed, nil
}

// restart moves a failed or cancelled job back to waiting with its error cleared, then arms it.
// A non-empty data replaces the stored payload in the same transition.
func (s *JobScheduler) restart(ctx context.Context, job *models.Job, data models.JobData) (*models.Job, RefreshAction, error) {
	ok, err := s.jobs.Transition(ctx, job.ID, job.Status, models.JobStatusWaiting, models.JobChange{ClearError: true, Data: data})
	if errors.Is(err, repository.ErrDuplicateJob) {
		// A newer live job of the same identity appeared meanwhile.
		return s.reread(ctx, job.Type, job.IdentityKey)
	}
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return s.reread(ctx, job.Type, job.IdentityKey)
	}

	job.Status = models.JobStatusWaiting
	job.Error = nil
	if len(data) > 0 {
		job.Data = data
	}
	armed, action, err := s.arm(ctx, job, nil)
	if err != nil {
		return nil, "", err
	}
	if action == RefreshArmed {
		action = RefreshRestarted
	}
	return armed, action, nil
}

// reread returns the current live job after losing a race
func (s *JobScheduler) reread(ctx context.Context, jobType models.JobType, identityKey string) (*models.Job, RefreshAction, error) {
	live, err := s.jobs.FindPending(ctx, jobType, identityKey)
	if err != nil {
		return nil, "", err
	}
	if live == nil {
		return nil, "", fmt.Errorf("live %s job vanished during refresh", jobType)
	}
	return live, RefreshUnchanged, nil
}

// Restart brings back a failed or cancelled job on operator request
func (s *JobScheduler) Restart(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := s.jobs.ByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	if !job.Status.Restartable() {
		return nil, ErrJobNotRestartable
	}

	restarted, action, err := s.restart(ctx, job, nil)
	if err != nil {
		return nil, err
	}
	refreshTotal.WithLabelValues(job.Type.String(), string(action)).Inc()
	s.logger.Info("Job restarted by operator", zap.String("job_id", jobID), zap.String("job_type", job.Type.String()))
	return restarted, nil
}

// Cancel stops a live job. An active job keeps running; its worker discards the outcome.
func (s *JobScheduler) Cancel(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := s.jobs.ByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	if !job.Status.IsLive() {
		return nil, ErrJobNotCancellable
	}

	ok, err := s.jobs.Transition(ctx, job.ID, job.Status, models.JobStatusCancelled, models.JobChange{})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: job %s changed status concurrently", ErrJobNotCancellable, jobID)
	}
	s.logger.Info("Job cancelled by operator", zap.String("job_id", jobID), zap.String("job_type", job.Type.String()))
	return s.jobs.ByID(ctx, jobID)
}

// EnqueueAt makes sure a live job of payload's identity exists and is due at runAt.
// An existing live job is kept as is.
func (s *JobScheduler) EnqueueAt(ctx context.Context, payload models.JobPayload, runAt time.Time) (*models.Job, RefreshAction, error) {
	job, err := s.jobs.Enqueue(ctx, payload, models.EnqueueOptions{RunAt: &runAt})
	if errors.Is(err, repository.ErrDuplicateJob) {
		return s.reread(ctx, payload.JobType(), models.IdentityKey(payload))
	}
	if err != nil {
		return nil, "", err
	}
	refreshTotal.WithLabelValues(job.Type.String(), string(RefreshEnqueued)).Inc()
	return job, RefreshEnqueued, nil
}
