package businessflow

import (
	"context"
	"errors"

	"github.com/amirphl/audience-orchestrator/app/dto"
	"github.com/amirphl/audience-orchestrator/app/scheduler"
	"github.com/amirphl/audience-orchestrator/models"
	"github.com/amirphl/audience-orchestrator/repository"
	"github.com/amirphl/audience-orchestrator/utils"
	"go.uber.org/zap"
)

// JobAdminFlow lets operators inspect, restart and cancel jobs
type JobAdminFlow interface {
	ListJobs(ctx context.Context, req *dto.ListJobsRequest) (*dto.ListJobsResponse, error)
	GetJob(ctx context.Context, jobID string) (*dto.JobResponse, error)
	RestartJob(ctx context.Context, jobID string, metadata *ClientMetadata) (*dto.JobResponse, error)
	CancelJob(ctx context.Context, jobID string, metadata *ClientMetadata) (*dto.JobResponse, error)
}

// JobAdminFlowImpl implements the job admin flow
type JobAdminFlowImpl struct {
	jobRepo      repository.JobRepository
	jobScheduler *scheduler.JobScheduler
	logger       *zap.Logger
}

// NewJobAdminFlow creates a new job admin flow instance
func NewJobAdminFlow(jobRepo repository.JobRepository, jobScheduler *scheduler.JobScheduler, logger *zap.Logger) JobAdminFlow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobAdminFlowImpl{jobRepo: jobRepo, jobScheduler: jobScheduler, logger: logger}
}

// ListJobs returns a page of jobs, newest first
func (f *JobAdminFlowImpl) ListJobs(ctx context.Context, req *dto.ListJobsRequest) (*dto.ListJobsResponse, error) {
	page, pageSize, err := resolvePaging(req.Page, req.PageSize)
	if err != nil {
		return nil, err
	}

	filter := models.JobFilter{}
	if req.CampaignID != "" {
		filter.CampaignID = utils.ToPtr(req.CampaignID)
	}
	if req.FacebookAccountID != "" {
		filter.FacebookAccountID = utils.ToPtr(req.FacebookAccountID)
	}
	if req.Type != "" {
		filter.Types = []models.JobType{models.JobType(req.Type)}
	}
	if req.Status != "" {
		filter.Statuses = []models.JobStatus{models.JobStatus(req.Status)}
	}

	total, err := f.jobRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("JOB_LOOKUP_FAILED", "Failed to count jobs", err)
	}
	jobs, err := f.jobRepo.ByFilter(ctx, filter, "created_at DESC, id ASC", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("JOB_LOOKUP_FAILED", "Failed to list jobs", err)
	}

	resp := &dto.ListJobsResponse{
		Items:    make([]dto.JobResponse, 0, len(jobs)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for _, job := range jobs {
		resp.Items = append(resp.Items, ToJobResponse(job, ""))
	}
	return resp, nil
}

func (f *JobAdminFlowImpl) GetJob(ctx context.Context, jobID string) (*dto.JobResponse, error) {
	job, err := f.jobRepo.ByID(ctx, jobID)
	if err != nil {
		return nil, NewBusinessError("JOB_LOOKUP_FAILED", "Failed to lookup job", err)
	}
	if job == nil {
		return nil, NewBusinessError("JOB_NOT_FOUND", "Job not found", ErrJobNotFound)
	}
	resp := ToJobResponse(job, "")
	return &resp, nil
}

// RestartJob moves a failed or cancelled job back to ready
func (f *JobAdminFlowImpl) RestartJob(ctx context.Context, jobID string, metadata *ClientMetadata) (*dto.JobResponse, error) {
	job, err := f.jobScheduler.Restart(ctx, jobID)
	if err != nil {
		return nil, f.schedulerError("JOB_RESTART_FAILED", "Job restart failed", err)
	}
	f.logger.Info("Job restarted by operator", append(metadata.Fields(),
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.Type)),
		zap.String("campaign_id", job.CampaignID))...)
	resp := ToJobResponse(job, string(scheduler.RefreshRestarted))
	return &resp, nil
}

// CancelJob cancels a live job. An active job's worker notices when it finishes.
func (f *JobAdminFlowImpl) CancelJob(ctx context.Context, jobID string, metadata *ClientMetadata) (*dto.JobResponse, error) {
	job, err := f.jobScheduler.Cancel(ctx, jobID)
	if err != nil {
		return nil, f.schedulerError("JOB_CANCEL_FAILED", "Job cancellation failed", err)
	}
	f.logger.Info("Job cancelled by operator", append(metadata.Fields(),
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.Type)),
		zap.String("campaign_id", job.CampaignID))...)
	resp := ToJobResponse(job, "")
	return &resp, nil
}

func (f *JobAdminFlowImpl) schedulerError(code, message string, err error) error {
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		return NewBusinessError("JOB_NOT_FOUND", "Job not found", ErrJobNotFound)
	case errors.Is(err, scheduler.ErrJobNotRestartable):
		return NewBusinessError("JOB_NOT_RESTARTABLE", "Only failed or cancelled jobs can be restarted", ErrJobNotRestartable)
	case errors.Is(err, scheduler.ErrJobNotCancellable):
		return NewBusinessError("JOB_NOT_CANCELLABLE", "Only live jobs can be cancelled", ErrJobNotCancellable)
	default:
		return NewBusinessError(code, message, err)
	}
}
