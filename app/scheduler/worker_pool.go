package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/amirphl/audience-orchestrator/config"
	"github.com/amirphl/audience-orchestrator/models"
	"github.com/amirphl/audience-orchestrator/repository"
	"github.com/amirphl/audience-orchestrator/utils"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrJobAbandoned is returned by a handler that finds its job removed while it was running
var ErrJobAbandoned = errors.New("job was removed while running")

// finishTimeout bounds the status write that ends a job, which runs even after shutdown began
const finishTimeout = 10 * time.Second

// JobResult is what a handler asks the pool to do with its job.
// A nil RescheduleAt completes the job; otherwise the job becomes ready again at that time.
type JobResult struct {
	RescheduleAt *time.Time
}

// JobHandler executes one job type
type JobHandler interface {
	Handle(ctx context.Context, job *models.Job, payload models.JobPayload) (JobResult, error)
}

// JobHandlerFunc adapts a function to JobHandler
type JobHandlerFunc func(ctx context.Context, job *models.Job, payload models.JobPayload) (JobResult, error)

func (f JobHandlerFunc) Handle(ctx context.Context, job *models.Job, payload models.JobPayload) (JobResult, error) {
	return f(ctx, job, payload)
}

// WorkerPool runs a fixed number of workers claiming due jobs from the store.
// Workers coordinate only through compare-and-set claims, so several pools may share one database.
type WorkerPool struct {
	jobs     repository.JobRepository
	cfg      config.WorkerConfig
	logger   *zap.Logger
	mu       sync.RWMutex
	handlers map[models.JobType]JobHandler
}

func NewWorkerPool(jobs repository.JobRepository, cfg config.WorkerConfig, logger *zap.Logger) *WorkerPool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{
		jobs:     jobs,
		cfg:      cfg,
		logger:   logger,
		handlers: make(map[models.JobType]JobHandler),
	}
}

// Register binds a handler to a job type. Only registered types are claimed.
func (p *WorkerPool) Register(jobType models.JobType, handler JobHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[jobType] = handler
}

// Types lists the registered job types
func (p *WorkerPool) Types() []models.JobType {
	p.mu.RLock()
	defer p.mu.RUnlock()
	types := make([]models.JobType, 0, len(p.handlers))
	for t := range p.handlers {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

func (p *WorkerPool) handler(jobType models.JobType) JobHandler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.handlers[jobType]
}

// Start launches the workers and the maintenance schedule.
// The returned stop function cancels both and waits for running jobs to be finished or released.
func (p *WorkerPool) Start(parent context.Context) (func(), error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	ctx, cancel := context.WithCancel(parent)
	if _, err := c.AddFunc(p.cfg.MaintenanceSpec, func() {
		if err := p.Maintain(ctx); err != nil {
			p.logger.Error("Job maintenance failed", zap.Error(err))
		}
	}); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid maintenance schedule %q: %w", p.cfg.MaintenanceSpec, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Concurrency; i++ {
		workerID := i + 1
		g.Go(func() error {
			p.loop(gctx, workerID)
			return nil
		})
	}
	c.Start()

	p.logger.Info("Worker pool started",
		zap.Int("concurrency", p.cfg.Concurrency),
		zap.Any("types", p.Types()),
		zap.String("maintenance", p.cfg.MaintenanceSpec))

	return func() {
		cancel()
		<-c.Stop().Done()
		_ = g.Wait()
		p.logger.Info("Worker pool stopped")
	}, nil
}

func (p *WorkerPool) loop(ctx context.Context, workerID int) {
	for {
		processed, err := p.RunOnce(ctx, workerID)
		if err != nil && ctx.Err() == nil {
			p.logger.Error("Worker iteration failed", zap.Int("worker", workerID), zap.Error(err))
		}
		if ctx.Err() != nil {
			return
		}
		if processed && err == nil {
			continue
		}

		timer := time.NewTimer(p.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunOnce claims and executes at most one due job. It reports whether a job was claimed.
func (p *WorkerPool) RunOnce(ctx context.Context, workerID int) (bool, error) {
	types := p.Types()
	if len(types) == 0 {
		return false, nil
	}

	job, err := p.jobs.ClaimNext(ctx, types, utils.UTCNow())
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	jobsInFlight.Inc()
	defer jobsInFlight.Dec()

	log := p.logger.With(
		zap.Int("worker", workerID),
		zap.String("job_id", job.ID),
		zap.String("job_type", job.Type.String()),
		zap.String("campaign_id", job.CampaignID),
		zap.String("facebook_account_id", job.FacebookAccountID),
		zap.Int("attempt", job.Attempts))

	payload, err := models.DecodePayload(job)
	if err != nil {
		log.Error("Failing job with invalid payload", zap.Error(err))
		return true, p.finish(ctx, job, log, JobResult{}, err)
	}
	handler := p.handler(job.Type)
	if handler == nil {
		return true, p.finish(ctx, job, log, JobResult{}, fmt.Errorf("no handler registered for %s", job.Type))
	}

	started := time.Now()
	result, handleErr := p.execute(ctx, handler, job, payload)
	jobDuration.WithLabelValues(job.Type.String()).Observe(time.Since(started).Seconds())

	return true, p.finish(ctx, job, log, result, handleErr)
}

// execute runs the handler under the job timeout while heartbeating the job
func (p *WorkerPool) execute(ctx context.Context, handler JobHandler, job *models.Job, payload models.JobPayload) (JobResult, error) {
	jobCtx := ctx
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}

	done := make(chan struct{})
	defer close(done)
	if p.cfg.HeartbeatInterval > 0 {
		go func() {
			ticker := time.NewTicker(p.cfg.HeartbeatInterval)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-jobCtx.Done():
					return
				case <-ticker.C:
					if err := p.jobs.Touch(jobCtx, job.ID); err != nil {
						p.logger.Warn("Job heartbeat failed", zap.String("job_id", job.ID), zap.Error(err))
					}
				}
			}
		}()
	}

	return handler.Handle(jobCtx, job, payload)
}

// finish records the outcome of a job. A job interrupted by shutdown is released back to ready.
func (p *WorkerPool) finish(parent context.Context, job *models.Job, log *zap.Logger, result JobResult, handleErr error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), finishTimeout)
	defer cancel()

	var (
		to      models.JobStatus
		change  models.JobChange
		outcome string
	)
	switch {
	case errors.Is(handleErr, ErrJobAbandoned):
		log.Info("Job removed while running, result discarded")
		jobsProcessedTotal.WithLabelValues(job.Type.String(), outcomeAbandoned).Inc()
		return nil
	case handleErr != nil && parent.Err() != nil:
		now := utils.UTCNow()
		to, change, outcome = models.JobStatusReady, models.JobChange{RunAt: &now}, outcomeReleased
	case handleErr != nil:
		msg := handleErr.Error()
		to, change, outcome = models.JobStatusFailed, models.JobChange{Error: &msg}, outcomeFailed
	case result.RescheduleAt != nil:
		to, change, outcome = models.JobStatusReady, models.JobChange{RunAt: result.RescheduleAt, ClearError: true}, outcomeRescheduled
	default:
		to, change, outcome = models.JobStatusCompleted, models.JobChange{ClearError: true}, outcomeCompleted
	}

	ok, err := p.jobs.Transition(ctx, job.ID, models.JobStatusActive, to, change)
	if err != nil {
		return fmt.Errorf("failed to record %s outcome of job %s: %w", outcome, job.ID, err)
	}
	if !ok {
		// Cancelled, removed or failed as stale while running.
		log.Info("Job left active state while running, result discarded", zap.String("outcome", outcome))
		jobsProcessedTotal.WithLabelValues(job.Type.String(), outcomeAbandoned).Inc()
		return nil
	}
	jobsProcessedTotal.WithLabelValues(job.Type.String(), outcome).Inc()

	switch outcome {
	case outcomeFailed:
		log.Error("Job failed", zap.Error(handleErr))
	case outcomeReleased:
		log.Warn("Job released on shutdown", zap.Error(handleErr))
	case outcomeRescheduled:
		log.Info("Job rescheduled", zap.Time("run_at", *result.RescheduleAt))
	default:
		log.Info("Job completed")
	}
	return nil
}

// Maintain fails jobs whose worker stopped heartbeating and purges old completed jobs
func (p *WorkerPool) Maintain(ctx context.Context) error {
	now := utils.UTCNow()
	var errs []error

	if p.cfg.LeaseTimeout > 0 {
		stale, err := p.jobs.FailStale(ctx, now.Add(-p.cfg.LeaseTimeout))
		if err != nil {
			errs = append(errs, err)
		} else if stale > 0 {
			maintenanceTotal.WithLabelValues("failed_stale").Add(float64(stale))
			p.logger.Warn("Failed jobs with expired worker lease", zap.Int64("count", stale))
		}
	}

	if p.cfg.CompletedRetention > 0 {
		purged, err := p.jobs.PurgeCompleted(ctx, now.Add(-p.cfg.CompletedRetention))
		if err != nil {
			errs = append(errs, err)
		} else if purged > 0 {
			maintenanceTotal.WithLabelValues("purged").Add(float64(purged))
			p.logger.Info("Purged completed jobs", zap.Int64("count", purged))
		}
	}

	return errors.Join(errs...)
}
