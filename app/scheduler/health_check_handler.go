package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/audience-orchestrator/app/services"
	"github.com/amirphl/audience-orchestrator/models"
	"github.com/amirphl/audience-orchestrator/repository"
	"github.com/amirphl/audience-orchestrator/utils"
	"go.uber.org/zap"
)

// ErrMainTokenInvalid fails a health check whose main account token no longer validates
var ErrMainTokenInvalid = errors.New("main account token is invalid")

// AdAccountStatusReader reads the status of an ad account upstream
type AdAccountStatusReader interface {
	AdAccountStatus(ctx context.Context, adAccountID, accessToken string) (*services.AdAccountStatus, error)
}

// AdAccountSuspender detaches an unusable ad account from a campaign
type AdAccountSuspender interface {
	SuspendAdAccount(ctx context.Context, campaignID string) error
}

// HealthCheckHandler is the recurring campaign health check
type HealthCheckHandler struct {
	campaigns repository.CampaignRepository
	validator services.TokenValidator
	statuses  AdAccountStatusReader
	suspender AdAccountSuspender
	interval  time.Duration
	logger    *zap.Logger
}

func NewHealthCheckHandler(
	campaigns repository.CampaignRepository,
	validator services.TokenValidator,
	statuses AdAccountStatusReader,
	suspender AdAccountSuspender,
	interval time.Duration,
	logger *zap.Logger,
) *HealthCheckHandler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthCheckHandler{
		campaigns: campaigns,
		validator: validator,
		statuses:  statuses,
		suspender: suspender,
		interval:  interval,
		logger:    logger,
	}
}

func (h *HealthCheckHandler) Handle(ctx context.Context, job *models.Job, payload models.JobPayload) (JobResult, error) {
	p, ok := payload.(*models.HealthCheckPayload)
	if !ok {
		return JobResult{}, fmt.Errorf("%w: unexpected %T", models.ErrInvalidPayload, payload)
	}
	log := h.logger.With(zap.String("campaign_id", p.CampaignID), zap.String("job_id", job.ID))

	campaign, err := h.campaigns.ByID(ctx, p.CampaignID)
	if err != nil {
		return JobResult{}, err
	}
	if campaign == nil {
		return JobResult{}, fmt.Errorf("campaign %s not found", p.CampaignID)
	}
	main := campaign.MainAccount()
	if main == nil {
		log.Info("Campaign has no main account, health check retired")
		return JobResult{}, nil
	}

	valid, err := h.validator.Validate(ctx, main.AccessToken)
	if err != nil {
		return JobResult{}, fmt.Errorf("failed to validate main account token: %w", err)
	}
	if !valid {
		return JobResult{}, fmt.Errorf("%w: account %s", ErrMainTokenInvalid, main.FacebookID)
	}

	if adAccountID := utils.StringValue(campaign.AdAccountID); adAccountID != "" {
		if err := h.checkAdAccount(ctx, log, campaign.ID, adAccountID, main.AccessToken); err != nil {
			return JobResult{}, err
		}
	}

	next := utils.UTCNow().Add(h.interval)
	return JobResult{RescheduleAt: &next}, nil
}

func (h *HealthCheckHandler) checkAdAccount(ctx context.Context, log *zap.Logger, campaignID, adAccountID, token string) error {
	status, err := h.statuses.AdAccountStatus(ctx, adAccountID, token)
	if err != nil {
		apiErr, ok := services.AsFacebookAPIError(err)
		if !ok || !apiErr.IsPermissionError() {
			return fmt.Errorf("failed to read ad account %s: %w", adAccountID, err)
		}
		log.Warn("Ad account is no longer accessible, suspending it",
			zap.String("ad_account_id", adAccountID), zap.Error(err))
		return h.suspender.SuspendAdAccount(ctx, campaignID)
	}
	if !status.Active() {
		log.Warn("Ad account is not active, suspending it",
			zap.String("ad_account_id", adAccountID),
			zap.Int("account_status", status.AccountStatus),
			zap.Int("disable_reason", status.DisableReason))
		return h.suspender.SuspendAdAccount(ctx, campaignID)
	}
	return nil
}
