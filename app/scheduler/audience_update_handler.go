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

// ErrNoAdAccountUsers is returned when nobody registered on the campaign's ad account can lend a token
var ErrNoAdAccountUsers = errors.New("ad account has no registered users")

// AudienceUpdateHandler fans an account's audience update out into one fetch job
// per (audience category, geolocation) of the campaign context.
// It reschedules itself so the audience is refreshed every interval.
type AudienceUpdateHandler struct {
	campaigns repository.CampaignRepository
	contexts  repository.ContextRepository
	users     repository.AdAccountUserRepository
	scheduler *JobScheduler
	interval  time.Duration
	logger    *zap.Logger
}

func NewAudienceUpdateHandler(
	campaigns repository.CampaignRepository,
	contexts repository.ContextRepository,
	users repository.AdAccountUserRepository,
	scheduler *JobScheduler,
	interval time.Duration,
	logger *zap.Logger,
) *AudienceUpdateHandler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AudienceUpdateHandler{
		campaigns: campaigns,
		contexts:  contexts,
		users:     users,
		scheduler: scheduler,
		interval:  interval,
		logger:    logger,
	}
}

func (h *AudienceUpdateHandler) Handle(ctx context.Context, job *models.Job, payload models.JobPayload) (JobResult, error) {
	p, ok := payload.(*models.AccountAudiencePayload)
	if !ok {
		return JobResult{}, fmt.Errorf("%w: unexpected %T", models.ErrInvalidPayload, payload)
	}

	campaign, err := h.campaigns.ByID(ctx, p.CampaignID)
	if err != nil {
		return JobResult{}, err
	}
	if campaign == nil {
		return JobResult{}, fmt.Errorf("campaign %s not found", p.CampaignID)
	}
	if campaign.Account(p.FacebookAccountID) == nil {
		return JobResult{}, fmt.Errorf("account %s is not attached to campaign %s", p.FacebookAccountID, p.CampaignID)
	}
	adAccountID := utils.StringValue(campaign.AdAccountID)
	if adAccountID == "" {
		return JobResult{}, fmt.Errorf("campaign %s has no ad account", p.CampaignID)
	}

	users, err := h.users.ListByAdAccount(ctx, adAccountID)
	if err != nil {
		return JobResult{}, err
	}
	tokens := make([]string, 0, len(users))
	for _, u := range users {
		if u.AccessToken != "" {
			tokens = append(tokens, u.AccessToken)
		}
	}
	if len(tokens) == 0 {
		return JobResult{}, fmt.Errorf("%w: %s", ErrNoAdAccountUsers, adAccountID)
	}

	targeting, err := h.contexts.ByID(ctx, campaign.ContextID)
	if err != nil {
		return JobResult{}, err
	}
	if targeting == nil {
		return JobResult{}, fmt.Errorf("context %s of campaign %s not found", campaign.ContextID, p.CampaignID)
	}
	categories, err := h.contexts.AudienceCategories(ctx, targeting.AudienceCategoryIDs)
	if err != nil {
		return JobResult{}, err
	}
	geolocations, err := h.contexts.Geolocations(ctx, targeting.GeolocationIDs)
	if err != nil {
		return JobResult{}, err
	}

	since := utils.StartOfDay(utils.UTCNow())
	var (
		errs    []error
		changed int
	)
	for _, category := range categories {
		for _, geo := range geolocations {
			spec, err := BuildTargetingSpec(category.Spec, geo)
			if err != nil {
				errs = append(errs, fmt.Errorf("category %s geolocation %s: %w", category.ID, geo.ID, err))
				continue
			}
			child := &models.AudienceFetchPayload{
				CampaignID:         p.CampaignID,
				AdAccountID:        adAccountID,
				Tokens:             tokens,
				FacebookAccountID:  p.FacebookAccountID,
				GeolocationID:      geo.ID,
				AudienceCategoryID: category.ID,
				Spec:               spec,
			}
			_, action, err := h.scheduler.RefreshSince(ctx, child, since)
			if err != nil {
				errs = append(errs, fmt.Errorf("category %s geolocation %s: %w", category.ID, geo.ID, err))
				continue
			}
			if action != RefreshUnchanged {
				changed++
			}
		}
	}

	h.logger.Info("Audience fan-out done",
		zap.String("campaign_id", p.CampaignID),
		zap.String("facebook_account_id", p.FacebookAccountID),
		zap.Int("categories", len(categories)),
		zap.Int("geolocations", len(geolocations)),
		zap.Int("changed", changed),
		zap.Int("errors", len(errs)))

	if len(errs) > 0 {
		return JobResult{}, errors.Join(errs...)
	}
	next := utils.UTCNow().Add(h.interval)
	return JobResult{RescheduleAt: &next}, nil
}
