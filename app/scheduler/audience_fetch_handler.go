package scheduler

import (
	"context"
	"fmt"

	"github.com/amirphl/audience-orchestrator/models"
	"github.com/amirphl/audience-orchestrator/repository"
	"github.com/amirphl/audience-orchestrator/utils"
	"go.uber.org/zap"
)

// AudienceFetchHandler sizes one (category, geolocation) audience of an account in four
// variants and upserts the record of the fetch day
type AudienceFetchHandler struct {
	fetcher   *EstimateFetcher
	audiences repository.FacebookAudienceRepository
	jobs      repository.JobRepository
	logger    *zap.Logger
}

func NewAudienceFetchHandler(fetcher *EstimateFetcher, audiences repository.FacebookAudienceRepository, jobs repository.JobRepository, logger *zap.Logger) *AudienceFetchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AudienceFetchHandler{fetcher: fetcher, audiences: audiences, jobs: jobs, logger: logger}
}

func (h *AudienceFetchHandler) Handle(ctx context.Context, job *models.Job, payload models.JobPayload) (JobResult, error) {
	p, ok := payload.(*models.AudienceFetchPayload)
	if !ok {
		return JobResult{}, fmt.Errorf("%w: unexpected %T", models.ErrInvalidPayload, payload)
	}

	fetchDate := utils.FetchDate(utils.UTCNow())
	spec, err := CloneSpec(p.Spec)
	if err != nil {
		return JobResult{}, fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}
	spec[specConnections] = []any{p.FacebookAccountID}

	variants := []struct {
		name string
		spec map[string]any
	}{
		{"estimate", spec},
		{"total", OmitSpecKeys(spec, specInterests)},
		{"location_estimate", OmitSpecKeys(spec, specConnections)},
		{"location_total", OmitSpecKeys(spec, specInterests, specConnections)},
	}
	users := make([]int64, len(variants))
	for i, v := range variants {
		n, err := h.fetcher.Fetch(ctx, EstimateRequest{
			AdAccountID: p.AdAccountID,
			AccessToken: p.Tokens[0],
			Spec:        v.spec,
			FetchDate:   fetchDate,
		})
		if err != nil {
			return JobResult{}, fmt.Errorf("%s estimate: %w", v.name, err)
		}
		users[i] = n
	}

	// The owner may have been removed while the estimates were polled.
	current, err := h.jobs.ByID(ctx, job.ID)
	if err != nil {
		return JobResult{}, err
	}
	if current == nil || current.Status != models.JobStatusActive {
		return JobResult{}, ErrJobAbandoned
	}

	record := &models.FacebookAudience{
		CampaignID:         p.CampaignID,
		FacebookAccountID:  p.FacebookAccountID,
		AudienceCategoryID: p.AudienceCategoryID,
		GeolocationID:      p.GeolocationID,
		FetchDate:          fetchDate,
		Estimate:           users[0],
		Total:              users[1],
		LocationEstimate:   users[2],
		LocationTotal:      users[3],
	}
	if err := h.audiences.Upsert(ctx, record); err != nil {
		return JobResult{}, err
	}

	h.logger.Debug("Audience record stored",
		zap.String("campaign_id", p.CampaignID),
		zap.String("facebook_account_id", p.FacebookAccountID),
		zap.String("audience_category_id", p.AudienceCategoryID),
		zap.String("geolocation_id", p.GeolocationID),
		zap.String("fetch_date", fetchDate),
		zap.Int64("estimate", record.Estimate))
	return JobResult{}, nil
}
