package businessflow

import (
	"context"

	"github.com/amirphl/audience-orchestrator/app/dto"
	"github.com/amirphl/audience-orchestrator/repository"
	"github.com/amirphl/audience-orchestrator/utils"
)

// AudienceQueryFlow serves the reporting reads over audience records
type AudienceQueryFlow interface {
	Latest(ctx context.Context, req *dto.LatestAudienceRequest) (*dto.AudienceRecordResponse, error)
	ListCampaignAudience(ctx context.Context, campaignID, facebookAccountID string) (*dto.CampaignAudienceResponse, error)
}

// AudienceQueryFlowImpl implements the audience query flow
type AudienceQueryFlowImpl struct {
	campaignRepo repository.CampaignRepository
	audienceRepo repository.FacebookAudienceRepository
}

// NewAudienceQueryFlow creates a new audience query flow instance
func NewAudienceQueryFlow(campaignRepo repository.CampaignRepository, audienceRepo repository.FacebookAudienceRepository) AudienceQueryFlow {
	return &AudienceQueryFlowImpl{campaignRepo: campaignRepo, audienceRepo: audienceRepo}
}

// Latest returns the most recent record of one natural key
func (f *AudienceQueryFlowImpl) Latest(ctx context.Context, req *dto.LatestAudienceRequest) (*dto.AudienceRecordResponse, error) {
	record, err := f.audienceRepo.Latest(ctx, req.CampaignID, req.FacebookAccountID, req.AudienceCategoryID, req.GeolocationID)
	if err != nil {
		return nil, NewBusinessError("AUDIENCE_LOOKUP_FAILED", "Failed to read audience", err)
	}
	if record == nil {
		return nil, NewBusinessError("AUDIENCE_NOT_FOUND", "Audience record not found", ErrAudienceNotFound)
	}
	resp := ToAudienceRecordResponse(record)
	return &resp, nil
}

// ListCampaignAudience returns the latest record of every natural key of the campaign,
// optionally narrowed to one account
func (f *AudienceQueryFlowImpl) ListCampaignAudience(ctx context.Context, campaignID, facebookAccountID string) (*dto.CampaignAudienceResponse, error) {
	if _, err := getCampaign(ctx, f.campaignRepo, campaignID); err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}

	var account *string
	if facebookAccountID != "" {
		account = utils.ToPtr(facebookAccountID)
	}
	records, err := f.audienceRepo.LatestByCampaign(ctx, campaignID, account)
	if err != nil {
		return nil, NewBusinessError("AUDIENCE_LOOKUP_FAILED", "Failed to read campaign audiences", err)
	}

	resp := &dto.CampaignAudienceResponse{
		CampaignID: campaignID,
		Items:      make([]dto.AudienceRecordResponse, 0, len(records)),
	}
	for _, r := range records {
		resp.Items = append(resp.Items, ToAudienceRecordResponse(r))
	}
	return resp, nil
}
