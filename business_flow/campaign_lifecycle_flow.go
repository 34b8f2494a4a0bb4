// Package businessflow contains the core business logic and use cases for campaign lifecycle workflows
package businessflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/audience-orchestrator/app/dto"
	"github.com/amirphl/audience-orchestrator/app/scheduler"
	"github.com/amirphl/audience-orchestrator/app/services"
	"github.com/amirphl/audience-orchestrator/models"
	"github.com/amirphl/audience-orchestrator/repository"
	"github.com/amirphl/audience-orchestrator/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Account job kinds accepted by RefreshAccountJob
const (
	AccountJobEntries   = "entries"
	AccountJobRefetch   = "refetch"
	AccountJobAudiences = "audiences"
	AccountJobFbUsers   = "fbUsers"
)

// CampaignLifecycleFlow keeps the job set of a campaign consistent with its state
type CampaignLifecycleFlow interface {
	AddAccount(ctx context.Context, req *dto.AttachAccountRequest, metadata *ClientMetadata) (*dto.AttachAccountResponse, error)
	SetMainAccount(ctx context.Context, req *dto.AttachAccountRequest, metadata *ClientMetadata) (*dto.AttachAccountResponse, error)
	RemoveAccount(ctx context.Context, req *dto.RemoveAccountRequest, metadata *ClientMetadata) (*dto.RemoveAccountResponse, error)
	SuspendCampaign(ctx context.Context, campaignID string, metadata *ClientMetadata) (*dto.CampaignActionResponse, error)
	ActivateCampaign(ctx context.Context, campaignID string, metadata *ClientMetadata) (*dto.CampaignJobsResponse, error)
	RefreshCampaignJobs(ctx context.Context, campaignID string, metadata *ClientMetadata) (*dto.CampaignJobsResponse, error)
	RefreshAccountJob(ctx context.Context, req *dto.RefreshAccountJobRequest, metadata *ClientMetadata) (*dto.JobResponse, error)
	RefreshCampaignAccountsTokens(ctx context.Context, campaignID string, metadata *ClientMetadata) (*dto.RefreshTokensResponse, error)
	SuspendAdAccount(ctx context.Context, campaignID string) error
	RemoveCampaign(ctx context.Context, campaignID string, metadata *ClientMetadata) (*dto.RemoveCampaignResponse, error)
	ClearCampaignJobs(ctx context.Context, campaignID string) (int64, error)
}

// CampaignLifecycleFlowImpl implements the campaign lifecycle flow
type CampaignLifecycleFlowImpl struct {
	campaignRepo     repository.CampaignRepository
	accountRepo      repository.FacebookAccountRepository
	audienceRepo     repository.FacebookAudienceRepository
	jobRepo          repository.JobRepository
	exportRepo       repository.AudienceExportRepository
	campaignDataRepo repository.CampaignDataRepository
	jobScheduler     *scheduler.JobScheduler
	facebook         services.FacebookClient
	tokenValidator   services.TokenValidator
	exportExpirer    scheduler.ExportExpirer
	db               *gorm.DB
	logger           *zap.Logger
}

var (
	_ CampaignLifecycleFlow        = (*CampaignLifecycleFlowImpl)(nil)
	_ scheduler.AdAccountSuspender = (*CampaignLifecycleFlowImpl)(nil)
)

// NewCampaignLifecycleFlow creates a new campaign lifecycle flow instance
func NewCampaignLifecycleFlow(
	campaignRepo repository.CampaignRepository,
	accountRepo repository.FacebookAccountRepository,
	audienceRepo repository.FacebookAudienceRepository,
	jobRepo repository.JobRepository,
	exportRepo repository.AudienceExportRepository,
	campaignDataRepo repository.CampaignDataRepository,
	jobScheduler *scheduler.JobScheduler,
	facebook services.FacebookClient,
	tokenValidator services.TokenValidator,
	exportExpirer scheduler.ExportExpirer,
	db *gorm.DB,
	logger *zap.Logger,
) *CampaignLifecycleFlowImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CampaignLifecycleFlowImpl{
		campaignRepo:     campaignRepo,
		accountRepo:      accountRepo,
		audienceRepo:     audienceRepo,
		jobRepo:          jobRepo,
		exportRepo:       exportRepo,
		campaignDataRepo: campaignDataRepo,
		jobScheduler:     jobScheduler,
		facebook:         facebook,
		tokenValidator:   tokenValidator,
		exportExpirer:    exportExpirer,
		db:               db,
		logger:           logger,
	}
}

// DesiredCampaignJobs returns the jobs an active campaign must have: a health check when a main
// account exists, and for every attached account its entries, audience and people jobs.
// Entries jobs are left out for accounts listed in invalidTokens.
func DesiredCampaignJobs(campaign *models.Campaign, invalidTokens map[string]bool) []models.JobPayload {
	var payloads []models.JobPayload
	if campaign.MainAccount() != nil {
		payloads = append(payloads, &models.HealthCheckPayload{CampaignID: campaign.ID})
	}
	for i := range campaign.Accounts {
		account := &campaign.Accounts[i]
		payloads = append(payloads, accountJobs(campaign.ID, account, !invalidTokens[account.FacebookID])...)
	}
	return payloads
}

func accountJobs(campaignID string, account *models.CampaignAccount, withEntries bool) []models.JobPayload {
	var payloads []models.JobPayload
	if withEntries {
		payloads = append(payloads, &models.AccountEntriesPayload{
			CampaignID:  campaignID,
			FacebookID:  account.FacebookID,
			AccessToken: account.AccessToken,
		})
	}
	return append(payloads,
		&models.AccountAudiencePayload{CampaignID: campaignID, FacebookAccountID: account.FacebookID},
		&models.FacebookUsersPayload{CampaignID: campaignID, FacebookAccountID: account.FacebookID},
	)
}

// AddAccount attaches a page to the campaign and requests its jobs
func (f *CampaignLifecycleFlowImpl) AddAccount(ctx context.Context, req *dto.AttachAccountRequest, metadata *ClientMetadata) (*dto.AttachAccountResponse, error) {
	return f.attachAccount(ctx, req, false, metadata)
}

// SetMainAccount attaches a page as the campaign's main account, demoting the previous one,
// and additionally requests the recurring health check
func (f *CampaignLifecycleFlowImpl) SetMainAccount(ctx context.Context, req *dto.AttachAccountRequest, metadata *ClientMetadata) (*dto.AttachAccountResponse, error) {
	return f.attachAccount(ctx, req, true, metadata)
}

func (f *CampaignLifecycleFlowImpl) attachAccount(ctx context.Context, req *dto.AttachAccountRequest, isMain bool, metadata *ClientMetadata) (*dto.AttachAccountResponse, error) {
	if req.FacebookID == "" || req.AccessToken == "" {
		return nil, NewBusinessError("ACCOUNT_VALIDATION_FAILED", "Account id and access token are required", nil)
	}
	log := f.logger.With(metadata.Fields()...).With(
		zap.String("campaign_id", req.CampaignID),
		zap.String("facebook_account_id", req.FacebookID),
		zap.Bool("is_main", isMain))

	campaign, err := getCampaign(ctx, f.campaignRepo, req.CampaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}

	longToken, err := f.facebook.ExchangeToken(ctx, req.AccessToken)
	if err != nil {
		log.Error("Token exchange failed", zap.Error(err))
		return nil, NewBusinessError("TOKEN_EXCHANGE_FAILED", "Token exchange failed", fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err))
	}
	valid, err := f.tokenValidator.Validate(ctx, longToken)
	if err != nil {
		return nil, NewBusinessError("TOKEN_VALIDATION_FAILED", "Failed to validate account token", err)
	}
	if !valid {
		return nil, NewBusinessError("ACCOUNT_TOKEN_INVALID", "Account token is invalid", ErrAccountTokenInvalid)
	}

	if err := f.facebook.SubscribeApp(ctx, req.FacebookID, longToken); err != nil {
		log.Error("Page subscription failed", zap.Error(err))
		return nil, NewBusinessError("SUBSCRIPTION_FAILED", "Page subscription failed", fmt.Errorf("%w: %v", ErrSubscriptionFailed, err))
	}

	directory := &models.FacebookAccount{
		FacebookID: req.FacebookID,
		Name:       req.Name,
		Category:   req.Category,
		FanCount:   req.FanCount,
	}
	if err := f.accountRepo.Upsert(ctx, directory); err != nil {
		return nil, NewBusinessError("ACCOUNT_UPSERT_FAILED", "Failed to store account", err)
	}

	account := &models.CampaignAccount{
		CampaignID:  campaign.ID,
		FacebookID:  req.FacebookID,
		AccessToken: longToken,
		IsMain:      isMain,
	}
	if err := f.campaignRepo.AttachAccount(ctx, account); err != nil {
		return nil, NewBusinessError("ACCOUNT_ATTACH_FAILED", "Failed to attach account", err)
	}

	resp := &dto.AttachAccountResponse{
		Message:    "Account attached successfully",
		CampaignID: campaign.ID,
		FacebookID: account.FacebookID,
		IsMain:     account.IsMain,
		Jobs:       []dto.JobResponse{},
	}
	if campaign.IsSuspended() {
		log.Info("Campaign is suspended, account jobs are deferred until activation")
		return resp, nil
	}

	payloads := accountJobs(campaign.ID, account, true)
	if isMain {
		payloads = append([]models.JobPayload{&models.HealthCheckPayload{CampaignID: campaign.ID}}, payloads...)
	}
	jobs, err := f.converge(ctx, log, payloads)
	resp.Jobs = jobs
	if err != nil {
		return resp, NewBusinessError("JOB_REFRESH_FAILED", "Account attached but some jobs could not be requested", err)
	}

	log.Info("Account attached", zap.Int("jobs", len(jobs)))
	return resp, nil
}

// converge refreshes every payload, continuing past failures so one bad job does not hide the rest
func (f *CampaignLifecycleFlowImpl) converge(ctx context.Context, log *zap.Logger, payloads []models.JobPayload) ([]dto.JobResponse, error) {
	jobs := make([]dto.JobResponse, 0, len(payloads))
	var errs []error
	for _, payload := range payloads {
		job, action, err := f.jobScheduler.Refresh(ctx, payload)
		if err != nil {
			log.Error("Failed to refresh job", zap.String("job_type", string(payload.JobType())), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", payload.JobType(), err))
			continue
		}
		jobs = append(jobs, ToJobResponse(job, string(action)))
	}
	return jobs, errors.Join(errs...)
}

// RemoveAccount deletes the account's audience records and jobs, detaches it from the campaign and,
// when no other campaign uses it, deprovisions it upstream
func (f *CampaignLifecycleFlowImpl) RemoveAccount(ctx context.Context, req *dto.RemoveAccountRequest, metadata *ClientMetadata) (*dto.RemoveAccountResponse, error) {
	log := f.logger.With(metadata.Fields()...).With(
		zap.String("campaign_id", req.CampaignID),
		zap.String("facebook_account_id", req.FacebookID))

	campaign, err := getCampaign(ctx, f.campaignRepo, req.CampaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	account := campaign.Account(req.FacebookID)

	resp := &dto.RemoveAccountResponse{Message: "Account removed successfully"}
	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		var err error
		resp.RemovedAudiences, err = f.audienceRepo.DeleteByCampaignAccount(txCtx, campaign.ID, req.FacebookID)
		if err != nil {
			return err
		}
		resp.RemovedJobs, err = f.jobRepo.RemoveByOwner(txCtx, models.JobFilter{
			CampaignID:        utils.ToPtr(campaign.ID),
			FacebookAccountID: utils.ToPtr(req.FacebookID),
		})
		if err != nil {
			return err
		}
		if account != nil && account.IsMain {
			n, err := f.jobRepo.RemoveByOwner(txCtx, models.JobFilter{
				Types:      []models.JobType{models.JobTypeCampaignHealthCheck},
				CampaignID: utils.ToPtr(campaign.ID),
			})
			if err != nil {
				return err
			}
			resp.RemovedJobs += n
		}
		_, err = f.campaignRepo.DetachAccount(txCtx, campaign.ID, req.FacebookID)
		return err
	})
	if err != nil {
		log.Error("Account removal failed", zap.Error(err))
		return nil, NewBusinessError("ACCOUNT_REMOVAL_FAILED", "Account removal failed", err)
	}

	if account != nil {
		resp.AccountDeprovisioned = f.deprovisionIfOrphaned(ctx, log, account)
	}

	log.Info("Account removed",
		zap.Int64("removed_jobs", resp.RemovedJobs),
		zap.Int64("removed_audiences", resp.RemovedAudiences),
		zap.Bool("deprovisioned", resp.AccountDeprovisioned))
	return resp, nil
}

// deprovisionIfOrphaned unsubscribes the page and drops its directory entry once no campaign references it
func (f *CampaignLifecycleFlowImpl) deprovisionIfOrphaned(ctx context.Context, log *zap.Logger, account *models.CampaignAccount) bool {
	count, err := f.campaignRepo.CountCampaignsWithAccount(ctx, account.FacebookID)
	if err != nil {
		log.Error("Failed to count campaigns of account", zap.String("facebook_account_id", account.FacebookID), zap.Error(err))
		return false
	}
	if count > 0 {
		return false
	}
	return f.deprovision(ctx, log, account)
}

func (f *CampaignLifecycleFlowImpl) deprovision(ctx context.Context, log *zap.Logger, account *models.CampaignAccount) bool {
	log = log.With(zap.String("facebook_account_id", account.FacebookID))
	if err := f.facebook.UnsubscribeApp(ctx, account.FacebookID, account.AccessToken); err != nil {
		log.Error("Failed to deprovision account upstream", zap.Error(err))
		return false
	}
	if err := f.accountRepo.Delete(ctx, account.FacebookID); err != nil {
		log.Error("Failed to delete account directory entry", zap.Error(err))
		return false
	}
	return true
}

// SuspendCampaign marks the campaign suspended and removes all of its jobs
func (f *CampaignLifecycleFlowImpl) SuspendCampaign(ctx context.Context, campaignID string, metadata *ClientMetadata) (*dto.CampaignActionResponse, error) {
	campaign, err := getCampaign(ctx, f.campaignRepo, campaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}

	var removed int64
	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if err := f.campaignRepo.UpdateStatus(txCtx, campaign.ID, models.CampaignStatusSuspended); err != nil {
			return err
		}
		var err error
		removed, err = f.ClearCampaignJobs(txCtx, campaign.ID)
		return err
	})
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_SUSPEND_FAILED", "Campaign suspension failed", err)
	}

	f.logger.Info("Campaign suspended", append(metadata.Fields(),
		zap.String("campaign_id", campaign.ID),
		zap.Int64("removed_jobs", removed))...)
	return &dto.CampaignActionResponse{
		Message:    "Campaign suspended successfully",
		CampaignID: campaign.ID,
		Status:     models.CampaignStatusSuspended.String(),
	}, nil
}

// ActivateCampaign marks the campaign active and rebuilds its job set
func (f *CampaignLifecycleFlowImpl) ActivateCampaign(ctx context.Context, campaignID string, metadata *ClientMetadata) (*dto.CampaignJobsResponse, error) {
	campaign, err := getCampaign(ctx, f.campaignRepo, campaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if err := f.campaignRepo.UpdateStatus(ctx, campaign.ID, models.CampaignStatusActive); err != nil {
		return nil, NewBusinessError("CAMPAIGN_ACTIVATE_FAILED", "Campaign activation failed", err)
	}

	resp, err := f.RefreshCampaignJobs(ctx, campaign.ID, metadata)
	if resp != nil {
		resp.Message = "Campaign activated successfully"
	}
	return resp, err
}

// RefreshCampaignJobs converges the campaign's jobs to DesiredCampaignJobs.
// A suspended campaign is rejected.
func (f *CampaignLifecycleFlowImpl) RefreshCampaignJobs(ctx context.Context, campaignID string, metadata *ClientMetadata) (*dto.CampaignJobsResponse, error) {
	campaign, err := getCampaign(ctx, f.campaignRepo, campaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if campaign.IsSuspended() {
		return nil, NewBusinessError("CAMPAIGN_SUSPENDED", "This campaign is suspended", ErrCampaignSuspended)
	}
	log := f.logger.With(metadata.Fields()...).With(zap.String("campaign_id", campaign.ID))

	invalid := make(map[string]bool)
	for _, account := range campaign.Accounts {
		valid, err := f.tokenValidator.Validate(ctx, account.AccessToken)
		if err != nil {
			return nil, NewBusinessError("TOKEN_VALIDATION_FAILED", "Failed to validate account token", err)
		}
		if !valid {
			log.Warn("Account token is invalid, skipping entries job", zap.String("facebook_account_id", account.FacebookID))
			invalid[account.FacebookID] = true
		}
	}

	jobs, err := f.converge(ctx, log, DesiredCampaignJobs(campaign, invalid))
	resp := &dto.CampaignJobsResponse{
		Message:    "Campaign jobs refreshed successfully",
		CampaignID: campaign.ID,
		Status:     campaign.Status.String(),
		Jobs:       jobs,
	}
	if err != nil {
		return resp, NewBusinessError("JOB_REFRESH_FAILED", "Some campaign jobs could not be refreshed", err)
	}
	log.Info("Campaign jobs refreshed", zap.Int("jobs", len(jobs)))
	return resp, nil
}

// RefreshAccountJob converges a single job of an attached account
func (f *CampaignLifecycleFlowImpl) RefreshAccountJob(ctx context.Context, req *dto.RefreshAccountJobRequest, metadata *ClientMetadata) (*dto.JobResponse, error) {
	campaign, err := getCampaign(ctx, f.campaignRepo, req.CampaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	if campaign.IsSuspended() {
		return nil, NewBusinessError("CAMPAIGN_SUSPENDED", "This campaign is suspended", ErrCampaignSuspended)
	}

	account := campaign.Account(req.FacebookAccountID)
	if account == nil {
		return nil, NewBusinessError("ACCOUNT_NOT_ATTACHED", "Account is not attached to the campaign", ErrAccountNotAttached)
	}

	var payload models.JobPayload
	switch req.Kind {
	case AccountJobEntries, AccountJobRefetch:
		payload = &models.AccountEntriesPayload{
			CampaignID:  campaign.ID,
			FacebookID:  account.FacebookID,
			AccessToken: account.AccessToken,
			Refetch:     req.Kind == AccountJobRefetch,
		}
	case AccountJobAudiences:
		payload = &models.AccountAudiencePayload{CampaignID: campaign.ID, FacebookAccountID: account.FacebookID}
	case AccountJobFbUsers:
		payload = &models.FacebookUsersPayload{CampaignID: campaign.ID, FacebookAccountID: account.FacebookID}
	default:
		return nil, NewBusinessErrorf("UNKNOWN_JOB_KIND", "Unknown account job kind %q", ErrUnknownAccountJobKind, req.Kind)
	}

	job, action, err := f.jobScheduler.Refresh(ctx, payload)
	if err != nil {
		return nil, NewBusinessError("JOB_REFRESH_FAILED", "Account job refresh failed", err)
	}
	f.logger.Debug("Account job refreshed", append(metadata.Fields(),
		zap.String("campaign_id", campaign.ID),
		zap.String("facebook_account_id", req.FacebookAccountID),
		zap.String("kind", req.Kind),
		zap.String("action", string(action)))...)

	resp := ToJobResponse(job, string(action))
	return &resp, nil
}

// RefreshCampaignAccountsTokens renews the stored token of every attached account a campaign
// user still manages with a valid page token
func (f *CampaignLifecycleFlowImpl) RefreshCampaignAccountsTokens(ctx context.Context, campaignID string, metadata *ClientMetadata) (*dto.RefreshTokensResponse, error) {
	campaign, err := getCampaign(ctx, f.campaignRepo, campaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	log := f.logger.With(metadata.Fields()...).With(zap.String("campaign_id", campaign.ID))

	users, err := f.campaignRepo.ListUsers(ctx, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_USERS_LOOKUP_FAILED", "Failed to list campaign users", err)
	}

	pageTokens := make(map[string]string)
	for _, user := range users {
		if user.AccessToken == "" {
			continue
		}
		pages, err := f.facebook.UserPages(ctx, user.AccessToken)
		if err != nil {
			log.Warn("Failed to list user pages", zap.String("user_id", user.UserID), zap.Error(err))
			continue
		}
		for _, page := range pages {
			if _, seen := pageTokens[page.ID]; seen || campaign.Account(page.ID) == nil {
				continue
			}
			valid, err := f.tokenValidator.Validate(ctx, page.AccessToken)
			if err != nil {
				log.Warn("Failed to validate page token", zap.String("facebook_account_id", page.ID), zap.Error(err))
				continue
			}
			if valid {
				pageTokens[page.ID] = page.AccessToken
			}
		}
	}

	resp := &dto.RefreshTokensResponse{
		Message:    "Account tokens refreshed successfully",
		CampaignID: campaign.ID,
		Refreshed:  []string{},
	}
	for _, account := range campaign.Accounts {
		token, ok := pageTokens[account.FacebookID]
		if !ok {
			continue
		}
		longToken, err := f.facebook.ExchangeToken(ctx, token)
		if err != nil {
			log.Error("Token exchange failed", zap.String("facebook_account_id", account.FacebookID), zap.Error(err))
			return resp, NewBusinessError("TOKEN_EXCHANGE_FAILED", "Token exchange failed", fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err))
		}
		if err := f.campaignRepo.UpdateAccountToken(ctx, campaign.ID, account.FacebookID, longToken); err != nil {
			return resp, NewBusinessError("TOKEN_UPDATE_FAILED", "Failed to store account token", err)
		}
		resp.Refreshed = append(resp.Refreshed, account.FacebookID)
	}

	log.Info("Account tokens refreshed", zap.Strings("refreshed", resp.Refreshed))
	return resp, nil
}

// SuspendAdAccount drops the campaign's ad account and marks the campaign invalid
func (f *CampaignLifecycleFlowImpl) SuspendAdAccount(ctx context.Context, campaignID string) error {
	if err := f.campaignRepo.ClearAdAccount(ctx, campaignID); err != nil {
		return NewBusinessError("AD_ACCOUNT_SUSPEND_FAILED", "Failed to suspend ad account", err)
	}
	f.logger.Warn("Ad account suspended", zap.String("campaign_id", campaignID))
	return nil
}

// RemoveCampaign expires in-flight exports, deletes every record the campaign owns and then the
// campaign itself. Accounts used by no other campaign are deprovisioned afterwards.
func (f *CampaignLifecycleFlowImpl) RemoveCampaign(ctx context.Context, campaignID string, metadata *ClientMetadata) (*dto.RemoveCampaignResponse, error) {
	campaign, err := getCampaign(ctx, f.campaignRepo, campaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	log := f.logger.With(metadata.Fields()...).With(zap.String("campaign_id", campaign.ID))
	resp := &dto.RemoveCampaignResponse{Message: "Campaign removed successfully", CampaignID: campaign.ID}

	exports, err := f.exportRepo.ListByCampaign(ctx, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("EXPORT_LOOKUP_FAILED", "Failed to list campaign exports", err)
	}
	for _, export := range exports {
		if !export.InFlight() {
			continue
		}
		if err := f.exportExpirer.ExpireExport(ctx, export.ID); err != nil {
			log.Error("Failed to expire export", zap.String("export_id", export.ID), zap.Error(err))
			return nil, NewBusinessError("EXPORT_EXPIRE_FAILED", "Failed to expire campaign export", err)
		}
		resp.ExpiredExports++
	}

	var orphans []*models.CampaignAccount
	for i := range campaign.Accounts {
		count, err := f.campaignRepo.CountCampaignsWithAccount(ctx, campaign.Accounts[i].FacebookID)
		if err != nil {
			return nil, NewBusinessError("ACCOUNT_LOOKUP_FAILED", "Failed to count account campaigns", err)
		}
		if count <= 1 {
			orphans = append(orphans, &campaign.Accounts[i])
		}
	}

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if _, err := f.exportRepo.DeleteByCampaign(txCtx, campaign.ID); err != nil {
			return err
		}
		var err error
		if resp.RemovedJobs, err = f.ClearCampaignJobs(txCtx, campaign.ID); err != nil {
			return err
		}
		if err := f.campaignDataRepo.DeleteByCampaign(txCtx, campaign.ID); err != nil {
			return err
		}
		if resp.RemovedAudiences, err = f.audienceRepo.DeleteByCampaign(txCtx, campaign.ID); err != nil {
			return err
		}
		if _, err := f.campaignRepo.DetachAllAccounts(txCtx, campaign.ID); err != nil {
			return err
		}
		if _, err := f.campaignRepo.DeleteUsers(txCtx, campaign.ID); err != nil {
			return err
		}
		return f.campaignRepo.Delete(txCtx, campaign.ID)
	})
	if err != nil {
		log.Error("Campaign removal failed", zap.Error(err))
		return nil, NewBusinessError("CAMPAIGN_REMOVAL_FAILED", "Campaign removal failed", err)
	}

	for _, account := range orphans {
		if f.deprovision(ctx, log, account) {
			resp.DeprovisionedAccounts++
		}
	}

	log.Info("Campaign removed",
		zap.Int("expired_exports", resp.ExpiredExports),
		zap.Int64("removed_jobs", resp.RemovedJobs),
		zap.Int64("removed_audiences", resp.RemovedAudiences),
		zap.Int("deprovisioned_accounts", resp.DeprovisionedAccounts))
	return resp, nil
}

// ClearCampaignJobs removes every job scoped to the campaign, whatever its status
func (f *CampaignLifecycleFlowImpl) ClearCampaignJobs(ctx context.Context, campaignID string) (int64, error) {
	return f.jobRepo.RemoveByOwner(ctx, models.JobFilter{CampaignID: utils.ToPtr(campaignID)})
}
