package businessflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/amirphl/audience-orchestrator/app/dto"
	"github.com/amirphl/audience-orchestrator/app/scheduler"
	"github.com/amirphl/audience-orchestrator/config"
	"github.com/amirphl/audience-orchestrator/models"
	"github.com/amirphl/audience-orchestrator/repository"
	"github.com/amirphl/audience-orchestrator/utils"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const audienceSheetName = "audiences"

var audienceSheetHeader = []string{
	"campaign_id", "facebook_account_id", "audience_category_id", "geolocation_id", "fetch_date",
	"estimate", "total", "location_estimate", "location_total", "created_at",
}

// AudienceExportFlow writes campaign audiences to spreadsheets that expire after a while
type AudienceExportFlow interface {
	Export(ctx context.Context, req *dto.CreateExportRequest, metadata *ClientMetadata) (*dto.AudienceExportResponse, error)
	ExpireExport(ctx context.Context, exportID string) error
	ListExports(ctx context.Context, campaignID string) ([]dto.AudienceExportResponse, error)
	ExportFile(ctx context.Context, exportID string) (path string, filename string, err error)
}

// AudienceExportFlowImpl implements the audience export flow
type AudienceExportFlowImpl struct {
	campaignRepo repository.CampaignRepository
	audienceRepo repository.FacebookAudienceRepository
	exportRepo   repository.AudienceExportRepository
	jobScheduler *scheduler.JobScheduler
	exportConfig config.ExportConfig
	logger       *zap.Logger
}

var (
	_ AudienceExportFlow      = (*AudienceExportFlowImpl)(nil)
	_ scheduler.ExportExpirer = (*AudienceExportFlowImpl)(nil)
)

// NewAudienceExportFlow creates a new audience export flow instance
func NewAudienceExportFlow(
	campaignRepo repository.CampaignRepository,
	audienceRepo repository.FacebookAudienceRepository,
	exportRepo repository.AudienceExportRepository,
	jobScheduler *scheduler.JobScheduler,
	exportConfig config.ExportConfig,
	logger *zap.Logger,
) *AudienceExportFlowImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AudienceExportFlowImpl{
		campaignRepo: campaignRepo,
		audienceRepo: audienceRepo,
		exportRepo:   exportRepo,
		jobScheduler: jobScheduler,
		exportConfig: exportConfig,
		logger:       logger,
	}
}

// Export writes the latest audience record of every natural key of the campaign to an xlsx file
// and schedules its expiry
func (f *AudienceExportFlowImpl) Export(ctx context.Context, req *dto.CreateExportRequest, metadata *ClientMetadata) (*dto.AudienceExportResponse, error) {
	campaign, err := getCampaign(ctx, f.campaignRepo, req.CampaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}

	var account *string
	if req.FacebookAccountID != "" {
		account = utils.ToPtr(req.FacebookAccountID)
	}
	records, err := f.audienceRepo.LatestByCampaign(ctx, campaign.ID, account)
	if err != nil {
		return nil, NewBusinessError("AUDIENCE_LOOKUP_FAILED", "Failed to read campaign audiences", err)
	}
	if len(records) == 0 {
		return nil, NewBusinessError("NOTHING_TO_EXPORT", "Campaign has no audience records", ErrNothingToExport)
	}

	now := utils.UTCNow()
	export := &models.AudienceExport{
		ID:                uuid.NewString(),
		CampaignID:        campaign.ID,
		FacebookAccountID: req.FacebookAccountID,
		Status:            models.AudienceExportStatusPending,
		Rows:              len(records),
		ExpiresAt:         now.Add(f.exportConfig.TTL),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	export.FilePath = filepath.Join(f.exportConfig.Dir, export.ID+".xlsx")

	if err := writeAudienceSheet(export.FilePath, records); err != nil {
		return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write export file", err)
	}
	export.Status = models.AudienceExportStatusReady
	if err := f.exportRepo.Save(ctx, export); err != nil {
		_ = os.Remove(export.FilePath)
		return nil, NewBusinessError("EXPORT_SAVE_FAILED", "Failed to store export", err)
	}

	log := f.logger.With(metadata.Fields()...).With(
		zap.String("campaign_id", campaign.ID),
		zap.String("export_id", export.ID))
	_, _, err = f.jobScheduler.EnqueueAt(ctx, &models.ExpireExportPayload{CampaignID: campaign.ID, ExportID: export.ID}, export.ExpiresAt)
	if err != nil {
		log.Error("Failed to schedule export expiry", zap.Error(err))
		return nil, NewBusinessError("EXPORT_EXPIRY_SCHEDULE_FAILED", "Failed to schedule export expiry", err)
	}

	log.Info("Audience export written", zap.Int("rows", export.Rows), zap.Time("expires_at", export.ExpiresAt))
	resp := ToAudienceExportResponse(export)
	return &resp, nil
}

func writeAudienceSheet(path string, records []*models.FacebookAudience) error {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	if err := xl.SetSheetName(xl.GetSheetName(0), audienceSheetName); err != nil {
		return err
	}
	header := audienceSheetHeader
	if err := xl.SetSheetRow(audienceSheetName, "A1", &header); err != nil {
		return err
	}
	for i, r := range records {
		row := []any{
			r.CampaignID,
			r.FacebookAccountID,
			r.AudienceCategoryID,
			r.GeolocationID,
			r.FetchDate,
			r.Estimate,
			r.Total,
			r.LocationEstimate,
			r.LocationTotal,
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := xl.SetSheetRow(audienceSheetName, cell, &row); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	return xl.SaveAs(path)
}

// ExpireExport deletes the export file and marks the export expired. Unknown or already expired
// exports are a no-op.
func (f *AudienceExportFlowImpl) ExpireExport(ctx context.Context, exportID string) error {
	export, err := f.exportRepo.ByID(ctx, exportID)
	if err != nil {
		return err
	}
	if export == nil || !export.InFlight() {
		return nil
	}

	if export.FilePath != "" {
		if err := os.Remove(export.FilePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to delete export file %s: %w", export.FilePath, err)
		}
	}
	if err := f.exportRepo.UpdateStatus(ctx, export.ID, models.AudienceExportStatusExpired); err != nil {
		return err
	}

	f.logger.Info("Audience export expired",
		zap.String("campaign_id", export.CampaignID),
		zap.String("export_id", export.ID))
	return nil
}

// ListExports returns the exports of a campaign, newest first
func (f *AudienceExportFlowImpl) ListExports(ctx context.Context, campaignID string) ([]dto.AudienceExportResponse, error) {
	if _, err := getCampaign(ctx, f.campaignRepo, campaignID); err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	exports, err := f.exportRepo.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, NewBusinessError("EXPORT_LOOKUP_FAILED", "Failed to list exports", err)
	}
	items := make([]dto.AudienceExportResponse, 0, len(exports))
	for _, e := range exports {
		items = append(items, ToAudienceExportResponse(e))
	}
	return items, nil
}

// ExportFile returns the path and download name of a live export
func (f *AudienceExportFlowImpl) ExportFile(ctx context.Context, exportID string) (string, string, error) {
	export, err := f.exportRepo.ByID(ctx, exportID)
	if err != nil {
		return "", "", NewBusinessError("EXPORT_LOOKUP_FAILED", "Failed to lookup export", err)
	}
	if export == nil {
		return "", "", NewBusinessError("EXPORT_NOT_FOUND", "Export not found", ErrExportNotFound)
	}
	if !export.InFlight() || utils.IsExpired(export.ExpiresAt) {
		return "", "", NewBusinessErrorf("EXPORT_EXPIRED", "Export %s has expired", ErrExportExpired, export.ID)
	}
	return export.FilePath, exportFilename(export), nil
}

func exportFilename(export *models.AudienceExport) string {
	return "audiences_" + export.CampaignID + "_" + strconv.FormatInt(export.CreatedAt.Unix(), 10) + ".xlsx"
}
