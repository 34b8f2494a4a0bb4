// Package businessflow contains the business logic for the application.
package businessflow

import (
	"context"

	"github.com/amirphl/audience-orchestrator/app/dto"
	"github.com/amirphl/audience-orchestrator/models"
	"github.com/amirphl/audience-orchestrator/repository"
	"github.com/amirphl/audience-orchestrator/utils"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ClientMetadata holds the caller information attached to operator actions in the logs
type ClientMetadata struct {
	IPAddress  string `json:"ip_address"`
	UserAgent  string `json:"user_agent"`
	RequestID  string `json:"request_id,omitempty"`
	OperatorID string `json:"operator_id,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// SetOperatorID sets the authenticated operator
func (cm *ClientMetadata) SetOperatorID(operatorID string) {
	cm.OperatorID = operatorID
}

// Fields returns the metadata as log fields. A nil metadata yields no fields.
func (cm *ClientMetadata) Fields() []zap.Field {
	if cm == nil {
		return nil
	}
	fields := []zap.Field{zap.String("ip_address", cm.IPAddress)}
	if cm.RequestID != "" {
		fields = append(fields, zap.String("request_id", cm.RequestID))
	}
	if cm.OperatorID != "" {
		fields = append(fields, zap.String("operator_id", cm.OperatorID))
	}
	return fields
}

// ToJobResponse converts a job model to its operator view
func ToJobResponse(job *models.Job, action string) dto.JobResponse {
	return dto.JobResponse{
		ID:                job.ID,
		Type:              string(job.Type),
		Status:            job.Status.String(),
		CampaignID:        job.CampaignID,
		FacebookAccountID: job.FacebookAccountID,
		ExportID:          job.ExportID,
		RunAt:             job.RunAt,
		Attempts:          job.Attempts,
		Error:             job.Error,
		Action:            action,
		StartedAt:         job.StartedAt,
		FinishedAt:        job.FinishedAt,
		CreatedAt:         job.CreatedAt,
		UpdatedAt:         job.UpdatedAt,
	}
}

// ToAudienceRecordResponse converts an audience record to its operator view
func ToAudienceRecordResponse(record *models.FacebookAudience) dto.AudienceRecordResponse {
	return dto.AudienceRecordResponse{
		CampaignID:         record.CampaignID,
		FacebookAccountID:  record.FacebookAccountID,
		AudienceCategoryID: record.AudienceCategoryID,
		GeolocationID:      record.GeolocationID,
		FetchDate:          record.FetchDate,
		Estimate:           record.Estimate,
		Total:              record.Total,
		LocationEstimate:   record.LocationEstimate,
		LocationTotal:      record.LocationTotal,
		CreatedAt:          record.CreatedAt,
	}
}

// ToAudienceExportResponse converts an export model to its operator view
func ToAudienceExportResponse(export *models.AudienceExport) dto.AudienceExportResponse {
	return dto.AudienceExportResponse{
		ID:                export.ID,
		CampaignID:        export.CampaignID,
		FacebookAccountID: export.FacebookAccountID,
		Status:            string(export.Status),
		Rows:              export.Rows,
		ExpiresAt:         export.ExpiresAt,
		CreatedAt:         export.CreatedAt,
	}
}

// ToAuditLogResponse converts an audit entry to its operator view
func ToAuditLogResponse(entry *models.AuditLog) dto.AuditLogResponse {
	return dto.AuditLogResponse{
		ID:         entry.ID,
		OperatorID: utils.StringValue(entry.OperatorID),
		Role:       utils.StringValue(entry.Role),
		Action:     entry.Action,
		CampaignID: utils.StringValue(entry.CampaignID),
		Target:     utils.StringValue(entry.Target),
		StatusCode: entry.StatusCode,
		Success:    entry.Success,
		ErrorCode:  utils.StringValue(entry.ErrorCode),
		RequestID:  utils.StringValue(entry.RequestID),
		CreatedAt:  entry.CreatedAt,
	}
}

// resolvePaging applies the default page and page size and rejects out of range values
func resolvePaging(page, pageSize int) (int, int, error) {
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	if page < 1 {
		return 0, 0, NewBusinessError("INVALID_PAGE", "Invalid page", ErrInvalidPage)
	}
	if pageSize < 1 || pageSize > maxPageSize {
		return 0, 0, NewBusinessError("INVALID_PAGE_SIZE", "Invalid page size", ErrInvalidPageSize)
	}
	return page, pageSize, nil
}

func getCampaign(ctx context.Context, repo repository.CampaignRepository, campaignID string) (*models.Campaign, error) {
	if campaignID == "" {
		return nil, ErrCampaignIDRequired
	}
	campaign, err := repo.ByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, ErrCampaignNotFound
	}
	return campaign, nil
}
