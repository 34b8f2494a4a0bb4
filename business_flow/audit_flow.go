package businessflow

import (
	"context"
	"time"

	"github.com/amirphl/audience-orchestrator/app/dto"
	"github.com/amirphl/audience-orchestrator/models"
	"github.com/amirphl/audience-orchestrator/repository"
	"github.com/amirphl/audience-orchestrator/utils"
)

// AuditFlow reads the trail of operator actions
type AuditFlow interface {
	ListAuditLogs(ctx context.Context, req *dto.ListAuditLogsRequest) (*dto.ListAuditLogsResponse, error)
}

type AuditFlowImpl struct {
	auditRepo repository.AuditLogRepository
}

func NewAuditFlow(auditRepo repository.AuditLogRepository) AuditFlow {
	return &AuditFlowImpl{auditRepo: auditRepo}
}

// ListAuditLogs returns a page of audit entries, newest first
func (f *AuditFlowImpl) ListAuditLogs(ctx context.Context, req *dto.ListAuditLogsRequest) (*dto.ListAuditLogsResponse, error) {
	page, pageSize, err := resolvePaging(req.Page, req.PageSize)
	if err != nil {
		return nil, err
	}

	filter := models.AuditLogFilter{Success: req.Success}
	if req.OperatorID != "" {
		filter.OperatorID = utils.ToPtr(req.OperatorID)
	}
	if req.CampaignID != "" {
		filter.CampaignID = utils.ToPtr(req.CampaignID)
	}
	if req.Action != "" {
		filter.Action = utils.ToPtr(req.Action)
	}
	if req.Since != "" {
		since, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			return nil, NewBusinessError("INVALID_SINCE", "Invalid since timestamp", ErrInvalidSince)
		}
		filter.CreatedAfter = utils.ToPtr(since.UTC())
	}

	total, err := f.auditRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("AUDIT_LOOKUP_FAILED", "Failed to count audit entries", err)
	}
	entries, err := f.auditRepo.ByFilter(ctx, filter, "", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("AUDIT_LOOKUP_FAILED", "Failed to list audit entries", err)
	}

	resp := &dto.ListAuditLogsResponse{
		Items:    make([]dto.AuditLogResponse, 0, len(entries)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for _, entry := range entries {
		resp.Items = append(resp.Items, ToAuditLogResponse(entry))
	}
	return resp, nil
}
