package scheduler

import (
	"context"
	"fmt"

	"github.com/amirphl/audience-orchestrator/models"
)

// ExportExpirer removes an export file and marks the export expired
type ExportExpirer interface {
	ExpireExport(ctx context.Context, exportID string) error
}

// ExpireExportHandler runs the delayed expiry of an audience export
type ExpireExportHandler struct {
	expirer ExportExpirer
}

func NewExpireExportHandler(expirer ExportExpirer) *ExpireExportHandler {
	return &ExpireExportHandler{expirer: expirer}
}

func (h *ExpireExportHandler) Handle(ctx context.Context, job *models.Job, payload models.JobPayload) (JobResult, error) {
	p, ok := payload.(*models.ExpireExportPayload)
	if !ok {
		return JobResult{}, fmt.Errorf("%w: unexpected %T", models.ErrInvalidPayload, payload)
	}
	return JobResult{}, h.expirer.ExpireExport(ctx, p.ExportID)
}
