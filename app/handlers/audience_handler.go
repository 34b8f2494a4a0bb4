package handlers

import (
	"github.com/amirphl/audience-orchestrator/app/dto"
	businessflow "github.com/amirphl/audience-orchestrator/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// AudienceHandlerInterface defines the contract for audience reporting and export handlers
type AudienceHandlerInterface interface {
	ListCampaignAudience(c fiber.Ctx) error
	LatestAudience(c fiber.Ctx) error
	CreateExport(c fiber.Ctx) error
	ListExports(c fiber.Ctx) error
	DownloadExport(c fiber.Ctx) error
}

// AudienceHandler serves audience records and their spreadsheet exports
type AudienceHandler struct {
	queryFlow  businessflow.AudienceQueryFlow
	exportFlow businessflow.AudienceExportFlow
	validator  *validator.Validate
}

// NewAudienceHandler creates a new audience handler
func NewAudienceHandler(queryFlow businessflow.AudienceQueryFlow, exportFlow businessflow.AudienceExportFlow) *AudienceHandler {
	return &AudienceHandler{
		queryFlow:  queryFlow,
		exportFlow: exportFlow,
		validator:  validator.New(),
	}
}

// ListCampaignAudience returns the latest record of every category and geolocation of a campaign
// @Router /api/v1/campaigns/{id}/audiences [get]
func (h *AudienceHandler) ListCampaignAudience(c fiber.Ctx) error {
	ctx, cancel := requestContext(c, "/api/v1/campaigns/:id/audiences", defaultRequestTimeout)
	defer cancel()

	result, err := h.queryFlow.ListCampaignAudience(ctx, c.Params("id"), c.Query("facebook_account_id"))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Audiences retrieved successfully", result)
}

// @Router /api/v1/campaigns/{id}/audiences/latest [get]
func (h *AudienceHandler) LatestAudience(c fiber.Ctx) error {
	var req dto.LatestAudienceRequest
	if err := c.Bind().Query(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	req.CampaignID = c.Params("id")
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := requestContext(c, "/api/v1/campaigns/:id/audiences/latest", defaultRequestTimeout)
	defer cancel()

	result, err := h.queryFlow.Latest(ctx, &req)
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Audience retrieved successfully", result)
}

// CreateExport writes the campaign audiences to a spreadsheet
// @Router /api/v1/campaigns/{id}/exports [post]
func (h *AudienceHandler) CreateExport(c fiber.Ctx) error {
	req := dto.CreateExportRequest{
		CampaignID:        c.Params("id"),
		FacebookAccountID: c.Query("facebook_account_id"),
	}

	ctx, cancel := requestContext(c, "/api/v1/campaigns/:id/exports", longRequestTimeout)
	defer cancel()

	result, err := h.exportFlow.Export(ctx, &req, clientMetadata(c))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusCreated, "Export created", result)
}

// @Router /api/v1/campaigns/{id}/exports [get]
func (h *AudienceHandler) ListExports(c fiber.Ctx) error {
	ctx, cancel := requestContext(c, "/api/v1/campaigns/:id/exports", defaultRequestTimeout)
	defer cancel()

	result, err := h.exportFlow.ListExports(ctx, c.Params("id"))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Exports retrieved successfully", result)
}

// DownloadExport streams a live export file
// @Router /api/v1/exports/{exportId}/download [get]
func (h *AudienceHandler) DownloadExport(c fiber.Ctx) error {
	ctx, cancel := requestContext(c, "/api/v1/exports/:exportId/download", defaultRequestTimeout)
	defer cancel()

	path, filename, err := h.exportFlow.ExportFile(ctx, c.Params("exportId"))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return c.Download(path, filename)
}
