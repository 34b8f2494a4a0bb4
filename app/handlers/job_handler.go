package handlers

import (
	"github.com/amirphl/audience-orchestrator/app/dto"
	businessflow "github.com/amirphl/audience-orchestrator/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// JobHandlerInterface defines the contract for job admin handlers
type JobHandlerInterface interface {
	ListJobs(c fiber.Ctx) error
	GetJob(c fiber.Ctx) error
	RestartJob(c fiber.Ctx) error
	CancelJob(c fiber.Ctx) error
}

// JobHandler exposes job inspection and the operator restart and cancel actions
type JobHandler struct {
	flow      businessflow.JobAdminFlow
	validator *validator.Validate
}

// NewJobHandler creates a new job handler
func NewJobHandler(flow businessflow.JobAdminFlow) *JobHandler {
	return &JobHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

// ListJobs lists jobs, newest first
// @Router /api/v1/jobs [get]
func (h *JobHandler) ListJobs(c fiber.Ctx) error {
	var req dto.ListJobsRequest
	if err := c.Bind().Query(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if campaignID := c.Params("id"); campaignID != "" {
		req.CampaignID = campaignID
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := requestContext(c, "/api/v1/jobs", defaultRequestTimeout)
	defer cancel()

	result, err := h.flow.ListJobs(ctx, &req)
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Jobs retrieved successfully", result)
}

// @Router /api/v1/jobs/{jobId} [get]
func (h *JobHandler) GetJob(c fiber.Ctx) error {
	ctx, cancel := requestContext(c, "/api/v1/jobs/:jobId", defaultRequestTimeout)
	defer cancel()

	result, err := h.flow.GetJob(ctx, c.Params("jobId"))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Job retrieved successfully", result)
}

// RestartJob moves a failed or cancelled job back to ready
// @Router /api/v1/jobs/{jobId}/restart [post]
func (h *JobHandler) RestartJob(c fiber.Ctx) error {
	ctx, cancel := requestContext(c, "/api/v1/jobs/:jobId/restart", defaultRequestTimeout)
	defer cancel()

	result, err := h.flow.RestartJob(ctx, c.Params("jobId"), clientMetadata(c))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Job restarted", result)
}

// CancelJob cancels a live job
// @Router /api/v1/jobs/{jobId}/cancel [post]
func (h *JobHandler) CancelJob(c fiber.Ctx) error {
	ctx, cancel := requestContext(c, "/api/v1/jobs/:jobId/cancel", defaultRequestTimeout)
	defer cancel()

	result, err := h.flow.CancelJob(ctx, c.Params("jobId"), clientMetadata(c))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Job cancelled", result)
}
