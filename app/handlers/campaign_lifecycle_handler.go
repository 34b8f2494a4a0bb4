package handlers

import (
	"github.com/amirphl/audience-orchestrator/app/dto"
	businessflow "github.com/amirphl/audience-orchestrator/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// CampaignLifecycleHandlerInterface defines the contract for campaign lifecycle handlers
type CampaignLifecycleHandlerInterface interface {
	AddAccount(c fiber.Ctx) error
	SetMainAccount(c fiber.Ctx) error
	RemoveAccount(c fiber.Ctx) error
	RefreshAccountJob(c fiber.Ctx) error
	SuspendCampaign(c fiber.Ctx) error
	ActivateCampaign(c fiber.Ctx) error
	RefreshCampaignJobs(c fiber.Ctx) error
	RefreshAccountsTokens(c fiber.Ctx) error
	RemoveCampaign(c fiber.Ctx) error
}

// CampaignLifecycleHandler handles the campaign lifecycle triggers
type CampaignLifecycleHandler struct {
	flow      businessflow.CampaignLifecycleFlow
	validator *validator.Validate
}

// NewCampaignLifecycleHandler creates a new campaign lifecycle handler
func NewCampaignLifecycleHandler(flow businessflow.CampaignLifecycleFlow) *CampaignLifecycleHandler {
	return &CampaignLifecycleHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

func (h *CampaignLifecycleHandler) bindAttach(c fiber.Ctx) (*dto.AttachAccountRequest, error) {
	var req dto.AttachAccountRequest
	if err := c.Bind().JSON(&req); err != nil {
		return nil, errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.CampaignID = c.Params("id")
	if err := h.validator.Struct(&req); err != nil {
		return nil, errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}
	return &req, nil
}

// AddAccount attaches a page to a campaign and requests its jobs
// @Router /api/v1/campaigns/{id}/accounts [post]
func (h *CampaignLifecycleHandler) AddAccount(c fiber.Ctx) error {
	req, err := h.bindAttach(c)
	if req == nil {
		return err
	}

	ctx, cancel := requestContext(c, "/api/v1/campaigns/:id/accounts", defaultRequestTimeout)
	defer cancel()

	result, err := h.flow.AddAccount(ctx, req, clientMetadata(c))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusCreated, result.Message, result)
}

// SetMainAccount attaches a page as the campaign main account
// @Router /api/v1/campaigns/{id}/main-account [put]
func (h *CampaignLifecycleHandler) SetMainAccount(c fiber.Ctx) error {
	req, err := h.bindAttach(c)
	if req == nil {
		return err
	}

	ctx, cancel := requestContext(c, "/api/v1/campaigns/:id/main-account", defaultRequestTimeout)
	defer cancel()

	result, err := h.flow.SetMainAccount(ctx, req, clientMetadata(c))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, result.Message, result)
}

// RemoveAccount detaches a page and drops its jobs and audience records
// @Router /api/v1/campaigns/{id}/accounts/{facebookId} [delete]
func (h *CampaignLifecycleHandler) RemoveAccount(c fiber.Ctx) error {
	req := &dto.RemoveAccountRequest{
		CampaignID: c.Params("id"),
		FacebookID: c.Params("facebookId"),
	}
	if err := h.validator.Struct(req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := requestContext(c, "/api/v1/campaigns/:id/accounts/:facebookId", defaultRequestTimeout)
	defer cancel()

	result, err := h.flow.RemoveAccount(ctx, req, clientMetadata(c))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, result.Message, result)
}

// RefreshAccountJob refreshes one kind of job of an attached account
// @Router /api/v1/campaigns/{id}/accounts/{facebookId}/jobs [post]
func (h *CampaignLifecycleHandler) RefreshAccountJob(c fiber.Ctx) error {
	var req dto.RefreshAccountJobRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.CampaignID = c.Params("id")
	req.FacebookAccountID = c.Params("facebookId")
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := requestContext(c, "/api/v1/campaigns/:id/accounts/:facebookId/jobs", defaultRequestTimeout)
	defer cancel()

	result, err := h.flow.RefreshAccountJob(ctx, &req, clientMetadata(c))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Account job refreshed", result)
}

// SuspendCampaign suspends a campaign and clears its jobs
// @Router /api/v1/campaigns/{id}/suspend [post]
func (h *CampaignLifecycleHandler) SuspendCampaign(c fiber.Ctx) error {
	ctx, cancel := requestContext(c, "/api/v1/campaigns/:id/suspend", defaultRequestTimeout)
	defer cancel()

	result, err := h.flow.SuspendCampaign(ctx, c.Params("id"), clientMetadata(c))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, result.Message, result)
}

// ActivateCampaign activates a campaign and requests all its jobs again
// @Router /api/v1/campaigns/{id}/activate [post]
func (h *CampaignLifecycleHandler) ActivateCampaign(c fiber.Ctx) error {
	ctx, cancel := requestContext(c, "/api/v1/campaigns/:id/activate", defaultRequestTimeout)
	defer cancel()

	result, err := h.flow.ActivateCampaign(ctx, c.Params("id"), clientMetadata(c))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, result.Message, result)
}

// RefreshCampaignJobs converges the jobs of an active campaign
// @Router /api/v1/campaigns/{id}/refresh [post]
func (h *CampaignLifecycleHandler) RefreshCampaignJobs(c fiber.Ctx) error {
	ctx, cancel := requestContext(c, "/api/v1/campaigns/:id/refresh", defaultRequestTimeout)
	defer cancel()

	result, err := h.flow.RefreshCampaignJobs(ctx, c.Params("id"), clientMetadata(c))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, result.Message, result)
}

// RefreshAccountsTokens renews the stored page tokens from the campaign users
// @Router /api/v1/campaigns/{id}/refresh-tokens [post]
func (h *CampaignLifecycleHandler) RefreshAccountsTokens(c fiber.Ctx) error {
	ctx, cancel := requestContext(c, "/api/v1/campaigns/:id/refresh-tokens", longRequestTimeout)
	defer cancel()

	result, err := h.flow.RefreshCampaignAccountsTokens(ctx, c.Params("id"), clientMetadata(c))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, result.Message, result)
}

// RemoveCampaign deletes a campaign and everything that belongs to it
// @Router /api/v1/campaigns/{id} [delete]
func (h *CampaignLifecycleHandler) RemoveCampaign(c fiber.Ctx) error {
	ctx, cancel := requestContext(c, "/api/v1/campaigns/:id", longRequestTimeout)
	defer cancel()

	result, err := h.flow.RemoveCampaign(ctx, c.Params("id"), clientMetadata(c))
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, result.Message, result)
}
