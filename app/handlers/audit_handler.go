package handlers

import (
	"github.com/amirphl/audience-orchestrator/app/dto"
	businessflow "github.com/amirphl/audience-orchestrator/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// AuditHandlerInterface defines the contract for the audit trail handler
type AuditHandlerInterface interface {
	ListAuditLogs(c fiber.Ctx) error
}

type AuditHandler struct {
	flow      businessflow.AuditFlow
	validator *validator.Validate
}

func NewAuditHandler(flow businessflow.AuditFlow) *AuditHandler {
	return &AuditHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

// ListAuditLogs lists recorded operator actions, newest first
// @Router /api/v1/audit [get]
func (h *AuditHandler) ListAuditLogs(c fiber.Ctx) error {
	var req dto.ListAuditLogsRequest
	if err := c.Bind().Query(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := requestContext(c, "/api/v1/audit", defaultRequestTimeout)
	defer cancel()

	result, err := h.flow.ListAuditLogs(ctx, &req)
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Audit entries retrieved successfully", result)
}
