package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/amirphl/audience-orchestrator/app/dto"
	"github.com/amirphl/audience-orchestrator/models"
	"github.com/amirphl/audience-orchestrator/repository"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"go.uber.org/zap"
)

const auditWriteTimeout = 3 * time.Second

// Audit records every state-changing request into the audit trail after the
// handler has answered. A failed write is logged and never fails the request.
func Audit(repo repository.AuditLogRepository, logger *zap.Logger) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c fiber.Ctx) error {
		if c.Method() == fiber.MethodGet || c.Method() == fiber.MethodHead || c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		err := c.Next()

		status := c.Response().StatusCode()
		entry := &models.AuditLog{
			Action:     c.Method() + " " + c.Route().Path,
			StatusCode: status,
			Success:    err == nil && status < fiber.StatusBadRequest,
			CampaignID: nonEmpty(c.Params("id")),
			Target:     auditTarget(c),
			IPAddress:  nonEmpty(c.IP()),
			UserAgent:  nonEmpty(c.Get("User-Agent")),
			RequestID:  nonEmpty(requestid.FromContext(c)),
		}
		if operatorID, ok := GetOperatorIDFromContext(c); ok {
			entry.OperatorID = &operatorID
		}
		if role, ok := c.Locals(LocalRole).(string); ok && role != "" {
			entry.Role = &role
		}
		if !entry.Success {
			entry.ErrorCode = responseErrorCode(c.Response().Body())
		}

		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		defer cancel()
		if saveErr := repo.Save(ctx, entry); saveErr != nil {
			logger.Warn("Failed to record audit entry",
				zap.String("action", entry.Action),
				zap.String("request_id", requestid.FromContext(c)),
				zap.Error(saveErr))
		}
		return err
	}
}

func auditTarget(c fiber.Ctx) *string {
	for _, key := range []string{"facebookId", "jobId", "exportId"} {
		if v := c.Params(key); v != "" {
			return &v
		}
	}
	return nil
}

func responseErrorCode(body []byte) *string {
	var resp struct {
		Error *dto.ErrorDetail `json:"error"`
	}
	if len(body) == 0 || json.Unmarshal(body, &resp) != nil || resp.Error == nil || resp.Error.Code == "" {
		return nil
	}
	return &resp.Error.Code
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
