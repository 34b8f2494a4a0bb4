// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/audience-orchestrator/app/dto"
	"github.com/amirphl/audience-orchestrator/app/middleware"
	businessflow "github.com/amirphl/audience-orchestrator/business_flow"
	"github.com/amirphl/audience-orchestrator/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const (
	defaultRequestTimeout = 30 * time.Second
	longRequestTimeout    = 2 * time.Minute
)

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "max":
		return err.Field() + " must be at most " + err.Param() + " characters"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "datetime":
		return err.Field() + " must match " + err.Param()
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}

func validationMessages(err error) []string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return []string{err.Error()}
	}
	messages := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		messages = append(messages, getValidationErrorMessage(fe))
	}
	return messages
}

func errorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func successResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// businessErrorResponse maps a flow error to its HTTP status
func businessErrorResponse(c fiber.Ctx, err error) error {
	code := businessflow.BusinessErrorCode(err)
	if code == "" {
		code = "INTERNAL_ERROR"
	}

	var be *businessflow.BusinessError
	message := "Internal server error"
	if errors.As(err, &be) {
		message = be.Message
	}

	switch {
	case errors.Is(err, businessflow.ErrCampaignIDRequired),
		errors.Is(err, businessflow.ErrUnknownAccountJobKind),
		errors.Is(err, businessflow.ErrInvalidPage),
		errors.Is(err, businessflow.ErrInvalidPageSize),
		errors.Is(err, businessflow.ErrInvalidSince):
		return errorResponse(c, fiber.StatusBadRequest, message, code, err.Error())
	case businessflow.IsNotFound(err):
		return errorResponse(c, fiber.StatusNotFound, message, code, nil)
	case businessflow.IsCampaignSuspended(err),
		businessflow.IsJobConflict(err),
		errors.Is(err, businessflow.ErrNothingToExport),
		errors.Is(err, businessflow.ErrNoMainAccount):
		return errorResponse(c, fiber.StatusConflict, message, code, nil)
	case errors.Is(err, businessflow.ErrExportExpired):
		return errorResponse(c, fiber.StatusGone, message, code, nil)
	case businessflow.IsTokenExchangeFailed(err),
		businessflow.IsAccountTokenInvalid(err),
		errors.Is(err, businessflow.ErrSubscriptionFailed):
		return errorResponse(c, fiber.StatusUnprocessableEntity, message, code, err.Error())
	default:
		return errorResponse(c, fiber.StatusInternalServerError, message, code, nil)
	}
}

// requestContext creates a context with a timeout and request-scoped values for the flows
func requestContext(c fiber.Ctx, endpoint string, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	if operatorID, ok := middleware.GetOperatorIDFromContext(c); ok {
		ctx = context.WithValue(ctx, utils.OperatorIDKey, operatorID)
	}
	return ctx, cancel
}

func clientMetadata(c fiber.Ctx) *businessflow.ClientMetadata {
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(c.Get("X-Request-ID"))
	if operatorID, ok := middleware.GetOperatorIDFromContext(c); ok {
		metadata.SetOperatorID(operatorID)
	}
	return metadata
}
