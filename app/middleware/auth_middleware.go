// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"errors"
	"strings"

	"github.com/amirphl/audience-orchestrator/app/dto"
	"github.com/amirphl/audience-orchestrator/app/services"
	"github.com/gofiber/fiber/v3"
)

// Context locals set by Authenticate
const (
	LocalOperatorID  = "operator_id"
	LocalRole        = "operator_role"
	LocalTokenClaims = "token_claims"
	LocalRequestID   = "request_id"
)

// AuthMiddleware handles operator JWT validation for the orchestration API
type AuthMiddleware struct {
	tokenService services.TokenService
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokenService services.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
	}
}

func unauthorized(c fiber.Ctx, message, code string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   dto.ErrorDetail{Code: code},
	})
}

// Authenticate validates the bearer token and stores the operator claims in the request locals
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "Authorization header is required", "MISSING_AUTHORIZATION_HEADER")
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c, "Invalid authorization header format. Expected 'Bearer <token>'", "INVALID_AUTHORIZATION_FORMAT")
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == "" {
			return unauthorized(c, "Access token is required", "MISSING_ACCESS_TOKEN")
		}

		claims, err := m.tokenService.ValidateOperatorToken(token)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrTokenExpired):
				return unauthorized(c, "Access token has expired", "TOKEN_EXPIRED")
			case errors.Is(err, services.ErrTokenInvalid):
				return unauthorized(c, "Invalid access token", "TOKEN_INVALID")
			default:
				return unauthorized(c, "Token validation failed", "TOKEN_VALIDATION_FAILED")
			}
		}

		c.Locals(LocalOperatorID, claims.OperatorID)
		c.Locals(LocalRole, claims.Role)
		c.Locals(LocalTokenClaims, claims)
		if requestID := c.Get("X-Request-ID"); requestID != "" {
			c.Locals(LocalRequestID, requestID)
		}

		return c.Next()
	}
}

// RequireRole rejects operators below the given role. It must run after Authenticate.
func RequireRole(role string) fiber.Handler {
	return func(c fiber.Ctx) error {
		claims, ok := GetTokenClaimsFromContext(c)
		if !ok {
			return unauthorized(c, "Authentication required", "AUTHENTICATION_REQUIRED")
		}
		if !claims.HasRole(role) {
			return c.Status(fiber.StatusForbidden).JSON(dto.APIResponse{
				Success: false,
				Message: "Operator role " + claims.Role + " may not perform this action",
				Error:   dto.ErrorDetail{Code: "INSUFFICIENT_ROLE", Details: fiber.Map{"required": role}},
			})
		}
		return c.Next()
	}
}

// GetOperatorIDFromContext extracts the operator ID from the request locals
func GetOperatorIDFromContext(c fiber.Ctx) (string, bool) {
	operatorID, ok := c.Locals(LocalOperatorID).(string)
	return operatorID, ok && operatorID != ""
}

// GetTokenClaimsFromContext extracts token claims from the request locals
func GetTokenClaimsFromContext(c fiber.Ctx) (*services.OperatorClaims, bool) {
	claims, ok := c.Locals(LocalTokenClaims).(*services.OperatorClaims)
	return claims, ok
}
