// Package router provides HTTP routing, middleware configuration, and server setup for the orchestration API
package router

import (
	"encoding/json"

	"github.com/amirphl/audience-orchestrator/app/dto"
	"github.com/amirphl/audience-orchestrator/app/handlers"
	"github.com/amirphl/audience-orchestrator/app/middleware"
	"github.com/amirphl/audience-orchestrator/app/services"
	"github.com/amirphl/audience-orchestrator/config"
	"github.com/amirphl/audience-orchestrator/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const healthPath = "/api/v1/health"

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app             *fiber.App
	cfg             *config.ProductionConfig
	logger          *zap.Logger
	authMiddleware  *middleware.AuthMiddleware
	campaignHandler handlers.CampaignLifecycleHandlerInterface
	jobHandler      handlers.JobHandlerInterface
	audienceHandler handlers.AudienceHandlerInterface
	auditHandler    handlers.AuditHandlerInterface
	audit           fiber.Handler
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	cfg *config.ProductionConfig,
	logger *zap.Logger,
	authMiddleware *middleware.AuthMiddleware,
	campaignHandler handlers.CampaignLifecycleHandlerInterface,
	jobHandler handlers.JobHandlerInterface,
	audienceHandler handlers.AudienceHandlerInterface,
	auditHandler handlers.AuditHandlerInterface,
	audit fiber.Handler,
) *FiberRouter {
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:      "Audience Orchestrator API",
		ServerHeader: "audience-orchestrator",
		ErrorHandler: errorHandler(logger),
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		ProxyHeader:  cfg.Server.ProxyHeader,
	})

	return &FiberRouter{
		app:             app,
		cfg:             cfg,
		logger:          logger,
		authMiddleware:  authMiddleware,
		campaignHandler: campaignHandler,
		jobHandler:      jobHandler,
		audienceHandler: audienceHandler,
		auditHandler:    auditHandler,
		audit:           audit,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.setupMiddleware()

	if r.cfg.Metrics.Enabled {
		r.app.Get(r.cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")
	api.Get("/health", r.healthCheck)

	api.Use(limiter.New(limiter.Config{
		Max:        r.cfg.Security.GlobalRateLimit,
		Expiration: r.cfg.Security.RateLimitWindow,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error:   dto.ErrorDetail{Code: "RATE_LIMIT_EXCEEDED"},
			})
		},
		Next: func(c fiber.Ctx) bool {
			return c.Path() == healthPath
		},
	}))

	protected := api.Group("", r.authMiddleware.Authenticate())
	if r.audit != nil {
		protected.Use(r.audit)
	}
	viewer := middleware.RequireRole(services.RoleViewer)
	operator := middleware.RequireRole(services.RoleOperator)
	admin := middleware.RequireRole(services.RoleAdmin)

	campaigns := protected.Group("/campaigns/:id")
	campaigns.Post("/accounts", operator, r.campaignHandler.AddAccount)
	campaigns.Put("/main-account", operator, r.campaignHandler.SetMainAccount)
	campaigns.Delete("/accounts/:facebookId", operator, r.campaignHandler.RemoveAccount)
	campaigns.Post("/accounts/:facebookId/jobs", operator, r.campaignHandler.RefreshAccountJob)
	campaigns.Post("/suspend", operator, r.campaignHandler.SuspendCampaign)
	campaigns.Post("/activate", operator, r.campaignHandler.ActivateCampaign)
	campaigns.Post("/refresh", operator, r.campaignHandler.RefreshCampaignJobs)
	campaigns.Post("/refresh-tokens", operator, r.campaignHandler.RefreshAccountsTokens)
	campaigns.Delete("", admin, r.campaignHandler.RemoveCampaign)

	campaigns.Get("/jobs", viewer, r.jobHandler.ListJobs)
	campaigns.Get("/audiences", viewer, r.audienceHandler.ListCampaignAudience)
	campaigns.Get("/audiences/latest", viewer, r.audienceHandler.LatestAudience)
	campaigns.Get("/exports", viewer, r.audienceHandler.ListExports)
	campaigns.Post("/exports", operator, r.audienceHandler.CreateExport)

	protected.Get("/exports/:exportId/download", viewer, r.audienceHandler.DownloadExport)

	jobs := protected.Group("/jobs")
	jobs.Get("", viewer, r.jobHandler.ListJobs)
	jobs.Get("/:jobId", viewer, r.jobHandler.GetJob)
	jobs.Post("/:jobId/restart", operator, r.jobHandler.RestartJob)
	jobs.Post("/:jobId/cancel", operator, r.jobHandler.CancelJob)

	protected.Get("/audit", admin, r.auditHandler.ListAuditLogs)

	r.app.Use(r.notFoundHandler)

	r.logger.Info("Routes configured successfully")
}

func (r *FiberRouter) setupMiddleware() {
	r.app.Use(requestid.New(requestid.Config{
		Header:    "X-Request-ID",
		Generator: uuid.NewString,
	}))

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			r.logger.Error("Panic while serving request",
				zap.String("request_id", requestid.FromContext(c)),
				zap.Any("panic", e),
				zap.String("path", c.Path()),
				zap.String("method", c.Method()))
		},
	}))

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		XDNSPrefetchControl:   "off",
		XDownloadOptions:      "noopen",
		XPermittedCrossDomain: "none",
	}))

	r.app.Use(cors.New(cors.Config{
		AllowOrigins:     r.cfg.Security.AllowedOrigins,
		AllowMethods:     r.cfg.Security.AllowedMethods,
		AllowHeaders:     append(r.cfg.Security.AllowedHeaders, "X-Request-ID"),
		ExposeHeaders:    []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: r.cfg.Security.AllowCredentials,
		MaxAge:           r.cfg.Security.CORSMaxAge,
	}))

	if r.cfg.Server.EnableMetrics {
		r.app.Use(middleware.Metrics(healthPath, r.cfg.Metrics.Path))
	}
	r.app.Use(middleware.RequestLogger(r.logger, healthPath, r.cfg.Metrics.Path))
}

// Start serves the API on address until the app is shut down
func (r *FiberRouter) Start(address string) error {
	r.logger.Info("Starting server", zap.String("address", address))
	return r.app.Listen(address, fiber.ListenConfig{DisableStartupMessage: true})
}

func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data: fiber.Map{
			"status":      "ok",
			"timestamp":   utils.UTCNow().Unix(),
			"version":     r.cfg.Deployment.Version,
			"environment": r.cfg.Deployment.Environment,
			"service":     "audience-orchestrator",
		},
	})
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "Endpoint not found",
		Error: dto.ErrorDetail{
			Code:    "NOT_FOUND",
			Details: fiber.Map{"path": c.Path(), "method": c.Method()},
		},
	})
}

func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal server error"
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			message = e.Message
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error("Unhandled request error",
				zap.String("request_id", requestid.FromContext(c)),
				zap.String("path", c.Path()),
				zap.Error(err))
		}
		return c.Status(code).JSON(dto.APIResponse{
			Success: false,
			Message: message,
			Error:   dto.ErrorDetail{Code: "REQUEST_FAILED"},
		})
	}
}
