// Package main provides the main entry point for the audience orchestrator API and job workers
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/audience-orchestrator/app/handlers"
	applogger "github.com/amirphl/audience-orchestrator/app/logger"
	"github.com/amirphl/audience-orchestrator/app/middleware"
	"github.com/amirphl/audience-orchestrator/app/router"
	"github.com/amirphl/audience-orchestrator/app/scheduler"
	"github.com/amirphl/audience-orchestrator/app/services"
	businessflow "github.com/amirphl/audience-orchestrator/business_flow"
	"github.com/amirphl/audience-orchestrator/config"
	"github.com/amirphl/audience-orchestrator/models"
	"github.com/amirphl/audience-orchestrator/repository"
	"github.com/amirphl/audience-orchestrator/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	logger    *zap.Logger
	stopFuncs []func()
}

func main() {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := applogger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting audience orchestrator",
		zap.String("environment", cfg.Deployment.Environment),
		zap.String("version", cfg.Deployment.Version),
		zap.String("commit", cfg.Deployment.CommitHash))

	app, err := initializeApplication(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		serverErr <- app.router.Start(address)
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Shutting down gracefully", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("Server stopped unexpectedly", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := app.router.GetApp().ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	// Workers release their jobs after the API stops accepting triggers.
	for i := len(app.stopFuncs) - 1; i >= 0; i-- {
		app.stopFuncs[i]()
	}

	logger.Info("Server stopped")
}

// initializeDatabase opens the postgres connection pool and migrates the schema
func initializeDatabase(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	logLevel := gormlogger.Warn
	if !cfg.SlowQueryLog {
		logLevel = gormlogger.Error
	}
	gormLog := gormlogger.New(zap.NewStdLog(logger.Named("gorm")), gormlogger.Config{
		SlowThreshold:             cfg.SlowQueryTime,
		LogLevel:                  logLevel,
		IgnoreRecordNotFoundError: true,
	})

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
		NowFunc:        utils.UTCNow,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := repository.Migrate(db); err != nil {
		return nil, err
	}

	logger.Info("Database connection established",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns))
	return db, nil
}

// initializeCache connects the estimate cache to redis and verifies connectivity
func initializeCache(cfg config.CacheConfig, logger *zap.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis connection established", zap.Int("db", cfg.RedisDB))
	return rc, nil
}

// startCacheHealthMonitor periodically pings redis. The returned function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration, logger *zap.Logger) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(monitorCtx, 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					logger.Warn("Redis healthcheck failed", zap.Error(err))
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication wires repositories, flows, workers and the HTTP router
func initializeApplication(cfg *config.ProductionConfig, logger *zap.Logger) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	rc, err := initializeCache(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}
	stopFuncs = append(stopFuncs, func() { _ = rc.Close() })
	stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, 30*time.Second, logger))

	// Repositories
	jobRepo := repository.NewJobRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	accountRepo := repository.NewFacebookAccountRepository(db)
	audienceRepo := repository.NewFacebookAudienceRepository(db)
	exportRepo := repository.NewAudienceExportRepository(db)
	campaignDataRepo := repository.NewCampaignDataRepository(db)
	contextRepo := repository.NewContextRepository(db)
	adAccountUserRepo := repository.NewAdAccountUserRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// Services
	facebookClient := services.NewFacebookClient(cfg.Facebook)
	tokenValidator := services.NewGraphTokenValidator(facebookClient)
	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	logger.Info("Token service initialized", zap.String("issuer", cfg.JWT.Issuer), zap.String("audience", cfg.JWT.Audience))

	// Flows
	jobScheduler := scheduler.NewJobScheduler(jobRepo, logger.Named("scheduler"))
	exportFlow := businessflow.NewAudienceExportFlow(campaignRepo, audienceRepo, exportRepo, jobScheduler, cfg.Export, logger.Named("export"))
	lifecycleFlow := businessflow.NewCampaignLifecycleFlow(
		campaignRepo,
		accountRepo,
		audienceRepo,
		jobRepo,
		exportRepo,
		campaignDataRepo,
		jobScheduler,
		facebookClient,
		tokenValidator,
		exportFlow,
		db,
		logger.Named("lifecycle"),
	)
	queryFlow := businessflow.NewAudienceQueryFlow(campaignRepo, audienceRepo)
	jobAdminFlow := businessflow.NewJobAdminFlow(jobRepo, jobScheduler, logger.Named("jobs"))

	// Workers
	estimateCache := scheduler.NewEstimateCache(rc, cfg.Cache.RedisPrefix, cfg.Cache.EstimateTTL)
	fetcher := scheduler.NewEstimateFetcher(facebookClient, estimateCache, cfg.Worker.MaxPollAttempts, cfg.Worker.PollBaseDelay, logger.Named("estimates"))

	pool := scheduler.NewWorkerPool(jobRepo, cfg.Worker, logger.Named("workers"))
	pool.Register(models.JobTypeUpdateAccountAudience, scheduler.NewAudienceUpdateHandler(
		campaignRepo, contextRepo, adAccountUserRepo, jobScheduler, cfg.Worker.AudienceRefreshInterval, logger.Named("audience-update")))
	pool.Register(models.JobTypeFetchAccountAudience, scheduler.NewAudienceFetchHandler(
		fetcher, audienceRepo, jobRepo, logger.Named("audience-fetch")))
	pool.Register(models.JobTypeCampaignHealthCheck, scheduler.NewHealthCheckHandler(
		campaignRepo, tokenValidator, facebookClient, lifecycleFlow, cfg.Worker.HealthCheckInterval, logger.Named("health-check")))
	pool.Register(models.JobTypeExpireExport, scheduler.NewExpireExportHandler(exportFlow))

	stopPool, err := pool.Start(context.Background())
	if err != nil {
		return nil, err
	}
	stopFuncs = append(stopFuncs, stopPool)

	// HTTP
	appRouter := router.NewFiberRouter(
		cfg,
		logger.Named("http"),
		middleware.NewAuthMiddleware(tokenService),
		handlers.NewCampaignLifecycleHandler(lifecycleFlow),
		handlers.NewJobHandler(jobAdminFlow),
		handlers.NewAudienceHandler(queryFlow, exportFlow),
		handlers.NewAuditHandler(businessflow.NewAuditFlow(auditRepo)),
		middleware.Audit(auditRepo, logger.Named("audit")),
	)

	return &Application{
		router:    appRouter,
		config:    cfg,
		logger:    logger,
		stopFuncs: stopFuncs,
	}, nil
}
