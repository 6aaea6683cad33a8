package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/datesheet-api/api/swagger"
	"github.com/noah-isme/datesheet-api/internal/handler"
	"github.com/noah-isme/datesheet-api/internal/middleware"
	"github.com/noah-isme/datesheet-api/internal/models"
	"github.com/noah-isme/datesheet-api/internal/repository"
	"github.com/noah-isme/datesheet-api/internal/service"
	"github.com/noah-isme/datesheet-api/pkg/cache"
	"github.com/noah-isme/datesheet-api/pkg/config"
	"github.com/noah-isme/datesheet-api/pkg/database"
	"github.com/noah-isme/datesheet-api/pkg/datesheet"
	"github.com/noah-isme/datesheet-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/datesheet-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/datesheet-api/pkg/middleware/requestid"
	"github.com/noah-isme/datesheet-api/pkg/storage"
)

// @title Datesheet API
// @version 1.0.0
// @description Exam datesheet generation, storage and export.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()
	if err := database.EnsureSchema(ctx, db); err != nil {
		logr.Fatal("failed to ensure schema", zap.Error(err))
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, generation cache disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	app, err := buildApp(cfg, db, redisClient, logr)
	if err != nil {
		logr.Fatal("failed to wire services", zap.Error(err))
	}
	app.variants.Start(ctx)
	defer app.variants.Stop()
	app.exports.StartCleanup(ctx, time.Hour)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

type app struct {
	router   *gin.Engine
	variants *service.VariantService
	exports  *service.ExportService
}

func buildApp(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) (*app, error) {
	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	recency, err := datesheet.ParseRecencyScope(cfg.Datesheet.RecencyScope)
	if err != nil {
		return nil, err
	}

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Datesheet.CacheTTL, logr, cfg.Datesheet.CacheEnabled && redisClient != nil)

	holidaySvc := service.NewHolidayService(repository.NewHolidayRepository(db), validate, logr)
	datesheetSvc := service.NewDatesheetService(
		repository.NewDatesheetRepository(db),
		holidaySvc,
		db,
		cacheSvc,
		metricsSvc,
		validate,
		logr,
		service.DatesheetConfig{
			MaxDays:     cfg.Datesheet.MaxDays,
			Recency:     recency,
			SyncCohorts: cfg.Datesheet.SyncCohorts,
			DateFormat:  cfg.Datesheet.DateFormat,
			ProposalTTL: cfg.Datesheet.ProposalTTL,
			CacheTTL:    cfg.Datesheet.CacheTTL,
		},
	)
	variantSvc := service.NewVariantService(datesheetSvc, metricsSvc, validate, logr, service.VariantConfig{
		Workers:     cfg.Variants.Workers,
		Retries:     cfg.Variants.Retries,
		MaxPerBatch: cfg.Variants.MaxPerBatch,
	})

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return nil, err
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(datesheetSvc, files, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, validate, logr)

	tokenSvc := service.NewTokenService(validate, logr, service.TokenConfig{
		Secret:       cfg.JWT.Secret,
		Expiry:       cfg.JWT.Expiration,
		Username:     cfg.Admin.Username,
		PasswordHash: cfg.Admin.PasswordHash,
	})

	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), routeHandlers{
		auth:       handler.NewAuthHandler(tokenSvc),
		datesheets: handler.NewDatesheetHandler(datesheetSvc),
		variants:   handler.NewVariantHandler(variantSvc),
		holidays:   handler.NewHolidayHandler(holidaySvc),
		exports:    handler.NewExportHandler(exportSvc),
	}, tokenSvc, logr)

	return &app{router: r, variants: variantSvc, exports: exportSvc}, nil
}

type routeHandlers struct {
	auth       *handler.AuthHandler
	datesheets *handler.DatesheetHandler
	variants   *handler.VariantHandler
	holidays   *handler.HolidayHandler
	exports    *handler.ExportHandler
}

func registerRoutes(api *gin.RouterGroup, h routeHandlers, tokens *service.TokenService, logr *zap.Logger) {
	admin := []gin.HandlerFunc{middleware.JWT(tokens), middleware.RequireRoles(models.RoleAdmin)}
	audited := func(action string, final gin.HandlerFunc) []gin.HandlerFunc {
		chain := append([]gin.HandlerFunc{}, admin...)
		return append(chain, middleware.Audit(logr, action), final)
	}

	api.POST("/auth/token", h.auth.Token)

	sheets := api.Group("/datesheets")
	sheets.Use(middleware.WithResponseMeta())
	sheets.GET("/template", h.datesheets.Template)
	sheets.POST("/import", h.datesheets.Import)
	sheets.POST("/generate", h.datesheets.Generate)
	sheets.POST("/variants", h.variants.Submit)
	sheets.GET("/variants/:id", h.variants.Get)
	sheets.GET("", h.datesheets.List)
	sheets.GET("/:id", h.datesheets.Get)
	sheets.POST("", audited("datesheet.save", h.datesheets.Save)...)
	sheets.POST("/:id/publish", audited("datesheet.publish", h.datesheets.Publish)...)
	sheets.DELETE("/:id", audited("datesheet.delete", h.datesheets.Delete)...)
	sheets.POST("/:id/export", h.exports.Export)

	api.GET("/export/:token", h.exports.Download)

	holidays := api.Group("/holidays")
	holidays.GET("", h.holidays.List)
	holidays.POST("", audited("holiday.create", h.holidays.Create)...)
	holidays.PUT("/:id", audited("holiday.update", h.holidays.Update)...)
	holidays.DELETE("/:id", audited("holiday.delete", h.holidays.Delete)...)
}
