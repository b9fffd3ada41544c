package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/patient-progress-api/internal/handler"
	"github.com/noah-isme/patient-progress-api/internal/middleware"
	"github.com/noah-isme/patient-progress-api/internal/models"
	"github.com/noah-isme/patient-progress-api/internal/service"
	"github.com/noah-isme/patient-progress-api/pkg/config"
	"github.com/noah-isme/patient-progress-api/pkg/jobs"
	"github.com/noah-isme/patient-progress-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/patient-progress-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/patient-progress-api/pkg/middleware/requestid"
)

type services struct {
	auth        *service.AuthService
	patients    *service.PatientService
	comparisons *service.ComparisonService
	exports     *service.ExportService
	datasets    *service.DatasetService
	metrics     *service.MetricsService
	queue       *jobs.Queue
}

func newRouter(cfg *config.Config, logr *zap.Logger, svc services) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(svc.metrics))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(svc.metrics, svc.datasets)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// JWT must see an untyped nil to switch authentication off.
	var tokens middleware.TokenValidator
	if cfg.Auth.Enabled && svc.auth != nil {
		tokens = svc.auth
	}
	authEnabled := tokens != nil

	api := r.Group(cfg.APIPrefix)

	comparisonHandler := handler.NewComparisonHandler(svc.comparisons, svc.exports, logr)
	catalogHandler := handler.NewCatalogHandler(svc.comparisons)

	// Downloads are authorised by their signed token.
	api.GET("/exports/:token", comparisonHandler.Download)
	api.GET("/catalog", catalogHandler.Catalog)
	api.GET("/classify/:delta", catalogHandler.Classify)

	if svc.auth != nil {
		authHandler := handler.NewAuthHandler(svc.auth)
		api.POST("/auth/login", authHandler.Login)
		api.GET("/auth/me", middleware.JWT(tokens), authHandler.Me)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(tokens))
	secured.Use(middleware.RequireRoles(authEnabled, models.RoleClinician, models.RoleAdmin))

	patientHandler := handler.NewPatientHandler(svc.patients)
	secured.GET("/patients", patientHandler.List)
	secured.GET("/patients/:id/periods", patientHandler.Periods)
	secured.GET("/patients/:id/records/:period", patientHandler.Record)
	secured.GET("/patients/:id/comparison", comparisonHandler.Compare)
	secured.POST("/comparisons/exports", comparisonHandler.Export)
	secured.GET("/metrics/summary", metricsHandler.Summary)

	datasetHandler := handler.NewDatasetHandler(svc.queue, logr)
	admin := secured.Group("/dataset")
	admin.Use(middleware.RequireRoles(authEnabled, models.RoleAdmin))
	admin.POST("/refresh", datasetHandler.Refresh)
	admin.GET("/jobs/:id", datasetHandler.Job)

	return r
}
