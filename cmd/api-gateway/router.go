package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/admission-portal-api/internal/catalog"
	"github.com/noah-isme/admission-portal-api/internal/handler"
	internalmiddleware "github.com/noah-isme/admission-portal-api/internal/middleware"
	"github.com/noah-isme/admission-portal-api/internal/models"
	"github.com/noah-isme/admission-portal-api/internal/service"
	"github.com/noah-isme/admission-portal-api/pkg/config"
	"github.com/noah-isme/admission-portal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/admission-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/admission-portal-api/pkg/middleware/requestid"
)

type routerDeps struct {
	applications  *service.ApplicationService
	artifacts     *service.ArtifactService
	notifications *service.NotificationService
	catalog       *catalog.Catalog
	metrics       *service.MetricsService
	tokens        *service.TokenValidator
	checks        map[string]handler.ReadinessCheck
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins, internalmiddleware.CatalogVersionHeader))
	r.Use(internalmiddleware.Metrics(deps.metrics, "/health", "/ready", "/metrics"))

	metricsHandler := handler.NewMetricsHandler(deps.metrics, deps.checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	applicationHandler := handler.NewApplicationHandler(deps.applications)
	artifactHandler := handler.NewArtifactHandler(deps.artifacts)
	catalogHandler := handler.NewCatalogHandler(deps.catalog)
	notificationHandler := handler.NewNotificationHandler(deps.notifications)

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.WithResponseMeta(), internalmiddleware.CatalogVersion(deps.catalog))

	// authenticated by the signed token query parameter
	api.GET("/artifacts/download", artifactHandler.Download)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(deps.tokens))

	secured.GET("/catalog/documents", catalogHandler.Documents)
	secured.GET("/metrics/summary", internalmiddleware.RequireRoles(models.RoleStaff, models.RoleAdmin), metricsHandler.Snapshot)

	notifications := secured.Group("/notifications")
	notifications.GET("", notificationHandler.List)
	notifications.POST("/:id/read", notificationHandler.MarkRead)

	applicants := secured.Group("/applications")
	applicants.POST("/draft", internalmiddleware.Audit(logr, "application.create_draft"), applicationHandler.CreateDraft)
	applicants.PUT("/:id/draft", internalmiddleware.Audit(logr, "application.save_draft"), applicationHandler.UpdateDraft)
	applicants.GET("/:id", applicationHandler.Get)
	applicants.GET("/:id/review-summary", applicationHandler.ReviewSummary)
	applicants.GET("/:id/history", applicationHandler.History)
	applicants.POST("/:id/validate", applicationHandler.Validate)
	applicants.POST("/:id/submit", internalmiddleware.Audit(logr, "application.submit"), applicationHandler.Submit)
	applicants.POST("/:id/withdraw", internalmiddleware.Audit(logr, "application.withdraw"), applicationHandler.Withdraw)
	applicants.POST("/:id/artifacts/pdf", internalmiddleware.Audit(logr, "artifact.combined_pdf"), artifactHandler.CombinedPDF)
	applicants.POST("/:id/artifacts/zip", internalmiddleware.Audit(logr, "artifact.zip"), artifactHandler.Zip)
	applicants.POST("/:id/artifacts/summary", internalmiddleware.Audit(logr, "artifact.summary"), artifactHandler.Summary)

	reviewers := applicants.Group("")
	reviewers.Use(internalmiddleware.RequireRoles(models.RoleStaff, models.RoleAdmin))
	reviewers.POST("/:id/documents/decisions", internalmiddleware.Audit(logr, "application.decide_documents"), applicationHandler.DecideDocuments)
	reviewers.POST("/:id/approve", internalmiddleware.Audit(logr, "application.approve"), applicationHandler.Approve)
	reviewers.POST("/:id/reject", internalmiddleware.Audit(logr, "application.reject"), applicationHandler.Reject)
	reviewers.POST("/:id/request-resubmission", internalmiddleware.Audit(logr, "application.request_resubmission"), applicationHandler.RequestResubmission)

	return r
}
