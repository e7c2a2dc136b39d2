package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/veripack/veripack-backend/internal/config"
	"github.com/veripack/veripack-backend/internal/handlers"
	"github.com/veripack/veripack-backend/internal/middleware"
)

type RouterConfig struct {
	ServerConfig    config.ServerConfig
	JobsHandler     *handlers.JobsHandler
	StatusHandler   *handlers.StatusHandler
	PacksHandler    *handlers.PacksHandler
	VaultHandler    *handlers.VaultHandler
	PracticeHandler *handlers.PracticeHandler
	CoachHandler    *handlers.CoachHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.ServerConfig.Mode == "release" || cfg.ServerConfig.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	router.Use(middleware.RequestID())
	router.Use(otelgin.Middleware("veripack-backend"))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.ServerConfig.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", middleware.RequestIDHeader},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/generate-pack", cfg.JobsHandler.GeneratePack)
		api.GET("/status/:jobId", cfg.StatusHandler.GetStatus)
		api.GET("/status/:jobId/stream", cfg.StatusHandler.StreamStatus)

		api.GET("/packs", cfg.PacksHandler.ListPacks)
		api.GET("/packs/:packId", cfg.PacksHandler.GetPack)
		api.DELETE("/packs/:packId", cfg.PacksHandler.DeletePack)
		api.GET("/packs/:packId/schedule", cfg.PacksHandler.GetSchedule)
		api.GET("/packs/:packId/export/csv", cfg.PacksHandler.ExportCSV)
		api.GET("/packs/:packId/export/tsv", cfg.PacksHandler.ExportTSV)
		api.GET("/packs/:packId/export/html", cfg.PacksHandler.ExportHTML)

		api.POST("/vault", cfg.VaultHandler.Upload)
		api.GET("/vault", cfg.VaultHandler.ListDocs)

		api.GET("/practice", cfg.PracticeHandler.GetPracticeSet)
		api.POST("/grade", cfg.PracticeHandler.Grade)
		api.POST("/remediation", cfg.PracticeHandler.Remediation)

		api.POST("/coach", cfg.CoachHandler.Chat)
	}

	return router
}
