package api

import (
	"github.com/gin-gonic/gin"

	"github.com/RyanBlaney/sonido-chords/internal/api/handlers"
	"github.com/RyanBlaney/sonido-chords/internal/api/middleware"
	"github.com/RyanBlaney/sonido-chords/internal/config"
	"github.com/RyanBlaney/sonido-chords/transcode"
)

// Services are the collaborators behind the HTTP endpoints
type Services struct {
	Loader   transcode.AudioLoader
	Analyzer handlers.AudioAnalyzer
	Splitter handlers.Splitter
}

func SetupRouter(cfg *config.Config, services Services, version string) *gin.Engine {
	router := gin.New()

	// Recovery middleware (must be first)
	router.Use(middleware.RecoverWithSentry())
	router.Use(middleware.SentryMiddleware())
	router.Use(middleware.RequestTracking())
	router.Use(middleware.CORS())

	maxUpload := cfg.MaxUploadMB << 20
	router.MaxMultipartMemory = min(maxUpload, 32<<20)

	// Separated stems
	router.Static("/static", cfg.StaticDir)

	healthHandler := handlers.NewHealthHandler(version)
	router.GET("/health", healthHandler.HealthCheck)

	uploads := router.Group("/", handlers.LimitUploadSize(maxUpload))
	{
		analyzeHandler := handlers.NewAnalyzeHandler(services.Loader, services.Analyzer, cfg.MaxConcurrentAnalyses)
		uploads.POST("/analyze", analyzeHandler.Analyze)

		splitHandler := handlers.NewSplitHandler(services.Splitter, cfg.StaticDir, "/static")
		uploads.POST("/split", splitHandler.Split)
	}

	return router
}
