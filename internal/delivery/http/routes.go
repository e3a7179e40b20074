package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pricescout/backend/config"
)

// MetricsExporter records request metrics and serves the scrape endpoint
type MetricsExporter interface {
	RequestRecorder
	Handler() http.Handler
}

// SetupRouter creates and configures the Gin router. exporter may be nil.
func SetupRouter(cfg *config.Config, handler *Handler, exporter MetricsExporter) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RequestIDMiddleware())
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))
	if exporter != nil {
		router.Use(MetricsMiddleware(exporter))
	}

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	if exporter != nil && cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(exporter.Handler()))
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/search", handler.SearchGet)
		v1.POST("/search", handler.SearchPost)
		v1.DELETE("/cache", handler.InvalidateCache)
		v1.GET("/providers", handler.ListProviders)
		v1.POST("/normalize", handler.Normalize)
		v1.POST("/parse-price", handler.ParsePrice)
		v1.POST("/specs", handler.DetectSpecs)
		v1.POST("/total-cost", handler.TotalCost)
	}

	return router
}
