package api

import (
	"github.com/gin-gonic/gin"
	"github.com/harrisong/VideoStreaming-sub000/internal/api/handler"
	"github.com/harrisong/VideoStreaming-sub000/internal/api/middleware"
	"github.com/harrisong/VideoStreaming-sub000/internal/config"
	"github.com/harrisong/VideoStreaming-sub000/internal/metrics"
	"github.com/harrisong/VideoStreaming-sub000/internal/service"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	cfg *config.ServerConfig,
	jobService *service.JobService,
	db handler.Pinger,
) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(db)
	jobHandler := handler.NewJobHandler(jobService)

	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Existing clients call both the bare paths and the /api prefixed ones.
	for _, g := range []*gin.RouterGroup{&r.RouterGroup, r.Group("/api")} {
		g.POST("/scrape", jobHandler.Scrape)
		g.POST("/search", jobHandler.Search)
		g.GET("/jobs/:job_id", jobHandler.GetJob)
		g.GET("/stats", jobHandler.Stats)
		g.POST("/status", healthHandler.Status)
	}

	return r
}
