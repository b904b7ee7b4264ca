package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/timmy/sentiscope/internal/api/handler"
	"github.com/timmy/sentiscope/internal/api/middleware"
	"github.com/timmy/sentiscope/internal/config"
	"github.com/timmy/sentiscope/internal/logger"
	"github.com/timmy/sentiscope/internal/service"
)

// RouterConfig holds what SetupRouter needs to build the engine.
type RouterConfig struct {
	Mode        string
	CORS        config.CORSConfig
	MetricsPath string
	// Gatherer serves /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *logger.Logger
	Adapters []string
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(harvestService *service.HarvestService, cfg RouterConfig) *gin.Engine {
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
	r.Use(middleware.LoggerMiddleware(cfg.Logger))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(cfg.Adapters)
	harvestHandler := handler.NewHarvestHandler(harvestService)

	r.GET("/health", healthHandler.Health)
	if cfg.Gatherer != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	{
		// Harvest
		v1.POST("/harvest", harvestHandler.Harvest)
		v1.POST("/harvest/stream", harvestHandler.HarvestStream)

		// Run history
		v1.GET("/runs", harvestHandler.ListRuns)
		v1.GET("/runs/:id", harvestHandler.GetRun)
		v1.GET("/runs/:id/snapshot", harvestHandler.Snapshot)
		v1.POST("/runs/:id/classify", harvestHandler.ClassifyRun)
	}

	return r
}
