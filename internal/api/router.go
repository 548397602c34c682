package api

import (
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/api/handler"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/api/middleware"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/config"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/ledger"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/queue"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/repository"
	"github.com/SourceCoDeals/connect-market-nexus-sub004/internal/sweeper"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps bundles everything the router needs.
type Deps struct {
	DB       *gorm.DB
	Ledger   *ledger.Ledger
	Registry *queue.Registry
	Jobs     *repository.JobRepository
	Sweeper  *sweeper.Sweeper
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps Deps, serverCfg *config.ServerConfig) *gin.Engine {
	switch serverCfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  serverCfg.CORS.AllowedOrigins,
		AllowAllOrigins: serverCfg.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler(deps.DB)
	operationHandler := handler.NewOperationHandler(deps.Ledger)
	queueHandler := handler.NewQueueHandler(deps.Registry, deps.Jobs, deps.Sweeper)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Global operation ledger (the operator live feed)
		v1.POST("/operations", operationHandler.Submit)
		v1.GET("/operations", operationHandler.List)
		v1.GET("/operations/:id", operationHandler.Get)
		v1.POST("/operations/:id/pause", operationHandler.Pause)
		v1.POST("/operations/:id/resume", operationHandler.Resume)
		v1.POST("/operations/:id/cancel", operationHandler.Cancel)

		// Domain queues
		v1.GET("/queues", queueHandler.ListQueues)
		v1.GET("/queues/:name/jobs", queueHandler.ListJobs)
		v1.POST("/queues/:name/jobs", queueHandler.Enqueue)
		v1.POST("/queues/:name/reclaim", queueHandler.Reclaim)
	}

	return r
}
