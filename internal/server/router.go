package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/cme-analysis-backend/internal/handlers"
)

type RouterConfig struct {
	ServiceName    string
	AllowedOrigins []string
	SessionHandler *handlers.SessionHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "cme-analysis"
	}
	router.Use(otelgin.Middleware(name))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api/cme")
	{
		api.POST("/sessions", cfg.SessionHandler.Create)
		api.POST("/sessions/:id/media", cfg.SessionHandler.RegisterMedia)
		api.POST("/sessions/:id/process", cfg.SessionHandler.Process)
		api.GET("/sessions/:id/pipeline", cfg.SessionHandler.GetPipeline)
		api.GET("/sessions/:id/steps", cfg.SessionHandler.ListSteps)
		api.GET("/sessions/:id/actions", cfg.SessionHandler.ListActions)
		api.GET("/sessions/:id/flags", cfg.SessionHandler.ListFlags)
	}

	return router
}
