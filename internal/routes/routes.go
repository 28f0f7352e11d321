// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"serial-gateway/internal/config"
	"serial-gateway/internal/handler"
	"serial-gateway/internal/line"
	"serial-gateway/internal/middleware"
	"serial-gateway/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config     *config.Config
	logger     *zap.Logger
	line       line.Line
	apiHandler *handler.APIHandler
	wsHandler  *handler.WebSocketHandler
}

// NewRouter creates a new router instance
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	ln line.Line,
	apiHandler *handler.APIHandler,
	wsHandler *handler.WebSocketHandler,
) *Router {
	return &Router{
		config:     config,
		logger:     logger,
		line:       ln,
		apiHandler: apiHandler,
		wsHandler:  wsHandler,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.line, r.config, r.logger)

	// Health check routes (no auth required)
	health := router.Group("")
	{
		health.GET("/health", healthHandler.HealthCheck)
		health.GET("/health/line", healthHandler.LineHealthCheck)
		health.GET("/ready", healthHandler.ReadinessCheck)
		health.GET("/live", healthHandler.LivenessCheck)
	}

	// Method registry over HTTP
	apiV1 := router.Group("/v1")
	r.apiHandler.RegisterRoutes(apiV1)

	// Method registry over WebSocket
	ws := router.Group("/ws")
	r.wsHandler.RegisterRoutes(ws)

	r.logger.Info("All routes configured successfully")
}
