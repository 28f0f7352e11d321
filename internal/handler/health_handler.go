// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"serial-gateway/internal/config"
	"serial-gateway/internal/line"
	"serial-gateway/internal/utils"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	line      line.Line
	config    *config.Config
	logger    *utils.ServiceLogger
	startTime time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(ln line.Line, config *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		line:      ln,
		config:    config,
		logger:    utils.NewServiceLogger(logger, "health-handler"),
		startTime: time.Now(),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/health", h.HealthCheck)
	router.GET("/health/line", h.LineHealthCheck)
	router.GET("/ready", h.ReadinessCheck)
	router.GET("/live", h.LivenessCheck)
}

// HealthCheck performs general health check
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startTime).String(),
		Checks:    make(map[string]CheckResult),
	}

	if serialLine, ok := h.line.(*line.SerialLine); ok {
		stats := serialLine.GetStats()
		if stats.IsConnected {
			health.Checks["line"] = CheckResult{
				Status:  "healthy",
				Message: "Serial line open",
			}
		} else {
			health.Status = "unhealthy"
			health.Checks["line"] = CheckResult{
				Status:  "unhealthy",
				Message: "Serial line closed",
			}
		}
	} else {
		health.Checks["line"] = CheckResult{
			Status:  "healthy",
			Message: "Loopback line",
		}
	}

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, health)
}

// LineHealthCheck reports physical line counters
func (h *HealthHandler) LineHealthCheck(c *gin.Context) {
	serialLine, ok := h.line.(*line.SerialLine)
	if !ok {
		utils.SuccessResponse(c, http.StatusOK, "Loopback line", gin.H{"connected": true})
		return
	}

	stats := serialLine.GetStats()
	if !stats.IsConnected {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "Serial line closed", nil)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Serial line healthy", gin.H{
		"connected":     stats.IsConnected,
		"bytes_written": stats.BytesWritten,
		"bytes_read":    stats.BytesRead,
		"errors":        stats.ErrorCount,
		"last_activity": stats.LastActivity,
	})
}

// ReadinessCheck for Kubernetes readiness probe
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if serialLine, ok := h.line.(*line.SerialLine); ok && !serialLine.IsOpen() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "serial line not available",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessCheck for Kubernetes liveness probe
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
