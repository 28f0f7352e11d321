// internal/handler/api_handler.go
package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"serial-gateway/internal/api"
	"serial-gateway/internal/command"
	"serial-gateway/internal/utils"
)

// APIHandler exposes the method registry over HTTP. GET requests carry
// parameters in the query string, POST requests in the JSON body. The
// registry root serves the self-description.
type APIHandler struct {
	server *api.Server
	logger *utils.ServiceLogger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(server *api.Server, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		server: server,
		logger: utils.NewServiceLogger(logger, "api-handler"),
	}
}

// RegisterRoutes registers API routes
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/*path", h.HandleGet)
	router.POST("/api/*path", h.HandleSet)
}

// HandleGet executes a GET method or serves the method list at the root.
// SET methods are not reachable through idempotent HTTP GET.
func (h *APIHandler) HandleGet(c *gin.Context) {
	path := strings.Trim(c.Param("path"), "/")
	if path == "" {
		utils.SuccessResponse(c, http.StatusOK, "API methods", h.server.APIDoc())
		return
	}

	if info, known := h.server.Methods("http")[path]; known && info.Type != api.MethodGet {
		utils.ErrorResponse(c, http.StatusMethodNotAllowed, "Method requires POST", nil)
		return
	}

	params := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	response, err := h.server.Execute("http", path, command.NestParams(params))
	if err != nil {
		h.sendError(c, path, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "OK", response)
}

// HandleSet executes a SET method with a JSON parameter body.
func (h *APIHandler) HandleSet(c *gin.Context) {
	path := strings.Trim(c.Param("path"), "/")
	if path == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Method path is required", nil)
		return
	}

	if info, known := h.server.Methods("http")[path]; known && info.Type != api.MethodSet {
		utils.ErrorResponse(c, http.StatusMethodNotAllowed, "Method requires GET", nil)
		return
	}

	var args map[string]interface{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&args); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid JSON body", err)
			return
		}
	}

	response, err := h.server.Execute("http", path, args)
	if err != nil {
		h.sendError(c, path, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "OK", response)
}

// sendError maps registry errors to HTTP status codes.
func (h *APIHandler) sendError(c *gin.Context, path string, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, api.ErrMethodNotFound):
		status = http.StatusNotFound
	case errors.Is(err, api.ErrAuthFailed):
		status = http.StatusUnauthorized
	}

	h.logger.Warn("API request failed",
		zap.String("path", path),
		zap.Error(err),
	)
	utils.ErrorResponse(c, status, errorReason(err), err)
}
