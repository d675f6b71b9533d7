package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// SessionRegistry reports on live acquisition sessions
type SessionRegistry interface {
	ActiveCount() int
	ShuttingDown() bool
}

// HealthHandler handles health check requests
type HealthHandler struct {
	registry SessionRegistry
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(registry SessionRegistry) *HealthHandler {
	return &HealthHandler{
		registry: registry,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Acquisitions struct {
		Active int `json:"active"`
	} `json:"acquisitions"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:  "ok",
		Version: Version,
	}
	response.Acquisitions.Active = h.registry.ActiveCount()

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.registry.ShuttingDown() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "shutting down",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
