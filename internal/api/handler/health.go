package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	adapters []string
}

// NewHealthHandler creates a new health handler reporting the adapter chain.
func NewHealthHandler(adapters []string) *HealthHandler {
	return &HealthHandler{adapters: adapters}
}

// Health returns the health status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"adapters": h.adapters,
	})
}
