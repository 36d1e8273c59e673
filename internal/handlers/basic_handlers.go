package handlers

import (
	"net/http"

	"fasset-backend/internal/db"

	"github.com/gin-gonic/gin"
)

// HealthCheckHandler reports service and database health
// GET /health
func HealthCheckHandler(c *gin.Context) {
	dbStatus := "healthy"
	status := http.StatusOK
	if err := db.HealthCheck(); err != nil {
		dbStatus = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status":   "ok",
		"service":  "fasset-backend",
		"database": dbStatus,
	})
}

// PingHandler liveness probe
// GET /ping
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}
