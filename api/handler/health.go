package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/scrapeworker/jobs"
	"github.com/use-agent/scrapeworker/models"
)

// Health returns a handler for GET /healthz and /health.
func Health(jm *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    "ok",
			Timestamp: time.Now(),
			Jobs:      jm.Stats(),
		})
	}
}
