package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/awardscan/scrapecore/models"
)

// Health returns a handler for GET /api/v1/health.
func Health(startTime time.Time, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  "healthy",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: version,
		})
	}
}
