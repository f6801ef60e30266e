package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/awardscan/scrapecore/cache"
	"github.com/awardscan/scrapecore/models"
)

// SweepCache returns a handler for DELETE /api/v1/cache. It clears the
// result cache.
func SweepCache(cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := cc.Sweep(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": &models.ErrorDetail{
					Code:    models.ErrCodeCache,
					Message: err.Error(),
				},
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
