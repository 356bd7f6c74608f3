package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"droplet_console/internal/apperr"
	"droplet_console/internal/db"
)

func Healthz(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(gdb); err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "database unavailable"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
