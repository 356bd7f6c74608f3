package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MeHandler returns the caller with role, permissions and balance.
func MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": userBody(currentUser(c))})
	}
}
