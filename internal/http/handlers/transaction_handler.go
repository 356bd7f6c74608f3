package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"droplet_console/internal/ledger"
)

// ListTransactions pages through the caller's own ledger.
func ListTransactions(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := currentUser(c)
		page, err := l.List(c.Request.Context(), u.ID, int(queryInt(c, "limit")), queryInt(c, "after_id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": page.Items, "next_cursor": page.NextCursor, "balance": u.Balance})
	}
}
