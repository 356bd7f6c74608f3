package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"droplet_console/internal/activity"
)

func ListActivity(rec *activity.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := rec.List(c.Request.Context(), activity.Query{
			UserID:  queryInt(c, "user_id"),
			Limit:   int(queryInt(c, "limit")),
			AfterID: queryInt(c, "after_id"),
			Search:  c.Query("q"),
		})
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}
