package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"droplet_console/internal/activity"
	"droplet_console/internal/apperr"
	"droplet_console/internal/auth"
	"droplet_console/internal/models"
)

// fail writes the JSON error body for err and records err on the context
// for the request logger.
func fail(c *gin.Context, err error) {
	failStatus(c, apperr.GetCode(err).HTTPStatus(), err)
}

// failStatus is fail with the status chosen by the caller.
func failStatus(c *gin.Context, status int, err error) {
	code := apperr.GetCode(err)
	body := gin.H{"message": apperr.Message(err), "error": code}
	var appErr *apperr.AppError
	if errors.As(err, &appErr) && appErr.SuggestedAction != "" {
		body["message"] = appErr.Message
		body["suggestion"] = appErr.SuggestedAction
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

// Fail is fail for middleware mounted outside this package.
func Fail(c *gin.Context, err error) {
	fail(c, err)
}

func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		fail(c, apperr.Wrap(err, apperr.CodeValidation, "invalid request body: "+err.Error()))
		return false
	}
	return true
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		fail(c, apperr.Newf(apperr.CodeValidation, "invalid %s", name))
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string) int64 {
	v, err := strconv.ParseInt(c.Query(key), 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// currentUser is set by auth.JWT on every route that reaches a handler
// using it.
func currentUser(c *gin.Context) *models.User {
	u, _ := auth.CurrentUser(c)
	return u
}

func entry(c *gin.Context, userID int64, action string, details any) activity.Entry {
	return activity.Entry{
		UserID:    userID,
		Action:    action,
		Details:   details,
		IP:        c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	}
}
