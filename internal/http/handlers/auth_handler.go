package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"droplet_console/internal/activity"
	"droplet_console/internal/apperr"
	"droplet_console/internal/auth"
	"droplet_console/internal/models"
	"droplet_console/internal/permissions"
)

func setSessionCookie(c *gin.Context, token string) {
	c.SetCookie(auth.CookieName, token, int(auth.TokenTTL.Seconds()), "/", "", false, true)
}

func userBody(u *models.User) gin.H {
	body := gin.H{
		"id":      u.ID,
		"email":   u.Email,
		"name":    u.Name,
		"status":  u.Status,
		"balance": u.Balance,
		"role_id": u.RoleID,
	}
	if u.Role != nil {
		body["role"] = u.Role.Name
		body["permissions"] = permissions.Decode(u.Role.Permissions)
	}
	return body
}

// LoginHandler authenticates the user and returns JWT
func LoginHandler(db *gorm.DB, jwtSecret string, rec *activity.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email    string `json:"email" binding:"required,email"`
			Password string `json:"password" binding:"required"`
		}
		if !bind(c, &input) {
			return
		}

		invalid := apperr.New(apperr.CodeUnauthenticated, "invalid email or password")
		var user models.User
		err := db.Preload("Role").Where("email = ?", strings.ToLower(strings.TrimSpace(input.Email))).First(&user).Error
		if err != nil {
			fail(c, invalid)
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
			fail(c, invalid)
			return
		}
		if user.Status != models.UserActive {
			fail(c, apperr.New(apperr.CodePermissionDenied, "account suspended"))
			return
		}

		token, err := auth.Issue(jwtSecret, &user, time.Now())
		if err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to create token"))
			return
		}
		setSessionCookie(c, token)
		rec.Record(c.Request.Context(), entry(c, user.ID, activity.Login, nil))

		c.JSON(http.StatusOK, gin.H{"token": token, "user": userBody(&user)})
	}
}

// RegisterHandler creates a self-service account on the default user role.
func RegisterHandler(db *gorm.DB, jwtSecret string, rec *activity.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email    string `json:"email" binding:"required,email"`
			Name     string `json:"name" binding:"required"`
			Password string `json:"password" binding:"required,min=8"`
		}
		if !bind(c, &input) {
			return
		}
		email := strings.ToLower(strings.TrimSpace(input.Email))

		var role models.Role
		if err := db.Where("name = ?", permissions.RoleUser).First(&role).Error; err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "default role is not configured"))
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to hash password"))
			return
		}
		user := models.User{
			Email:        email,
			Name:         strings.TrimSpace(input.Name),
			PasswordHash: string(hash),
			RoleID:       role.ID,
			Status:       models.UserActive,
		}
		if err := createUnique(db, &user, "email"); err != nil {
			fail(c, err)
			return
		}
		user.Role = &role

		token, err := auth.Issue(jwtSecret, &user, time.Now())
		if err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to create token"))
			return
		}
		setSessionCookie(c, token)
		rec.Record(c.Request.Context(), entry(c, user.ID, activity.UserCreated, gin.H{"self_service": true}))

		c.JSON(http.StatusCreated, gin.H{"token": token, "user": userBody(&user)})
	}
}

// LogoutHandler clears the session cookie.
func LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.SetCookie(auth.CookieName, "", -1, "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
	}
}

// createUnique inserts v, reporting a clash on the unique field as a conflict.
func createUnique(db *gorm.DB, v any, field string) error {
	err := db.Create(v).Error
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(strings.ToLower(err.Error()), "unique") ||
		strings.Contains(err.Error(), "Duplicate entry") {
		return apperr.Newf(apperr.CodeConflict, "%s already exists", field)
	}
	return apperr.Wrap(err, apperr.CodeInternal, "failed to save")
}
