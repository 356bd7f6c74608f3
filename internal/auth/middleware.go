package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"droplet_console/internal/apperr"
	"droplet_console/internal/models"
)

const (
	CookieName = "token"
	TokenTTL   = 24 * time.Hour

	claimsKey = "claims"
	userKey   = "user"
)

// Claims represents the JWT claims structure.
type Claims struct {
	UserID int64  `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Issue signs a session token for user.
func Issue(secret string, user *models.User, now time.Time) (string, error) {
	claims := Claims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Parse validates a signed token and returns its claims.
func Parse(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

// JWT returns a Gin middleware that validates JWT tokens from
// either the Authorization header or a "token" cookie and verifies
// that the user is still active in the database.
func JWT(db *gorm.DB, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.GetHeader("Authorization")

		// Fallback: read from cookie if no Authorization header
		if tokenStr == "" {
			if cookie, err := c.Cookie(CookieName); err == nil {
				tokenStr = "Bearer " + cookie
			}
		}
		if tokenStr == "" {
			abort(c, apperr.New(apperr.CodeUnauthenticated, "missing bearer token"))
			return
		}

		tokenStr = strings.TrimSpace(strings.TrimPrefix(tokenStr, "Bearer "))
		claims, err := Parse(secret, tokenStr)
		if err != nil {
			abort(c, apperr.New(apperr.CodeUnauthenticated, err.Error()))
			return
		}

		// Verify user still exists and is active
		var user models.User
		if err := db.WithContext(c.Request.Context()).Preload("Role").First(&user, claims.UserID).Error; err != nil {
			abort(c, apperr.New(apperr.CodeUnauthenticated, "user not found"))
			return
		}
		if user.Status != models.UserActive {
			abort(c, apperr.New(apperr.CodePermissionDenied, "account suspended"))
			return
		}

		c.Set(claimsKey, claims)
		c.Set(userKey, &user)
		c.Next()
	}
}

// CurrentUser returns the user loaded by JWT, with its role.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok
}

func abort(c *gin.Context, err *apperr.AppError) {
	c.AbortWithStatusJSON(err.Code.HTTPStatus(), gin.H{"message": err.Message, "error": err.Code})
}
