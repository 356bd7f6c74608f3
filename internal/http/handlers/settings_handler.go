package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"droplet_console/internal/activity"
	"droplet_console/internal/apperr"
	"droplet_console/internal/credentials"
	"droplet_console/internal/digitalocean"
)

// GetCredential reports whether a token is configured, masked.
func GetCredential(store *credentials.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, err := store.Active(c.Request.Context())
		if apperr.Is(err, apperr.CodeCredentialMissing) {
			c.JSON(http.StatusOK, gin.H{"credential": gin.H{"configured": false}})
			return
		}
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"credential": gin.H{
			"configured": true,
			"token":      credentials.Mask(tok.Token),
			"updated_at": tok.UpdatedAt,
		}})
	}
}

// SaveCredential validates a token against the provider and, if usable,
// makes it the active one.
func SaveCredential(store *credentials.Store, do *digitalocean.Client, rec *activity.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in struct {
			Token string `json:"token" binding:"required"`
		}
		if !bind(c, &in) {
			return
		}

		check := do.TestToken(c.Request.Context(), in.Token)
		switch {
		case check.IsValid:
		case check.Code == apperr.CodeCredentialInvalid:
			// The provider rejected the submitted token itself.
			failStatus(c, http.StatusUnprocessableEntity, apperr.New(check.Code, check.Message))
			return
		case check.Code != "":
			fail(c, apperr.New(check.Code, check.Message))
			return
		default:
			fail(c, apperr.New(apperr.CodeValidation, check.Message))
			return
		}

		tok, err := store.Rotate(c.Request.Context(), in.Token)
		if err != nil {
			fail(c, err)
			return
		}
		rec.Record(c.Request.Context(), entry(c, currentUser(c).ID, activity.CredentialUpdated,
			gin.H{"token": credentials.Mask(tok.Token)}))
		c.JSON(http.StatusOK, gin.H{
			"credential": gin.H{"configured": true, "token": credentials.Mask(tok.Token), "updated_at": tok.UpdatedAt},
			"check":      check,
			"message":    "token saved",
		})
	}
}

// CheckCredential tests the active token.
func CheckCredential(store *credentials.Store, do *digitalocean.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, err := store.ActiveToken(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"check": do.TestToken(c.Request.Context(), tok)})
	}
}
