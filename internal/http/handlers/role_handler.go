package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"droplet_console/internal/activity"
	"droplet_console/internal/apperr"
	"droplet_console/internal/models"
	"droplet_console/internal/permissions"
)

func roleBody(r *models.Role) gin.H {
	return gin.H{
		"id":          r.ID,
		"name":        r.Name,
		"description": r.Description,
		"permissions": permissions.Decode(r.Permissions),
		"max_servers": r.MaxServers,
	}
}

func ListRoles(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var roles []models.Role
		if err := db.Order("id").Find(&roles).Error; err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to load roles"))
			return
		}
		out := make([]gin.H, 0, len(roles))
		for i := range roles {
			out = append(out, roleBody(&roles[i]))
		}
		c.JSON(http.StatusOK, gin.H{"roles": out, "available_permissions": permissions.All})
	}
}

func CreateRole(db *gorm.DB, rec *activity.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Name        string   `json:"name" binding:"required"`
			Description string   `json:"description"`
			Permissions []string `json:"permissions"`
			MaxServers  int      `json:"max_servers" binding:"gte=0"`
		}
		if !bind(c, &input) {
			return
		}

		role := models.Role{
			Name:        strings.TrimSpace(input.Name),
			Description: input.Description,
			Permissions: permissions.Encode(input.Permissions),
			MaxServers:  input.MaxServers,
		}
		if err := createUnique(db, &role, "role name"); err != nil {
			fail(c, err)
			return
		}

		rec.Record(c.Request.Context(), entry(c, currentUser(c).ID, activity.RoleChanged, gin.H{"role_id": role.ID, "op": "create"}))
		c.JSON(http.StatusCreated, gin.H{"role": roleBody(&role)})
	}
}

func UpdateRole(db *gorm.DB, rec *activity.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var input struct {
			Name        *string   `json:"name"`
			Description *string   `json:"description"`
			Permissions *[]string `json:"permissions"`
			MaxServers  *int      `json:"max_servers" binding:"omitempty,gte=0"`
		}
		if !bind(c, &input) {
			return
		}

		var role models.Role
		if err := db.First(&role, id).Error; err != nil {
			fail(c, apperr.Newf(apperr.CodeNotFound, "role %d not found", id))
			return
		}
		updates := map[string]any{}
		if input.Name != nil {
			updates["name"] = strings.TrimSpace(*input.Name)
		}
		if input.Description != nil {
			updates["description"] = *input.Description
		}
		if input.Permissions != nil {
			updates["permissions"] = permissions.Encode(*input.Permissions)
		}
		if input.MaxServers != nil {
			updates["max_servers"] = *input.MaxServers
		}
		if len(updates) == 0 {
			fail(c, apperr.New(apperr.CodeValidation, "nothing to update"))
			return
		}
		if err := db.Model(&role).Updates(updates).Error; err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to update role"))
			return
		}
		if err := db.First(&role, id).Error; err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to reload role"))
			return
		}

		rec.Record(c.Request.Context(), entry(c, currentUser(c).ID, activity.RoleChanged, gin.H{"role_id": id, "op": "update"}))
		c.JSON(http.StatusOK, gin.H{"role": roleBody(&role)})
	}
}

// DeleteRole refuses to delete a role that still has users.
func DeleteRole(db *gorm.DB, rec *activity.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var role models.Role
		if err := db.First(&role, id).Error; err != nil {
			fail(c, apperr.Newf(apperr.CodeNotFound, "role %d not found", id))
			return
		}
		var users int64
		if err := db.Model(&models.User{}).Where("role_id = ?", id).Count(&users).Error; err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to count users"))
			return
		}
		if users > 0 {
			fail(c, apperr.Newf(apperr.CodeConflict, "role %s is assigned to %d users", role.Name, users))
			return
		}
		if err := db.Delete(&role).Error; err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to delete role"))
			return
		}

		rec.Record(c.Request.Context(), entry(c, currentUser(c).ID, activity.RoleChanged, gin.H{"role_id": id, "op": "delete"}))
		c.JSON(http.StatusOK, gin.H{"message": "role deleted"})
	}
}
