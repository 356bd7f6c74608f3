package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"droplet_console/internal/activity"
	"droplet_console/internal/apperr"
	"droplet_console/internal/models"
)

// ListServerRegions lists the region catalog; ?active=true limits to
// regions open for new droplets.
func ListServerRegions(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := db.Order("slug")
		if c.Query("active") == "true" {
			q = q.Where("is_active = ?", true)
		}
		var regions []models.ServerRegion
		if err := q.Find(&regions).Error; err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to load regions"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"regions": regions})
	}
}

func CreateServerRegion(db *gorm.DB, rec *activity.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in struct {
			Slug        string `json:"slug" binding:"required"`
			Location    string `json:"location" binding:"required"`
			IsActive    *bool  `json:"is_active"`
			IsAdminOnly bool   `json:"is_admin_only"`
		}
		if !bind(c, &in) {
			return
		}
		region := models.ServerRegion{
			Slug:        strings.TrimSpace(in.Slug),
			Location:    strings.TrimSpace(in.Location),
			IsActive:    in.IsActive == nil || *in.IsActive,
			IsAdminOnly: in.IsAdminOnly,
		}
		if err := createUnique(db, &region, "slug"); err != nil {
			fail(c, err)
			return
		}
		rec.Record(c.Request.Context(), entry(c, currentUser(c).ID, activity.RegionChanged,
			gin.H{"region_id": region.ID, "slug": region.Slug, "op": "create"}))
		c.JSON(http.StatusCreated, gin.H{"region": region})
	}
}

// UpdateServerRegion toggles availability or renames the location.
func UpdateServerRegion(db *gorm.DB, rec *activity.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var in struct {
			Location    *string `json:"location"`
			IsActive    *bool   `json:"is_active"`
			IsAdminOnly *bool   `json:"is_admin_only"`
		}
		if !bind(c, &in) {
			return
		}
		updates := map[string]any{}
		if in.Location != nil {
			updates["location"] = strings.TrimSpace(*in.Location)
		}
		if in.IsActive != nil {
			updates["is_active"] = *in.IsActive
		}
		if in.IsAdminOnly != nil {
			updates["is_admin_only"] = *in.IsAdminOnly
		}
		if len(updates) == 0 {
			fail(c, apperr.New(apperr.CodeValidation, "nothing to update"))
			return
		}

		var region models.ServerRegion
		if err := db.First(&region, id).Error; err != nil {
			fail(c, apperr.Newf(apperr.CodeNotFound, "region %d not found", id))
			return
		}
		if err := db.Model(&region).Updates(updates).Error; err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to update region"))
			return
		}
		if err := db.First(&region, id).Error; err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to reload region"))
			return
		}
		rec.Record(c.Request.Context(), entry(c, currentUser(c).ID, activity.RegionChanged,
			gin.H{"region_id": id, "slug": region.Slug, "op": "update"}))
		c.JSON(http.StatusOK, gin.H{"region": region})
	}
}

func DeleteServerRegion(db *gorm.DB, rec *activity.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		res := db.Delete(&models.ServerRegion{}, id)
		if res.Error != nil {
			fail(c, apperr.Wrap(res.Error, apperr.CodeInternal, "failed to delete region"))
			return
		}
		if res.RowsAffected == 0 {
			fail(c, apperr.Newf(apperr.CodeNotFound, "region %d not found", id))
			return
		}
		rec.Record(c.Request.Context(), entry(c, currentUser(c).ID, activity.RegionChanged,
			gin.H{"region_id": id, "op": "delete"}))
		c.JSON(http.StatusOK, gin.H{"message": "region deleted"})
	}
}
