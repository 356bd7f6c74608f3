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

type templateInput struct {
	Name     string  `json:"name" binding:"required"`
	SizeSlug string  `json:"size_slug" binding:"required"`
	CPU      int     `json:"cpu" binding:"gte=0"`
	RAM      int     `json:"ram" binding:"gte=0"`
	Disk     int     `json:"disk" binding:"gte=0"`
	Price    float64 `json:"price" binding:"gt=0"`
	IsActive *bool   `json:"is_active"`
}

func (in templateInput) apply(t *models.ServerTemplate) {
	t.Name = strings.TrimSpace(in.Name)
	t.SizeSlug = strings.TrimSpace(in.SizeSlug)
	t.CPU, t.RAM, t.Disk = in.CPU, in.RAM, in.Disk
	t.Price = in.Price
	t.IsActive = in.IsActive == nil || *in.IsActive
}

// ListTemplates lists server templates; ?active=true limits to sellable ones.
func ListTemplates(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := db.Order("price, id")
		if c.Query("active") == "true" {
			q = q.Where("is_active = ?", true)
		}
		var templates []models.ServerTemplate
		if err := q.Find(&templates).Error; err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to load templates"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"templates": templates})
	}
}

func CreateTemplate(db *gorm.DB, rec *activity.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in templateInput
		if !bind(c, &in) {
			return
		}
		var t models.ServerTemplate
		in.apply(&t)
		if err := createUnique(db, &t, "size_slug"); err != nil {
			fail(c, err)
			return
		}
		rec.Record(c.Request.Context(), entry(c, currentUser(c).ID, activity.TemplateChanged,
			gin.H{"template_id": t.ID, "op": "create"}))
		c.JSON(http.StatusCreated, gin.H{"template": t})
	}
}

func UpdateTemplate(db *gorm.DB, rec *activity.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var in templateInput
		if !bind(c, &in) {
			return
		}
		var t models.ServerTemplate
		if err := db.First(&t, id).Error; err != nil {
			fail(c, apperr.Newf(apperr.CodeNotFound, "template %d not found", id))
			return
		}
		in.apply(&t)
		if err := db.Save(&t).Error; err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to update template"))
			return
		}
		rec.Record(c.Request.Context(), entry(c, currentUser(c).ID, activity.TemplateChanged,
			gin.H{"template_id": id, "op": "update"}))
		c.JSON(http.StatusOK, gin.H{"template": t})
	}
}

func DeleteTemplate(db *gorm.DB, rec *activity.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		res := db.Delete(&models.ServerTemplate{}, id)
		if res.Error != nil {
			fail(c, apperr.Wrap(res.Error, apperr.CodeInternal, "failed to delete template"))
			return
		}
		if res.RowsAffected == 0 {
			fail(c, apperr.Newf(apperr.CodeNotFound, "template %d not found", id))
			return
		}
		rec.Record(c.Request.Context(), entry(c, currentUser(c).ID, activity.TemplateChanged,
			gin.H{"template_id": id, "op": "delete"}))
		c.JSON(http.StatusOK, gin.H{"message": "template deleted"})
	}
}
