package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"droplet_console/internal/activity"
	"droplet_console/internal/droplets"
)

// ListResources returns the caller's droplets, merged with live state.
func ListResources(svc *droplets.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		views, err := svc.ListForOwner(c.Request.Context(), currentUser(c).ID)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"resources": views})
	}
}

func GetResource(svc *droplets.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		v, err := svc.GetForOwner(c.Request.Context(), currentUser(c).ID, id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"resource": v})
	}
}

// CreateResource provisions and bills a droplet for the caller.
func CreateResource(svc *droplets.Service, rec *activity.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in droplets.CreateInput
		if !bind(c, &in) {
			return
		}
		u := currentUser(c)
		v, err := svc.CreateForOwner(c.Request.Context(), u.ID, in)
		if err != nil {
			fail(c, err)
			return
		}

		e := entry(c, u.ID, activity.DropletCreated, gin.H{
			"do_id": v.DOID, "name": v.Name, "size": v.Size, "region": v.Region, "charged": v.Price,
		})
		e.DropletID = &v.ID
		rec.Record(c.Request.Context(), e)

		c.JSON(http.StatusCreated, gin.H{"resource": v, "message": "droplet is being created"})
	}
}

func DeleteResource(svc *droplets.Service, rec *activity.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		u := currentUser(c)
		if err := svc.Delete(c.Request.Context(), u.ID, id); err != nil {
			fail(c, err)
			return
		}
		rec.Record(c.Request.Context(), entry(c, u.ID, activity.DropletDeleted, gin.H{"do_id": id}))
		c.JSON(http.StatusOK, gin.H{"message": "droplet deleted"})
	}
}

// ResourceAction runs power_on, power_off or reboot.
func ResourceAction(svc *droplets.Service, rec *activity.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var in struct {
			Type string `json:"type" binding:"required"`
		}
		if !bind(c, &in) {
			return
		}
		u := currentUser(c)
		v, act, err := svc.PowerAction(c.Request.Context(), u.ID, id, in.Type)
		if err != nil {
			fail(c, err)
			return
		}

		e := entry(c, u.ID, activity.DropletAction, gin.H{"do_id": id, "type": in.Type, "action_id": act.ID})
		e.DropletID = &v.ID
		rec.Record(c.Request.Context(), e)

		c.JSON(http.StatusAccepted, gin.H{"resource": v, "action": act, "message": "action accepted"})
	}
}
