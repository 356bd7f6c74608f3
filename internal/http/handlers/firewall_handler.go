package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"droplet_console/internal/activity"
	"droplet_console/internal/digitalocean"
	"droplet_console/internal/firewalls"
)

type membersInput struct {
	DropletIDs []int64 `json:"droplet_ids" binding:"required"`
}

type rulesInput struct {
	Inbound  []digitalocean.Rule `json:"inbound_rules"`
	Outbound []digitalocean.Rule `json:"outbound_rules"`
}

func ListFirewalls(svc *firewalls.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		views, err := svc.ListForOwner(c.Request.Context(), currentUser(c).ID)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"firewalls": views})
	}
}

func GetFirewall(svc *firewalls.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := svc.GetForOwner(c.Request.Context(), currentUser(c).ID, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"firewall": v})
	}
}

func CreateFirewall(svc *firewalls.Service, rec *activity.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in firewalls.CreateInput
		if !bind(c, &in) {
			return
		}
		u := currentUser(c)
		v, err := svc.Create(c.Request.Context(), u.ID, in)
		if err != nil {
			fail(c, err)
			return
		}
		rec.Record(c.Request.Context(), entry(c, u.ID, activity.FirewallCreated, gin.H{"firewall": v.ID, "name": v.Name}))
		c.JSON(http.StatusCreated, gin.H{"firewall": v})
	}
}

func DeleteFirewall(svc *firewalls.Service, rec *activity.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := currentUser(c)
		id := c.Param("id")
		if err := svc.Delete(c.Request.Context(), u.ID, id); err != nil {
			fail(c, err)
			return
		}
		rec.Record(c.Request.Context(), entry(c, u.ID, activity.FirewallDeleted, gin.H{"firewall": id}))
		c.JSON(http.StatusOK, gin.H{"message": "firewall deleted"})
	}
}

// FirewallMembers attaches (add) or detaches droplets.
func FirewallMembers(svc *firewalls.Service, rec *activity.Recorder, add bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in membersInput
		if !bind(c, &in) {
			return
		}
		u := currentUser(c)
		id := c.Param("id")
		change := svc.RemoveMembers
		op := "remove"
		if add {
			change, op = svc.AddMembers, "add"
		}
		if err := change(c.Request.Context(), u.ID, id, in.DropletIDs); err != nil {
			fail(c, err)
			return
		}
		rec.Record(c.Request.Context(), entry(c, u.ID, activity.FirewallMembers,
			gin.H{"firewall": id, "op": op, "droplet_ids": in.DropletIDs}))
		c.JSON(http.StatusOK, gin.H{"message": "firewall members updated"})
	}
}

// FirewallRules adds or removes rules.
func FirewallRules(svc *firewalls.Service, rec *activity.Recorder, add bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in rulesInput
		if !bind(c, &in) {
			return
		}
		u := currentUser(c)
		id := c.Param("id")
		change := svc.RemoveRules
		op := "remove"
		if add {
			change, op = svc.AddRules, "add"
		}
		v, err := change(c.Request.Context(), u.ID, id, in.Inbound, in.Outbound)
		if err != nil {
			fail(c, err)
			return
		}
		rec.Record(c.Request.Context(), entry(c, u.ID, activity.FirewallRules,
			gin.H{"firewall": id, "op": op, "inbound": len(in.Inbound), "outbound": len(in.Outbound)}))
		c.JSON(http.StatusOK, gin.H{"firewall": v, "message": "firewall rules updated"})
	}
}
