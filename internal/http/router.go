package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"droplet_console/internal/activity"
	"droplet_console/internal/apperr"
	"droplet_console/internal/auth"
	"droplet_console/internal/credentials"
	"droplet_console/internal/digitalocean"
	"droplet_console/internal/droplets"
	"droplet_console/internal/firewalls"
	"droplet_console/internal/http/handlers"
	"droplet_console/internal/ledger"
	"droplet_console/internal/logger"
	"droplet_console/internal/permissions"
	"droplet_console/internal/rbac"
)

// Deps are the shared collaborators handed to every handler.
type Deps struct {
	DB          *gorm.DB
	Log         *zap.Logger
	JWTSecret   string
	DO          *digitalocean.Client
	Credentials *credentials.Store
	Droplets    *droplets.Service
	Firewalls   *firewalls.Service
	Activity    *activity.Recorder
	Ledger      *ledger.Ledger
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(logger.Gin(d.Log), gin.CustomRecovery(func(c *gin.Context, recovered any) {
		d.Log.Error("panic recovered", zap.Any("panic", recovered), zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			gin.H{"message": "internal server error", "error": apperr.CodeInternal})
	}))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "route not found", "error": apperr.CodeNotFound})
	})

	r.GET("/healthz", handlers.Healthz(d.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public routes
	r.POST("/api/v1/auth/login", handlers.LoginHandler(d.DB, d.JWTSecret, d.Activity))
	r.POST("/api/v1/auth/register", handlers.RegisterHandler(d.DB, d.JWTSecret, d.Activity))
	r.GET("/api/v1/logout", handlers.LogoutHandler())

	chk := rbac.Checker{DB: d.DB}
	api := r.Group("/api/v1", auth.JWT(d.DB, d.JWTSecret))
	{
		api.GET("/me", handlers.MeHandler())
		api.GET("/transactions", handlers.ListTransactions(d.Ledger))

		// Droplets
		api.GET("/resources", require(chk, permissions.ViewDroplets), handlers.ListResources(d.Droplets))
		api.POST("/resources", require(chk, permissions.CreateDroplet), handlers.CreateResource(d.Droplets, d.Activity))
		api.GET("/resources/:id", require(chk, permissions.ViewDroplets), handlers.GetResource(d.Droplets))
		api.DELETE("/resources/:id", require(chk, permissions.DeleteDroplet), handlers.DeleteResource(d.Droplets, d.Activity))
		api.POST("/resources/:id/actions", require(chk, permissions.PowerDroplet), handlers.ResourceAction(d.Droplets, d.Activity))

		// Firewalls
		api.GET("/firewalls", require(chk, permissions.ViewFirewalls), handlers.ListFirewalls(d.Firewalls))
		api.POST("/firewalls", require(chk, permissions.CreateFirewall), handlers.CreateFirewall(d.Firewalls, d.Activity))
		api.GET("/firewalls/:id", require(chk, permissions.ViewFirewalls), handlers.GetFirewall(d.Firewalls))
		api.DELETE("/firewalls/:id", require(chk, permissions.DeleteFirewall), handlers.DeleteFirewall(d.Firewalls, d.Activity))
		api.POST("/firewalls/:id/members", require(chk, permissions.EditFirewall), handlers.FirewallMembers(d.Firewalls, d.Activity, true))
		api.DELETE("/firewalls/:id/members", require(chk, permissions.EditFirewall), handlers.FirewallMembers(d.Firewalls, d.Activity, false))
		api.POST("/firewalls/:id/rules", require(chk, permissions.EditFirewall), handlers.FirewallRules(d.Firewalls, d.Activity, true))
		api.DELETE("/firewalls/:id/rules", require(chk, permissions.EditFirewall), handlers.FirewallRules(d.Firewalls, d.Activity, false))

		// Provider credential
		api.GET("/settings/credential", require(chk, permissions.ViewSettings), handlers.GetCredential(d.Credentials))
		api.POST("/settings/credential", require(chk, permissions.EditSettings), handlers.SaveCredential(d.Credentials, d.DO, d.Activity))
		api.GET("/settings/credential/check", require(chk, permissions.ViewSettings), handlers.CheckCredential(d.Credentials, d.DO))

		// Catalog
		api.GET("/catalog/regions", require(chk, permissions.ViewDroplets), handlers.ListRegions(d.DO))
		api.GET("/catalog/sizes", require(chk, permissions.ViewDroplets), handlers.ListSizes(d.DO))
		api.GET("/catalog/images", require(chk, permissions.ViewDroplets), handlers.ListImages(d.DO))

		// Users
		api.GET("/users", require(chk, permissions.ViewUsers), handlers.ListUsers(d.DB))
		api.POST("/users", require(chk, permissions.CreateUser), handlers.CreateUser(d.DB, d.Activity))
		api.GET("/users/:id", require(chk, permissions.ViewUsers), handlers.GetUser(d.DB))
		api.PATCH("/users/:id", require(chk, permissions.EditUser), handlers.UpdateUser(d.DB, d.Activity))
		api.DELETE("/users/:id", require(chk, permissions.DeleteUser), handlers.DeleteUser(d.DB, d.Activity))
		api.POST("/users/:id/balance", require(chk, permissions.ManageBalance), handlers.AdjustBalance(d.Ledger, d.Activity))

		// Roles
		api.GET("/roles", require(chk, permissions.ViewRoles), handlers.ListRoles(d.DB))
		api.POST("/roles", require(chk, permissions.CreateRole), handlers.CreateRole(d.DB, d.Activity))
		api.PATCH("/roles/:id", require(chk, permissions.EditRole), handlers.UpdateRole(d.DB, d.Activity))
		api.DELETE("/roles/:id", require(chk, permissions.DeleteRole), handlers.DeleteRole(d.DB, d.Activity))

		// Server templates
		api.GET("/templates", require(chk, permissions.ViewServerConfigs), handlers.ListTemplates(d.DB))
		api.POST("/templates", require(chk, permissions.EditServerConfigs), handlers.CreateTemplate(d.DB, d.Activity))
		api.PUT("/templates/:id", require(chk, permissions.EditServerConfigs), handlers.UpdateTemplate(d.DB, d.Activity))
		api.DELETE("/templates/:id", require(chk, permissions.EditServerConfigs), handlers.DeleteTemplate(d.DB, d.Activity))

		// Server regions
		api.GET("/regions", require(chk, permissions.ViewServerConfigs), handlers.ListServerRegions(d.DB))
		api.POST("/regions", require(chk, permissions.EditServerConfigs), handlers.CreateServerRegion(d.DB, d.Activity))
		api.PATCH("/regions/:id", require(chk, permissions.EditServerConfigs), handlers.UpdateServerRegion(d.DB, d.Activity))
		api.DELETE("/regions/:id", require(chk, permissions.EditServerConfigs), handlers.DeleteServerRegion(d.DB, d.Activity))

		// Activity log
		api.GET("/activity", require(chk, permissions.ViewActivity), handlers.ListActivity(d.Activity))
	}

	return r
}

func require(chk rbac.Checker, perm string) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := auth.CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				gin.H{"message": "authentication required", "error": apperr.CodeUnauthenticated})
			return
		}
		allowed, err := chk.Can(c.Request.Context(), u.ID, perm)
		if err != nil {
			handlers.Fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to check permissions"))
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden,
				gin.H{"message": "permission denied", "error": apperr.CodePermissionDenied, "missing": perm})
			return
		}
		c.Next()
	}
}
