package seed

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"droplet_console/internal/models"
	"droplet_console/internal/permissions"
)

var roleDescriptions = map[string]string{
	permissions.RoleAdmin:    "Full access",
	permissions.RoleUser:     "Self-service droplet and firewall management",
	permissions.RoleSupport:  "Read access plus power actions",
	permissions.RoleReadonly: "Read-only access to droplets and firewalls",
}

// DefaultTemplates are the sizes offered on a fresh install. Prices are the
// provider's monthly list prices before markup.
var DefaultTemplates = []models.ServerTemplate{
	{Name: "Basic 1 GB", SizeSlug: "s-1vcpu-1gb", CPU: 1, RAM: 1024, Disk: 25, Price: 6, IsActive: true},
	{Name: "Basic 2 GB", SizeSlug: "s-1vcpu-2gb", CPU: 1, RAM: 2048, Disk: 50, Price: 12, IsActive: true},
	{Name: "Basic 2 vCPU", SizeSlug: "s-2vcpu-2gb", CPU: 2, RAM: 2048, Disk: 60, Price: 18, IsActive: true},
	{Name: "Basic 4 GB", SizeSlug: "s-2vcpu-4gb", CPU: 2, RAM: 4096, Disk: 80, Price: 24, IsActive: true},
}

// DefaultRegions are the regions offered on a fresh install.
var DefaultRegions = []models.ServerRegion{
	{Slug: "nyc1", Location: "New York, USA", IsActive: true},
	{Slug: "sfo2", Location: "San Francisco, USA", IsActive: true},
	{Slug: "ams3", Location: "Amsterdam, Netherlands", IsActive: true, IsAdminOnly: true},
	{Slug: "sgp1", Location: "Singapore", IsActive: true},
	{Slug: "lon1", Location: "London, UK"},
}

// FirstSetup is idempotent: it creates what is missing and leaves edited
// roles, users, templates and regions alone. The admin role always receives the full
// vocabulary so new permissions reach it.
func FirstSetup(db *gorm.DB, adminEmail, adminPassword string, log *zap.Logger) error {
	roles, err := EnsureRoles(db)
	if err != nil {
		return err
	}
	if err := EnsureAdmin(db, roles[permissions.RoleAdmin].ID, adminEmail, adminPassword); err != nil {
		return err
	}
	if err := EnsureTemplates(db); err != nil {
		return err
	}
	if err := EnsureRegions(db); err != nil {
		return err
	}
	log.Info("seed complete",
		zap.String("admin", adminEmail),
		zap.Int("roles", len(roles)),
		zap.Int("permissions", len(permissions.All)))
	return nil
}

func EnsureRoles(db *gorm.DB) (map[string]models.Role, error) {
	out := make(map[string]models.Role, len(permissions.Defaults))
	for name, perms := range permissions.Defaults {
		role := models.Role{Name: name}
		err := db.Where("name = ?", name).
			Attrs(models.Role{Description: roleDescriptions[name], Permissions: permissions.Encode(perms)}).
			FirstOrCreate(&role).Error
		if err != nil {
			return nil, err
		}
		if name == permissions.RoleAdmin {
			all := permissions.Encode(permissions.All)
			if role.Permissions != all {
				if err := db.Model(&role).Update("permissions", all).Error; err != nil {
					return nil, err
				}
			}
		}
		out[name] = role
	}
	return out, nil
}

func EnsureAdmin(db *gorm.DB, roleID int64, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := models.User{Email: strings.ToLower(strings.TrimSpace(email))}
	return db.Where("email = ?", admin.Email).
		Attrs(models.User{
			Name:         "Administrator",
			PasswordHash: string(hash),
			RoleID:       roleID,
			Status:       models.UserActive,
		}).
		FirstOrCreate(&admin).Error
}

func EnsureTemplates(db *gorm.DB) error {
	for _, t := range DefaultTemplates {
		tpl := models.ServerTemplate{SizeSlug: t.SizeSlug}
		if err := db.Where("size_slug = ?", t.SizeSlug).Attrs(t).FirstOrCreate(&tpl).Error; err != nil {
			return err
		}
	}
	return nil
}

func EnsureRegions(db *gorm.DB) error {
	for _, r := range DefaultRegions {
		region := models.ServerRegion{Slug: r.Slug}
		if err := db.Where("slug = ?", r.Slug).Attrs(r).FirstOrCreate(&region).Error; err != nil {
			return err
		}
	}
	return nil
}
