package rbac

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"droplet_console/internal/models"
	"droplet_console/internal/permissions"
)

type Checker struct{ DB *gorm.DB }

// Can reports whether the user's role grants every permission in perms.
func (c Checker) Can(ctx context.Context, userID int64, perms ...string) (bool, error) {
	set, err := c.PermissionSet(ctx, userID)
	if err != nil {
		return false, err
	}
	return permissions.HasAll(set, perms...), nil
}

// PermissionSet returns the raw JSON permission set of the user's role.
// A user without a role has the empty set.
func (c Checker) PermissionSet(ctx context.Context, userID int64) (string, error) {
	var role models.Role
	err := c.DB.WithContext(ctx).
		Table("roles r").
		Select("r.permissions").
		Joins("JOIN users u ON u.role_id = r.id").
		Where("u.id = ?", userID).
		Take(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "[]", nil
	}
	return role.Permissions, err
}
