package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"droplet_console/internal/activity"
	"droplet_console/internal/apperr"
	"droplet_console/internal/ledger"
	"droplet_console/internal/models"
)

// ListUsers returns all users from DB
func ListUsers(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var users []models.User
		if err := db.Preload("Role").Order("id").Find(&users).Error; err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to load users"))
			return
		}
		out := make([]gin.H, 0, len(users))
		for i := range users {
			out = append(out, userBody(&users[i]))
		}
		c.JSON(http.StatusOK, gin.H{"users": out})
	}
}

func roleExists(db *gorm.DB, id int64) error {
	var role models.Role
	err := db.Select("id").First(&role, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Newf(apperr.CodeValidation, "role %d does not exist", id)
	}
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to load role")
	}
	return nil
}

// CreateUser inserts a new user
func CreateUser(db *gorm.DB, rec *activity.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in struct {
			Email    string  `json:"email" binding:"required,email"`
			Name     string  `json:"name" binding:"required"`
			Password string  `json:"password" binding:"required,min=8"`
			RoleID   int64   `json:"role_id" binding:"required"`
			Balance  float64 `json:"balance" binding:"gte=0"`
		}
		if !bind(c, &in) {
			return
		}
		if err := roleExists(db, in.RoleID); err != nil {
			fail(c, err)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to hash password"))
			return
		}
		user := models.User{
			Email:        strings.ToLower(strings.TrimSpace(in.Email)),
			Name:         strings.TrimSpace(in.Name),
			PasswordHash: string(hash),
			RoleID:       in.RoleID,
			Balance:      in.Balance,
			Status:       models.UserActive,
		}
		if err := createUnique(db, &user, "email"); err != nil {
			fail(c, err)
			return
		}

		actor := currentUser(c)
		rec.Record(c.Request.Context(), entry(c, actor.ID, activity.UserCreated, gin.H{"user_id": user.ID, "email": user.Email}))
		c.JSON(http.StatusCreated, gin.H{"user": userBody(&user)})
	}
}

// UpdateUser changes name, role, status or password of a user.
func UpdateUser(db *gorm.DB, rec *activity.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var in struct {
			Name     *string `json:"name"`
			RoleID   *int64  `json:"role_id"`
			Status   *string `json:"status" binding:"omitempty,oneof=active suspended"`
			Password *string `json:"password" binding:"omitempty,min=8"`
		}
		if !bind(c, &in) {
			return
		}

		var user models.User
		if err := db.First(&user, id).Error; err != nil {
			fail(c, apperr.Newf(apperr.CodeNotFound, "user %d not found", id))
			return
		}

		actor := currentUser(c)
		updates := map[string]any{}
		if in.Name != nil {
			updates["name"] = strings.TrimSpace(*in.Name)
		}
		if in.RoleID != nil {
			if err := roleExists(db, *in.RoleID); err != nil {
				fail(c, err)
				return
			}
			updates["role_id"] = *in.RoleID
		}
		if in.Status != nil {
			if id == actor.ID && *in.Status != string(models.UserActive) {
				fail(c, apperr.New(apperr.CodeValidation, "you cannot suspend your own account"))
				return
			}
			updates["status"] = *in.Status
		}
		if in.Password != nil {
			hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), bcrypt.DefaultCost)
			if err != nil {
				fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to hash password"))
				return
			}
			updates["password_hash"] = string(hash)
		}
		if len(updates) == 0 {
			fail(c, apperr.New(apperr.CodeValidation, "nothing to update"))
			return
		}

		if err := db.Model(&user).Updates(updates).Error; err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to update user"))
			return
		}
		if err := db.Preload("Role").First(&user, id).Error; err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to reload user"))
			return
		}

		changed := make([]string, 0, len(updates))
		for k := range updates {
			if k == "password_hash" {
				k = "password"
			}
			changed = append(changed, k)
		}
		rec.Record(c.Request.Context(), entry(c, actor.ID, activity.UserUpdated, gin.H{"user_id": id, "fields": changed}))
		c.JSON(http.StatusOK, gin.H{"user": userBody(&user)})
	}
}

// GetUser returns one user with its role.
func GetUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var user models.User
		err := db.Preload("Role").First(&user, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, apperr.Newf(apperr.CodeNotFound, "user %d not found", id))
			return
		}
		if err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to load user"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": userBody(&user)})
	}
}

// DeleteUser removes a user together with its ledger, activity and archived
// droplet rows. Users that still own droplets or firewalls are refused.
func DeleteUser(db *gorm.DB, rec *activity.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		actor := currentUser(c)
		if id == actor.ID {
			fail(c, apperr.New(apperr.CodeValidation, "you cannot delete your own account"))
			return
		}

		var user models.User
		err := db.First(&user, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, apperr.Newf(apperr.CodeNotFound, "user %d not found", id))
			return
		}
		if err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to load user"))
			return
		}

		var droplets, firewalls int64
		if err := db.Model(&models.Droplet{}).Where("user_id = ?", id).Count(&droplets).Error; err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to count droplets"))
			return
		}
		if err := db.Model(&models.Firewall{}).Where("user_id = ?", id).Count(&firewalls).Error; err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to count firewalls"))
			return
		}
		if droplets > 0 || firewalls > 0 {
			fail(c, apperr.Newf(apperr.CodeConflict,
				"user %d still owns %d droplet(s) and %d firewall(s)", id, droplets, firewalls).
				WithSuggestion("Delete the user's droplets and firewalls first."))
			return
		}

		err = db.Transaction(func(tx *gorm.DB) error {
			archived := tx.Unscoped().Model(&models.Droplet{}).Select("id").Where("user_id = ?", id)
			if err := tx.Where("droplet_id IN (?)", archived).Delete(&models.FirewallDroplet{}).Error; err != nil {
				return err
			}
			if err := tx.Unscoped().Where("user_id = ?", id).Delete(&models.Droplet{}).Error; err != nil {
				return err
			}
			if err := tx.Where("user_id = ?", id).Delete(&models.Transaction{}).Error; err != nil {
				return err
			}
			if err := tx.Where("user_id = ?", id).Delete(&models.Activity{}).Error; err != nil {
				return err
			}
			return tx.Delete(&models.User{}, id).Error
		})
		if err != nil {
			fail(c, apperr.Wrap(err, apperr.CodeInternal, "failed to delete user"))
			return
		}

		rec.Record(c.Request.Context(), entry(c, actor.ID, activity.UserDeleted, gin.H{"user_id": id, "email": user.Email}))
		c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
	}
}

// AdjustBalance credits or debits a user's balance.
func AdjustBalance(l *ledger.Ledger, rec *activity.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var in struct {
			Amount      float64 `json:"amount" binding:"required"`
			Description string  `json:"description"`
		}
		if !bind(c, &in) {
			return
		}

		tx, balance, err := l.Adjust(c.Request.Context(), id, in.Amount, in.Description)
		if err != nil {
			fail(c, err)
			return
		}
		actor := currentUser(c)
		rec.Record(c.Request.Context(), entry(c, actor.ID, activity.BalanceAdjusted,
			gin.H{"user_id": id, "amount": tx.Amount, "balance": balance}))
		c.JSON(http.StatusOK, gin.H{"transaction": tx, "balance": balance})
	}
}
