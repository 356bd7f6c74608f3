package droplets

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"droplet_console/internal/apperr"
	"droplet_console/internal/digitalocean"
	"droplet_console/internal/models"
	"droplet_console/internal/permissions"
)

type CreateInput struct {
	Name    string   `json:"name"`
	Region  string   `json:"region"`
	Size    string   `json:"size"`
	Image   string   `json:"image"`
	SSHKeys []string `json:"ssh_keys"`
}

func (in *CreateInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Region = strings.TrimSpace(in.Region)
	in.Size = strings.TrimSpace(in.Size)
	in.Image = strings.TrimSpace(in.Image)

	var missing []string
	for _, f := range []struct{ name, val string }{
		{"name", in.Name}, {"region", in.Region}, {"size", in.Size}, {"image", in.Image},
	} {
		if f.val == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return apperr.Newf(apperr.CodeValidation, "missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func insufficient(need, have float64) error {
	return apperr.Newf(apperr.CodeInsufficientBalance,
		"insufficient balance: %.2f required, %.2f available", need, have).
		WithSuggestion("Top up the balance or pick a smaller size")
}

// cents rounds a charge to the currency's precision.
func cents(v float64) float64 {
	return math.Round(v*100) / 100
}

// CreateForOwner provisions a droplet for ownerID and bills it. Balance and
// quota are checked before the provider is called. Once the provider has
// created the droplet, the balance decrement, mirror row and ledger entry are
// written in one local transaction; if that fails the remote droplet is
// deleted again.
func (s *Service) CreateForOwner(ctx context.Context, ownerID int64, in CreateInput) (*View, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	var owner models.User
	err := s.DB.WithContext(ctx).Preload("Role").First(&owner, ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Newf(apperr.CodeNotFound, "user %d not found", ownerID)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to load user")
	}

	if err := s.checkRegion(ctx, &owner, in.Region); err != nil {
		return nil, err
	}

	var tpl models.ServerTemplate
	err = s.DB.WithContext(ctx).Where("size_slug = ? AND is_active = ?", in.Size, true).First(&tpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Newf(apperr.CodeValidation, "size %q is not offered", in.Size)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to load server template")
	}

	if err := s.checkQuota(ctx, &owner); err != nil {
		return nil, err
	}

	price := cents(digitalocean.CalculatePrice(tpl.Price))
	if owner.Balance < price {
		return nil, insufficient(price, owner.Balance)
	}

	created, err := s.Remote.CreateDroplet(ctx, digitalocean.DropletCreateRequest{
		Name:    in.Name,
		Region:  in.Region,
		Size:    in.Size,
		Image:   in.Image,
		SSHKeys: in.SSHKeys,
		Tags:    []string{ConsoleTag, OwnerTag(ownerID)},
	})
	if err != nil {
		return nil, err
	}

	next := s.now().AddDate(0, 1, 0)
	row := models.Droplet{
		DOID:            created.ID,
		UserID:          ownerID,
		Name:            created.Name,
		Status:          models.DropletNew,
		IP:              created.PublicIPv4(),
		Region:          in.Region,
		Size:            in.Size,
		Image:           in.Image,
		OriginalPrice:   tpl.Price,
		Price:           price,
		NextBillingDate: &next,
	}
	if st, ok := remoteStatus(created.Status); ok {
		row.Status = st
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ? AND balance >= ?", ownerID, price).
			Update("balance", gorm.Expr("balance - ?", price))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var current models.User
			if err := tx.Select("balance").First(&current, ownerID).Error; err != nil {
				return err
			}
			return insufficient(price, current.Balance)
		}

		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Create(&models.Transaction{
			UserID:      ownerID,
			DropletID:   &row.ID,
			Amount:      -price,
			Type:        models.TransactionDropletCreate,
			Status:      models.TransactionCompleted,
			Description: fmt.Sprintf("Droplet %s (%s)", row.Name, tpl.Name),
		}).Error
	})
	if err != nil {
		s.compensate(ctx, created.ID, err)
		if apperr.GetCode(err) == apperr.CodeInsufficientBalance {
			return nil, err
		}
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to record droplet")
	}

	s.Log.Info("droplet created",
		zap.Int64("user_id", ownerID),
		zap.Int64("do_id", row.DOID),
		zap.String("size", row.Size),
		zap.Float64("charged", price))

	v := mergedView(&row, *created)
	return &v, nil
}

// compensate removes a droplet whose local bookkeeping failed. If that also
// fails the droplet stays tagged and Sweep will mirror it.
func (s *Service) compensate(ctx context.Context, doID int64, cause error) {
	err := s.Remote.DeleteDroplet(context.WithoutCancel(ctx), doID)
	if err != nil && !apperr.Is(err, apperr.CodeRemoteNotFound) {
		s.Log.Error("failed to roll back droplet after local write error",
			zap.Int64("do_id", doID), zap.NamedError("cause", cause), zap.Error(err))
		return
	}
	s.Log.Warn("rolled back droplet after local write error",
		zap.Int64("do_id", doID), zap.Error(cause))
}

// checkRegion accepts only active catalog regions; admin-only regions are
// reserved for the admin role.
func (s *Service) checkRegion(ctx context.Context, owner *models.User, slug string) error {
	var region models.ServerRegion
	err := s.DB.WithContext(ctx).Where("slug = ?", slug).First(&region).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Newf(apperr.CodeValidation, "region %q is not offered", slug)
	}
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to load region")
	}
	if !region.IsActive {
		return apperr.Newf(apperr.CodeValidation, "region %q is currently unavailable", slug)
	}
	if region.IsAdminOnly && (owner.Role == nil || owner.Role.Name != permissions.RoleAdmin) {
		return apperr.Newf(apperr.CodePermissionDenied, "region %q is reserved for administrators", slug)
	}
	return nil
}

func (s *Service) checkQuota(ctx context.Context, owner *models.User) error {
	if owner.Role == nil || owner.Role.MaxServers <= 0 {
		return nil
	}
	var n int64
	if err := s.DB.WithContext(ctx).Model(&models.Droplet{}).Where("user_id = ?", owner.ID).Count(&n).Error; err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to count droplets")
	}
	if n >= int64(owner.Role.MaxServers) {
		return apperr.Newf(apperr.CodeQuotaExceeded,
			"droplet limit reached: role %s allows %d", owner.Role.Name, owner.Role.MaxServers)
	}
	return nil
}
