package droplets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"droplet_console/internal/apperr"
	"droplet_console/internal/digitalocean"
	"droplet_console/internal/models"
)

// sweepGrace leaves freshly created droplets to the CreateForOwner call that
// is still writing their mirror row.
const sweepGrace = 10 * time.Minute

type SweepResult struct {
	Seen     int `json:"seen"`
	Repaired int `json:"repaired"`
	// Mirrored holds the rows created by this sweep.
	Mirrored []models.Droplet `json:"-"`
}

// Sweep mirrors console-tagged droplets that have no local row, which happens
// when creation succeeded remotely but its local writes were lost. Repaired
// rows are not billed. Per-droplet failures are collected and the sweep goes
// on.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	remote, err := s.Remote.ListDropletsByTag(ctx, ConsoleTag)
	if err != nil {
		return res, err
	}
	res.Seen = len(remote)

	var errs *multierror.Error
	for _, d := range remote {
		row, err := s.repair(ctx, d)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("droplet %d: %w", d.ID, err))
			continue
		}
		if row != nil {
			res.Repaired++
			res.Mirrored = append(res.Mirrored, *row)
		}
	}

	if res.Repaired > 0 {
		s.Log.Info("sweep repaired droplet mirror rows", zap.Int("repaired", res.Repaired), zap.Int("seen", res.Seen))
	}
	return res, errs.ErrorOrNil()
}

func (s *Service) repair(ctx context.Context, d digitalocean.Droplet) (*models.Droplet, error) {
	ownerID, ok := ownerFromTags(d.Tags)
	if !ok {
		return nil, nil
	}
	if !d.CreatedAt.IsZero() && s.now().Sub(d.CreatedAt) < sweepGrace {
		return nil, nil
	}

	db := s.DB.WithContext(ctx)
	var n int64
	if err := db.Unscoped().Model(&models.Droplet{}).Where("do_id = ? AND user_id = ?", d.ID, ownerID).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, nil
	}

	var owner models.User
	if err := db.Select("id").First(&owner, ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Newf(apperr.CodeNotFound, "owner %d not found", ownerID)
		}
		return nil, err
	}

	base := d.Size.PriceMonthly
	var tpl models.ServerTemplate
	if err := db.Where("size_slug = ?", d.SizeSlug).First(&tpl).Error; err == nil {
		base = tpl.Price
	}

	row := models.Droplet{
		DOID:          d.ID,
		UserID:        ownerID,
		Name:          d.Name,
		Status:        models.DropletNew,
		IP:            d.PublicIPv4(),
		Region:        d.Region.Slug,
		Size:          d.SizeSlug,
		Image:         d.ImageRef(),
		OriginalPrice: base,
		Price:         cents(digitalocean.CalculatePrice(base)),
	}
	if st, ok := remoteStatus(d.Status); ok {
		row.Status = st
	}
	if err := db.Create(&row).Error; err != nil {
		return nil, err
	}
	s.Log.Warn("mirrored orphaned droplet", zap.Int64("do_id", d.ID), zap.Int64("user_id", ownerID))
	return &row, nil
}
