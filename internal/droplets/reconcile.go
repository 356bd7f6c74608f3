package droplets

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"droplet_console/internal/apperr"
	"droplet_console/internal/digitalocean"
	"droplet_console/internal/models"
)

// ListForOwner returns one view per mirror row of the owner. Rows the
// provider knows are merged with live data; the rest, or all of them when the
// provider cannot be reached, are served from the mirror.
func (s *Service) ListForOwner(ctx context.Context, ownerID int64) ([]View, error) {
	var rows []models.Droplet
	if err := s.DB.WithContext(ctx).Where("user_id = ?", ownerID).Order("id").Find(&rows).Error; err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to load droplets")
	}
	views := make([]View, 0, len(rows))
	if len(rows) == 0 {
		return views, nil
	}

	live := map[int64]digitalocean.Droplet{}
	remote, err := s.Remote.ListDroplets(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.Log.Warn("serving droplets from local mirror",
			zap.Int64("user_id", ownerID), zap.Error(err))
	}
	for _, d := range remote {
		live[d.ID] = d
	}

	for i := range rows {
		row := &rows[i]
		d, ok := live[row.DOID]
		if !ok {
			views = append(views, cachedView(row))
			continue
		}
		s.sync(ctx, row, d)
		views = append(views, mergedView(row, d))
	}
	return views, nil
}

// GetForOwner returns a single droplet of the owner, live when possible.
func (s *Service) GetForOwner(ctx context.Context, ownerID, doID int64) (*View, error) {
	row, err := s.row(ctx, s.DB, ownerID, doID)
	if err != nil {
		return nil, err
	}

	d, err := s.Remote.GetDroplet(ctx, doID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.Log.Warn("serving droplet from local mirror",
			zap.Int64("do_id", doID), zap.Error(err))
		v := cachedView(row)
		return &v, nil
	}
	s.sync(ctx, row, *d)
	v := mergedView(row, *d)
	return &v, nil
}

// sync writes provider drift (status, address) back to the mirror row.
// Failures only cost freshness, so they are logged and dropped.
func (s *Service) sync(ctx context.Context, row *models.Droplet, d digitalocean.Droplet) {
	updates := map[string]any{}
	over := false
	if rs, ok := remoteStatus(d.Status); ok && row.Status.Pending() && rs != row.Status.Target() {
		over = s.pendingOver(ctx, row)
	}
	if st := settle(row.Status, d.Status, over); st != row.Status {
		updates["status"] = st
		if row.Status.Pending() {
			updates["pending_action_id"] = nil
			updates["pending_since"] = nil
			row.PendingActionID, row.PendingSince = nil, nil
		}
		row.Status = st
	}
	if ip := d.PublicIPv4(); ip != "" && ip != row.IP {
		updates["ip"] = ip
		row.IP = ip
	}
	if len(updates) == 0 {
		return
	}
	if err := s.DB.WithContext(ctx).Model(&models.Droplet{}).Where("id = ?", row.ID).Updates(updates).Error; err != nil {
		s.Log.Warn("failed to sync droplet mirror", zap.Int64("do_id", row.DOID), zap.Error(err))
	}
}

// pendingOver reports whether the power action behind a pending row can no
// longer bring the droplet to its target: the action completed or errored,
// the provider forgot it, or the row has been pending past pendingTimeout.
func (s *Service) pendingOver(ctx context.Context, row *models.Droplet) bool {
	if row.PendingSince == nil || s.now().Sub(*row.PendingSince) > pendingTimeout {
		return true
	}
	if row.PendingActionID == nil {
		return false
	}
	act, err := s.Remote.GetAction(ctx, *row.PendingActionID)
	if err != nil {
		if apperr.Is(err, apperr.CodeRemoteNotFound) {
			return true
		}
		s.Log.Debug("could not check pending droplet action",
			zap.Int64("do_id", row.DOID), zap.Int64("action_id", *row.PendingActionID), zap.Error(err))
		return false
	}
	return act.Status == digitalocean.ActionCompleted || act.Status == digitalocean.ActionErrored
}

func (s *Service) row(ctx context.Context, db *gorm.DB, ownerID, doID int64) (*models.Droplet, error) {
	var row models.Droplet
	err := db.WithContext(ctx).Where("user_id = ? AND do_id = ?", ownerID, doID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(doID)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to load droplet")
	}
	return &row, nil
}
