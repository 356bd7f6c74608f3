package droplets

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"droplet_console/internal/apperr"
	"droplet_console/internal/digitalocean"
	"droplet_console/internal/models"
)

// pendingFor is the status a row takes once the action is accepted.
var pendingFor = map[string]models.DropletStatus{
	digitalocean.ActionPowerOn:  models.DropletPendingActive,
	digitalocean.ActionPowerOff: models.DropletPendingOff,
	digitalocean.ActionReboot:   "",
}

// PowerAction starts a lifecycle action on one of the owner's droplets. The
// mirror moves to a pending status as soon as the provider accepts; the next
// read settles it.
func (s *Service) PowerAction(ctx context.Context, ownerID, doID int64, action string) (*View, *digitalocean.Action, error) {
	pending, ok := pendingFor[action]
	if !ok {
		return nil, nil, apperr.Newf(apperr.CodeValidation,
			"unknown action %q, expected power_on, power_off or reboot", action)
	}

	row, err := s.row(ctx, s.DB, ownerID, doID)
	if err != nil {
		return nil, nil, err
	}

	act, err := s.Remote.DropletAction(ctx, doID, action)
	if err != nil {
		return nil, nil, err
	}

	if pending != "" {
		since := s.now()
		err := s.DB.WithContext(ctx).Model(&models.Droplet{}).Where("id = ?", row.ID).Updates(map[string]any{
			"status":            pending,
			"pending_action_id": act.ID,
			"pending_since":     since,
		}).Error
		if err != nil {
			return nil, nil, apperr.Wrap(err, apperr.CodeInternal, "failed to update droplet status")
		}
		row.Status, row.PendingActionID, row.PendingSince = pending, &act.ID, &since
	}

	s.Log.Info("droplet action accepted",
		zap.Int64("do_id", doID), zap.String("action", action), zap.String("status", string(row.Status)))
	v := cachedView(row)
	return &v, act, nil
}

// Delete destroys the droplet remotely, then archives and soft deletes the
// mirror row and drops its firewall memberships. A droplet the provider no
// longer knows counts as already destroyed.
func (s *Service) Delete(ctx context.Context, ownerID, doID int64) error {
	row, err := s.row(ctx, s.DB, ownerID, doID)
	if err != nil {
		return err
	}

	if err := s.Remote.DeleteDroplet(ctx, doID); err != nil {
		if !apperr.Is(err, apperr.CodeRemoteNotFound) {
			return err
		}
		s.Log.Info("droplet already gone remotely", zap.Int64("do_id", doID))
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(row).Update("status", models.DropletArchived).Error; err != nil {
			return err
		}
		if err := tx.Where("droplet_id = ?", row.ID).Delete(&models.FirewallDroplet{}).Error; err != nil {
			return err
		}
		return tx.Delete(row).Error
	})
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "droplet destroyed but mirror update failed")
	}
	return nil
}
