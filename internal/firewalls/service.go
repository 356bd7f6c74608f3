// Package firewalls manages provider firewalls on behalf of console users and
// mirrors their rules and droplet memberships locally.
package firewalls

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"droplet_console/internal/apperr"
	"droplet_console/internal/digitalocean"
	"droplet_console/internal/models"
)

type Provider interface {
	ListFirewalls(ctx context.Context) ([]digitalocean.Firewall, error)
	GetFirewall(ctx context.Context, id string) (*digitalocean.Firewall, error)
	CreateFirewall(ctx context.Context, fw digitalocean.Firewall) (*digitalocean.Firewall, error)
	DeleteFirewall(ctx context.Context, id string) error
	AddDropletsToFirewall(ctx context.Context, id string, dropletIDs []int64) error
	RemoveDropletsFromFirewall(ctx context.Context, id string, dropletIDs []int64) error
	AddRules(ctx context.Context, id string, inbound []digitalocean.InboundRule, outbound []digitalocean.OutboundRule) error
	RemoveRules(ctx context.Context, id string, inbound []digitalocean.InboundRule, outbound []digitalocean.OutboundRule) error
}

type Service struct {
	DB     *gorm.DB
	Remote Provider
	Log    *zap.Logger
}

func NewService(db *gorm.DB, remote Provider, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{DB: db, Remote: remote, Log: log}
}

// View is a firewall as returned to clients. Live is false when it was built
// from the local mirror.
type View struct {
	ID            string                      `json:"id"`
	Name          string                      `json:"name"`
	Status        string                      `json:"status"`
	InboundRules  []digitalocean.InboundRule  `json:"inbound_rules"`
	OutboundRules []digitalocean.OutboundRule `json:"outbound_rules"`
	DropletIDs    []int64                     `json:"droplet_ids"`
	Live          bool                        `json:"live"`
}

func liveView(fw digitalocean.Firewall) View {
	v := View{
		ID:            fw.ID,
		Name:          fw.Name,
		Status:        fw.Status,
		InboundRules:  fw.InboundRules,
		OutboundRules: fw.OutboundRules,
		DropletIDs:    fw.DropletIDs,
		Live:          true,
	}
	if v.DropletIDs == nil {
		v.DropletIDs = []int64{}
	}
	return v
}

func cachedView(row *models.Firewall) View {
	v := View{ID: row.DOID, Name: row.Name, Status: row.Status, DropletIDs: []int64{}}
	_ = json.Unmarshal(row.InboundRules, &v.InboundRules)
	_ = json.Unmarshal(row.OutboundRules, &v.OutboundRules)
	for _, d := range row.Droplets {
		v.DropletIDs = append(v.DropletIDs, d.DOID)
	}
	return v
}

type CreateInput struct {
	Name       string              `json:"name"`
	Inbound    []digitalocean.Rule `json:"inbound_rules"`
	Outbound   []digitalocean.Rule `json:"outbound_rules"`
	DropletIDs []int64             `json:"droplet_ids"`
}

// ListForOwner returns the owner's firewalls, live when the provider answers
// and from the mirror otherwise.
func (s *Service) ListForOwner(ctx context.Context, ownerID int64) ([]View, error) {
	var rows []models.Firewall
	err := s.DB.WithContext(ctx).Preload("Droplets").Where("user_id = ?", ownerID).Order("id").Find(&rows).Error
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to load firewalls")
	}
	views := make([]View, 0, len(rows))
	if len(rows) == 0 {
		return views, nil
	}

	remote, err := s.Remote.ListFirewalls(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.Log.Warn("serving firewalls from local mirror", zap.Int64("user_id", ownerID), zap.Error(err))
	}
	live := make(map[string]digitalocean.Firewall, len(remote))
	for _, fw := range remote {
		live[fw.ID] = fw
	}
	for i := range rows {
		if fw, ok := live[rows[i].DOID]; ok {
			views = append(views, liveView(fw))
			continue
		}
		views = append(views, cachedView(&rows[i]))
	}
	return views, nil
}

func (s *Service) GetForOwner(ctx context.Context, ownerID int64, id string) (*View, error) {
	row, err := s.row(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	fw, err := s.Remote.GetFirewall(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.CodeRemoteNotFound) || ctx.Err() != nil {
			return nil, err
		}
		s.Log.Warn("serving firewall from local mirror", zap.String("firewall", id), zap.Error(err))
		v := cachedView(row)
		return &v, nil
	}
	v := liveView(*fw)
	return &v, nil
}

// Create validates the rules, creates the firewall remotely and mirrors it
// with memberships for the owner's droplets.
func (s *Service) Create(ctx context.Context, ownerID int64, in CreateInput) (*View, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, apperr.New(apperr.CodeValidation, "name is required")
	}
	if len(in.Inbound)+len(in.Outbound) == 0 {
		return nil, apperr.New(apperr.CodeValidation, "at least one inbound or outbound rule is required")
	}
	inbound, outbound, err := digitalocean.BuildRules(in.Inbound, in.Outbound)
	if err != nil {
		return nil, err
	}
	members, err := s.ownedDroplets(ctx, ownerID, in.DropletIDs)
	if err != nil {
		return nil, err
	}

	created, err := s.Remote.CreateFirewall(ctx, digitalocean.Firewall{
		Name:          in.Name,
		InboundRules:  inbound,
		OutboundRules: outbound,
		DropletIDs:    in.DropletIDs,
	})
	if err != nil {
		return nil, err
	}

	row := models.Firewall{
		DOID:          created.ID,
		UserID:        ownerID,
		Name:          created.Name,
		Status:        created.Status,
		InboundRules:  encode(created.InboundRules),
		OutboundRules: encode(created.OutboundRules),
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return link(tx, row.ID, members)
	})
	if err != nil {
		s.compensate(ctx, created.ID, err)
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to record firewall")
	}

	v := liveView(*created)
	return &v, nil
}

// compensate removes a firewall whose mirror row could not be written, so
// no remote firewall is left without an owner.
func (s *Service) compensate(ctx context.Context, id string, cause error) {
	err := s.Remote.DeleteFirewall(context.WithoutCancel(ctx), id)
	if err != nil && !apperr.Is(err, apperr.CodeRemoteNotFound) {
		s.Log.Error("failed to roll back firewall after local write error",
			zap.String("firewall", id), zap.NamedError("cause", cause), zap.Error(err))
		return
	}
	s.Log.Warn("rolled back firewall after local write error",
		zap.String("firewall", id), zap.Error(cause))
}

// Delete removes the firewall remotely, then its mirror and memberships.
func (s *Service) Delete(ctx context.Context, ownerID int64, id string) error {
	row, err := s.row(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.Remote.DeleteFirewall(ctx, id); err != nil && !apperr.Is(err, apperr.CodeRemoteNotFound) {
		return err
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("firewall_id = ?", row.ID).Delete(&models.FirewallDroplet{}).Error; err != nil {
			return err
		}
		return tx.Delete(row).Error
	})
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "firewall deleted but mirror update failed")
	}
	return nil
}

// AddMembers attaches droplets (by provider id) to the firewall.
func (s *Service) AddMembers(ctx context.Context, ownerID int64, id string, dropletIDs []int64) error {
	row, members, err := s.memberChange(ctx, ownerID, id, dropletIDs)
	if err != nil {
		return err
	}
	if err := s.Remote.AddDropletsToFirewall(ctx, id, dropletIDs); err != nil {
		return err
	}
	if err := link(s.DB.WithContext(ctx), row.ID, members); err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "droplets attached but membership could not be recorded")
	}
	return nil
}

// RemoveMembers detaches droplets (by provider id) from the firewall.
func (s *Service) RemoveMembers(ctx context.Context, ownerID int64, id string, dropletIDs []int64) error {
	row, members, err := s.memberChange(ctx, ownerID, id, dropletIDs)
	if err != nil {
		return err
	}
	if err := s.Remote.RemoveDropletsFromFirewall(ctx, id, dropletIDs); err != nil {
		return err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	err = s.DB.WithContext(ctx).
		Where("firewall_id = ? AND droplet_id IN ?", row.ID, ids).
		Delete(&models.FirewallDroplet{}).Error
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "droplets detached but membership could not be recorded")
	}
	return nil
}

func (s *Service) AddRules(ctx context.Context, ownerID int64, id string, inbound, outbound []digitalocean.Rule) (*View, error) {
	return s.changeRules(ctx, ownerID, id, inbound, outbound, s.Remote.AddRules)
}

func (s *Service) RemoveRules(ctx context.Context, ownerID int64, id string, inbound, outbound []digitalocean.Rule) (*View, error) {
	return s.changeRules(ctx, ownerID, id, inbound, outbound, s.Remote.RemoveRules)
}

type rulesCall func(ctx context.Context, id string, in []digitalocean.InboundRule, out []digitalocean.OutboundRule) error

// changeRules applies a rule change remotely, then re-reads the firewall and
// stores the provider's rule set as the mirror.
func (s *Service) changeRules(ctx context.Context, ownerID int64, id string, inbound, outbound []digitalocean.Rule, call rulesCall) (*View, error) {
	if len(inbound)+len(outbound) == 0 {
		return nil, apperr.New(apperr.CodeValidation, "no rules given")
	}
	in, out, err := digitalocean.BuildRules(inbound, outbound)
	if err != nil {
		return nil, err
	}
	row, err := s.row(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := call(ctx, id, in, out); err != nil {
		return nil, err
	}

	fw, err := s.Remote.GetFirewall(ctx, id)
	if err != nil {
		return nil, err
	}
	err = s.DB.WithContext(ctx).Model(row).Updates(map[string]any{
		"status":         fw.Status,
		"inbound_rules":  encode(fw.InboundRules),
		"outbound_rules": encode(fw.OutboundRules),
	}).Error
	if err != nil {
		s.Log.Warn("failed to mirror firewall rules", zap.String("firewall", id), zap.Error(err))
	}
	v := liveView(*fw)
	return &v, nil
}

func (s *Service) memberChange(ctx context.Context, ownerID int64, id string, dropletIDs []int64) (*models.Firewall, []models.Droplet, error) {
	if len(dropletIDs) == 0 {
		return nil, nil, apperr.New(apperr.CodeValidation, "droplet_ids must not be empty")
	}
	row, err := s.row(ctx, ownerID, id)
	if err != nil {
		return nil, nil, err
	}
	members, err := s.ownedDroplets(ctx, ownerID, dropletIDs)
	if err != nil {
		return nil, nil, err
	}
	return row, members, nil
}

func (s *Service) row(ctx context.Context, ownerID int64, id string) (*models.Firewall, error) {
	var row models.Firewall
	err := s.DB.WithContext(ctx).Preload("Droplets").Where("do_id = ? AND user_id = ?", id, ownerID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Newf(apperr.CodeNotFound, "firewall %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to load firewall")
	}
	return &row, nil
}

// ownedDroplets resolves provider droplet ids to the owner's mirror rows and
// rejects ids the owner does not hold.
func (s *Service) ownedDroplets(ctx context.Context, ownerID int64, doIDs []int64) ([]models.Droplet, error) {
	if len(doIDs) == 0 {
		return nil, nil
	}
	var rows []models.Droplet
	if err := s.DB.WithContext(ctx).Where("user_id = ? AND do_id IN ?", ownerID, doIDs).Find(&rows).Error; err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to load droplets")
	}
	owned := make(map[int64]bool, len(rows))
	for _, r := range rows {
		owned[r.DOID] = true
	}
	for _, id := range doIDs {
		if !owned[id] {
			return nil, apperr.Newf(apperr.CodeValidation, "droplet %d does not belong to you", id)
		}
	}
	return rows, nil
}

func link(db *gorm.DB, firewallID int64, members []models.Droplet) error {
	if len(members) == 0 {
		return nil
	}
	joins := make([]models.FirewallDroplet, 0, len(members))
	for _, m := range members {
		joins = append(joins, models.FirewallDroplet{FirewallID: firewallID, DropletID: m.ID})
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&joins).Error
}

func encode(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(b)
}
