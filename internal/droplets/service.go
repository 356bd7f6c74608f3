// Package droplets keeps the local droplet mirror in step with DigitalOcean
// and owns the billing side of droplet creation.
package droplets

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"droplet_console/internal/apperr"
	"droplet_console/internal/digitalocean"
	"droplet_console/internal/models"
)

// ConsoleTag marks every droplet the console creates.
const ConsoleTag = "droplet-console"

const ownerTagPrefix = "console-owner-"

// OwnerTag is the provider tag that records which user a droplet was
// created for. Sweep uses it to rebuild lost mirror rows.
func OwnerTag(userID int64) string {
	return ownerTagPrefix + strconv.FormatInt(userID, 10)
}

func ownerFromTags(tags []string) (int64, bool) {
	for _, t := range tags {
		if !strings.HasPrefix(t, ownerTagPrefix) {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(t, ownerTagPrefix), 10, 64)
		if err == nil && id > 0 {
			return id, true
		}
	}
	return 0, false
}

// Provider is the subset of the DigitalOcean client the service drives.
type Provider interface {
	ListDroplets(ctx context.Context) ([]digitalocean.Droplet, error)
	ListDropletsByTag(ctx context.Context, tag string) ([]digitalocean.Droplet, error)
	GetDroplet(ctx context.Context, id int64) (*digitalocean.Droplet, error)
	CreateDroplet(ctx context.Context, req digitalocean.DropletCreateRequest) (*digitalocean.Droplet, error)
	DeleteDroplet(ctx context.Context, id int64) error
	DropletAction(ctx context.Context, id int64, actionType string) (*digitalocean.Action, error)
	GetAction(ctx context.Context, id int64) (*digitalocean.Action, error)
}

// pendingTimeout bounds how long a pending status may hold against a
// provider that reports some other settled state.
const pendingTimeout = 15 * time.Minute

type Service struct {
	DB     *gorm.DB
	Remote Provider
	Log    *zap.Logger
	Now    func() time.Time
}

func NewService(db *gorm.DB, remote Provider, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{DB: db, Remote: remote, Log: log, Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// View is a droplet as the console presents it: mirror row fields, overlaid
// with live provider fields when the provider knows the droplet.
type View struct {
	ID              int64                `json:"id"`
	DOID            int64                `json:"do_id"`
	UserID          int64                `json:"user_id"`
	Name            string               `json:"name"`
	Status          models.DropletStatus `json:"status"`
	IP              string               `json:"ip"`
	Region          string               `json:"region"`
	Size            string               `json:"size"`
	Image           string               `json:"image"`
	Memory          int                  `json:"memory,omitempty"`
	VCPUs           int                  `json:"vcpus,omitempty"`
	Disk            int                  `json:"disk,omitempty"`
	OriginalPrice   float64              `json:"original_price"`
	Price           float64              `json:"price"`
	NextBillingDate *time.Time           `json:"next_billing_date,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	// Live is false when the view was served from the mirror alone.
	Live bool `json:"live"`
}

func cachedView(row *models.Droplet) View {
	return View{
		ID:              row.ID,
		DOID:            row.DOID,
		UserID:          row.UserID,
		Name:            row.Name,
		Status:          row.Status,
		IP:              row.IP,
		Region:          row.Region,
		Size:            row.Size,
		Image:           row.Image,
		OriginalPrice:   row.OriginalPrice,
		Price:           digitalocean.CalculatePrice(row.OriginalPrice),
		NextBillingDate: row.NextBillingDate,
		CreatedAt:       row.CreatedAt,
	}
}

func mergedView(row *models.Droplet, d digitalocean.Droplet) View {
	v := cachedView(row)
	v.Live = true
	v.Name = d.Name
	v.Status = row.Status
	if ip := d.PublicIPv4(); ip != "" {
		v.IP = ip
	}
	if d.Region.Slug != "" {
		v.Region = d.Region.Slug
	}
	if d.SizeSlug != "" {
		v.Size = d.SizeSlug
	}
	if img := d.ImageRef(); img != "" {
		v.Image = img
	}
	v.Memory, v.VCPUs, v.Disk = d.Memory, d.VCPUs, d.Disk
	if !d.CreatedAt.IsZero() {
		v.CreatedAt = d.CreatedAt
	}
	return v
}

// remoteStatus maps a provider status onto the mirror's vocabulary.
func remoteStatus(s string) (models.DropletStatus, bool) {
	switch s {
	case "new":
		return models.DropletNew, true
	case "active":
		return models.DropletActive, true
	case "off":
		return models.DropletOff, true
	case "archive", "archived":
		return models.DropletArchived, true
	}
	return "", false
}

// settle decides the mirror status given what the provider reports. A
// pending status holds until the provider reaches its target, or until the
// action behind it is over, after which the provider wins.
func settle(local models.DropletStatus, remote string, actionOver bool) models.DropletStatus {
	rs, ok := remoteStatus(remote)
	if !ok {
		return local
	}
	if local.Pending() && rs != local.Target() && !actionOver {
		return local
	}
	return rs
}

func notFound(doID int64) error {
	return apperr.Newf(apperr.CodeNotFound, "droplet %d not found", doID)
}
