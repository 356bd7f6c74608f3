// Package activity records and pages through the append-only activity log.
package activity

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"droplet_console/internal/apperr"
	"droplet_console/internal/models"
)

const (
	DropletCreated      = "droplet_created"
	DropletDeleted      = "droplet_deleted"
	DropletAction       = "droplet_action"
	FirewallCreated     = "firewall_created"
	FirewallDeleted     = "firewall_deleted"
	FirewallMembers     = "firewall_members_changed"
	FirewallRules       = "firewall_rules_changed"
	CredentialUpdated   = "credential_updated"
	UserCreated         = "user_created"
	UserUpdated         = "user_updated"
	BalanceAdjusted     = "balance_adjusted"
	RoleChanged         = "role_changed"
	TemplateChanged     = "template_changed"
	RegionChanged       = "region_changed"
	UserDeleted         = "user_deleted"
	Login               = "login"
	SweepRepairedMirror = "sweep_repaired"
)

type Entry struct {
	UserID     int64
	Action     string
	DropletID  *int64
	FirewallID *int64
	Details    any
	IP         string
	UserAgent  string
}

type Recorder struct {
	DB  *gorm.DB
	Log *zap.Logger
}

func NewRecorder(db *gorm.DB, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{DB: db, Log: log}
}

// Record appends an entry. The log is secondary to the operation it
// describes, so a failed write is logged and otherwise ignored.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	row := models.Activity{
		UserID:     e.UserID,
		Action:     e.Action,
		DropletID:  e.DropletID,
		FirewallID: e.FirewallID,
		IP:         e.IP,
		UserAgent:  truncate(e.UserAgent, 255),
	}
	if e.Details != nil {
		if b, err := json.Marshal(e.Details); err == nil {
			row.Details = datatypes.JSON(b)
		}
	}
	if err := r.DB.WithContext(ctx).Create(&row).Error; err != nil {
		r.Log.Warn("failed to record activity",
			zap.String("action", e.Action), zap.Int64("user_id", e.UserID), zap.Error(err))
	}
}

type Query struct {
	// UserID limits the page to one actor; zero means everyone.
	UserID  int64
	Limit   int
	AfterID int64
	Search  string
}

type Page struct {
	Items      []models.Activity `json:"activity"`
	NextCursor *int64            `json:"next_cursor"`
}

const (
	defaultLimit = 20
	maxLimit     = 100
)

// List returns entries newest first, keyset-paginated on id.
func (r *Recorder) List(ctx context.Context, q Query) (Page, error) {
	limit := q.Limit
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}

	query := r.DB.WithContext(ctx).Model(&models.Activity{}).Preload("User").Order("id DESC")
	if q.UserID > 0 {
		query = query.Where("user_id = ?", q.UserID)
	}
	if q.AfterID > 0 {
		query = query.Where("id < ?", q.AfterID)
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		like := "%" + s + "%"
		query = query.Where("(action LIKE ? OR ip LIKE ? OR user_agent LIKE ?)", like, like, like)
	}

	var items []models.Activity
	if err := query.Limit(limit + 1).Find(&items).Error; err != nil {
		return Page{}, apperr.Wrap(err, apperr.CodeInternal, "failed to load activity")
	}

	page := Page{Items: items}
	if len(items) > limit {
		next := items[limit-1].ID
		page.Items = items[:limit]
		page.NextCursor = &next
	}
	return page, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
