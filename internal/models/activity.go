package models

import (
	"time"

	"gorm.io/datatypes"
)

type Activity struct {
	ID         int64          `gorm:"primaryKey" json:"id"`
	UserID     int64          `gorm:"index" json:"user_id"`
	Action     string         `gorm:"size:100;not null" json:"action"` // e.g. "droplet_created"
	DropletID  *int64         `gorm:"index" json:"droplet_id,omitempty"`
	FirewallID *int64         `gorm:"index" json:"firewall_id,omitempty"`
	Details    datatypes.JSON `gorm:"type:json" json:"details"`
	IP         string         `gorm:"size:64" json:"ip"`
	UserAgent  string         `gorm:"size:255" json:"user_agent"`
	CreatedAt  time.Time      `json:"created_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
