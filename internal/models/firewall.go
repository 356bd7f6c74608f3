package models

import (
	"time"

	"gorm.io/datatypes"
)

// Firewall mirrors a provider firewall. Rules are stored in the provider's
// wire shape.
type Firewall struct {
	ID            int64          `gorm:"primaryKey"`
	DOID          string         `gorm:"column:do_id;size:64;uniqueIndex;not null"`
	UserID        int64          `gorm:"index"`
	Name          string         `gorm:"size:255;not null"`
	Status        string         `gorm:"size:32"`
	InboundRules  datatypes.JSON `gorm:"type:json"`
	OutboundRules datatypes.JSON `gorm:"type:json"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Droplets []Droplet `gorm:"many2many:firewall_droplets;"`
}

// FirewallDroplet is the firewall membership join row.
type FirewallDroplet struct {
	FirewallID int64 `gorm:"primaryKey"`
	DropletID  int64 `gorm:"primaryKey"`
}
