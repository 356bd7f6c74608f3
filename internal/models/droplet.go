package models

import (
	"time"

	"gorm.io/gorm"
)

type DropletStatus string

const (
	DropletNew      DropletStatus = "new"
	DropletActive   DropletStatus = "active"
	DropletOff      DropletStatus = "off"
	DropletArchived DropletStatus = "archived"

	// Set right after a power action is accepted remotely and cleared once
	// the provider reports the target state or the action is over.
	DropletPendingActive DropletStatus = "pending_active"
	DropletPendingOff    DropletStatus = "pending_off"
)

// Pending reports whether s is a power transition awaiting confirmation.
func (s DropletStatus) Pending() bool {
	return s == DropletPendingActive || s == DropletPendingOff
}

// Target is the settled status a pending status waits for.
func (s DropletStatus) Target() DropletStatus {
	switch s {
	case DropletPendingActive:
		return DropletActive
	case DropletPendingOff:
		return DropletOff
	}
	return s
}

// Droplet is the local mirror of a provider droplet owned by a user.
type Droplet struct {
	ID              int64         `gorm:"primaryKey"`
	DOID            int64         `gorm:"column:do_id;not null;uniqueIndex:idx_droplet_owner"`
	UserID          int64         `gorm:"not null;uniqueIndex:idx_droplet_owner;index"`
	Name            string        `gorm:"size:255;not null"`
	Status          DropletStatus `gorm:"size:32;not null;default:new"`
	IP              string        `gorm:"size:64"`
	Region          string        `gorm:"size:64"`
	Size            string        `gorm:"size:64"`
	Image           string        `gorm:"size:128"`
	OriginalPrice   float64       `gorm:"type:decimal(12,2);not null;default:0"`
	Price           float64       `gorm:"type:decimal(12,2);not null;default:0"`
	NextBillingDate *time.Time
	// PendingActionID and PendingSince describe the power action behind a
	// pending status; both are cleared when the status settles.
	PendingActionID *int64
	PendingSince    *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       gorm.DeletedAt `gorm:"index"`

	User      *User      `gorm:"foreignKey:UserID"`
	Firewalls []Firewall `gorm:"many2many:firewall_droplets;"`
}
