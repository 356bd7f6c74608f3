package models

import "time"

// ServerRegion is a provider region the console sells droplets in.
// Admin-only regions are offered to the admin role alone.
type ServerRegion struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	Slug        string    `gorm:"size:64;uniqueIndex;not null" json:"slug"`
	Location    string    `gorm:"size:128;not null" json:"location"`
	IsActive    bool      `gorm:"not null" json:"is_active"`
	IsAdminOnly bool      `gorm:"not null" json:"is_admin_only"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
