package models

import "time"

// DigitalOceanToken is a provider API credential. At most one row is active.
type DigitalOceanToken struct {
	ID        int64  `gorm:"primaryKey"`
	Token     string `gorm:"size:255;not null"`
	IsActive  bool   `gorm:"index;not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
