package models

import "time"

// ServerTemplate is a sellable droplet size. Price is the provider's base
// monthly price before markup.
type ServerTemplate struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	SizeSlug  string    `gorm:"size:64;uniqueIndex;not null" json:"size_slug"`
	CPU       int       `json:"cpu"`
	RAM       int       `json:"ram"`
	Disk      int       `json:"disk"`
	Price     float64   `gorm:"type:decimal(12,2);not null" json:"price"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// All returns every model in migration order.
func All() []any {
	return []any{
		&Role{},
		&User{},
		&DigitalOceanToken{},
		&ServerTemplate{},
		&ServerRegion{},
		&Droplet{},
		&Firewall{},
		&FirewallDroplet{},
		&Transaction{},
		&Activity{},
	}
}
