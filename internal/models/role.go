package models

import "time"

// Role keeps its permission set as JSON-encoded text; see package permissions.
type Role struct {
	ID          int64  `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"uniqueIndex;size:100;not null" json:"name"`
	Description string `gorm:"size:255" json:"description"`
	Permissions string `gorm:"type:text" json:"-"`
	// MaxServers caps live droplets per user holding the role; 0 means no cap.
	MaxServers int       `gorm:"default:0" json:"max_servers"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Users []User `gorm:"foreignKey:RoleID" json:"-"`
}
