package models

import "time"

const (
	TransactionDropletCreate = "droplet_create"
	TransactionTopUp         = "top_up"
	TransactionAdjustment    = "adjustment"

	TransactionCompleted = "COMPLETED"
)

// Transaction is an append-only ledger entry. Debits are negative.
type Transaction struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	UserID      int64     `gorm:"index;not null" json:"user_id"`
	DropletID   *int64    `gorm:"index" json:"droplet_id,omitempty"`
	Amount      float64   `gorm:"type:decimal(12,2);not null" json:"amount"`
	Type        string    `gorm:"size:32;not null" json:"type"`
	Status      string    `gorm:"size:16;not null" json:"status"`
	Description string    `gorm:"size:255" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
