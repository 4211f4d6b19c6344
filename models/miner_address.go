// models/miner_address.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// MinerAddress mirrors the account service's address book: one row per
// payout address, linking raw stream payloads back to a user. Populated
// by the address sync worker; Address is the primary lookup key in the
// event path.
type MinerAddress struct {
	ID             string    `gorm:"primaryKey;type:uuid;not null" json:"id"`
	UserID         string    `gorm:"type:uuid;not null;index" json:"user_id"`
	Address        string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"address"`
	Label          string    `gorm:"type:varchar(64)" json:"label"`
	IsActive       bool      `gorm:"not null" json:"is_active"`
	BestDifficulty float64   `gorm:"default:0" json:"best_difficulty"` // personal-best watermark per address
	LastSeenAt     time.Time `json:"last_seen_at"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`

	DeletedAt gorm.DeletedAt `gorm:"index"`
}
