package models

import (
	"time"

	"gorm.io/gorm"
)

// UserGamification is the denormalized per-user aggregate (one row per
// user, mutated by every reward operation). TotalXP must equal the sum
// of the user's XPLedgerEntry rows — eventually, checked by tests.
type UserGamification struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"`

	// Core progression
	TotalXP    int64  `gorm:"default:0" json:"total_xp"`
	Level      int    `gorm:"default:1" json:"level"`
	LevelTitle string `gorm:"type:varchar(64);default:'Nocoiner'" json:"level_title"`

	BadgesEarned int64 `gorm:"default:0" json:"badges_earned"`

	// Mining activity counters (additive / monotonic; not guarded by
	// the ledger's idempotency keys — may drift under redelivery)
	TotalShares    int64   `gorm:"default:0" json:"total_shares"`
	BestDifficulty float64 `gorm:"default:0" json:"best_difficulty"`
	BlocksFound    int64   `gorm:"default:0" json:"blocks_found"`

	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
