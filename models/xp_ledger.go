package models

import "time"

// XPLedgerEntry is the append-only record behind every XP mutation.
// Never updated or deleted. The unique idempotency key is the only
// dedup mechanism under at-least-once delivery: redelivering the grant
// that produced an entry hits the key and becomes a no-op.
type XPLedgerEntry struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID         string    `gorm:"not null;index" json:"user_id"`
	Amount         int64     `gorm:"not null" json:"amount"`
	Source         string    `gorm:"type:varchar(32);not null" json:"source"` // badge, streak, block, admin
	SourceID       string    `gorm:"index" json:"source_id"`
	Description    string    `json:"description"`
	IdempotencyKey string    `gorm:"uniqueIndex;not null" json:"idempotency_key"` // e.g., "badge:first_share:<user_id>"
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}
