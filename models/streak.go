package models

import "time"

// StreakWeek: one row per user per ISO week (Monday 00:00:00 UTC
// through Sunday 23:59:59 UTC). Accumulated as shares arrive during
// the week, finalized by the weekly boundary job.
type StreakWeek struct {
	ID         string  `gorm:"primaryKey;type:uuid" json:"id"`
	UserID     string  `gorm:"not null;uniqueIndex:ux_user_week" json:"user_id"`
	WeekKey    string  `gorm:"type:varchar(10);not null;uniqueIndex:ux_user_week;index" json:"week_key"` // "2026-W35"
	ShareCount int64   `gorm:"default:0" json:"share_count"`
	BestDiff   float64 `gorm:"default:0" json:"best_diff"`
	IsActive   bool    `gorm:"default:false" json:"is_active"`
	Evaluated  bool    `gorm:"default:false;index" json:"evaluated"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UserStreak carries the running streak state the boundary job extends
// or resets.
type UserStreak struct {
	ID            string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string     `gorm:"uniqueIndex;not null" json:"user_id"`
	CurrentStreak int        `gorm:"default:0" json:"current_streak"` // consecutive active weeks
	LongestStreak int        `gorm:"default:0" json:"longest_streak"`
	LastActiveKey string     `gorm:"type:varchar(10)" json:"last_active_week"`
	BrokenAt      *time.Time `json:"broken_at,omitempty"`

	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
