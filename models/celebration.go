package models

import "time"

// Celebrations are deferred-delivery records of reward moments: created
// whenever a reward mutation fires, pushed live if the user is
// connected, otherwise waiting for their next session. The client acks
// them explicitly; acked rows are kept (celebrated=true) for audit.

// LevelCelebration marks a level-up.
type LevelCelebration struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID     string `gorm:"not null;index" json:"user_id"`
	Level      int    `gorm:"not null" json:"level"`
	LevelTitle string `gorm:"type:varchar(64)" json:"level_title"`

	Celebrated   bool       `gorm:"default:false;index" json:"celebrated"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	CelebratedAt *time.Time `json:"celebrated_at,omitempty"`
}

// StreakCelebration marks a weekly-streak milestone. The unique
// (user_id, streak_weeks) index guarantees each milestone celebrates
// at most once, no matter how often the boundary job reruns.
type StreakCelebration struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string `gorm:"not null;uniqueIndex:ux_user_streak_weeks" json:"user_id"`
	StreakWeeks int    `gorm:"not null;uniqueIndex:ux_user_streak_weeks" json:"streak_weeks"`

	Celebrated   bool       `gorm:"default:false;index" json:"celebrated"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	CelebratedAt *time.Time `json:"celebrated_at,omitempty"`
}

// BlockCelebration marks a found block.
type BlockCelebration struct {
	ID          string  `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string  `gorm:"not null;index" json:"user_id"`
	BlockHeight int64   `gorm:"not null" json:"block_height"`
	Reward      float64 `json:"reward,omitempty"`

	Celebrated   bool       `gorm:"default:false;index" json:"celebrated"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	CelebratedAt *time.Time `json:"celebrated_at,omitempty"`
}
