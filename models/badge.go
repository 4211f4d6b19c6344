package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Badge trigger kinds. Stored as trigger_type + trigger_config (jsonb)
// and parsed into a BadgeTrigger variant when the cache loads.
const (
	TriggerShareCount     = "share_count"
	TriggerBestDifficulty = "best_difficulty"
	TriggerBlocksFound    = "blocks_found"
	TriggerEvent          = "event"
	TriggerStreak         = "streak"
)

// BadgeDefinition: static reference data, cached in memory by the
// trigger engine for the lifetime of the process.
type BadgeDefinition struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Slug        string `gorm:"uniqueIndex;not null" json:"slug"` // e.g., "first_share", "block_finder"
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	Category    string `gorm:"type:varchar(32);default:'mining'" json:"category"`
	Rarity      string `gorm:"type:varchar(16);default:'common'" json:"rarity"` // common, rare, epic, legendary
	IconURL     string `gorm:"type:text" json:"icon_url"`
	XPReward    int64  `gorm:"default:0" json:"xp_reward"`

	TriggerType   string          `gorm:"type:varchar(32);not null" json:"trigger_type"`
	TriggerConfig json.RawMessage `gorm:"type:jsonb" json:"trigger_config"` // {"threshold": N} or {"event": "name"}

	IsActive  bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// BadgeTrigger is the validated form of TriggerType + TriggerConfig.
// Loose jsonb is parsed exactly once, at cache load.
type BadgeTrigger struct {
	Kind      string
	Threshold float64 // share_count / best_difficulty / blocks_found / streak
	Event     string  // named-event triggers fired by feature APIs
}

// ParseTrigger validates the stored trigger config into a BadgeTrigger.
func (b *BadgeDefinition) ParseTrigger() (BadgeTrigger, error) {
	var cfg struct {
		Threshold float64 `json:"threshold"`
		Event     string  `json:"event"`
	}
	if len(b.TriggerConfig) > 0 {
		if err := json.Unmarshal(b.TriggerConfig, &cfg); err != nil {
			return BadgeTrigger{}, fmt.Errorf("badge %s: invalid trigger_config: %w", b.Slug, err)
		}
	}

	switch b.TriggerType {
	case TriggerShareCount, TriggerBestDifficulty, TriggerBlocksFound, TriggerStreak:
		if cfg.Threshold <= 0 {
			return BadgeTrigger{}, fmt.Errorf("badge %s: %s trigger requires a positive threshold", b.Slug, b.TriggerType)
		}
		return BadgeTrigger{Kind: b.TriggerType, Threshold: cfg.Threshold}, nil
	case TriggerEvent:
		if cfg.Event == "" {
			return BadgeTrigger{}, fmt.Errorf("badge %s: event trigger requires an event name", b.Slug)
		}
		return BadgeTrigger{Kind: TriggerEvent, Event: cfg.Event}, nil
	default:
		return BadgeTrigger{}, fmt.Errorf("badge %s: unknown trigger_type %q", b.Slug, b.TriggerType)
	}
}

// UserBadge: awarded instance. The unique (user_id, badge_id) index is
// the sole serialization point for concurrent awards.
type UserBadge struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID   string `gorm:"not null;uniqueIndex:ux_user_badge" json:"user_id"`
	BadgeID  string `gorm:"not null;uniqueIndex:ux_user_badge" json:"badge_id"`
	Metadata string `gorm:"type:jsonb" json:"metadata,omitempty"` // e.g., {"height": 840000}

	EarnedAt time.Time `gorm:"autoCreateTime" json:"earned_at"`
}

// BadgeStat: popularity counter per badge, bumped on every award.
type BadgeStat struct {
	BadgeID      string    `gorm:"primaryKey;type:uuid" json:"badge_id"`
	TimesAwarded int64     `gorm:"default:0" json:"times_awarded"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
