package models

import "time"

// Notification types map onto the realtime delivery topics.
type NotificationType string

const (
	NotificationTypeMining       NotificationType = "mining"
	NotificationTypeGamification NotificationType = "gamification"
	NotificationTypeDashboard    NotificationType = "dashboard"
	NotificationTypeCompetition  NotificationType = "competition"
)

// Notification is the durable record behind every realtime push. The
// row always commits before the publish; a lost push just means the
// user sees it next time they list notifications.
type Notification struct {
	ID          string           `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string           `gorm:"not null;index" json:"user_id"`
	Type        NotificationType `gorm:"type:varchar(32);not null" json:"type"`
	Subtype     string           `gorm:"type:varchar(64)" json:"subtype"` // badge_earned, level_up, streak_milestone, block_found
	Title       string           `gorm:"not null" json:"title"`
	Description string           `json:"description"`
	Action      string           `gorm:"type:text" json:"action,omitempty"` // client deep-link, e.g. "/badges"

	Read      bool      `gorm:"default:false;index" json:"read"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
