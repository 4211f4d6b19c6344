package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"pool-gamification-system/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Publisher is the slice of the redis client the emitter needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// NotificationService persists notification rows and fans them out on
// the pub/sub channels. Durable first: the row always commits before
// the publish, and a failed publish is logged, never propagated.
type NotificationService struct {
	DB     *gorm.DB
	PubSub Publisher
}

func NewNotificationService(db *gorm.DB, pubsub Publisher) *NotificationService {
	return &NotificationService{DB: db, PubSub: pubsub}
}

// UserChannel is the per-user logical publish channel.
func UserChannel(userID string) string {
	return "notifications:user:" + userID
}

// Emit persists the notification and publishes a compact JSON payload
// on the user's channel. Personal notifications travel ONLY there: the
// coarse events:* channels are reserved for genuinely broadcast
// producers, so a badge or level-up never leaks to other users and the
// owner's sessions see it exactly once. Returns the stored
// notification's ID.
func (s *NotificationService) Emit(userID string, ntype models.NotificationType, subtype, title, description, action string) (string, error) {
	n := models.Notification{
		UserID:      userID,
		Type:        ntype,
		Subtype:     subtype,
		Title:       title,
		Description: description,
		Action:      action,
	}
	if err := s.DB.Create(&n).Error; err != nil {
		return "", fmt.Errorf("failed to persist notification: %w", err)
	}

	s.publish(&n)
	return n.ID, nil
}

func (s *NotificationService) publish(n *models.Notification) {
	if s.PubSub == nil {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"id":          n.ID,
		"user_id":     n.UserID,
		"type":        n.Type,
		"subtype":     n.Subtype,
		"title":       n.Title,
		"description": n.Description,
		"action":      n.Action,
		"created_at":  n.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("❌ Failed to marshal notification %s: %v", n.ID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Best-effort: the row is already durable, the user sees it on the
	// next notification list either way.
	if err := s.PubSub.Publish(ctx, UserChannel(n.UserID), payload).Err(); err != nil {
		log.Printf("⚠️  Publish failed on %s: %v", UserChannel(n.UserID), err)
	}
}

// ListForUser returns the newest notifications for a user.
func (s *NotificationService) ListForUser(userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var notifications []models.Notification
	err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error
	return notifications, err
}

// MarkRead flags a notification as read (idempotent).
func (s *NotificationService) MarkRead(userID, notificationID string) error {
	return s.DB.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("read", true).Error
}
