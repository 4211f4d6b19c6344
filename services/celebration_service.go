package services

import (
	"fmt"
	"time"

	"pool-gamification-system/models"

	"gorm.io/gorm"
)

// CelebrationService surfaces pending celebrations to reconnecting
// clients and marks them celebrated on explicit acknowledgment. Acked
// rows are kept (soft-consumed) for audit.
type CelebrationService struct {
	DB *gorm.DB
}

func NewCelebrationService(db *gorm.DB) *CelebrationService {
	return &CelebrationService{DB: db}
}

// PendingForUser returns everything the user missed while offline.
func (s *CelebrationService) PendingForUser(userID string) (map[string]interface{}, error) {
	var levels []models.LevelCelebration
	if err := s.DB.Where("user_id = ? AND celebrated = ?", userID, false).
		Order("created_at ASC").Find(&levels).Error; err != nil {
		return nil, err
	}

	var streaks []models.StreakCelebration
	if err := s.DB.Where("user_id = ? AND celebrated = ?", userID, false).
		Order("created_at ASC").Find(&streaks).Error; err != nil {
		return nil, err
	}

	var blocks []models.BlockCelebration
	if err := s.DB.Where("user_id = ? AND celebrated = ?", userID, false).
		Order("created_at ASC").Find(&blocks).Error; err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"levels":  levels,
		"streaks": streaks,
		"blocks":  blocks,
	}, nil
}

// Acknowledge marks one celebration celebrated. Idempotent: a second
// ack of the same row changes nothing.
func (s *CelebrationService) Acknowledge(userID, kind, id string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{"celebrated": true, "celebrated_at": &now}

	var result *gorm.DB
	switch kind {
	case "level":
		result = s.DB.Model(&models.LevelCelebration{}).
			Where("id = ? AND user_id = ? AND celebrated = ?", id, userID, false).
			Updates(updates)
	case "streak":
		result = s.DB.Model(&models.StreakCelebration{}).
			Where("id = ? AND user_id = ? AND celebrated = ?", id, userID, false).
			Updates(updates)
	case "block":
		result = s.DB.Model(&models.BlockCelebration{}).
			Where("id = ? AND user_id = ? AND celebrated = ?", id, userID, false).
			Updates(updates)
	default:
		return fmt.Errorf("unknown celebration kind %q", kind)
	}
	return result.Error
}
