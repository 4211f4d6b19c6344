package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"pool-gamification-system/models"

	"gorm.io/gorm"
)

// XPService owns the append-only XP ledger and the level state derived
// from it. Every grant is deduplicated by its idempotency key, so the
// at-least-once event pipeline can redeliver freely.
type XPService struct {
	DB       *gorm.DB
	Notifier *NotificationService
}

func NewXPService(db *gorm.DB, notifier *NotificationService) *XPService {
	return &XPService{DB: db, Notifier: notifier}
}

// GrantResult describes what a grant actually did.
type GrantResult struct {
	Granted   bool
	TotalXP   int64
	Level     LevelInfo
	LeveledUp bool
}

// Grant applies an idempotent XP grant in its own transaction and, on
// level-up, emits the realtime notification after the commit.
// Returns true iff the ledger entry was newly created.
func (s *XPService) Grant(userID string, amount int64, source, sourceID, description, idempotencyKey string) (bool, error) {
	var res *GrantResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		res, txErr = s.GrantTx(tx, userID, amount, source, sourceID, description, idempotencyKey)
		return txErr
	})
	if err != nil {
		return false, err
	}

	if res.Granted && res.LeveledUp && s.Notifier != nil {
		s.Notifier.Emit(userID, models.NotificationTypeGamification, "level_up",
			fmt.Sprintf("Level %d reached!", res.Level.Level),
			fmt.Sprintf("You are now a %s", res.Level.Title),
			"/progress")
	}
	return res.Granted, nil
}

// GrantTx is the transactional core of Grant, for callers that batch
// several reward mutations into one commit (the trigger engine).
// Level-up notifications are NOT emitted here — the caller publishes
// after its transaction commits, keeping the durable-first ordering.
func (s *XPService) GrantTx(tx *gorm.DB, userID string, amount int64, source, sourceID, description, idempotencyKey string) (*GrantResult, error) {
	if idempotencyKey == "" {
		return nil, fmt.Errorf("idempotency key is required for XP grants")
	}

	// Dedup: an existing entry under this key means the grant already
	// happened on a previous delivery.
	var existing models.XPLedgerEntry
	err := tx.Where("idempotency_key = ?", idempotencyKey).First(&existing).Error
	if err == nil {
		return &GrantResult{Granted: false}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	entry := models.XPLedgerEntry{
		UserID:         userID,
		Amount:         amount,
		Source:         source,
		SourceID:       sourceID,
		Description:    description,
		IdempotencyKey: idempotencyKey,
	}
	if err := tx.Create(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Concurrent grant won the race under the same key.
			return &GrantResult{Granted: false}, nil
		}
		return nil, err
	}

	sum, err := ensureSummary(tx, userID)
	if err != nil {
		return nil, err
	}

	priorLevel := sum.Level
	sum.TotalXP += amount
	info := ComputeLevel(sum.TotalXP)
	sum.Level = info.Level
	sum.LevelTitle = info.Title

	leveledUp := info.Level > priorLevel
	if leveledUp {
		now := time.Now().UTC()
		sum.LastLevelUpAt = &now

		celebration := models.LevelCelebration{
			UserID:     userID,
			Level:      info.Level,
			LevelTitle: info.Title,
		}
		if err := tx.Create(&celebration).Error; err != nil {
			return nil, err
		}
	}

	if err := tx.Save(sum).Error; err != nil {
		return nil, err
	}

	log.Printf("🎮 XP granted: %s +%d → total=%d, lvl=%d (%s) [key=%s]",
		userID, amount, sum.TotalXP, info.Level, source, idempotencyKey)

	return &GrantResult{
		Granted:   true,
		TotalXP:   sum.TotalXP,
		Level:     info,
		LeveledUp: leveledUp,
	}, nil
}

// ensureSummary fetches or creates the denormalized per-user summary
// row (idempotent).
func ensureSummary(tx *gorm.DB, userID string) (*models.UserGamification, error) {
	var sum models.UserGamification
	err := tx.Where("user_id = ?", userID).First(&sum).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		sum = models.UserGamification{
			UserID:     userID,
			Level:      1,
			LevelTitle: LevelTable[0].Title,
		}
		if err := tx.Create(&sum).Error; err != nil {
			return nil, err
		}
		return &sum, nil
	}
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

// GetSummary returns the summary row, creating it on first access.
func (s *XPService) GetSummary(userID string) (*models.UserGamification, error) {
	var sum *models.UserGamification
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		sum, txErr = ensureSummary(tx, userID)
		return txErr
	})
	return sum, err
}

// LedgerTotal sums the user's ledger entries. The summary's total_xp
// must converge to this value.
func (s *XPService) LedgerTotal(userID string) (int64, error) {
	var total int64
	err := s.DB.Model(&models.XPLedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}
