package services

import (
	"fmt"
	"testing"

	"pool-gamification-system/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory sqlite database with the full
// schema migrated. TranslateError is on, matching production, so
// unique-constraint hits surface as gorm.ErrDuplicatedKey.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(
		&models.BadgeDefinition{},
		&models.UserBadge{},
		&models.BadgeStat{},
		&models.UserGamification{},
		&models.XPLedgerEntry{},
		&models.StreakWeek{},
		&models.UserStreak{},
		&models.StreakCelebration{},
		&models.LevelCelebration{},
		&models.BlockCelebration{},
		&models.Notification{},
		&models.MinerAddress{},
	); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	return db
}

// newTestServices wires the reward stack on a fresh database with the
// stock badge catalog loaded. The notifier persists rows but has no
// pub/sub transport attached.
func newTestServices(t *testing.T) (*gorm.DB, *XPService, *BadgeService, *StreakService) {
	t.Helper()

	db := newTestDB(t)
	if err := SeedBadges(db); err != nil {
		t.Fatalf("failed to seed badges: %v", err)
	}

	notifier := NewNotificationService(db, nil)
	xp := NewXPService(db, notifier)
	badges := NewBadgeService(db, xp, notifier)
	if err := badges.Reload(); err != nil {
		t.Fatalf("failed to load badge cache: %v", err)
	}
	streaks := NewStreakService(db, badges, notifier)
	return db, xp, badges, streaks
}
