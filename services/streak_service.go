package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"pool-gamification-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Streak milestones that produce a celebration, in weeks.
var StreakMilestones = []int{1, 4, 12, 26, 52}

// graceWeeks: a break no longer than this keeps longest_streak intact
// when the current streak resets.
const graceWeeks = 2

// StreakService runs the weekly streak state machine: one StreakWeek
// row per user per ISO week, accumulated as shares arrive, finalized by
// the boundary job after the week closes.
type StreakService struct {
	DB       *gorm.DB
	Badges   *BadgeService
	Notifier *NotificationService
}

func NewStreakService(db *gorm.DB, badges *BadgeService, notifier *NotificationService) *StreakService {
	return &StreakService{DB: db, Badges: badges, Notifier: notifier}
}

// WeekKey renders the ISO-8601 week of t, e.g. "2026-W35". Weeks run
// Monday 00:00:00 UTC through Sunday 23:59:59 UTC.
func WeekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// weekStart returns the Monday 00:00:00 UTC opening t's ISO week.
func weekStart(t time.Time) time.Time {
	t = t.UTC()
	weekday := int(t.Weekday())
	if weekday == 0 { // Sunday
		weekday = 7
	}
	day := t.AddDate(0, 0, -(weekday - 1))
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}

// TouchWeekTx records one qualifying share against the event's ISO
// week as a single atomic upsert — a lost insert race cannot abort the
// surrounding transaction. Additive, so duplicate delivery drifts the
// count; the streak state machine only cares that the week is active
// at all.
func (s *StreakService) TouchWeekTx(tx *gorm.DB, userID string, ts time.Time, difficulty float64) error {
	week := models.StreakWeek{
		UserID:     userID,
		WeekKey:    WeekKey(ts),
		ShareCount: 1,
		BestDiff:   difficulty,
		IsActive:   true,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "week_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"share_count": gorm.Expr("streak_weeks.share_count + 1"),
			"best_diff":   gorm.Expr("CASE WHEN excluded.best_diff > streak_weeks.best_diff THEN excluded.best_diff ELSE streak_weeks.best_diff END"),
			"is_active":   true,
			"updated_at":  time.Now().UTC(),
		}),
	}).Create(&week).Error
}

// EvaluateWeekBoundary finalizes the ISO week that closed before now:
// active rows extend the streak, users active last cycle but silent
// this week reset. Safe to run repeatedly — extension is guarded by the
// Evaluated flag and milestone celebrations by their unique index.
func (s *StreakService) EvaluateWeekBoundary(now time.Time) error {
	closedKey := WeekKey(now.UTC().AddDate(0, 0, -7))
	log.Printf("📅 Evaluating streak week %s", closedKey)

	var weeks []models.StreakWeek
	if err := s.DB.Where("week_key = ? AND evaluated = ?", closedKey, false).Find(&weeks).Error; err != nil {
		return fmt.Errorf("failed to load streak weeks for %s: %w", closedKey, err)
	}

	extended := 0
	for _, week := range weeks {
		if err := s.evaluateActiveWeek(&week, closedKey); err != nil {
			log.Printf("❌ Streak evaluation failed for user %s: %v", week.UserID, err)
			continue
		}
		extended++
	}

	// Users with a live streak but no activity in the closed week.
	var stale []models.UserStreak
	if err := s.DB.Where("current_streak > 0 AND last_active_key <> ?", closedKey).Find(&stale).Error; err != nil {
		return fmt.Errorf("failed to load stale streaks: %w", err)
	}
	broken := 0
	for _, streak := range stale {
		if err := s.breakStreak(&streak, closedKey); err != nil {
			log.Printf("❌ Streak reset failed for user %s: %v", streak.UserID, err)
			continue
		}
		broken++
	}

	log.Printf("✅ Streak boundary done: %d extended, %d broken (%s)", extended, broken, closedKey)
	return nil
}

func (s *StreakService) evaluateActiveWeek(week *models.StreakWeek, closedKey string) error {
	var milestone int
	var streakWeeks int

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		// Re-check under the transaction; a competing evaluator may have
		// finalized this row already.
		var fresh models.StreakWeek
		if err := tx.Where("id = ?", week.ID).First(&fresh).Error; err != nil {
			return err
		}
		if fresh.Evaluated {
			return nil
		}

		streak, err := ensureStreak(tx, week.UserID)
		if err != nil {
			return err
		}

		if fresh.IsActive {
			streak.CurrentStreak++
			streak.LastActiveKey = closedKey
			if streak.CurrentStreak > streak.LongestStreak {
				streak.LongestStreak = streak.CurrentStreak
			}
			streakWeeks = streak.CurrentStreak
			for _, m := range StreakMilestones {
				if streak.CurrentStreak == m {
					milestone = m
				}
			}
		}

		if err := tx.Save(streak).Error; err != nil {
			return err
		}

		fresh.Evaluated = true
		return tx.Save(&fresh).Error
	})
	if err != nil {
		return err
	}

	if milestone > 0 {
		s.celebrateMilestone(week.UserID, milestone)
	}
	if streakWeeks > 0 && s.Badges != nil {
		for _, badge := range s.Badges.badgesByKind(models.TriggerStreak) {
			if float64(streakWeeks) >= badge.Trigger.Threshold {
				if _, err := s.Badges.Award(week.UserID, badge.Def.Slug, ""); err != nil {
					log.Printf("⚠️  Streak badge award failed (%s → %s): %v", badge.Def.Slug, week.UserID, err)
				}
			}
		}
	}
	return nil
}

// celebrateMilestone creates the milestone celebration exactly once per
// (user, weeks): the unique index swallows reruns.
func (s *StreakService) celebrateMilestone(userID string, weeks int) {
	celebration := models.StreakCelebration{UserID: userID, StreakWeeks: weeks}
	if err := s.DB.Create(&celebration).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return // already celebrated on an earlier run
		}
		log.Printf("❌ Failed to create streak celebration (%s, %d): %v", userID, weeks, err)
		return
	}

	if s.Notifier != nil {
		s.Notifier.Emit(userID, models.NotificationTypeGamification, "streak_milestone",
			fmt.Sprintf("%d-week streak!", weeks),
			fmt.Sprintf("You've mined every week for %d week(s) straight", weeks),
			"/streak")
	}
}

func (s *StreakService) breakStreak(streak *models.UserStreak, closedKey string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var fresh models.UserStreak
		if err := tx.Where("id = ?", streak.ID).First(&fresh).Error; err != nil {
			return err
		}
		if fresh.CurrentStreak == 0 || fresh.LastActiveKey == closedKey {
			return nil
		}

		// Long silence forfeits the longest-streak record too.
		if fresh.LastActiveKey != "" && weeksBetween(fresh.LastActiveKey, closedKey) > graceWeeks {
			fresh.LongestStreak = 0
		}

		now := time.Now().UTC()
		fresh.CurrentStreak = 0
		fresh.BrokenAt = &now
		return tx.Save(&fresh).Error
	})
}

// WarnAtRisk notifies users whose streak would break if the current
// week ends without a share. Run shortly before the week boundary.
func (s *StreakService) WarnAtRisk(now time.Time) error {
	currentKey := WeekKey(now)

	var streaks []models.UserStreak
	if err := s.DB.Where("current_streak > 0").Find(&streaks).Error; err != nil {
		return err
	}

	warned := 0
	for _, streak := range streaks {
		var week models.StreakWeek
		err := s.DB.Where("user_id = ? AND week_key = ? AND is_active = ?", streak.UserID, currentKey, true).
			First(&week).Error
		if err == nil {
			continue // already active this week
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if s.Notifier != nil {
			s.Notifier.Emit(streak.UserID, models.NotificationTypeGamification, "streak_at_risk",
				"Your streak is at risk!",
				fmt.Sprintf("Submit a share before Sunday to keep your %d-week streak alive", streak.CurrentStreak),
				"/streak")
		}
		warned++
	}

	log.Printf("⏰ Streak at-risk warnings sent: %d", warned)
	return nil
}

// GetStreak returns the user's streak state, creating it lazily.
func (s *StreakService) GetStreak(userID string) (*models.UserStreak, error) {
	var streak *models.UserStreak
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		streak, txErr = ensureStreak(tx, userID)
		return txErr
	})
	return streak, err
}

func ensureStreak(tx *gorm.DB, userID string) (*models.UserStreak, error) {
	var streak models.UserStreak
	err := tx.Where("user_id = ?", userID).First(&streak).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		streak = models.UserStreak{UserID: userID}
		if err := tx.Create(&streak).Error; err != nil {
			return nil, err
		}
		return &streak, nil
	}
	if err != nil {
		return nil, err
	}
	return &streak, nil
}

// weeksBetween counts whole weeks from key a to key b (a before b).
func weeksBetween(a, b string) int {
	ta, errA := parseWeekKey(a)
	tb, errB := parseWeekKey(b)
	if errA != nil || errB != nil {
		return 0
	}
	return int(tb.Sub(ta).Hours() / (24 * 7))
}

// parseWeekKey resolves "2026-W35" back to that week's Monday.
func parseWeekKey(key string) (time.Time, error) {
	var year, week int
	if _, err := fmt.Sscanf(key, "%d-W%d", &year, &week); err != nil {
		return time.Time{}, err
	}
	// Jan 4 is always inside ISO week 1.
	jan4 := time.Date(year, 1, 4, 0, 0, 0, 0, time.UTC)
	return weekStart(jan4).AddDate(0, 0, (week-1)*7), nil
}
