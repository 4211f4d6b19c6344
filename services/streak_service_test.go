package services

import (
	"testing"
	"time"

	"pool-gamification-system/models"

	"gorm.io/gorm"
)

func TestWeekKey(t *testing.T) {
	cases := []struct {
		when time.Time
		want string
	}{
		// Monday open through Sunday close of ISO week 35, then the
		// next Monday.
		{time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), "2026-W35"},
		{time.Date(2026, 8, 30, 23, 59, 59, 0, time.UTC), "2026-W35"},
		{time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), "2026-W36"},
		{time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), "2026-W01"},
		// Jan 1 2027 is a Friday, still ISO week 53 of 2026.
		{time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), "2026-W53"},
	}
	for _, tc := range cases {
		if got := WeekKey(tc.when); got != tc.want {
			t.Errorf("WeekKey(%s) = %s, want %s", tc.when, got, tc.want)
		}
	}
}

func TestWeekKeyRoundTrip(t *testing.T) {
	monday := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	key := WeekKey(monday)
	parsed, err := parseWeekKey(key)
	if err != nil {
		t.Fatalf("parseWeekKey(%s) failed: %v", key, err)
	}
	if !parsed.Equal(monday) {
		t.Errorf("round trip gave %s, want %s", parsed, monday)
	}
}

func TestWeeksBetween(t *testing.T) {
	if got := weeksBetween("2026-W30", "2026-W35"); got != 5 {
		t.Errorf("weeksBetween W30..W35 = %d, want 5", got)
	}
	if got := weeksBetween("2026-W35", "2026-W35"); got != 0 {
		t.Errorf("weeksBetween same week = %d, want 0", got)
	}
}

// touchWeek records a share in the week containing ts.
func touchWeek(t *testing.T, db *gorm.DB, streaks *StreakService, userID string, ts time.Time) {
	t.Helper()
	err := db.Transaction(func(tx *gorm.DB) error {
		return streaks.TouchWeekTx(tx, userID, ts, 100)
	})
	if err != nil {
		t.Fatalf("TouchWeekTx failed: %v", err)
	}
}

func TestTouchWeekAccumulates(t *testing.T) {
	db, _, _, streaks := newTestServices(t)

	ts := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	touchWeek(t, db, streaks, "user-1", ts)
	touchWeek(t, db, streaks, "user-1", ts.Add(time.Hour))

	var week models.StreakWeek
	if err := db.Where("user_id = ? AND week_key = ?", "user-1", "2026-W35").First(&week).Error; err != nil {
		t.Fatalf("week row missing: %v", err)
	}
	if week.ShareCount != 2 {
		t.Errorf("expected share_count 2, got %d", week.ShareCount)
	}
	if !week.IsActive {
		t.Error("expected week to be active")
	}
}

func TestTouchWeekUpsertInOneTransaction(t *testing.T) {
	db, _, _, streaks := newTestServices(t)

	// Both the insert and the follow-up increment run as single upsert
	// statements, so they compose inside one transaction — nothing can
	// abort it halfway.
	ts := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := streaks.TouchWeekTx(tx, "user-1", ts, 100); err != nil {
			return err
		}
		return streaks.TouchWeekTx(tx, "user-1", ts, 300)
	})
	if err != nil {
		t.Fatalf("upsert pair failed: %v", err)
	}

	var week models.StreakWeek
	if err := db.Where("user_id = ? AND week_key = ?", "user-1", "2026-W35").First(&week).Error; err != nil {
		t.Fatalf("week row missing: %v", err)
	}
	if week.ShareCount != 2 {
		t.Errorf("expected share_count 2, got %d", week.ShareCount)
	}
	if week.BestDiff != 300 {
		t.Errorf("expected best_diff 300, got %f", week.BestDiff)
	}
}

func TestTouchWeekBestDiffNeverRegresses(t *testing.T) {
	db, _, _, streaks := newTestServices(t)

	ts := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	for _, diff := range []float64{200, 50, 150} {
		err := db.Transaction(func(tx *gorm.DB) error {
			return streaks.TouchWeekTx(tx, "user-1", ts, diff)
		})
		if err != nil {
			t.Fatalf("TouchWeekTx(%f) failed: %v", diff, err)
		}
	}

	var week models.StreakWeek
	if err := db.Where("user_id = ? AND week_key = ?", "user-1", "2026-W35").First(&week).Error; err != nil {
		t.Fatalf("week row missing: %v", err)
	}
	if week.ShareCount != 3 {
		t.Errorf("expected share_count 3, got %d", week.ShareCount)
	}
	if week.BestDiff != 200 {
		t.Errorf("best_diff regressed: got %f, want 200", week.BestDiff)
	}
}

func TestEvaluateWeekBoundaryExtendsStreak(t *testing.T) {
	db, _, _, streaks := newTestServices(t)

	// Activity in W35; evaluate from inside W36.
	touchWeek(t, db, streaks, "user-1", time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))
	boundary := time.Date(2026, 9, 1, 0, 5, 0, 0, time.UTC)

	if err := streaks.EvaluateWeekBoundary(boundary); err != nil {
		t.Fatalf("EvaluateWeekBoundary failed: %v", err)
	}

	streak, err := streaks.GetStreak("user-1")
	if err != nil {
		t.Fatalf("GetStreak failed: %v", err)
	}
	if streak.CurrentStreak != 1 || streak.LongestStreak != 1 {
		t.Fatalf("expected streak 1/1, got %d/%d", streak.CurrentStreak, streak.LongestStreak)
	}
	if streak.LastActiveKey != "2026-W35" {
		t.Errorf("expected last_active_key 2026-W35, got %s", streak.LastActiveKey)
	}

	// The first week is a milestone.
	var celebrations []models.StreakCelebration
	db.Where("user_id = ?", "user-1").Find(&celebrations)
	if len(celebrations) != 1 || celebrations[0].StreakWeeks != 1 {
		t.Fatalf("expected one 1-week celebration, got %+v", celebrations)
	}
}

func TestEvaluateWeekBoundaryRerunIsIdempotent(t *testing.T) {
	db, _, _, streaks := newTestServices(t)

	touchWeek(t, db, streaks, "user-1", time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))
	boundary := time.Date(2026, 9, 1, 0, 5, 0, 0, time.UTC)

	if err := streaks.EvaluateWeekBoundary(boundary); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if err := streaks.EvaluateWeekBoundary(boundary); err != nil {
		t.Fatalf("rerun failed: %v", err)
	}

	streak, _ := streaks.GetStreak("user-1")
	if streak.CurrentStreak != 1 {
		t.Errorf("rerun extended the streak to %d", streak.CurrentStreak)
	}

	var celebrations []models.StreakCelebration
	db.Where("user_id = ?", "user-1").Find(&celebrations)
	if len(celebrations) != 1 {
		t.Errorf("expected one celebration after rerun, got %d", len(celebrations))
	}
}

func TestStreakBreaksWithinGrace(t *testing.T) {
	db, _, _, streaks := newTestServices(t)

	// Build a 1-week streak out of W35...
	touchWeek(t, db, streaks, "user-1", time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))
	if err := streaks.EvaluateWeekBoundary(time.Date(2026, 9, 1, 0, 5, 0, 0, time.UTC)); err != nil {
		t.Fatalf("EvaluateWeekBoundary failed: %v", err)
	}

	// ...then stay silent through W36. The W36 boundary breaks it, but a
	// 1-week gap is within grace so longest survives.
	if err := streaks.EvaluateWeekBoundary(time.Date(2026, 9, 8, 0, 5, 0, 0, time.UTC)); err != nil {
		t.Fatalf("EvaluateWeekBoundary failed: %v", err)
	}

	streak, _ := streaks.GetStreak("user-1")
	if streak.CurrentStreak != 0 {
		t.Errorf("expected broken streak, got %d", streak.CurrentStreak)
	}
	if streak.LongestStreak != 1 {
		t.Errorf("expected longest streak to survive a short gap, got %d", streak.LongestStreak)
	}
	if streak.BrokenAt == nil {
		t.Error("expected broken_at to be set")
	}
}

func TestStreakLongSilenceForfeitsLongest(t *testing.T) {
	db, _, _, streaks := newTestServices(t)

	touchWeek(t, db, streaks, "user-1", time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))
	if err := streaks.EvaluateWeekBoundary(time.Date(2026, 9, 1, 0, 5, 0, 0, time.UTC)); err != nil {
		t.Fatalf("EvaluateWeekBoundary failed: %v", err)
	}

	// Jump four weeks ahead: gap of 4 weeks > grace of 2.
	if err := streaks.EvaluateWeekBoundary(time.Date(2026, 9, 29, 0, 5, 0, 0, time.UTC)); err != nil {
		t.Fatalf("EvaluateWeekBoundary failed: %v", err)
	}

	streak, _ := streaks.GetStreak("user-1")
	if streak.CurrentStreak != 0 || streak.LongestStreak != 0 {
		t.Errorf("expected full forfeit, got current=%d longest=%d", streak.CurrentStreak, streak.LongestStreak)
	}
}

func TestWarnAtRisk(t *testing.T) {
	db, _, _, streaks := newTestServices(t)

	// An established streak with no activity this week.
	touchWeek(t, db, streaks, "user-1", time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))
	if err := streaks.EvaluateWeekBoundary(time.Date(2026, 9, 1, 0, 5, 0, 0, time.UTC)); err != nil {
		t.Fatalf("EvaluateWeekBoundary failed: %v", err)
	}

	if err := streaks.WarnAtRisk(time.Date(2026, 9, 6, 18, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("WarnAtRisk failed: %v", err)
	}

	var notifs []models.Notification
	db.Where("user_id = ? AND subtype = ?", "user-1", "streak_at_risk").Find(&notifs)
	if len(notifs) != 1 {
		t.Fatalf("expected one at-risk warning, got %d", len(notifs))
	}

	// Active this week: no warning.
	touchWeek(t, db, streaks, "user-1", time.Date(2026, 9, 6, 19, 0, 0, 0, time.UTC))
	if err := streaks.WarnAtRisk(time.Date(2026, 9, 6, 20, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("WarnAtRisk failed: %v", err)
	}
	db.Where("user_id = ? AND subtype = ?", "user-1", "streak_at_risk").Find(&notifs)
	if len(notifs) != 1 {
		t.Errorf("expected no second warning, got %d", len(notifs))
	}
}
