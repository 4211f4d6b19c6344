package services

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"pool-gamification-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// cachedBadge pairs a definition with its validated trigger.
type cachedBadge struct {
	Def     models.BadgeDefinition
	Trigger models.BadgeTrigger
}

// BadgeService owns badge awards and the in-memory snapshot of badge
// definitions. The snapshot loads once at startup (call Reload to pick
// up admin changes); definitions with an invalid trigger_config are
// skipped with a log line rather than poisoning evaluation.
type BadgeService struct {
	DB       *gorm.DB
	XP       *XPService
	Notifier *NotificationService

	mu     sync.RWMutex
	bySlug map[string]cachedBadge
	byKind map[string][]cachedBadge
}

func NewBadgeService(db *gorm.DB, xp *XPService, notifier *NotificationService) *BadgeService {
	return &BadgeService{
		DB:       db,
		XP:       xp,
		Notifier: notifier,
		bySlug:   map[string]cachedBadge{},
		byKind:   map[string][]cachedBadge{},
	}
}

// Reload replaces the badge snapshot from the database.
func (s *BadgeService) Reload() error {
	var defs []models.BadgeDefinition
	if err := s.DB.Where("is_active = ?", true).Find(&defs).Error; err != nil {
		return fmt.Errorf("failed to load badge definitions: %w", err)
	}

	bySlug := make(map[string]cachedBadge, len(defs))
	byKind := map[string][]cachedBadge{}
	skipped := 0
	for _, def := range defs {
		trigger, err := def.ParseTrigger()
		if err != nil {
			log.Printf("⚠️  Skipping badge with invalid trigger: %v", err)
			skipped++
			continue
		}
		entry := cachedBadge{Def: def, Trigger: trigger}
		bySlug[def.Slug] = entry
		byKind[trigger.Kind] = append(byKind[trigger.Kind], entry)
	}

	s.mu.Lock()
	s.bySlug = bySlug
	s.byKind = byKind
	s.mu.Unlock()

	log.Printf("🎖️  Badge cache loaded: %d active definition(s), %d skipped", len(bySlug), skipped)
	return nil
}

// badgesByKind returns the cached badges for one trigger kind.
func (s *BadgeService) badgesByKind(kind string) []cachedBadge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byKind[kind]
}

// lookup returns the cached badge for a slug.
func (s *BadgeService) lookup(slug string) (cachedBadge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bySlug[slug]
	return b, ok
}

// AwardResult describes the outcome of an award attempt.
type AwardResult struct {
	Newly bool
	Badge models.BadgeDefinition
	XP    *GrantResult
}

// Award grants a badge in its own transaction and emits the earned
// notification after commit. Returns true iff newly awarded; an
// already-owned badge (or a lost insert race) is false, not an error.
func (s *BadgeService) Award(userID, slug, metadata string) (bool, error) {
	var res *AwardResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		res, txErr = s.AwardTx(tx, userID, slug, metadata)
		return txErr
	})
	if err != nil {
		return false, err
	}
	if res.Newly {
		s.emitAwardNotifications(userID, res)
	}
	return res.Newly, nil
}

// AwardTx is the transactional core of Award, used by the trigger
// engine to fold several awards into one event-level commit. Safe to
// call concurrently for the same (user, badge): the unique index on
// user_badges is the only serialization point.
func (s *BadgeService) AwardTx(tx *gorm.DB, userID, slug, metadata string) (*AwardResult, error) {
	badge, ok := s.lookup(slug)
	if !ok {
		log.Printf("⚠️  Award requested for unknown badge slug %q (user %s)", slug, userID)
		return &AwardResult{}, nil
	}

	// Fast path: already owned.
	var count int64
	if err := tx.Model(&models.UserBadge{}).
		Where("user_id = ? AND badge_id = ?", userID, badge.Def.ID).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return &AwardResult{Badge: badge.Def}, nil
	}

	userBadge := models.UserBadge{
		UserID:   userID,
		BadgeID:  badge.Def.ID,
		Metadata: metadata,
	}
	if err := tx.Create(&userBadge).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// A concurrent awarder won the race. Not an error.
			return &AwardResult{Badge: badge.Def}, nil
		}
		return nil, err
	}

	res := &AwardResult{Newly: true, Badge: badge.Def}

	// XP grant keyed deterministically so a redelivered award can never
	// double-grant even if the ownership row somehow pre-existed.
	if badge.Def.XPReward > 0 {
		xpRes, err := s.XP.GrantTx(tx, userID, badge.Def.XPReward,
			"badge", badge.Def.ID,
			fmt.Sprintf("Badge earned: %s", badge.Def.Name),
			fmt.Sprintf("badge:%s:%s", slug, userID))
		if err != nil {
			return nil, err
		}
		res.XP = xpRes
	}

	if _, err := ensureSummary(tx, userID); err != nil {
		return nil, err
	}
	if err := tx.Model(&models.UserGamification{}).
		Where("user_id = ?", userID).
		UpdateColumn("badges_earned", gorm.Expr("badges_earned + 1")).Error; err != nil {
		return nil, err
	}

	// Popularity counter.
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "badge_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"times_awarded": gorm.Expr("badge_stats.times_awarded + 1")}),
	}).Create(&models.BadgeStat{BadgeID: badge.Def.ID, TimesAwarded: 1}).Error; err != nil {
		return nil, err
	}

	log.Printf("🎖️  Badge awarded: %s → %s", badge.Def.Slug, userID)
	return res, nil
}

// emitAwardNotifications publishes the badge-earned (and possible
// level-up) notifications. Called only after the award transaction has
// committed.
func (s *BadgeService) emitAwardNotifications(userID string, res *AwardResult) {
	if s.Notifier == nil {
		return
	}
	s.Notifier.Emit(userID, models.NotificationTypeGamification, "badge_earned",
		fmt.Sprintf("Badge earned: %s", res.Badge.Name),
		res.Badge.Description,
		"/badges")
	if res.XP != nil && res.XP.LeveledUp {
		s.Notifier.Emit(userID, models.NotificationTypeGamification, "level_up",
			fmt.Sprintf("Level %d reached!", res.XP.Level.Level),
			fmt.Sprintf("You are now a %s", res.XP.Level.Title),
			"/progress")
	}
}

// CheckEventTrigger runs the named-event evaluation path outside the
// stream pipeline: feature APIs call it directly (e.g., "wallet_linked").
// Returns the slugs newly awarded.
func (s *BadgeService) CheckEventTrigger(userID, eventName string) ([]string, error) {
	var awarded []string
	for _, badge := range s.badgesByKind(models.TriggerEvent) {
		if badge.Trigger.Event != eventName {
			continue
		}
		newly, err := s.Award(userID, badge.Def.Slug, "")
		if err != nil {
			return awarded, err
		}
		if newly {
			awarded = append(awarded, badge.Def.Slug)
		}
	}
	return awarded, nil
}

// ListForUser returns a user's earned badges joined with definitions.
func (s *BadgeService) ListForUser(userID string) ([]map[string]interface{}, error) {
	var rows []struct {
		models.UserBadge
		Slug        string
		Name        string
		Description string
		Category    string
		Rarity      string
		IconURL     string
		XPReward    int64
	}
	err := s.DB.Model(&models.UserBadge{}).
		Select("user_badges.*, badge_definitions.slug, badge_definitions.name, badge_definitions.description, badge_definitions.category, badge_definitions.rarity, badge_definitions.icon_url, badge_definitions.xp_reward").
		Joins("JOIN badge_definitions ON badge_definitions.id = user_badges.badge_id").
		Where("user_badges.user_id = ?", userID).
		Order("user_badges.earned_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		out = append(out, map[string]interface{}{
			"id":          r.UserBadge.ID,
			"slug":        r.Slug,
			"name":        r.Name,
			"description": r.Description,
			"category":    r.Category,
			"rarity":      r.Rarity,
			"icon_url":    r.IconURL,
			"xp_reward":   r.XPReward,
			"earned_at":   r.EarnedAt,
			"metadata":    r.Metadata,
		})
	}
	return out, nil
}
